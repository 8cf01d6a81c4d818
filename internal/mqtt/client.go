package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/graybridge/mcpmqtt/topics"
)

// Client is the production Conn implementation, built on autopaho's
// connection manager for reconnect handling.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	cm      *autopaho.ConnectionManager
	cancel  context.CancelFunc
	connack map[string]string
	handler Handler
}

// NewClient creates an unconnected transport client.
func NewClient(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{opts: opts, log: log}
}

// SetMessageHandler registers the inbound message callback.
// Must be called before Connect.
func (c *Client) SetMessageHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect establishes the MQTT 5.0 session and blocks until the broker
// acknowledges it or the connect timeout elapses.
//
// The session is configured per the wire protocol: protocol version 5.0,
// clean start, session expiry 0, the configured keepalive, and the
// CONNECT user properties (component type, client id, MCP-META).
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.opts.Config.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBrokerURL, err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		KeepAlive:                     uint16(c.opts.Config.KeepAlive.Seconds()),
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ConnectRetryDelay:             c.opts.Config.ReconnectPeriod,
		ConnectTimeout:                c.opts.Config.ConnectTimeout,
		ConnectUsername:               c.opts.Config.Username,
		ConnectPassword:               []byte(c.opts.Config.Password),
		ConnectPacketBuilder:          c.buildConnectPacket,
		OnConnectionUp:                c.handleConnectionUp,
		OnConnectError: func(err error) {
			c.log.Warn("broker connection attempt failed", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.opts.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.handlePublishReceived,
			},
			OnClientError: func(err error) {
				c.log.Warn("mqtt client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.log.Warn("server initiated disconnect", "reason_code", d.ReasonCode)
			},
		},
	}

	if w := c.opts.Will; w != nil {
		cfg.WillMessage = &paho.WillMessage{
			Retain:  w.Retain,
			QoS:     w.QoS,
			Topic:   w.Topic,
			Payload: w.Payload,
		}
	}

	// The manager's context governs the whole session lifetime, not just
	// this call; cancelled on Disconnect.
	mgrCtx, cancel := context.WithCancel(context.Background())
	cm, err := autopaho.NewConnection(mgrCtx, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, c.opts.Config.ConnectTimeout)
	defer waitCancel()
	if err := cm.AwaitConnection(waitCtx); err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	c.cm = cm
	c.cancel = cancel
	c.mu.Unlock()

	return nil
}

// buildConnectPacket injects the MCP identity user properties into the
// CONNECT packet.
func (c *Client) buildConnectPacket(cp *paho.Connect, _ *url.URL) (*paho.Connect, error) {
	if cp.Properties == nil {
		cp.Properties = &paho.ConnectProperties{}
	}
	cp.Properties.User = append(cp.Properties.User,
		paho.UserProperty{Key: topics.PropComponentType, Value: c.opts.ComponentType},
		paho.UserProperty{Key: topics.PropMQTTClientID, Value: c.opts.ClientID},
	)
	if c.opts.Meta != nil {
		meta, err := json.Marshal(c.opts.Meta)
		if err != nil {
			return nil, fmt.Errorf("marshalling connect meta: %w", err)
		}
		cp.Properties.User = append(cp.Properties.User,
			paho.UserProperty{Key: topics.PropMeta, Value: string(meta)})
	}
	return cp, nil
}

// handleConnectionUp records the CONNACK user properties for later reads.
func (c *Client) handleConnectionUp(_ *autopaho.ConnectionManager, connack *paho.Connack) {
	props := make(map[string]string)
	if connack != nil && connack.Properties != nil {
		for _, p := range connack.Properties.User {
			props[p.Key] = p.Value
		}
	}
	c.mu.Lock()
	c.connack = props
	c.mu.Unlock()
	c.log.Debug("broker connection up", "session_present", connack != nil && connack.SessionPresent)
}

// handlePublishReceived converts an inbound packet and hands it to the
// registered handler. Panics in the handler are recovered so one bad
// message cannot kill the network loop.
func (c *Client) handlePublishReceived(pr paho.PublishReceived) (bool, error) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return false, nil
	}

	msg := Message{
		Topic:      pr.Packet.Topic,
		Payload:    pr.Packet.Payload,
		Properties: make(map[string]string),
	}
	if pr.Packet.Properties != nil {
		for _, p := range pr.Packet.Properties.User {
			msg.Properties[p.Key] = p.Value
		}
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("message handler panic recovered", "topic", msg.Topic, "panic", r)
		}
	}()
	handler(msg)
	return true, nil
}

// ConnackProperty returns a user property from the broker's CONNACK.
func (c *Client) ConnackProperty(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.connack[name]
	return v, ok
}

// Subscribe adds a QoS 1 subscription with the given MQTT 5.0 options.
func (c *Client) Subscribe(ctx context.Context, topic string, opts SubscribeOptions) error {
	cm := c.manager()
	if cm == nil {
		return ErrNotConnected
	}
	_, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:   topic,
			QoS:     1,
			NoLocal: opts.NoLocal,
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// Unsubscribe removes a subscription.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	cm := c.manager()
	if cm == nil {
		return ErrNotConnected
	}
	_, err := cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}

// Publish sends a QoS 1 message carrying the MCP identity user properties
// plus any extras from opts.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error {
	cm := c.manager()
	if cm == nil {
		return ErrNotConnected
	}

	props := &paho.PublishProperties{}
	props.User = append(props.User,
		paho.UserProperty{Key: topics.PropComponentType, Value: c.opts.ComponentType},
		paho.UserProperty{Key: topics.PropMQTTClientID, Value: c.opts.ClientID},
	)
	for k, v := range opts.Properties {
		props.User = append(props.User, paho.UserProperty{Key: k, Value: v})
	}

	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:      topic,
		QoS:        1,
		Retain:     opts.Retain,
		Payload:    payload,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Disconnect sends DISCONNECT and tears down the session. The will is not
// published on a graceful disconnect. Safe to call when not connected.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cm := c.cm
	cancel := c.cancel
	c.cm = nil
	c.cancel = nil
	c.mu.Unlock()

	if cm == nil {
		return nil
	}
	err := cm.Disconnect(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("disconnecting: %w", err)
	}
	return nil
}

// manager returns the live connection manager, or nil when disconnected.
func (c *Client) manager() *autopaho.ConnectionManager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cm
}
