package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/graybridge/mcpmqtt/config"
	"github.com/graybridge/mcpmqtt/internal/logging"
	"github.com/graybridge/mcpmqtt/internal/mqtt"
	"github.com/graybridge/mcpmqtt/internal/pending"
	"github.com/graybridge/mcpmqtt/mcp"
	"github.com/graybridge/mcpmqtt/topics"
)

// dialConn builds the production transport. Swapped by tests for the
// in-memory broker.
var dialConn = func(opts mqtt.Options) mqtt.Conn { return mqtt.NewClient(opts) }

// ErrServerNotDiscovered is returned by InitializeServer for a server id
// with no presence record.
var ErrServerNotDiscovered = errors.New("client: server not discovered")

// ServerInfo is the client-side record of a discovered server. It is
// created from the presence notification and enriched by the initialize
// handshake.
type ServerInfo struct {
	ServerID     string
	ServerName   string
	Name         string
	Description  string
	DisplayName  string
	Version      string
	Capabilities mcp.ServerCapabilities
	RBAC         *mcp.RBAC
}

// Client is an MCP client peer.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Event callbacks are invoked from the ingress path and should not
//     block; slow reactions belong on the callback's own goroutine.
type Client struct {
	cfg      config.ClientConfig
	log      *slog.Logger
	clientID string

	mu         sync.Mutex
	conn       mqtt.Conn
	connected  bool
	closed     bool
	filter     string
	discovered map[string]*ServerInfo
	servers    map[string]struct{} // ids with a completed handshake
	pend       *pending.Registry

	cbMu                sync.RWMutex
	onConnected         func()
	onDisconnected      func()
	onServerDiscovered  func(ServerInfo)
	onServerInitialized func(ServerInfo)
	onServerDisconnect  func(serverID string)
	onCapabilityChanged func(serverID, method string)
	onServerNotify      func(serverID string, msg *mcp.Message)
	onBrokerRBAC        func(info json.RawMessage)
	onError             func(error)
}

// New creates a client peer from the given configuration. A fresh MQTT
// client id is generated unless the configuration pins one.
func New(cfg config.ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "mcpc-" + uuid.NewString()
	}

	return &Client{
		cfg:        cfg,
		log:        logging.New(cfg.Logging, "client", cfg.Version),
		clientID:   clientID,
		filter:     cfg.ServerNameFilter,
		discovered: make(map[string]*ServerInfo),
		servers:    make(map[string]struct{}),
		pend:       pending.NewRegistry(),
	}, nil
}

// ClientID returns the MQTT client id this peer connects with.
func (c *Client) ClientID() string {
	return c.clientID
}

// =============================================================================
// Event callbacks
// =============================================================================

// SetOnConnected sets a callback invoked once the discovery subscriptions
// are established.
func (c *Client) SetOnConnected(f func()) {
	c.cbMu.Lock()
	c.onConnected = f
	c.cbMu.Unlock()
}

// SetOnDisconnected sets a callback invoked after Disconnect completes.
func (c *Client) SetOnDisconnected(f func()) {
	c.cbMu.Lock()
	c.onDisconnected = f
	c.cbMu.Unlock()
}

// SetOnServerDiscovered sets a callback receiving each server presence
// announcement.
func (c *Client) SetOnServerDiscovered(f func(ServerInfo)) {
	c.cbMu.Lock()
	c.onServerDiscovered = f
	c.cbMu.Unlock()
}

// SetOnServerInitialized sets a callback invoked when an initialize
// handshake completes.
func (c *Client) SetOnServerInitialized(f func(ServerInfo)) {
	c.cbMu.Lock()
	c.onServerInitialized = f
	c.cbMu.Unlock()
}

// SetOnServerDisconnected sets a callback invoked when a server goes
// offline or announces disconnection.
func (c *Client) SetOnServerDisconnected(f func(serverID string)) {
	c.cbMu.Lock()
	c.onServerDisconnect = f
	c.cbMu.Unlock()
}

// SetOnServerCapabilityChanged sets a callback receiving list_changed
// notifications from servers.
func (c *Client) SetOnServerCapabilityChanged(f func(serverID, method string)) {
	c.cbMu.Lock()
	c.onCapabilityChanged = f
	c.cbMu.Unlock()
}

// SetOnServerNotification sets a callback receiving server notifications
// that are not handled by the core (logging messages, progress, ...).
func (c *Client) SetOnServerNotification(f func(serverID string, msg *mcp.Message)) {
	c.cbMu.Lock()
	c.onServerNotify = f
	c.cbMu.Unlock()
}

// SetOnBrokerRBACInfo sets a callback receiving role information the
// broker pushed in its CONNACK.
func (c *Client) SetOnBrokerRBACInfo(f func(info json.RawMessage)) {
	c.cbMu.Lock()
	c.onBrokerRBAC = f
	c.cbMu.Unlock()
}

// SetOnError sets a callback receiving ingress and transport errors that
// do not belong to any single caller.
func (c *Client) SetOnError(f func(error)) {
	c.cbMu.Lock()
	c.onError = f
	c.cbMu.Unlock()
}

// emitError delivers an ingress error to the error callback, if set.
func (c *Client) emitError(err error) {
	c.cbMu.RLock()
	f := c.onError
	c.cbMu.RUnlock()
	if f != nil {
		f(err)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Connect establishes the broker session and the discovery subscriptions.
//
// Sequence:
//  1. Register the last will: notifications/disconnected on the client's
//     presence topic (QoS 1, not retained).
//  2. Connect with identity user properties and MCP-META.
//  3. Apply broker suggestions from CONNACK (server-name filter, RBAC).
//  4. Subscribe to server presence, server capability, and the client's
//     RPC channels (No-Local).
//  5. Invoke the connected callback.
func (c *Client) Connect(ctx context.Context) error {
	will, err := disconnectedPayload()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	if conn == nil {
		conn = dialConn(mqtt.Options{
			Config:        c.cfg.MQTT,
			ClientID:      c.clientID,
			ComponentType: topics.ComponentClient,
			Meta: &mcp.ConnectMeta{
				Version:        mcp.ProtocolVersion,
				Implementation: mcp.Implementation{Name: c.cfg.Name, Version: c.cfg.Version},
				Capabilities:   &c.cfg.Capabilities,
			},
			Will: &mqtt.Will{
				Topic:   topics.ClientPresence(c.clientID),
				Payload: will,
				QoS:     1,
				Retain:  false,
			},
			Logger: c.log,
		})
		c.conn = conn
	}
	c.mu.Unlock()

	conn.SetMessageHandler(c.route)

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	c.applyBrokerSuggestions(conn)

	c.mu.Lock()
	filter := c.filter
	c.connected = true
	c.mu.Unlock()

	subs := []struct {
		topic string
		opts  mqtt.SubscribeOptions
	}{
		{topics.ServerPresenceFilter(filter), mqtt.SubscribeOptions{}},
		{topics.ServerCapabilityFilter(filter), mqtt.SubscribeOptions{}},
		{topics.ClientRPCFilter(c.clientID, filter), mqtt.SubscribeOptions{NoLocal: true}},
	}
	for _, s := range subs {
		if err := conn.Subscribe(ctx, s.topic, s.opts); err != nil {
			return fmt.Errorf("subscribing to %s: %w", s.topic, err)
		}
	}

	c.log.Info("client connected", "client_id", c.clientID, "filter", filter)

	c.cbMu.RLock()
	f := c.onConnected
	c.cbMu.RUnlock()
	if f != nil {
		f()
	}
	return nil
}

// applyBrokerSuggestions reads CONNACK user properties. Malformed values
// are logged and ignored; defaults stay in force. A broker suggestion must
// never fail the connect.
func (c *Client) applyBrokerSuggestions(conn mqtt.Conn) {
	if v, ok := conn.ConnackProperty(topics.PropServerNameFilters); ok && v != "" {
		var filters []string
		if err := json.Unmarshal([]byte(v), &filters); err != nil || len(filters) == 0 {
			c.log.Warn("ignoring malformed broker filter suggestion", "value", v)
		} else {
			c.mu.Lock()
			c.filter = filters[0]
			c.mu.Unlock()
			c.log.Info("broker restricted server name filter", "filter", filters[0])
		}
	}

	if v, ok := conn.ConnackProperty(topics.PropRBAC); ok && v != "" {
		if !json.Valid([]byte(v)) {
			c.log.Warn("ignoring malformed broker rbac info")
		} else {
			c.cbMu.RLock()
			f := c.onBrokerRBAC
			c.cbMu.RUnlock()
			if f != nil {
				f(json.RawMessage(v))
			}
		}
	}
}

// Disconnect gracefully shuts the client down: announces disconnection to
// every connected server and on the client's own presence topic, cancels
// all pending requests, and tears down the transport. A second call is a
// no-op and never returns an error.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || !c.connected {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	var targets []string
	for id := range c.servers {
		if info, ok := c.discovered[id]; ok {
			targets = append(targets, topics.RPC(c.clientID, id, info.ServerName))
		}
	}
	c.mu.Unlock()

	payload, err := disconnectedPayload()
	if err != nil {
		return err
	}

	// Tell every connected server first, then the world.
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range targets {
		g.Go(func() error {
			return conn.Publish(gctx, topic, payload, mqtt.PublishOptions{})
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Warn("notifying servers of disconnect", "error", err)
	}

	if err := conn.Publish(ctx, topics.ClientPresence(c.clientID), payload, mqtt.PublishOptions{}); err != nil {
		c.log.Warn("publishing disconnect presence", "error", err)
	}

	c.pend.CancelAll(mcp.ErrCancelled)

	if err := conn.Disconnect(ctx); err != nil {
		c.log.Warn("transport disconnect", "error", err)
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.log.Info("client disconnected", "client_id", c.clientID)

	c.cbMu.RLock()
	f := c.onDisconnected
	c.cbMu.RUnlock()
	if f != nil {
		f()
	}
	return nil
}

// disconnectedPayload builds the notifications/disconnected envelope.
func disconnectedPayload() ([]byte, error) {
	n, err := mcp.NewNotification(mcp.NotificationDisconnected, nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

// =============================================================================
// Tables
// =============================================================================

// DiscoveredServers returns a snapshot of every server with a live
// presence record, sorted by server id.
func (c *Client) DiscoveredServers() []ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerInfo, 0, len(c.discovered))
	for _, info := range c.discovered {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// ConnectedServers returns a snapshot of every server with a completed
// initialize handshake, sorted by server id.
func (c *Client) ConnectedServers() []ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerInfo, 0, len(c.servers))
	for id := range c.servers {
		if info, ok := c.discovered[id]; ok {
			out = append(out, *info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// IsServerConnected reports whether the initialize handshake with the
// given server has completed and the server has not disconnected.
func (c *Client) IsServerConnected(serverID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.servers[serverID]
	return ok
}

// =============================================================================
// Ingress
// =============================================================================

// route classifies every arriving message by topic.
func (c *Client) route(msg mqtt.Message) {
	r := topics.Parse(msg.Topic)
	switch r.Kind {
	case topics.KindServerPresence:
		c.handlePresence(r.ServerID, r.ServerName, msg)
	case topics.KindServerCapability:
		c.handleCapability(r.ServerID, msg)
	case topics.KindRPC:
		c.handleRPC(r.ServerID, msg)
	default:
		c.log.Debug("ignoring message on unexpected topic", "topic", msg.Topic)
	}
}

// handlePresence processes a server presence message. An empty payload is
// the offline sentinel; anything else is an online announcement.
func (c *Client) handlePresence(serverID, topicName string, msg mqtt.Message) {
	if len(msg.Payload) == 0 {
		c.dropServer(serverID, true)
		return
	}

	parsed, err := mcp.ParseMessage(msg.Payload)
	if err != nil {
		c.log.Warn("invalid presence payload dropped", "server_id", serverID, "error", err)
		c.emitError(err)
		return
	}
	if parsed.Kind != mcp.KindNotification || parsed.Method != mcp.NotificationServerOnline {
		c.log.Warn("unexpected presence message dropped",
			"server_id", serverID, "method", parsed.Method)
		return
	}

	var params mcp.ServerOnlineParams
	if len(parsed.Params) > 0 {
		if err := json.Unmarshal(parsed.Params, &params); err != nil {
			c.log.Warn("malformed online params dropped", "server_id", serverID, "error", err)
			c.emitError(err)
			return
		}
	}

	info := &ServerInfo{
		ServerID:    serverID,
		ServerName:  params.ServerName,
		Description: params.Description,
		DisplayName: params.DisplayName,
	}
	if info.ServerName == "" {
		info.ServerName = topicName
	}
	if params.Meta != nil {
		info.RBAC = params.Meta.RBAC
	}

	c.mu.Lock()
	c.discovered[serverID] = info
	snapshot := *info
	c.mu.Unlock()

	c.log.Info("server discovered", "server_id", serverID, "server_name", snapshot.ServerName)

	c.cbMu.RLock()
	f := c.onServerDiscovered
	c.cbMu.RUnlock()
	if f != nil {
		f(snapshot)
	}
}

// handleCapability processes a server capability-change notification.
func (c *Client) handleCapability(serverID string, msg mqtt.Message) {
	parsed, err := mcp.ParseMessage(msg.Payload)
	if err != nil {
		c.log.Warn("invalid capability payload dropped", "server_id", serverID, "error", err)
		c.emitError(err)
		return
	}

	c.cbMu.RLock()
	f := c.onCapabilityChanged
	c.cbMu.RUnlock()
	if f != nil {
		f(serverID, parsed.Method)
	}
}

// handleRPC processes a message on one of the client's RPC channels:
// responses complete pending requests, disconnect notifications drop the
// server, and other notifications surface through the notification
// callback.
func (c *Client) handleRPC(serverID string, msg mqtt.Message) {
	parsed, err := mcp.ParseMessage(msg.Payload)
	if err != nil {
		if !errors.Is(err, mcp.ErrEmptyPayload) {
			c.log.Warn("invalid rpc payload dropped", "server_id", serverID, "error", err)
			c.emitError(err)
		}
		return
	}

	switch parsed.Kind {
	case mcp.KindResponse:
		c.completePending(serverID, parsed)

	case mcp.KindNotification:
		if parsed.Method == mcp.NotificationDisconnected {
			c.dropServer(serverID, false)
			return
		}
		c.cbMu.RLock()
		f := c.onServerNotify
		c.cbMu.RUnlock()
		if f != nil {
			f(serverID, parsed)
		}

	case mcp.KindRequest:
		// Server-initiated requests (sampling, roots) are not served yet.
		c.log.Debug("unsupported server request dropped",
			"server_id", serverID, "method", parsed.Method)
	}
}

// completePending resolves the pending request correlated to a response.
func (c *Client) completePending(serverID string, resp *mcp.Message) {
	key := mcp.IDKey(resp.ID)
	var done bool
	if resp.Err != nil {
		done = c.pend.Fail(key, resp.Err)
	} else {
		done = c.pend.Complete(key, resp.Result)
	}
	if !done {
		c.log.Debug("response with no pending request dropped",
			"server_id", serverID, "id", key)
	}
}

// dropServer removes a server from the connected set — and, for a
// presence clear, from the discovered set — and emits server_disconnected.
func (c *Client) dropServer(serverID string, presenceClear bool) {
	c.mu.Lock()
	_, wasDiscovered := c.discovered[serverID]
	_, wasConnected := c.servers[serverID]
	delete(c.servers, serverID)
	if presenceClear {
		delete(c.discovered, serverID)
	}
	c.mu.Unlock()

	if !wasDiscovered && !wasConnected {
		return
	}

	c.log.Info("server disconnected", "server_id", serverID)

	c.cbMu.RLock()
	f := c.onServerDisconnect
	c.cbMu.RUnlock()
	if f != nil {
		f(serverID)
	}
}
