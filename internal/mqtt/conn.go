package mqtt

import (
	"context"
	"log/slog"

	"github.com/graybridge/mcpmqtt/config"
	"github.com/graybridge/mcpmqtt/mcp"
)

// Message is an inbound PUBLISH delivered to the peer's handler.
type Message struct {
	Topic   string
	Payload []byte

	// Properties holds the packet's MQTT user properties. The protocol
	// never repeats a key, so a plain map suffices.
	Properties map[string]string
}

// Property returns the named user property and whether it was present.
func (m *Message) Property(name string) (string, bool) {
	v, ok := m.Properties[name]
	return v, ok
}

// Handler receives every inbound message, in broker delivery order.
// Handlers must not block; slow work belongs in their own goroutines.
type Handler func(Message)

// SubscribeOptions carries per-subscription MQTT 5.0 options.
// QoS is always 1.
type SubscribeOptions struct {
	// NoLocal suppresses delivery of the subscriber's own publishes on
	// this subscription. Required on RPC subscriptions, where both peers
	// publish to the same topic.
	NoLocal bool
}

// PublishOptions carries per-publish settings. The zero value publishes
// QoS 1, non-retained, with no extra user properties.
type PublishOptions struct {
	Retain bool

	// Properties are additional user properties for this publish. The
	// identity properties (MCP-COMPONENT-TYPE, MCP-MQTT-CLIENT-ID) are
	// always attached by the adapter and need not be listed.
	Properties map[string]string
}

// Conn is the transport seam between the MCP peers and the broker.
//
// The real implementation is Client (autopaho). Tests substitute the
// in-memory implementation from the mqtttest subpackage.
type Conn interface {
	// Connect establishes the broker session. The message handler must be
	// set before Connect; subscriptions made before Connect fail.
	Connect(ctx context.Context) error

	// Disconnect tears down the session. Safe to call when not connected.
	Disconnect(ctx context.Context) error

	// Subscribe adds a QoS 1 subscription.
	Subscribe(ctx context.Context, topic string, opts SubscribeOptions) error

	// Unsubscribe removes a subscription.
	Unsubscribe(ctx context.Context, topic string) error

	// Publish sends a QoS 1 message.
	Publish(ctx context.Context, topic string, payload []byte, opts PublishOptions) error

	// ConnackProperty returns a user property from the broker's CONNACK,
	// available after Connect.
	ConnackProperty(name string) (string, bool)

	// SetMessageHandler registers the inbound message callback.
	SetMessageHandler(h Handler)
}

// Will describes the Last Will and Testament registered at connect time.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Options configures a transport client.
type Options struct {
	// Config is the broker connection configuration.
	Config config.MQTTConfig

	// ClientID is the MQTT client id for this session. Exclusive to one
	// session; a second session with the same id evicts the first.
	ClientID string

	// ComponentType is topics.ComponentServer or topics.ComponentClient;
	// stamped on every publish.
	ComponentType string

	// Meta is serialised into the MCP-META user property of the CONNECT
	// packet.
	Meta *mcp.ConnectMeta

	// Will is the optional Last Will and Testament.
	Will *Will

	// Logger receives connection lifecycle and handler-failure logs.
	Logger *slog.Logger
}
