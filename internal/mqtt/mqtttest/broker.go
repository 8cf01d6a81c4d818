// Package mqtttest provides an in-memory MQTT broker and transport
// connection for testing the MCP peers without a live broker.
//
// The broker honours the subset of MQTT 5.0 the transport relies on:
// retained messages (including clear-on-empty), '+'/'#' wildcard filters,
// the No-Local subscription option, per-publish user properties, CONNACK
// user properties, and will messages fired on ungraceful connection loss.
//
// Delivery is synchronous and in publish order, which keeps tests
// deterministic: by the time Publish returns, every matching handler has
// run (including handlers that published in response).
package mqtttest

import (
	"context"
	"sync"

	"github.com/graybridge/mcpmqtt/internal/mqtt"
	"github.com/graybridge/mcpmqtt/topics"
)

// Record is one publish observed by the broker.
type Record struct {
	From       string // publishing MQTT client id ("" for a will)
	Topic      string
	Payload    []byte
	Retain     bool
	Properties map[string]string
}

// Broker is an in-memory message broker shared by test connections.
type Broker struct {
	// ConnackProps is handed to every connecting client as its CONNACK
	// user properties. Set before connecting to simulate broker
	// suggestions (MCP-SERVER-NAME-FILTERS, MCP-RBAC).
	ConnackProps map[string]string

	mu       sync.Mutex
	conns    map[*Conn]struct{}
	retained map[string]Record
	log      []Record
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		conns:    make(map[*Conn]struct{}),
		retained: make(map[string]Record),
	}
}

// Retained returns the retained payload for a topic, if any. An empty
// retained payload clears the slot, so ok=false covers both "never
// published" and "cleared".
func (b *Broker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.retained[topic]
	if !ok {
		return nil, false
	}
	return r.Payload, true
}

// Log returns a copy of every publish the broker has seen, in order.
func (b *Broker) Log() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, len(b.log))
	copy(out, b.log)
	return out
}

// Published returns the publishes whose topic matches the given filter.
func (b *Broker) Published(filter string) []Record {
	var out []Record
	for _, r := range b.Log() {
		if topics.Match(filter, r.Topic) {
			out = append(out, r)
		}
	}
	return out
}

// publish routes a message: records it, updates retained state, and
// delivers it synchronously to matching subscribers. from is nil for will
// messages.
func (b *Broker) publish(from *Conn, rec Record) {
	b.mu.Lock()
	b.log = append(b.log, rec)

	if rec.Retain {
		if len(rec.Payload) == 0 {
			delete(b.retained, rec.Topic)
		} else {
			b.retained[rec.Topic] = rec
		}
	}

	type target struct {
		conn    *Conn
		handler mqtt.Handler
	}
	var targets []target
	for c := range b.conns {
		if h := c.currentHandler(); h != nil && c.matches(from, rec.Topic) {
			targets = append(targets, target{c, h})
		}
	}
	b.mu.Unlock()

	for _, t := range targets {
		t.handler(mqtt.Message{
			Topic:      rec.Topic,
			Payload:    rec.Payload,
			Properties: cloneProps(rec.Properties),
		})
	}
}

// subscription is one filter held by a connection.
type subscription struct {
	filter  string
	noLocal bool
}

// Conn is an in-memory implementation of mqtt.Conn attached to a Broker.
type Conn struct {
	broker *Broker
	opts   mqtt.Options

	mu        sync.Mutex
	connected bool
	handler   mqtt.Handler
	subs      map[string]subscription
	connack   map[string]string
}

// Dial creates a connection with the same options the production adapter
// takes, so wills, identity properties and MCP-META flow through tests
// unchanged.
func Dial(b *Broker, opts mqtt.Options) *Conn {
	return &Conn{
		broker: b,
		opts:   opts,
		subs:   make(map[string]subscription),
	}
}

// SetMessageHandler registers the inbound message callback.
func (c *Conn) SetMessageHandler(h mqtt.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect attaches to the broker and snapshots the CONNACK properties.
func (c *Conn) Connect(_ context.Context) error {
	c.mu.Lock()
	c.connected = true
	c.connack = cloneProps(c.broker.ConnackProps)
	c.mu.Unlock()

	c.broker.mu.Lock()
	c.broker.conns[c] = struct{}{}
	c.broker.mu.Unlock()
	return nil
}

// Disconnect detaches gracefully; the will is not fired.
func (c *Conn) Disconnect(_ context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.broker.mu.Lock()
	delete(c.broker.conns, c)
	c.broker.mu.Unlock()
	return nil
}

// Drop simulates ungraceful connection loss: the broker fires the will.
func (c *Conn) Drop() {
	c.mu.Lock()
	c.connected = false
	will := c.opts.Will
	c.mu.Unlock()

	c.broker.mu.Lock()
	delete(c.broker.conns, c)
	c.broker.mu.Unlock()

	if will != nil {
		c.broker.publish(nil, Record{
			Topic:      will.Topic,
			Payload:    will.Payload,
			Retain:     will.Retain,
			Properties: map[string]string{},
		})
	}
}

// ConnackProperty returns a CONNACK user property.
func (c *Conn) ConnackProperty(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.connack[name]
	return v, ok
}

// Subscribe records the filter and delivers any matching retained messages,
// as a broker would.
func (c *Conn) Subscribe(_ context.Context, filter string, opts mqtt.SubscribeOptions) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	c.subs[filter] = subscription{filter: filter, noLocal: opts.NoLocal}
	handler := c.handler
	c.mu.Unlock()

	var retained []Record
	c.broker.mu.Lock()
	for t, r := range c.broker.retained {
		if topics.Match(filter, t) {
			retained = append(retained, r)
		}
	}
	c.broker.mu.Unlock()

	if handler != nil {
		for _, r := range retained {
			handler(mqtt.Message{
				Topic:      r.Topic,
				Payload:    r.Payload,
				Properties: cloneProps(r.Properties),
			})
		}
	}
	return nil
}

// Unsubscribe removes a filter.
func (c *Conn) Unsubscribe(_ context.Context, filter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return mqtt.ErrNotConnected
	}
	delete(c.subs, filter)
	return nil
}

// Subscriptions returns the connection's active filters, for assertions.
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for f := range c.subs {
		out = append(out, f)
	}
	return out
}

// HasSubscription reports whether the exact filter is active.
func (c *Conn) HasSubscription(filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[filter]
	return ok
}

// Publish stamps the identity user properties (as the production adapter
// does) and routes through the broker.
func (c *Conn) Publish(_ context.Context, topic string, payload []byte, opts mqtt.PublishOptions) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return mqtt.ErrNotConnected
	}
	c.mu.Unlock()

	props := map[string]string{
		topics.PropComponentType: c.opts.ComponentType,
		topics.PropMQTTClientID:  c.opts.ClientID,
	}
	for k, v := range opts.Properties {
		props[k] = v
	}

	c.broker.publish(c, Record{
		From:       c.opts.ClientID,
		Topic:      topic,
		Payload:    payload,
		Retain:     opts.Retain,
		Properties: props,
	})
	return nil
}

// currentHandler returns the registered handler under the connection lock.
func (c *Conn) currentHandler() mqtt.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// matches reports whether any of the connection's subscriptions should
// receive a message on topic published by from, honouring No-Local.
func (c *Conn) matches(from *Conn, topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	for _, s := range c.subs {
		if !topics.Match(s.filter, topic) {
			continue
		}
		if s.noLocal && from == c {
			continue
		}
		return true
	}
	return false
}

func cloneProps(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
