package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/graybridge/mcpmqtt/config"
	"github.com/graybridge/mcpmqtt/internal/logging"
	"github.com/graybridge/mcpmqtt/internal/mqtt"
	"github.com/graybridge/mcpmqtt/mcp"
	"github.com/graybridge/mcpmqtt/topics"
)

// dialConn builds the production transport. Swapped by tests for the
// in-memory broker.
var dialConn = func(opts mqtt.Options) mqtt.Conn { return mqtt.NewClient(opts) }

// Server lifecycle errors.
var (
	// ErrAlreadyStarted is returned by Start on a server that is running.
	ErrAlreadyStarted = errors.New("server: already started")

	// ErrNotStarted is returned for operations requiring a running server.
	ErrNotStarted = errors.New("server: not started")
)

// Server is an MCP server peer.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Tool and resource handlers may be invoked concurrently with each
//     other and with registration calls.
type Server struct {
	cfg    config.ServerConfig
	log    *slog.Logger
	topics topics.ServerTopics

	mu          sync.Mutex
	conn        mqtt.Conn
	started     bool
	stopped     bool
	initialized bool
	tools       map[string]*toolEntry
	toolOrder   []string
	resources   map[string]*resourceEntry
	resOrder    []string
	clients     map[string]struct{}

	cbMu     sync.RWMutex
	onReady  func()
	onError  func(error)
	onClosed func()
}

// New creates a server peer from the given configuration.
// The configuration is validated (and defaults filled) here; identifier
// problems surface as *config.ConfigError before any broker traffic.
func New(cfg config.ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Tools and resources capability records always exist on the wire,
	// defaulting to listChanged=false, so clients merge a complete record.
	if cfg.Capabilities.Tools == nil {
		cfg.Capabilities.Tools = &mcp.ListChangedCapability{}
	}
	if cfg.Capabilities.Resources == nil {
		cfg.Capabilities.Resources = &mcp.ResourcesCapability{}
	}

	return &Server{
		cfg:       cfg,
		log:       logging.New(cfg.Logging, "server", cfg.Version),
		topics:    topics.ForServer(cfg.ServerID, cfg.ServerName),
		tools:     make(map[string]*toolEntry),
		resources: make(map[string]*resourceEntry),
		clients:   make(map[string]struct{}),
	}, nil
}

// SetOnReady sets a callback invoked once the server is online and serving.
func (s *Server) SetOnReady(f func()) {
	s.cbMu.Lock()
	s.onReady = f
	s.cbMu.Unlock()
}

// SetOnError sets a callback receiving ingress and transport errors that
// do not belong to any single caller.
func (s *Server) SetOnError(f func(error)) {
	s.cbMu.Lock()
	s.onError = f
	s.cbMu.Unlock()
}

// SetOnClosed sets a callback invoked after Stop completes.
func (s *Server) SetOnClosed(f func()) {
	s.cbMu.Lock()
	s.onClosed = f
	s.cbMu.Unlock()
}

// Topics returns the server's computed topic quartet.
func (s *Server) Topics() topics.ServerTopics {
	return s.topics
}

// ConnectedClients returns the ids of clients that completed the
// initialize handshake and have not disconnected, sorted for stable
// output.
func (s *Server) ConnectedClients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.clients))
	for id := range s.clients {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Start connects to the broker and brings the server online.
//
// Sequence (strict order):
//  1. Register the last will: empty retained payload on the presence topic.
//  2. Connect, advertising identity user properties and MCP-META.
//  3. Subscribe to the control topic.
//  4. Subscribe to the RPC pattern with No-Local.
//  5. Publish the retained online notification to the presence topic.
//  6. Invoke the ready callback.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true

	conn := s.conn
	if conn == nil {
		conn = dialConn(mqtt.Options{
			Config:        s.cfg.MQTT,
			ClientID:      s.cfg.ServerID,
			ComponentType: topics.ComponentServer,
			Meta: &mcp.ConnectMeta{
				Version:        mcp.ProtocolVersion,
				Implementation: mcp.Implementation{Name: s.cfg.Name, Version: s.cfg.Version},
				ServerName:     s.cfg.ServerName,
				Description:    s.cfg.Description,
				RBAC:           s.cfg.RBAC,
			},
			Will: &mqtt.Will{
				Topic:   s.topics.Presence,
				Payload: nil,
				QoS:     1,
				Retain:  true,
			},
			Logger: s.log,
		})
		s.conn = conn
	}
	s.mu.Unlock()

	conn.SetMessageHandler(s.route)

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	if err := conn.Subscribe(ctx, s.topics.Control, mqtt.SubscribeOptions{}); err != nil {
		return fmt.Errorf("subscribing to control topic: %w", err)
	}
	if err := conn.Subscribe(ctx, s.topics.RPCPattern, mqtt.SubscribeOptions{NoLocal: true}); err != nil {
		return fmt.Errorf("subscribing to rpc pattern: %w", err)
	}

	if err := s.publishPresence(ctx); err != nil {
		return err
	}

	s.log.Info("server online",
		"server_id", s.cfg.ServerID,
		"server_name", s.cfg.ServerName,
	)

	if f := s.callback(); f != nil {
		f()
	}
	return nil
}

// publishPresence publishes the retained online notification. This is the
// only non-empty payload the server ever retains on its presence topic.
func (s *Server) publishPresence(ctx context.Context) error {
	params := mcp.ServerOnlineParams{
		ServerName:  s.cfg.ServerName,
		Description: s.cfg.Description,
		DisplayName: s.cfg.DisplayName,
	}
	if s.cfg.RBAC != nil {
		params.Meta = &mcp.OnlineMeta{RBAC: s.cfg.RBAC}
	}
	n, err := mcp.NewNotification(mcp.NotificationServerOnline, params)
	if err != nil {
		return err
	}
	payload, err := encode(n)
	if err != nil {
		return err
	}
	if err := s.conn.Publish(ctx, s.topics.Presence, payload, mqtt.PublishOptions{Retain: true}); err != nil {
		return fmt.Errorf("publishing presence: %w", err)
	}
	return nil
}

// Stop takes the server offline: clears the retained presence message,
// disconnects, and invokes the closed callback. Calling Stop twice is a
// no-op on the second call.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	conn := s.conn
	s.mu.Unlock()

	// Empty retained payload is the offline sentinel.
	if err := conn.Publish(ctx, s.topics.Presence, nil, mqtt.PublishOptions{Retain: true}); err != nil {
		s.log.Warn("clearing presence on stop", "error", err)
	}

	err := conn.Disconnect(ctx)

	s.log.Info("server stopped", "server_id", s.cfg.ServerID)

	s.cbMu.RLock()
	closed := s.onClosed
	s.cbMu.RUnlock()
	if closed != nil {
		closed()
	}
	return err
}

// callback returns the ready callback under the callback lock.
func (s *Server) callback() func() {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	return s.onReady
}

// emitError delivers an ingress error to the error callback, if set.
// Ingress errors never kill the event loop.
func (s *Server) emitError(err error) {
	s.cbMu.RLock()
	f := s.onError
	s.cbMu.RUnlock()
	if f != nil {
		f(err)
	}
}

// route classifies every arriving message by topic and hands it to the
// matching handler. Requests dispatch on their own goroutine so user
// handlers can block without stalling ingress.
func (s *Server) route(msg mqtt.Message) {
	if msg.Topic == s.topics.Control {
		s.handleInitialize(msg)
		return
	}

	r := topics.Parse(msg.Topic)
	switch r.Kind {
	case topics.KindRPC:
		go s.dispatchRPC(r.ClientID, msg)
	case topics.KindClientCapability:
		s.handleClientCapability(r.ClientID, msg)
	case topics.KindClientPresence:
		s.handleClientPresence(r.ClientID, msg)
	default:
		s.log.Debug("ignoring message on unexpected topic", "topic", msg.Topic)
	}
}
