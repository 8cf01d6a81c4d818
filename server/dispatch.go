package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/graybridge/mcpmqtt/internal/mqtt"
	"github.com/graybridge/mcpmqtt/mcp"
	"github.com/graybridge/mcpmqtt/topics"
)

// encode marshals an envelope for the wire.
func encode(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return payload, nil
}

// handleInitialize processes a message on the control topic.
//
// The client's identity is taken from the MCP-MQTT-CLIENT-ID user property
// of the inbound packet, never from the topic. A control message without
// that property is dropped without effect.
//
// Order is load-bearing: the initialize response is published before the
// per-client subscriptions are added, so the client can begin using RPC
// immediately and a prior retained message cannot race the new
// subscriptions.
func (s *Server) handleInitialize(msg mqtt.Message) {
	clientID, ok := msg.Property(topics.PropMQTTClientID)
	if !ok || clientID == "" {
		s.log.Warn("control message without client id property dropped")
		return
	}

	parsed, err := mcp.ParseMessage(msg.Payload)
	if err != nil {
		s.log.Warn("invalid control payload dropped", "client_id", clientID, "error", err)
		s.emitError(err)
		return
	}
	if parsed.Kind != mcp.KindRequest || parsed.Method != mcp.MethodInitialize {
		s.log.Warn("unexpected control message dropped",
			"client_id", clientID,
			"method", parsed.Method,
		)
		return
	}

	var params mcp.InitializeParams
	if len(parsed.Params) > 0 {
		if err := json.Unmarshal(parsed.Params, &params); err != nil {
			s.log.Warn("malformed initialize params dropped", "client_id", clientID, "error", err)
			s.emitError(err)
			return
		}
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	result := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    s.cfg.Capabilities,
		ServerInfo:      mcp.Implementation{Name: s.cfg.Name, Version: s.cfg.Version},
	}

	ctx := context.Background()
	if err := s.respond(ctx, clientID, parsed.ID, result); err != nil {
		s.emitError(err)
		return
	}

	// Response first, then the per-client subscriptions for later
	// unilateral events, then the connected set.
	if err := s.conn.Subscribe(ctx, topics.ClientCapability(clientID), mqtt.SubscribeOptions{}); err != nil {
		s.emitError(err)
	}
	if err := s.conn.Subscribe(ctx, topics.ClientPresence(clientID), mqtt.SubscribeOptions{}); err != nil {
		s.emitError(err)
	}

	s.mu.Lock()
	s.clients[clientID] = struct{}{}
	s.mu.Unlock()

	s.log.Info("client initialized",
		"client_id", clientID,
		"client_name", params.ClientInfo.Name,
	)
}

// dispatchRPC validates and executes one request from a client's RPC
// channel. Runs on its own goroutine per message.
func (s *Server) dispatchRPC(clientID string, msg mqtt.Message) {
	parsed, err := mcp.ParseMessage(msg.Payload)
	if err != nil {
		if !errors.Is(err, mcp.ErrEmptyPayload) {
			s.log.Warn("invalid rpc payload dropped", "client_id", clientID, "error", err)
			s.emitError(err)
		}
		return
	}

	ctx := context.Background()

	switch parsed.Kind {
	case mcp.KindNotification:
		s.handleRPCNotification(ctx, clientID, parsed)
		return
	case mcp.KindResponse:
		// The server never sends requests on this channel; No-Local keeps
		// our own responses out, so any response here is a stray.
		s.log.Debug("stray response on rpc channel dropped", "client_id", clientID)
		return
	case mcp.KindRequest:
	}

	switch parsed.Method {
	case mcp.MethodToolsList:
		s.respondOrLog(ctx, clientID, parsed.ID, mcp.ListToolsResult{Tools: s.listTools()})

	case mcp.MethodToolsCall:
		s.callTool(ctx, clientID, parsed)

	case mcp.MethodResourcesList:
		s.respondOrLog(ctx, clientID, parsed.ID, mcp.ListResourcesResult{Resources: s.listResources()})

	case mcp.MethodResourcesRead:
		s.readResource(ctx, clientID, parsed)

	case mcp.MethodPing:
		s.respondOrLog(ctx, clientID, parsed.ID, mcp.PingResult{Pong: true})

	default:
		s.respondError(ctx, clientID, parsed.ID, mcp.CodeMethodNotFound,
			fmt.Sprintf("method not found: %s", parsed.Method))
	}
}

// callTool executes a tools/call request.
func (s *Server) callTool(ctx context.Context, clientID string, req *mcp.Message) {
	var params mcp.CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.respondError(ctx, clientID, req.ID, mcp.CodeInvalidParams, "malformed tools/call params")
			return
		}
	}

	entry, ok := s.tool(params.Name)
	if !ok {
		s.respondError(ctx, clientID, req.ID, mcp.CodeToolNotFound,
			fmt.Sprintf("tool not found: %s", params.Name))
		return
	}

	args := params.Arguments
	if args == nil {
		args = map[string]any{}
	}

	result, err := s.invokeTool(ctx, entry, args)
	if err != nil {
		s.respondError(ctx, clientID, req.ID, mcp.CodeInternalError, err.Error())
		return
	}
	s.respondOrLog(ctx, clientID, req.ID, result)
}

// invokeTool runs a user tool handler with panic isolation.
func (s *Server) invokeTool(ctx context.Context, entry *toolEntry, args map[string]any) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tool handler panic recovered", "tool", entry.def.Name, "panic", r)
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", entry.def.Name, r)
		}
	}()
	return entry.handler(ctx, args)
}

// readResource executes a resources/read request.
func (s *Server) readResource(ctx context.Context, clientID string, req *mcp.Message) {
	var params mcp.ReadResourceParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.respondError(ctx, clientID, req.ID, mcp.CodeInvalidParams, "malformed resources/read params")
			return
		}
	}

	entry, ok := s.resource(params.URI)
	if !ok {
		s.respondError(ctx, clientID, req.ID, mcp.CodeResourceNotFound,
			fmt.Sprintf("resource not found: %s", params.URI))
		return
	}

	result, err := s.invokeResource(ctx, entry, params.URI)
	if err != nil {
		s.respondError(ctx, clientID, req.ID, mcp.CodeInternalError, err.Error())
		return
	}
	s.respondOrLog(ctx, clientID, req.ID, result)
}

// invokeResource runs a user resource handler with panic isolation.
func (s *Server) invokeResource(ctx context.Context, entry *resourceEntry, uri string) (result *mcp.ReadResourceResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("resource handler panic recovered", "uri", uri, "panic", r)
			result = nil
			err = fmt.Errorf("resource %s panicked: %v", uri, r)
		}
	}()
	return entry.handler(ctx, uri)
}

// handleRPCNotification processes a notification arriving on a client's
// RPC channel.
func (s *Server) handleRPCNotification(ctx context.Context, clientID string, n *mcp.Message) {
	switch n.Method {
	case mcp.NotificationInitialized:
		s.log.Debug("client reported initialized", "client_id", clientID)
	case mcp.NotificationDisconnected:
		// Graceful client shutdown publishes disconnected on the RPC
		// channel as well as on its presence topic.
		s.evictClient(ctx, clientID)
	default:
		s.log.Debug("unhandled client notification", "client_id", clientID, "method", n.Method)
	}
}

// handleClientCapability observes a client capability-change notification.
func (s *Server) handleClientCapability(clientID string, msg mqtt.Message) {
	parsed, err := mcp.ParseMessage(msg.Payload)
	if err != nil {
		s.log.Warn("invalid client capability payload", "client_id", clientID, "error", err)
		return
	}
	s.log.Debug("client capability changed", "client_id", clientID, "method", parsed.Method)
}

// handleClientPresence processes a message on a client's presence topic.
// An empty payload, a disconnect notification, and an unparsable payload
// all evict the client; the per-client subscriptions are removed so the
// subscription set stays bounded.
func (s *Server) handleClientPresence(clientID string, msg mqtt.Message) {
	ctx := context.Background()

	if len(msg.Payload) == 0 {
		s.evictClient(ctx, clientID)
		return
	}

	parsed, err := mcp.ParseMessage(msg.Payload)
	if err != nil || parsed.Method != mcp.NotificationDisconnected {
		if err != nil {
			s.log.Warn("malformed client presence payload, evicting",
				"client_id", clientID, "error", err)
		}
		s.evictClient(ctx, clientID)
		return
	}
	s.evictClient(ctx, clientID)
}

// evictClient removes a client from the connected set and drops its
// per-client subscriptions.
func (s *Server) evictClient(ctx context.Context, clientID string) {
	s.mu.Lock()
	_, known := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	if !known {
		return
	}

	if err := s.conn.Unsubscribe(ctx, topics.ClientCapability(clientID)); err != nil {
		s.log.Warn("unsubscribing client capability", "client_id", clientID, "error", err)
	}
	if err := s.conn.Unsubscribe(ctx, topics.ClientPresence(clientID)); err != nil {
		s.log.Warn("unsubscribing client presence", "client_id", clientID, "error", err)
	}

	s.log.Info("client disconnected", "client_id", clientID)
}

// respond publishes a success response on the client's RPC channel.
func (s *Server) respond(ctx context.Context, clientID string, id any, result any) error {
	resp, err := mcp.NewResult(id, result)
	if err != nil {
		return err
	}
	payload, err := encode(resp)
	if err != nil {
		return err
	}
	topic := topics.RPC(clientID, s.cfg.ServerID, s.cfg.ServerName)
	if err := s.conn.Publish(ctx, topic, payload, mqtt.PublishOptions{}); err != nil {
		return fmt.Errorf("publishing response: %w", err)
	}
	return nil
}

// respondOrLog is respond with failures routed to the error callback.
func (s *Server) respondOrLog(ctx context.Context, clientID string, id any, result any) {
	if err := s.respond(ctx, clientID, id, result); err != nil {
		s.emitError(err)
	}
}

// respondError publishes an error response on the client's RPC channel.
func (s *Server) respondError(ctx context.Context, clientID string, id any, code int, message string) {
	resp := mcp.NewErrorResponse(id, code, message)
	payload, err := encode(resp)
	if err != nil {
		s.emitError(err)
		return
	}
	topic := topics.RPC(clientID, s.cfg.ServerID, s.cfg.ServerName)
	if err := s.conn.Publish(ctx, topic, payload, mqtt.PublishOptions{}); err != nil {
		s.emitError(fmt.Errorf("publishing error response: %w", err))
	}
}
