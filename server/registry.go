package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/graybridge/mcpmqtt/internal/mqtt"
	"github.com/graybridge/mcpmqtt/mcp"
)

// Registration errors.
var (
	ErrEmptyToolName    = errors.New("server: tool name cannot be empty")
	ErrEmptyResourceURI = errors.New("server: resource uri cannot be empty")
	ErrNilHandler       = errors.New("server: handler cannot be nil")
)

// ToolHandler executes a tool invocation. Arguments default to an empty
// map when the caller sent none. Returning an error produces an
// INTERNAL_ERROR response; returning a result with IsError set produces a
// successful response carrying a negative application outcome.
type ToolHandler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// ResourceHandler reads a resource by URI.
type ResourceHandler func(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)

type toolEntry struct {
	def     mcp.Tool
	handler ToolHandler
}

type resourceEntry struct {
	def     mcp.Resource
	handler ResourceHandler
}

// ResourceOption customises a resource registration.
type ResourceOption func(*mcp.Resource)

// WithDescription sets the resource description.
func WithDescription(desc string) ResourceOption {
	return func(r *mcp.Resource) { r.Description = desc }
}

// WithMimeType sets the resource MIME type.
func WithMimeType(mt string) ResourceOption {
	return func(r *mcp.Resource) { r.MimeType = mt }
}

// RegisterTool adds a tool to the server's table. Registering an existing
// name replaces it.
//
// If a client has already initialized and the tools capability declares
// list_changed, a notifications/tools/list_changed notification is
// published on the capability topic. Registration before initialization
// never notifies.
func (s *Server) RegisterTool(name, description string, schema *jsonschema.Schema, handler ToolHandler) error {
	if name == "" {
		return ErrEmptyToolName
	}
	if handler == nil {
		return ErrNilHandler
	}

	s.mu.Lock()
	if _, exists := s.tools[name]; !exists {
		s.toolOrder = append(s.toolOrder, name)
	}
	s.tools[name] = &toolEntry{
		def: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		handler: handler,
	}
	notify := s.initialized && s.cfg.Capabilities.Tools != nil && s.cfg.Capabilities.Tools.ListChanged
	s.mu.Unlock()

	if notify {
		s.notifyListChanged(mcp.NotificationToolsListChanged)
	}
	return nil
}

// RegisterResource adds a resource to the server's table. Registering an
// existing URI replaces it. Notification behaviour is symmetric with
// RegisterTool, gated on the resources capability.
func (s *Server) RegisterResource(uri, name string, handler ResourceHandler, opts ...ResourceOption) error {
	if uri == "" {
		return ErrEmptyResourceURI
	}
	if handler == nil {
		return ErrNilHandler
	}

	def := mcp.Resource{URI: uri, Name: name}
	for _, opt := range opts {
		opt(&def)
	}

	s.mu.Lock()
	if _, exists := s.resources[uri]; !exists {
		s.resOrder = append(s.resOrder, uri)
	}
	s.resources[uri] = &resourceEntry{def: def, handler: handler}
	notify := s.initialized && s.cfg.Capabilities.Resources != nil && s.cfg.Capabilities.Resources.ListChanged
	s.mu.Unlock()

	if notify {
		s.notifyListChanged(mcp.NotificationResourcesListChange)
	}
	return nil
}

// notifyListChanged publishes a list_changed notification on the
// capability topic. Failures are reported through the error callback; the
// registration itself has already succeeded.
func (s *Server) notifyListChanged(method string) {
	n, err := mcp.NewNotification(method, nil)
	if err != nil {
		s.emitError(err)
		return
	}
	payload, err := encode(n)
	if err != nil {
		s.emitError(err)
		return
	}
	if err := s.conn.Publish(context.Background(), s.topics.Capability, payload, mqtt.PublishOptions{}); err != nil {
		s.emitError(fmt.Errorf("publishing %s: %w", method, err))
	}
}

// listTools snapshots the tool definitions in registration order.
func (s *Server) listTools() []mcp.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.Tool, 0, len(s.toolOrder))
	for _, name := range s.toolOrder {
		out = append(out, s.tools[name].def)
	}
	return out
}

// listResources snapshots the resource definitions in registration order.
func (s *Server) listResources() []mcp.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcp.Resource, 0, len(s.resOrder))
	for _, uri := range s.resOrder {
		out = append(out, s.resources[uri].def)
	}
	return out
}

// tool returns the entry for name, if registered.
func (s *Server) tool(name string) (*toolEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tools[name]
	return e, ok
}

// resource returns the entry for uri, if registered.
func (s *Server) resource(uri string) (*resourceEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.resources[uri]
	return e, ok
}
