package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// Implementation identifies a peer by name and version. It appears in the
// initialize handshake as clientInfo/serverInfo.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListChangedCapability is the common shape of capabilities whose only
// option is whether the peer emits list_changed notifications.
// The yaml tags exist because these types are embedded in the peer
// configuration structs.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty" yaml:"listChanged"`
}

// ResourcesCapability describes the server's resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty" yaml:"subscribe"`
	ListChanged bool `json:"listChanged,omitempty" yaml:"listChanged"`
}

// ServerCapabilities is the set of optional capability records a server
// declares during initialization. A nil sub-record means the capability is
// not advertised at all; a present record with false booleans means
// advertised with the feature off.
type ServerCapabilities struct {
	Logging   map[string]any         `json:"logging,omitempty" yaml:"logging,omitempty"`
	Prompts   *ListChangedCapability `json:"prompts,omitempty" yaml:"prompts,omitempty"`
	Resources *ResourcesCapability   `json:"resources,omitempty" yaml:"resources,omitempty"`
	Tools     *ListChangedCapability `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// ClientCapabilities is the set of capability records a client declares.
type ClientCapabilities struct {
	Roots    *ListChangedCapability `json:"roots,omitempty" yaml:"roots,omitempty"`
	Sampling map[string]any         `json:"sampling,omitempty" yaml:"sampling,omitempty"`
}

// Tool describes a named remote procedure exposed by a server.
// InputSchema is a JSON Schema value passed through verbatim on the wire.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// Resource describes a read-only datum exposed by a server, addressed by URI.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Content is a single block of tool or resource output. Type is "text",
// "image", or "resource"; only the fields matching the type are set.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// InitializeParams is the payload of the initialize request sent to a
// server's control topic.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's response to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// ListToolsResult is the response payload for tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the request payload for tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult is the response payload for tools/call.
//
// IsError reports a negative application outcome (the tool ran and failed
// in a way it wants to describe). It is NOT a JSON-RPC error: the response
// envelope is still a success.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// ListResourcesResult is the response payload for resources/list.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ReadResourceParams is the request payload for resources/read.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult is the response payload for resources/read.
type ReadResourceResult struct {
	Contents []Content `json:"contents"`
}

// PingResult is the response payload for ping.
type PingResult struct {
	Pong bool `json:"pong"`
}

// Role names a set of permissions a broker or server may grant to clients.
// The AllowedTools and AllowedResources lists accept the literal "all".
type Role struct {
	Name             string   `json:"name" yaml:"name"`
	AllowedMethods   []string `json:"allowedMethods,omitempty" yaml:"allowedMethods,omitempty"`
	AllowedTools     []string `json:"allowedTools,omitempty" yaml:"allowedTools,omitempty"`
	AllowedResources []string `json:"allowedResources,omitempty" yaml:"allowedResources,omitempty"`
}

// RBAC is an optional set of named roles advertised by a server. The
// transport carries and exposes it; enforcement is the broker's business.
type RBAC struct {
	Roles []Role `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// OnlineMeta is the optional meta record inside a server online notification.
type OnlineMeta struct {
	RBAC *RBAC `json:"rbac,omitempty"`
}

// ServerOnlineParams is the params payload of the retained
// notifications/server/online message on a server's presence topic.
type ServerOnlineParams struct {
	ServerName  string      `json:"server_name"`
	Description string      `json:"description,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	Meta        *OnlineMeta `json:"meta,omitempty"`
}

// ConnectMeta is the JSON object carried in the MCP-META user property of
// the CONNECT packet. Servers fill the server fields, clients the client
// fields.
type ConnectMeta struct {
	Version        string              `json:"version"`
	Implementation Implementation      `json:"implementation"`
	ServerName     string              `json:"serverName,omitempty"`
	Description    string              `json:"description,omitempty"`
	RBAC           *RBAC               `json:"rbac,omitempty"`
	Capabilities   *ClientCapabilities `json:"capabilities,omitempty"`
}
