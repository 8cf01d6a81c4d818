package topics

import (
	"errors"
	"fmt"
	"strings"
)

// Reserved topic prefixes. These are fixed by the wire protocol and
// case-sensitive.
const (
	PrefixServer = "$mcp-server"
	PrefixClient = "$mcp-client"
	PrefixRPC    = "$mcp-rpc"
)

// Validation errors for identifiers embedded in topics.
var (
	// ErrEmptyIdentifier is returned for a missing server id, server name,
	// or client id.
	ErrEmptyIdentifier = errors.New("topics: identifier cannot be empty")

	// ErrWildcardInIdentifier is returned when an identifier contains an
	// MQTT wildcard character. Wildcards would corrupt every topic the
	// identifier is embedded in.
	ErrWildcardInIdentifier = errors.New("topics: identifier cannot contain '+' or '#'")
)

// ValidateID checks a server or client id for use inside a topic.
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyIdentifier
	}
	if strings.ContainsAny(id, "+#") {
		return fmt.Errorf("%w: %q", ErrWildcardInIdentifier, id)
	}
	return nil
}

// ValidateServerName checks a hierarchical server name ("vendor/product/
// role") for use as a topic suffix.
func ValidateServerName(name string) error {
	if name == "" {
		return ErrEmptyIdentifier
	}
	if strings.ContainsAny(name, "+#") {
		return fmt.Errorf("%w: %q", ErrWildcardInIdentifier, name)
	}
	return nil
}

// ServerControl returns the control topic a server receives initialize
// requests on.
//
// Example: $mcp-server/S1/demo/calc
func ServerControl(serverID, serverName string) string {
	return fmt.Sprintf("%s/%s/%s", PrefixServer, serverID, serverName)
}

// ServerCapability returns the topic a server publishes capability-change
// notifications on.
//
// Example: $mcp-server/capability/S1/demo/calc
func ServerCapability(serverID, serverName string) string {
	return fmt.Sprintf("%s/capability/%s/%s", PrefixServer, serverID, serverName)
}

// ServerPresence returns the retained presence topic owned by a server.
//
// Example: $mcp-server/presence/S1/demo/calc
func ServerPresence(serverID, serverName string) string {
	return fmt.Sprintf("%s/presence/%s/%s", PrefixServer, serverID, serverName)
}

// ClientCapability returns the topic a client publishes capability-change
// notifications on.
//
// Example: $mcp-client/capability/C1
func ClientCapability(clientID string) string {
	return fmt.Sprintf("%s/capability/%s", PrefixClient, clientID)
}

// ClientPresence returns the presence topic owned by a client.
//
// Example: $mcp-client/presence/C1
func ClientPresence(clientID string) string {
	return fmt.Sprintf("%s/presence/%s", PrefixClient, clientID)
}

// RPC returns the per-(client, server) topic carrying requests, responses
// and post-init notifications.
//
// Example: $mcp-rpc/C1/S1/demo/calc
func RPC(clientID, serverID, serverName string) string {
	return fmt.Sprintf("%s/%s/%s/%s", PrefixRPC, clientID, serverID, serverName)
}

// =============================================================================
// Subscription filters
// =============================================================================

// ServerPresenceFilter returns the pattern a client subscribes to for
// server presence, restricted by a server-name filter.
//
// Pattern: $mcp-server/presence/+/{filter}
func ServerPresenceFilter(nameFilter string) string {
	return fmt.Sprintf("%s/presence/+/%s", PrefixServer, nameFilter)
}

// ServerCapabilityFilter returns the pattern a client subscribes to for
// server capability changes.
//
// Pattern: $mcp-server/capability/+/{filter}
func ServerCapabilityFilter(nameFilter string) string {
	return fmt.Sprintf("%s/capability/+/%s", PrefixServer, nameFilter)
}

// ClientRPCFilter returns the pattern a client subscribes to for its own
// RPC channels across all servers matching the name filter.
//
// Pattern: $mcp-rpc/{client_id}/+/{filter}
func ClientRPCFilter(clientID, nameFilter string) string {
	return fmt.Sprintf("%s/%s/+/%s", PrefixRPC, clientID, nameFilter)
}

// ServerRPCFilter returns the pattern a server subscribes to for RPC
// channels from any client.
//
// Pattern: $mcp-rpc/+/{server_id}/{server_name}
func ServerRPCFilter(serverID, serverName string) string {
	return fmt.Sprintf("%s/+/%s/%s", PrefixRPC, serverID, serverName)
}

// ServerTopics is the computed topic quartet for one server identity.
type ServerTopics struct {
	Control    string
	Capability string
	Presence   string
	RPCPattern string
}

// ForServer computes the full topic quartet for a server identity.
func ForServer(serverID, serverName string) ServerTopics {
	return ServerTopics{
		Control:    ServerControl(serverID, serverName),
		Capability: ServerCapability(serverID, serverName),
		Presence:   ServerPresence(serverID, serverName),
		RPCPattern: ServerRPCFilter(serverID, serverName),
	}
}

// Match reports whether an MQTT topic filter matches a concrete topic.
// Supports the single-level '+' and multi-level '#' wildcards.
func Match(filter, topic string) bool {
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")

	for i, fp := range fparts {
		if fp == "#" {
			return true
		}
		if i >= len(tparts) {
			return false
		}
		if fp != "+" && fp != tparts[i] {
			return false
		}
	}
	return len(fparts) == len(tparts)
}
