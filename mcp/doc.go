// Package mcp defines the Model Context Protocol message types carried by
// the MQTT transport.
//
// This package contains:
//   - JSON-RPC 2.0 envelopes (requests, responses, notifications)
//   - MCP protocol structures (capabilities, tools, resources, initialize)
//   - The protocol error taxonomy and JSON-RPC error codes
//   - Per-method request timeouts
//
// # Wire Format
//
// Every payload exchanged between peers is a JSON-encoded JSON-RPC 2.0
// message. The one exception is the empty payload published to a presence
// topic, which is a sentinel meaning "offline/absent" — it is not valid
// JSON and ParseMessage reports it as ErrEmptyPayload so callers can treat
// it semantically rather than as corruption.
//
// # Protocol Version
//
// Both peers speak protocol version "2024-11-05". The server always returns
// it in the initialize response; the client always sends it in the
// initialize request.
package mcp
