// Package topics defines the MQTT topic scheme that carries MCP dialogues.
//
// All MCP traffic lives under three reserved prefixes:
//
//	$mcp-server/...   control, capability-change and presence topics owned
//	                  by servers
//	$mcp-client/...   capability-change and presence topics owned by clients
//	$mcp-rpc/...      per-(client, server) request/response channels
//
// Using the builders in this package instead of hand-assembled strings
// keeps topic naming consistent across both peers, and Route gives ingress
// code a parsed, tagged view of an arriving topic so handlers never
// re-split strings.
//
// Server names are hierarchical slash-separated paths ("vendor/product/
// role") and always occupy the tail of a topic, which is what makes them
// filterable by clients with ordinary MQTT wildcards.
package topics
