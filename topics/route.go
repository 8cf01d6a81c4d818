package topics

import "strings"

// Kind identifies which handler an inbound topic routes to.
type Kind int

const (
	// KindUnknown is a topic outside the MCP scheme.
	KindUnknown Kind = iota

	// KindServerControl is $mcp-server/{server_id}/{server_name}.
	KindServerControl

	// KindServerCapability is $mcp-server/capability/{server_id}/{server_name}.
	KindServerCapability

	// KindServerPresence is $mcp-server/presence/{server_id}/{server_name}.
	KindServerPresence

	// KindClientCapability is $mcp-client/capability/{client_id}.
	KindClientCapability

	// KindClientPresence is $mcp-client/presence/{client_id}.
	KindClientPresence

	// KindRPC is $mcp-rpc/{client_id}/{server_id}/{server_name}.
	KindRPC
)

// Route is the parsed view of an inbound MCP topic. Only the identifier
// fields implied by Kind are populated.
type Route struct {
	Kind       Kind
	ServerID   string
	ServerName string
	ClientID   string
}

// Parse classifies a topic into its MCP route and extracts the embedded
// identifiers. Topics outside the reserved prefixes, or with too few
// segments, come back as KindUnknown.
func Parse(topic string) Route {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return Route{Kind: KindUnknown}
	}

	switch parts[0] {
	case PrefixServer:
		switch parts[1] {
		case "capability":
			if len(parts) < 4 {
				return Route{Kind: KindUnknown}
			}
			return Route{
				Kind:       KindServerCapability,
				ServerID:   parts[2],
				ServerName: strings.Join(parts[3:], "/"),
			}
		case "presence":
			if len(parts) < 4 {
				return Route{Kind: KindUnknown}
			}
			return Route{
				Kind:       KindServerPresence,
				ServerID:   parts[2],
				ServerName: strings.Join(parts[3:], "/"),
			}
		default:
			if len(parts) < 3 {
				return Route{Kind: KindUnknown}
			}
			return Route{
				Kind:       KindServerControl,
				ServerID:   parts[1],
				ServerName: strings.Join(parts[2:], "/"),
			}
		}

	case PrefixClient:
		if len(parts) != 3 {
			return Route{Kind: KindUnknown}
		}
		switch parts[1] {
		case "capability":
			return Route{Kind: KindClientCapability, ClientID: parts[2]}
		case "presence":
			return Route{Kind: KindClientPresence, ClientID: parts[2]}
		}
		return Route{Kind: KindUnknown}

	case PrefixRPC:
		if len(parts) < 4 {
			return Route{Kind: KindUnknown}
		}
		return Route{
			Kind:       KindRPC,
			ClientID:   parts[1],
			ServerID:   parts[2],
			ServerName: strings.Join(parts[3:], "/"),
		}
	}

	return Route{Kind: KindUnknown}
}
