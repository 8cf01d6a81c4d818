package topics

// MQTT 5.0 user property names used on CONNECT and PUBLISH packets.
// Names are case-sensitive on the wire.
const (
	// PropComponentType marks every PUBLISH with the publisher's role.
	// Value is ComponentServer or ComponentClient.
	PropComponentType = "MCP-COMPONENT-TYPE"

	// PropMQTTClientID carries the publisher's MQTT client id on every
	// PUBLISH. The server's initialize handler trusts this property, not
	// the topic, for the client's identity.
	PropMQTTClientID = "MCP-MQTT-CLIENT-ID"

	// PropMeta is set on CONNECT and carries a JSON-encoded mcp.ConnectMeta.
	PropMeta = "MCP-META"

	// PropServerNameFilters may appear in CONNACK properties: a JSON array
	// of server-name filters the broker suggests the client restrict its
	// discovery subscriptions to.
	PropServerNameFilters = "MCP-SERVER-NAME-FILTERS"

	// PropRBAC may appear in CONNACK properties: JSON-encoded role
	// information the broker grants the connecting client.
	PropRBAC = "MCP-RBAC"
)

// Values for PropComponentType.
const (
	ComponentServer = "mcp-server"
	ComponentClient = "mcp-client"
)
