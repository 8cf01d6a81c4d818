package topics

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  Route
	}{
		{
			"server control",
			"$mcp-server/S1/demo/calc",
			Route{Kind: KindServerControl, ServerID: "S1", ServerName: "demo/calc"},
		},
		{
			"server capability",
			"$mcp-server/capability/S1/demo/calc",
			Route{Kind: KindServerCapability, ServerID: "S1", ServerName: "demo/calc"},
		},
		{
			"server presence",
			"$mcp-server/presence/S1/demo/calc",
			Route{Kind: KindServerPresence, ServerID: "S1", ServerName: "demo/calc"},
		},
		{
			"deep server name",
			"$mcp-server/presence/S1/vendor/product/role",
			Route{Kind: KindServerPresence, ServerID: "S1", ServerName: "vendor/product/role"},
		},
		{
			"client capability",
			"$mcp-client/capability/C1",
			Route{Kind: KindClientCapability, ClientID: "C1"},
		},
		{
			"client presence",
			"$mcp-client/presence/C1",
			Route{Kind: KindClientPresence, ClientID: "C1"},
		},
		{
			"rpc",
			"$mcp-rpc/C1/S1/demo/calc",
			Route{Kind: KindRPC, ClientID: "C1", ServerID: "S1", ServerName: "demo/calc"},
		},
		{"unrelated", "graylogic/state/knx/light", Route{Kind: KindUnknown}},
		{"bare prefix", "$mcp-server", Route{Kind: KindUnknown}},
		{"truncated rpc", "$mcp-rpc/C1/S1", Route{Kind: KindUnknown}},
		{"truncated presence", "$mcp-server/presence/S1", Route{Kind: KindUnknown}},
		{"client with extra segments", "$mcp-client/presence/C1/extra", Route{Kind: KindUnknown}},
		{"empty", "", Route{Kind: KindUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.topic)
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.topic, got, tt.want)
			}
		})
	}
}

// A server whose name collides with the reserved sub-prefixes must not be
// mistaken for a capability or presence topic; the control-topic route is
// only taken for ids that are not reserved words. Registration-side
// validation cannot prevent this (the id "capability" contains no
// wildcard), so Parse resolves the ambiguity in favour of the reserved
// meaning.
func TestParseReservedCollision(t *testing.T) {
	got := Parse("$mcp-server/capability/S1/demo")
	if got.Kind != KindServerCapability {
		t.Errorf("Parse took control route for reserved prefix: %+v", got)
	}
}
