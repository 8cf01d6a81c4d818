package topics

import (
	"errors"
	"testing"
)

// =============================================================================
// Builder Tests
// =============================================================================

func TestBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"control", ServerControl("S1", "demo/calc"), "$mcp-server/S1/demo/calc"},
		{"capability", ServerCapability("S1", "demo/calc"), "$mcp-server/capability/S1/demo/calc"},
		{"presence", ServerPresence("S1", "demo/calc"), "$mcp-server/presence/S1/demo/calc"},
		{"client capability", ClientCapability("C1"), "$mcp-client/capability/C1"},
		{"client presence", ClientPresence("C1"), "$mcp-client/presence/C1"},
		{"rpc", RPC("C1", "S1", "demo/calc"), "$mcp-rpc/C1/S1/demo/calc"},
		{"presence filter", ServerPresenceFilter("#"), "$mcp-server/presence/+/#"},
		{"capability filter", ServerCapabilityFilter("demo/#"), "$mcp-server/capability/+/demo/#"},
		{"client rpc filter", ClientRPCFilter("C1", "#"), "$mcp-rpc/C1/+/#"},
		{"server rpc filter", ServerRPCFilter("S1", "demo/calc"), "$mcp-rpc/+/S1/demo/calc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestForServer(t *testing.T) {
	q := ForServer("S1", "demo/calc")

	if q.Control != "$mcp-server/S1/demo/calc" {
		t.Errorf("Control = %q", q.Control)
	}
	if q.Capability != "$mcp-server/capability/S1/demo/calc" {
		t.Errorf("Capability = %q", q.Capability)
	}
	if q.Presence != "$mcp-server/presence/S1/demo/calc" {
		t.Errorf("Presence = %q", q.Presence)
	}
	if q.RPCPattern != "$mcp-rpc/+/S1/demo/calc" {
		t.Errorf("RPCPattern = %q", q.RPCPattern)
	}
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidateID(t *testing.T) {
	if err := ValidateID("server-01"); err != nil {
		t.Errorf("ValidateID(server-01) = %v", err)
	}
	if err := ValidateID(""); !errors.Is(err, ErrEmptyIdentifier) {
		t.Errorf("ValidateID(\"\") = %v, want ErrEmptyIdentifier", err)
	}
	if err := ValidateID("srv+1"); !errors.Is(err, ErrWildcardInIdentifier) {
		t.Errorf("ValidateID(srv+1) = %v, want ErrWildcardInIdentifier", err)
	}
}

func TestValidateServerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"plain", "demo/calc", nil},
		{"deep path", "vendor/product/role", nil},
		{"empty", "", ErrEmptyIdentifier},
		{"plus wildcard", "demo/+/calc", ErrWildcardInIdentifier},
		{"hash wildcard", "demo/#", ErrWildcardInIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerName(tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateServerName(%q) = %v", tt.input, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateServerName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

// =============================================================================
// Filter Matching Tests
// =============================================================================

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/b/c", "a/b/d", false},
		{"a/+/c", "a/b/c", true},
		{"a/+/c", "a/b/c/d", false},
		{"a/#", "a/b/c/d", true},
		{"a/#", "a", false},
		{"#", "anything/at/all", true},
		{"$mcp-server/presence/+/#", "$mcp-server/presence/S1/demo/calc", true},
		{"$mcp-server/presence/+/demo/#", "$mcp-server/presence/S1/other/calc", false},
		{"$mcp-rpc/C1/+/demo/calc", "$mcp-rpc/C1/S1/demo/calc", true},
		{"$mcp-rpc/C1/+/demo/calc", "$mcp-rpc/C2/S1/demo/calc", false},
		{"a/b", "a/b/c", false},
		{"a/b/c", "a/b", false},
	}
	for _, tt := range tests {
		if got := Match(tt.filter, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
