package mcp

import (
	"encoding/json"
	"errors"
	"testing"
)

// =============================================================================
// Round-trip Tests
// =============================================================================

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest("req-1", MethodToolsCall, CallToolParams{
		Name:      "add",
		Arguments: map[string]any{"a": float64(1), "b": float64(2)},
	})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	msg, err := ParseMessage(payload)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if msg.Kind != KindRequest {
		t.Fatalf("Kind = %v, want KindRequest", msg.Kind)
	}
	if msg.ID != "req-1" {
		t.Errorf("ID = %v, want req-1", msg.ID)
	}
	if msg.Method != MethodToolsCall {
		t.Errorf("Method = %q, want %q", msg.Method, MethodToolsCall)
	}

	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		t.Fatalf("unmarshalling params: %v", err)
	}
	if params.Name != "add" {
		t.Errorf("params.Name = %q", params.Name)
	}
	if params.Arguments["a"] != float64(1) || params.Arguments["b"] != float64(2) {
		t.Errorf("params.Arguments = %v", params.Arguments)
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	n, err := NewNotification(NotificationDisconnected, nil)
	if err != nil {
		t.Fatalf("NewNotification() error = %v", err)
	}
	payload, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	msg, err := ParseMessage(payload)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Kind != KindNotification {
		t.Fatalf("Kind = %v, want KindNotification", msg.Kind)
	}
	if msg.Method != NotificationDisconnected {
		t.Errorf("Method = %q", msg.Method)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	resp, err := NewResult("req-2", PingResult{Pong: true})
	if err != nil {
		t.Fatalf("NewResult() error = %v", err)
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	msg, err := ParseMessage(payload)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Kind != KindResponse {
		t.Fatalf("Kind = %v, want KindResponse", msg.Kind)
	}
	if msg.ID != "req-2" {
		t.Errorf("ID = %v", msg.ID)
	}

	var result PingResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		t.Fatalf("unmarshalling result: %v", err)
	}
	if !result.Pong {
		t.Error("result.Pong = false")
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	resp := NewErrorResponse("req-3", CodeToolNotFound, "tool not found: nope")
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	msg, err := ParseMessage(payload)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Kind != KindResponse {
		t.Fatalf("Kind = %v, want KindResponse", msg.Kind)
	}
	if msg.Err == nil {
		t.Fatal("Err = nil")
	}
	if msg.Err.Code != CodeToolNotFound {
		t.Errorf("Err.Code = %d, want %d", msg.Err.Code, CodeToolNotFound)
	}
}

// =============================================================================
// Classification Tests
// =============================================================================

func TestParseMessageEmptyPayload(t *testing.T) {
	_, err := ParseMessage(nil)
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("ParseMessage(nil) = %v, want ErrEmptyPayload", err)
	}
	_, err = ParseMessage([]byte{})
	if !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("ParseMessage([]) = %v, want ErrEmptyPayload", err)
	}
}

func TestParseMessageInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"garbage", "not json"},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"neither", `{"jsonrpc":"2.0","id":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.payload))
			if !errors.Is(err, ErrInvalidEnvelope) {
				t.Errorf("ParseMessage(%q) = %v, want ErrInvalidEnvelope", tt.payload, err)
			}
		})
	}
}

func TestParseMessageNumericID(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Kind != KindRequest {
		t.Fatalf("Kind = %v", msg.Kind)
	}
	if IDKey(msg.ID) != "7" {
		t.Errorf("IDKey = %q, want 7", IDKey(msg.ID))
	}
}

func TestIDKey(t *testing.T) {
	tests := []struct {
		id   any
		want string
	}{
		{"abc", "abc"},
		{float64(7), "7"},
		{float64(7.5), "7.5"},
		{7, "7"},
		{int64(9), "9"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := IDKey(tt.id); got != tt.want {
			t.Errorf("IDKey(%v) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

// A request without params must serialise without a params member and
// parse back with empty params.
func TestRequestNoParams(t *testing.T) {
	req, err := NewRequest("r", MethodPing, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	payload, _ := json.Marshal(req)

	var probe map[string]any
	if err := json.Unmarshal(payload, &probe); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, present := probe["params"]; present {
		t.Error("params member present in no-params request")
	}

	msg, err := ParseMessage(payload)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if len(msg.Params) != 0 {
		t.Errorf("Params = %s, want empty", msg.Params)
	}
}
