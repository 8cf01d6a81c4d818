package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the JSON-RPC protocol version carried by every envelope.
const Version = "2.0"

// ProtocolVersion is the MCP protocol revision both peers speak.
const ProtocolVersion = "2024-11-05"

// Standard JSON-RPC 2.0 error codes, plus the MCP transport extensions in
// the -32000 range.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeInvalidMessage   = -32000
	CodeToolNotFound     = -32001
	CodeResourceNotFound = -32002
)

// Request is a JSON-RPC 2.0 request. ID may be a string or a number; it is
// echoed back verbatim in the matching response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Err is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Err     *Error          `json:"error,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification: a method call with no ID and
// no expected response.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request envelope with marshalled params.
// A nil params value produces a request without a params member.
func NewRequest(id any, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshalling params for %s: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}

// NewResult builds a success response carrying the marshalled result.
func NewResult(id any, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshalling result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response for the given request id.
func NewErrorResponse(id any, code int, message string) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Err:     &Error{Code: code, Message: message},
	}
}

// NewNotification builds a notification envelope with marshalled params.
func NewNotification(method string, params any) (*Notification, error) {
	n := &Notification{JSONRPC: Version, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshalling params for %s: %w", method, err)
		}
		n.Params = raw
	}
	return n, nil
}

// MessageKind classifies a parsed inbound payload.
type MessageKind int

const (
	// KindRequest is a method call carrying an id.
	KindRequest MessageKind = iota

	// KindResponse is a result or error correlated to an earlier request.
	KindResponse

	// KindNotification is a method call without an id.
	KindNotification
)

// Message is the tagged result of parsing an inbound payload. Handlers
// switch on Kind; only the fields relevant to that kind are populated.
type Message struct {
	Kind   MessageKind
	ID     any
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Err    *Error
}

// Parse errors. ErrEmptyPayload is deliberately distinct from
// ErrInvalidEnvelope: an empty payload is the presence offline sentinel and
// callers handle it semantically.
var (
	ErrEmptyPayload    = errors.New("mcp: empty payload")
	ErrInvalidEnvelope = errors.New("mcp: invalid JSON-RPC envelope")
)

// envelope is the superset probe used to classify inbound payloads.
// ID uses a RawMessage pointer so "id absent" and "id null" are
// distinguishable from a present value.
type envelope struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params"`
	Result  json.RawMessage  `json:"result"`
	Err     *Error           `json:"error"`
}

// ParseMessage classifies a raw payload as a request, response, or
// notification.
//
// Classification rules:
//   - method present, id present  → request
//   - method present, id absent   → notification
//   - method absent, result/error → response
//
// Returns:
//   - ErrEmptyPayload for a zero-length payload (presence sentinel)
//   - ErrInvalidEnvelope (wrapped) for malformed JSON or a missing/wrong
//     jsonrpc version member
func ParseMessage(payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if env.JSONRPC != Version {
		return nil, fmt.Errorf("%w: jsonrpc version %q", ErrInvalidEnvelope, env.JSONRPC)
	}

	switch {
	case env.Method != "" && env.ID != nil:
		return &Message{
			Kind:   KindRequest,
			ID:     decodeID(*env.ID),
			Method: env.Method,
			Params: env.Params,
		}, nil

	case env.Method != "":
		return &Message{
			Kind:   KindNotification,
			Method: env.Method,
			Params: env.Params,
		}, nil

	case env.Result != nil || env.Err != nil:
		var id any
		if env.ID != nil {
			id = decodeID(*env.ID)
		}
		return &Message{
			Kind:   KindResponse,
			ID:     id,
			Result: env.Result,
			Err:    env.Err,
		}, nil

	default:
		return nil, fmt.Errorf("%w: neither method nor result/error present", ErrInvalidEnvelope)
	}
}

// decodeID unmarshals a raw id member into its Go value (string or float64).
func decodeID(raw json.RawMessage) any {
	var id any
	if err := json.Unmarshal(raw, &id); err != nil {
		return string(raw)
	}
	return id
}

// IDKey normalises a JSON-RPC id for use as a correlation map key.
// Integral floats render without a fractional part so a response whose id
// was decoded as float64(7) matches a request sent with int 7.
func IDKey(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
