package pending

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/graybridge/mcpmqtt/mcp"
)

func TestComplete(t *testing.T) {
	r := NewRegistry()
	call := r.Add("id-1", "tools/list", time.Second)

	if !r.Complete("id-1", json.RawMessage(`{"tools":[]}`)) {
		t.Fatal("Complete() = false, want true")
	}

	out := <-call.Done()
	if out.Err != nil {
		t.Fatalf("outcome error = %v", out.Err)
	}
	if string(out.Result) != `{"tools":[]}` {
		t.Errorf("Result = %s", out.Result)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after completion, want 0", r.Len())
	}
}

func TestFail(t *testing.T) {
	r := NewRegistry()
	call := r.Add("id-1", "tools/call", time.Second)

	rpcErr := &mcp.Error{Code: mcp.CodeToolNotFound, Message: "tool not found: nope"}
	if !r.Fail("id-1", rpcErr) {
		t.Fatal("Fail() = false, want true")
	}

	out := <-call.Done()
	var got *mcp.Error
	if !errors.As(out.Err, &got) {
		t.Fatalf("outcome error = %v, want *mcp.Error", out.Err)
	}
	if got.Code != mcp.CodeToolNotFound {
		t.Errorf("Code = %d", got.Code)
	}
}

func TestCompleteUnknownID(t *testing.T) {
	r := NewRegistry()
	if r.Complete("ghost", nil) {
		t.Error("Complete(ghost) = true, want false")
	}
	if r.Fail("ghost", errors.New("x")) {
		t.Error("Fail(ghost) = true, want false")
	}
}

func TestTimeout(t *testing.T) {
	r := NewRegistry()
	start := time.Now()
	call := r.Add("id-1", "tools/list", 20*time.Millisecond)

	out := <-call.Done()
	var terr *mcp.RequestTimeoutError
	if !errors.As(out.Err, &terr) {
		t.Fatalf("outcome error = %v, want *mcp.RequestTimeoutError", out.Err)
	}
	if terr.Method != "tools/list" {
		t.Errorf("Method = %q", terr.Method)
	}
	if terr.Elapsed < 20*time.Millisecond {
		t.Errorf("Elapsed = %v, want >= 20ms", terr.Elapsed)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("timeout fired before the deadline")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after timeout, want 0", r.Len())
	}
}

// Exactly one outcome per request: a completion after the timeout already
// fired must report false and deliver nothing further.
func TestSingleOutcome(t *testing.T) {
	r := NewRegistry()
	call := r.Add("id-1", "ping", 10*time.Millisecond)

	out := <-call.Done()
	if out.Err == nil {
		t.Fatal("expected timeout outcome")
	}

	if r.Complete("id-1", nil) {
		t.Error("Complete() after timeout = true, want false")
	}

	select {
	case extra := <-call.Done():
		t.Fatalf("second outcome delivered: %+v", extra)
	case <-time.After(30 * time.Millisecond):
	}
}

// A completion must win over a near-simultaneous timeout: once Complete
// returns true the timer can no longer deliver.
func TestCompleteStopsTimer(t *testing.T) {
	r := NewRegistry()
	call := r.Add("id-1", "ping", 15*time.Millisecond)

	if !r.Complete("id-1", json.RawMessage(`{"pong":true}`)) {
		t.Fatal("Complete() = false")
	}

	out := <-call.Done()
	if out.Err != nil {
		t.Fatalf("outcome error = %v", out.Err)
	}

	select {
	case extra := <-call.Done():
		t.Fatalf("timer delivered a second outcome: %+v", extra)
	case <-time.After(40 * time.Millisecond):
	}
}

func TestCancelAll(t *testing.T) {
	r := NewRegistry()
	calls := []*Call{
		r.Add("id-1", "tools/list", time.Minute),
		r.Add("id-2", "tools/call", time.Minute),
		r.Add("id-3", "ping", time.Minute),
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	r.CancelAll(mcp.ErrCancelled)

	for i, call := range calls {
		out := <-call.Done()
		if !errors.Is(out.Err, mcp.ErrCancelled) {
			t.Errorf("call %d outcome = %v, want ErrCancelled", i, out.Err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after CancelAll, want 0", r.Len())
	}
}
