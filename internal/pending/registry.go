// Package pending correlates asynchronous MQTT deliveries back to
// outstanding JSON-RPC requests.
//
// Each sent request registers a one-shot completion slot keyed by its
// correlation id. Exactly one outcome is ever delivered per slot: a
// response, a timeout, or a cancellation. The registry owns the per-request
// timers and stops them on completion.
package pending

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/graybridge/mcpmqtt/mcp"
)

// Outcome is the single terminal result of a pending request. Exactly one
// of Result and Err is meaningful.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// Call is the awaiter's handle on an outstanding request.
type Call struct {
	// Method is the JSON-RPC method the request was sent with.
	Method string

	done chan Outcome
}

// Done returns a channel that receives the request's single outcome.
// The channel is buffered; the registry never blocks delivering to it.
func (c *Call) Done() <-chan Outcome {
	return c.done
}

// entry is the registry-side state for one outstanding request.
type entry struct {
	call    *Call
	timer   *time.Timer
	started time.Time
}

// Registry maps correlation ids to pending completion slots.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Add registers a pending request and starts its timeout timer.
//
// If the timer fires before Complete or Fail is called for the same id,
// the awaiter receives an *mcp.RequestTimeoutError with the measured
// elapsed time and the entry is removed.
func (r *Registry) Add(id, method string, timeout time.Duration) *Call {
	call := &Call{
		Method: method,
		done:   make(chan Outcome, 1),
	}
	e := &entry{
		call:    call,
		started: time.Now(),
	}

	r.mu.Lock()
	r.entries[id] = e
	e.timer = time.AfterFunc(timeout, func() {
		r.timeout(id)
	})
	r.mu.Unlock()

	return call
}

// Complete resolves a pending request with a successful result.
// Returns false if no request with that id is outstanding (late or
// duplicate response; the caller should drop it).
func (r *Registry) Complete(id string, result json.RawMessage) bool {
	e := r.take(id)
	if e == nil {
		return false
	}
	e.call.done <- Outcome{Result: result}
	return true
}

// Fail resolves a pending request with an error.
// Returns false if no request with that id is outstanding.
func (r *Registry) Fail(id string, err error) bool {
	e := r.take(id)
	if e == nil {
		return false
	}
	e.call.done <- Outcome{Err: err}
	return true
}

// CancelAll fails every outstanding request with the given error and
// empties the registry. Used at shutdown.
func (r *Registry) CancelAll(err error) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.timer.Stop()
		e.call.done <- Outcome{Err: err}
	}
}

// Len returns the number of outstanding requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// take removes and returns the entry for id, stopping its timer.
// Removal under the lock is what guarantees the one-outcome invariant:
// whichever of response, timeout, or cancellation takes the entry first
// wins, and the others find it gone.
func (r *Registry) take(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil
	}
	delete(r.entries, id)
	e.timer.Stop()
	return e
}

// timeout is the timer callback for one entry.
func (r *Registry) timeout(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	e.call.done <- Outcome{Err: &mcp.RequestTimeoutError{
		Method:  e.call.Method,
		Elapsed: time.Since(e.started),
	}}
}
