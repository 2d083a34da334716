package rpc

import (
	"encoding/json"
	"time"
)

// DefaultTimeout matches the original asab ACall's 3-second default.
const DefaultTimeout = 3 * time.Second

// MaxHealthyACalls is the threshold above which the reaper logs a warning
// that too many outstanding calls are registered (original: `> 30`).
const MaxHealthyACalls = 30

// acallState is the one-shot completion state of an outstanding call,
// mirroring the state machine in spec §4.2:
//
//	created --register--> pending
//	pending --result-------> completed:result     (terminal)
//	pending --error--------> completed:error       (terminal)
//	pending --deadline------> completed:timeout     (terminal)
//	pending --shutdown-----> completed:cancelled    (terminal)
type acallState int

const (
	acallPending acallState = iota
	acallCompleted
)

// acall is an outstanding awaitable RPC call. The single-threaded reactor
// is the only writer; wait() blocks the calling goroutine (which may be a
// different goroutine than the reactor, e.g. a handler awaiting a nested
// call) on replyCh until one of the complete* methods is invoked exactly once.
type acall struct {
	requestID string
	peer      string
	method    string
	deadline  time.Time

	state acallState

	value json.RawMessage
	err   *Error

	replyCh chan struct{}
}

func newACall(requestID, peer, method string, timeout time.Duration) *acall {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &acall{
		requestID: requestID,
		peer:      peer,
		method:    method,
		deadline:  time.Now().Add(timeout),
		state:     acallPending,
		replyCh:   make(chan struct{}),
	}
}

// completeResult resolves the call with a successful result value.
// Double-completion is a programming error; the register is the sole
// owner of the acall and pops it before calling this, so it must never
// observe a non-pending state.
func (a *acall) completeResult(value json.RawMessage) {
	a.assertPending()
	a.value = value
	a.state = acallCompleted
	close(a.replyCh)
}

func (a *acall) completeError(err *Error) {
	a.assertPending()
	a.err = err
	a.state = acallCompleted
	close(a.replyCh)
}

func (a *acall) completeTimeout() {
	a.completeError(TimeoutError())
}

func (a *acall) completeCancelled() {
	a.completeError(CancelledError())
}

func (a *acall) assertPending() {
	if a.state != acallPending {
		panic("rpc: double-completion of an outstanding call")
	}
}

// wait blocks until the call is completed and returns its outcome.
func (a *acall) wait() (json.RawMessage, error) {
	<-a.replyCh
	if a.err != nil {
		return nil, a.err
	}
	return a.value, nil
}
