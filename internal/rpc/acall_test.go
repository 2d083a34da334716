package rpc

import (
	"encoding/json"
	"testing"
	"time"
)

func TestACallCompleteResult(t *testing.T) {
	a := newACall("RequestVote:1", "10.0.0.1:9999", "RequestVote", time.Second)

	a.completeResult(json.RawMessage(`{"ok":true}`))

	value, err := a.wait()
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	if string(value) != `{"ok":true}` {
		t.Fatalf("wait() value = %s", value)
	}
}

func TestACallCompleteTimeout(t *testing.T) {
	a := newACall("RequestVote:1", "10.0.0.1:9999", "RequestVote", time.Second)
	a.completeTimeout()

	_, err := a.wait()
	rpcErr, ok := err.(*Error)
	if !ok || rpcErr.Code != CodeTimeout {
		t.Fatalf("wait() error = %v, want *Error{Code: CodeTimeout}", err)
	}
}

func TestACallDoubleCompletePanics(t *testing.T) {
	a := newACall("RequestVote:1", "10.0.0.1:9999", "RequestVote", time.Second)
	a.completeResult(json.RawMessage(`null`))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double completion")
		}
	}()
	a.completeCancelled()
}
