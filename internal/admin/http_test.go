package admin

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/raftkit/raftd/internal/raft"
)

type fakeStatus struct {
	role raft.Role
	term uint64
}

func (f fakeStatus) Role() raft.Role { return f.role }
func (f fakeStatus) Term() uint64    { return f.term }

func TestHealthzReturnsOK(t *testing.T) {
	router := NewRouter(fakeStatus{role: raft.Follower, term: 3}, zap.NewNop())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("body = %q, want ok", rec.Body.String())
	}
}

func TestStatusReportsRoleAndTerm(t *testing.T) {
	router := NewRouter(fakeStatus{role: raft.Leader, term: 7}, zap.NewNop())

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Role != "leader" || got.Term != 7 {
		t.Fatalf("got %+v, want Role=Leader Term=7", got)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	router := NewRouter(fakeStatus{}, zap.NewNop())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
