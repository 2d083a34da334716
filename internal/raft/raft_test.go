package raft

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/raftkit/raftd/internal/rpc"
)

func newTestNode(t *testing.T, peers []string) (*Service, *rpc.Runtime, *rpc.Endpoint) {
	t.Helper()
	ep, err := rpc.NewEndpoint([]rpc.ListenAddr{{Addr: "127.0.0.1", Port: 0}}, 4096, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEndpoint error = %v", err)
	}
	ep.Start()
	t.Cleanup(func() { ep.Close() })

	runtime := rpc.NewRuntime(ep, nil, zap.NewNop())

	cfg := Config{ElectionTimeoutMin: 40, ElectionTimeoutMax: 80, HeartbeatTimeout: 20}
	svc, err := NewService(runtime, cfg, ep.PrimaryPort(), peers, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService error = %v", err)
	}
	return svc, runtime, ep
}

func TestTwoNodeClusterElectsALeader(t *testing.T) {
	svcA, rtA, epA := newTestNode(t, nil)
	svcB, rtB, epB := newTestNode(t, nil)

	peerA := "127.0.0.1:" + portString(epA)
	peerB := "127.0.0.1:" + portString(epB)
	svcA.peers = []*Peer{{Address: peerB, ID: "?"}}
	svcB.peers = []*Peer{{Address: peerA, ID: "?"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcA.Start()
	svcB.Start()
	go rtA.Run(ctx)
	go rtB.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		if svcA.Role() == Leader || svcB.Role() == Leader {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no leader elected within deadline (roles: A=%v B=%v)", svcA.Role(), svcB.Role())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCandidateLogUpToDate(t *testing.T) {
	log := []LogEntry{{Term: 2}, {Term: 3}}

	if !candidateLogUpToDate(2, 3, log) {
		t.Fatal("expected up-to-date candidate (equal term, equal index) to be accepted")
	}
	if candidateLogUpToDate(1, 1, log) {
		t.Fatal("expected stale candidate term to be rejected")
	}
	if candidateLogUpToDate(0, 3, log) {
		t.Fatal("expected shorter log at the same term to be rejected")
	}
}

func TestRequestVoteGrantsOncePerTerm(t *testing.T) {
	svc, _, _ := newTestNode(t, nil)
	svc.Start()

	params, _ := json.Marshal(RequestVoteParams{Term: 1, CandidateID: "peerA", LastLogIndex: 0, LastLogTerm: 0})
	raw, err := svc.handleRequestVote("peerA", params)
	if err != nil {
		t.Fatalf("handleRequestVote error = %v", err)
	}
	var res RequestVoteResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !res.VoteGranted {
		t.Fatal("expected vote granted to first candidate at term 1")
	}

	params2, _ := json.Marshal(RequestVoteParams{Term: 1, CandidateID: "peerB", LastLogIndex: 0, LastLogTerm: 0})
	raw2, err := svc.handleRequestVote("peerB", params2)
	if err != nil {
		t.Fatalf("handleRequestVote error = %v", err)
	}
	var res2 RequestVoteResult
	if err := json.Unmarshal(raw2, &res2); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if res2.VoteGranted {
		t.Fatal("expected second candidate at the same term to be denied")
	}
}

func TestVotedForNotClearedOnTermBump(t *testing.T) {
	svc, _, _ := newTestNode(t, nil)
	svc.Start()

	params, _ := json.Marshal(RequestVoteParams{Term: 1, CandidateID: "peerA", LastLogIndex: 0, LastLogTerm: 0})
	if _, err := svc.handleRequestVote("peerA", params); err != nil {
		t.Fatalf("handleRequestVote error = %v", err)
	}
	if svc.persistent.VotedFor == nil || *svc.persistent.VotedFor != "peerA" {
		t.Fatalf("expected vote for peerA recorded, got %v", svc.persistent.VotedFor)
	}

	// A higher-term RequestVote from a different candidate bumps our term
	// via enterFollower but is denied (we already voted this term) — the
	// term bump must NOT clear VotedFor either way.
	params2, _ := json.Marshal(RequestVoteParams{Term: 5, CandidateID: "someoneElse", LastLogIndex: 0, LastLogTerm: 0})
	if _, err := svc.handleRequestVote("someoneElse", params2); err != nil {
		t.Fatalf("handleRequestVote error = %v", err)
	}
	if svc.persistent.CurrentTerm != 5 {
		t.Fatalf("expected term bumped to 5, got %d", svc.persistent.CurrentTerm)
	}
	if svc.persistent.VotedFor == nil || *svc.persistent.VotedFor != "peerA" {
		t.Fatalf("expected VotedFor to survive the term bump untouched, got %v", svc.persistent.VotedFor)
	}
}

func TestEnterCandidateDoesNotSetVotedFor(t *testing.T) {
	svc, _, _ := newTestNode(t, nil)
	svc.Start()

	svc.enterCandidate()

	if svc.persistent.VotedFor != nil {
		t.Fatalf("expected enterCandidate to leave VotedFor untouched, got %v", svc.persistent.VotedFor)
	}
	if svc.votesYes != 1 {
		t.Fatalf("expected votesYes = 1 for the candidate's own vote, got %d", svc.votesYes)
	}
}

func TestCandidateStepsDownWhenGrantingSameTermVote(t *testing.T) {
	svc, _, _ := newTestNode(t, nil)
	svc.Start()
	svc.enterCandidate() // term 1, role Candidate, VotedFor still nil

	params, _ := json.Marshal(RequestVoteParams{Term: 1, CandidateID: "peerA", LastLogIndex: 0, LastLogTerm: 0})
	raw, err := svc.handleRequestVote("peerA", params)
	if err != nil {
		t.Fatalf("handleRequestVote error = %v", err)
	}
	var res RequestVoteResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !res.VoteGranted {
		t.Fatal("expected the vote to be granted since this candidate never voted this term")
	}
	if svc.role != Follower {
		t.Fatalf("expected the candidate to step down to Follower after granting a vote, got %v", svc.role)
	}
}

func portString(ep *rpc.Endpoint) string {
	return strconv.Itoa(ep.PrimaryPort())
}

func TestRequestVoteSchemaRejectsMissingFields(t *testing.T) {
	_, serverRT, serverEP := newTestNode(t, nil)

	clientEP, err := rpc.NewEndpoint([]rpc.ListenAddr{{Addr: "127.0.0.1", Port: 0}}, 4096, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEndpoint error = %v", err)
	}
	clientEP.Start()
	t.Cleanup(func() { clientEP.Close() })
	clientRT := rpc.NewRuntime(clientEP, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serverRT.Run(ctx)
	go clientRT.Run(ctx)

	// candidate_id is required by the schema but omitted here.
	bad := map[string]uint64{"term": 1, "last_log_index": 0, "last_log_term": 0}

	_, err = clientRT.ACall(context.Background(), "127.0.0.1:"+portString(serverEP), "RequestVote", bad, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected schema validation to reject params missing candidate_id")
	}
}
