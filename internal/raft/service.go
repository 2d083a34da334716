package raft

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raftkit/raftd/internal/rpc"
	"github.com/raftkit/raftd/internal/timer"
)

// Persister is the durability seam of spec §3 ("current_term and voted_for
// must survive process restart"). internal/store implements it against the
// journal database; tests use an in-memory stub.
type Persister interface {
	SaveTermAndVote(term uint64, votedFor *string) error
	AppendLog(entries []LogEntry) error
}

// nopPersister is the default when no Persister is configured, matching
// spec's Non-goal "durability beyond a simple append-only journal" — a
// Service is usable without one for testing the role machine in isolation.
type nopPersister struct{}

func (nopPersister) SaveTermAndVote(uint64, *string) error { return nil }
func (nopPersister) AppendLog([]LogEntry) error            { return nil }

// Service is the Raft Role Machine of spec §4.3. All of its exported state
// mutations happen either synchronously from an rpc.Runtime handler
// (already on the reactor thread) or via rpc.Runtime.Submit from a timer
// callback, so Service itself needs no locking.
type Service struct {
	logger    *zap.Logger
	runtime   *rpc.Runtime
	cfg       Config
	persister Persister
	rng       *rand.Rand

	self  Peer
	peers []*Peer

	persistent PersistentState
	volatile   VolatileState
	role       Role

	electionTimer  *timer.Timer
	heartbeatTimer *timer.Timer

	votesYes int
	votesNo  int

	onRoleChange func(Role)
}

// NewService builds a Service bound to runtime. peerAddrs is the raw
// "host:port" peer list from configuration; entries that resolve to the
// local node (loopback or a local interface address combined with
// primaryPort) are dropped, matching spec §4.1's "a node never dials
// itself" expectation. The local Peer's identifier is
// "<hostname>:<primaryPort>".
func NewService(runtime *rpc.Runtime, cfg Config, primaryPort int, peerAddrs []string, persister Persister, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if persister == nil {
		persister = nopPersister{}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	s := &Service{
		logger:    logger,
		runtime:   runtime,
		cfg:       cfg,
		persister: persister,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		self:      Peer{Address: "", ID: fmt.Sprintf("%s:%d", hostname, primaryPort), VoteGranted: true},
		role:      Unknown,
	}

	for _, addr := range filterSelf(peerAddrs, primaryPort) {
		s.peers = append(s.peers, &Peer{Address: addr, ID: "?"})
	}

	s.electionTimer = timer.New(s.onElectionTimeout)
	s.heartbeatTimer = timer.New(s.onHeartbeatTimeout)

	runtime.HandleFunc("RequestVote", s.handleRequestVote, rpc.WithSchema(requestVoteSchema))
	runtime.HandleFunc("AppendEntries", s.handleAppendEntries, rpc.WithSchema(appendEntriesSchema))
	runtime.OnResult("RequestVote", s.handleRequestVoteResult)
	runtime.OnResult("AppendEntries", s.handleAppendEntriesResult)

	return s, nil
}

// filterSelf drops any address whose host is loopback/unspecified or
// matches a local interface, when its port equals primaryPort — those
// entries name this very node, not a remote peer.
func filterSelf(addrs []string, primaryPort int) []string {
	local := localAddrs()
	var out []string
	for _, addr := range addrs {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			out = append(out, addr)
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port != primaryPort {
			out = append(out, addr)
			continue
		}
		if isLoopbackHost(host) || local[host] {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func isLoopbackHost(host string) bool {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}

func localAddrs() map[string]bool {
	out := map[string]bool{}
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return out
	}
	for _, a := range ifaces {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		out[ipNet.IP.String()] = true
	}
	return out
}

// OnRoleChange registers a callback invoked after every role transition.
// internal/metrics uses this to update a gauge.
func (s *Service) OnRoleChange(fn func(Role)) {
	s.onRoleChange = fn
}

// Role returns the current role. Intended for status/metrics reporting
// from outside the reactor; since role only ever changes on the reactor
// thread and this is a single word read, no lock is needed for the
// inherently racy "current snapshot" semantics status endpoints need.
func (s *Service) Role() Role {
	return s.role
}

// Term returns the current term, see Role's race caveat.
func (s *Service) Term() uint64 {
	return s.persistent.CurrentTerm
}

// Start transitions the Service into Follower and arms the election timer.
// Must be called on the reactor thread (e.g. from the same goroutine that
// will call runtime.Run, before it, or via runtime.Submit).
func (s *Service) Start() {
	s.enterFollower(s.persistent.CurrentTerm)
}

// Stop disarms both timers. Call during shutdown after runtime.Shutdown so
// no timer callback races a torn-down runtime.
func (s *Service) Stop() {
	s.electionTimer.Stop()
	s.heartbeatTimer.Stop()
}

// SeedState seeds the in-memory persistent state from a previously loaded
// snapshot (e.g. internal/store.Persister.Load at startup). Call before
// Start.
func (s *Service) SeedState(state PersistentState) {
	s.persistent = state
}

func (s *Service) randomElectionTimeout() time.Duration {
	span := s.cfg.ElectionTimeoutMax - s.cfg.ElectionTimeoutMin
	ms := s.cfg.ElectionTimeoutMin
	if span > 0 {
		ms += s.rng.Intn(span)
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Service) heartbeatInterval() time.Duration {
	return time.Duration(s.cfg.HeartbeatTimeout) * time.Millisecond
}

func (s *Service) setRole(r Role) {
	if s.role == r {
		return
	}
	s.role = r
	s.logger.Info("raft role transition", zap.String("role", r.String()), zap.Uint64("term", s.persistent.CurrentTerm))
	if s.onRoleChange != nil {
		s.onRoleChange(r)
	}
}

// enterFollower is the target of every "discovered higher term" and
// "election lost" path in spec §4.3.
func (s *Service) enterFollower(term uint64) {
	s.heartbeatTimer.Stop()
	s.persistent.CurrentTerm = term
	s.setRole(Follower)
	s.electionTimer.Restart(s.randomElectionTimeout())
}

// enterCandidate starts a new election: bumps the term, resets every
// peer's VoteGranted bookkeeping, and fans RequestVote out to the
// cluster. It does not set VotedFor — a Candidate counts its own vote in
// votesYes but never writes itself into the durable vote record, matching
// original_source/asab/raft/service.py's enter_state_candidate.
func (s *Service) enterCandidate() {
	s.persistent.CurrentTerm++
	_ = s.persister.SaveTermAndVote(s.persistent.CurrentTerm, s.persistent.VotedFor)

	s.setRole(Candidate)
	s.votesYes = 1 // count our own vote in the tally, without recording it in VotedFor
	s.votesNo = 0
	for _, p := range s.peers {
		p.VoteGranted = false
	}

	s.electionTimer.Restart(s.randomElectionTimeout())

	params := RequestVoteParams{
		Term:         s.persistent.CurrentTerm,
		CandidateID:  s.self.ID,
		LastLogIndex: uint64(len(s.persistent.Log)),
		LastLogTerm:  lastLogTerm(s.persistent.Log),
	}
	for _, p := range s.peers {
		if _, err := s.runtime.Call(p.Address, "RequestVote", params); err != nil {
			s.logger.Warn("RequestVote call failed", zap.String("peer", p.Address), zap.Error(err))
		}
	}
}

// enterLeader is reached once votesYes strictly exceeds votesNo among the
// votes actually received this term (spec §9: voted_yes > voted_no, not a
// majority of the full configured cluster — preserved literally).
func (s *Service) enterLeader() {
	s.electionTimer.Stop()
	s.setRole(Leader)
	s.sendHeartbeats()
	s.heartbeatTimer.Restart(s.heartbeatInterval())
}

func lastLogTerm(log []LogEntry) uint64 {
	if len(log) == 0 {
		return 0
	}
	return log[len(log)-1].Term
}

// onElectionTimeout fires on the timer's own goroutine; it must reach the
// reactor thread before touching any Service state.
func (s *Service) onElectionTimeout() {
	s.runtime.Submit(func() {
		s.enterCandidate()
	})
}

// onHeartbeatTimeout fires on the timer's own goroutine; see onElectionTimeout.
func (s *Service) onHeartbeatTimeout() {
	s.runtime.Submit(func() {
		if s.role != Leader {
			return
		}
		s.sendHeartbeats()
		s.heartbeatTimer.Restart(s.heartbeatInterval())
	})
}

// sendHeartbeats issues an empty AppendEntries to every peer. Log
// replication of real entries is a Non-goal; this always sends an empty
// Entries slice.
func (s *Service) sendHeartbeats() {
	params := AppendEntriesParams{
		Term:         s.persistent.CurrentTerm,
		LeaderID:     s.self.ID,
		PrevLogIndex: uint64(len(s.persistent.Log)),
		PrevLogTerm:  lastLogTerm(s.persistent.Log),
		Entries:      nil,
		LeaderCommit: s.volatile.CommitIndex,
	}
	for _, p := range s.peers {
		if _, err := s.runtime.Call(p.Address, "AppendEntries", params); err != nil {
			s.logger.Warn("AppendEntries call failed", zap.String("peer", p.Address), zap.Error(err))
		}
	}
}

// peerByAddress returns the Peer record for addr, or nil if addr is not a
// configured peer (e.g. a message from an unrelated host).
func (s *Service) peerByAddress(addr string) *Peer {
	for _, p := range s.peers {
		if p.Address == addr || strings.EqualFold(p.Address, addr) {
			return p
		}
	}
	return nil
}
