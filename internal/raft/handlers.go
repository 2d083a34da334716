package raft

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// RequestVoteParams is the RequestVote RPC's argument object (spec §4.3).
type RequestVoteParams struct {
	Term         uint64 `json:"term"`
	CandidateID  string `json:"candidate_id"`
	LastLogIndex uint64 `json:"last_log_index"`
	LastLogTerm  uint64 `json:"last_log_term"`
}

// RequestVoteResult is the RequestVote RPC's reply object.
type RequestVoteResult struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"vote_granted"`
}

// AppendEntriesParams is the AppendEntries RPC's argument object. Entries is
// always empty in this implementation — log replication of real payloads
// is a Non-goal; only the heartbeat/term-agreement behaviour is implemented.
type AppendEntriesParams struct {
	Term         uint64     `json:"term"`
	LeaderID     string     `json:"leader_id"`
	PrevLogIndex uint64     `json:"prev_log_index"`
	PrevLogTerm  uint64     `json:"prev_log_term"`
	Entries      []LogEntry `json:"entries"`
	LeaderCommit uint64     `json:"leader_commit"`
}

// AppendEntriesResult is the AppendEntries RPC's reply object.
type AppendEntriesResult struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// handleRequestVote implements the RequestVote receiver side of spec §4.3:
// grant the vote iff the candidate's term is at least ours, we have not
// already voted for someone else, and the candidate's log is at least as
// up to date as ours (candidateLogUpToDate).
func (s *Service) handleRequestVote(peer string, raw json.RawMessage) (json.RawMessage, error) {
	var req RequestVoteParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("raft: bad RequestVote params: %w", err)
	}

	if req.Term > s.persistent.CurrentTerm {
		s.enterFollower(req.Term)
	}

	granted := false
	if req.Term >= s.persistent.CurrentTerm &&
		(s.persistent.VotedFor == nil || *s.persistent.VotedFor == req.CandidateID) &&
		candidateLogUpToDate(req.LastLogIndex, req.LastLogTerm, s.persistent.Log) {
		granted = true
		s.persistent.VotedFor = &req.CandidateID
		_ = s.persister.SaveTermAndVote(s.persistent.CurrentTerm, s.persistent.VotedFor)
		if s.role == Candidate {
			s.setRole(Follower)
		}
		s.electionTimer.Restart(s.randomElectionTimeout())
	}

	s.logger.Debug("RequestVote received",
		zap.String("peer", peer), zap.String("candidate", req.CandidateID),
		zap.Uint64("term", req.Term), zap.Bool("granted", granted))

	return json.Marshal(RequestVoteResult{Term: s.persistent.CurrentTerm, VoteGranted: granted})
}

func candidateLogUpToDate(lastLogIndex, lastLogTerm uint64, log []LogEntry) bool {
	ourTerm := lastLogTerm(log)
	ourIndex := uint64(len(log))
	if lastLogTerm != ourTerm {
		return lastLogTerm > ourTerm
	}
	return lastLogIndex >= ourIndex
}

// handleRequestVoteResult tallies a RequestVote reply. Per spec §9, a
// reply carrying a higher term does NOT by itself trigger a step-down —
// preserved literally as a deviation from canonical Raft.
func (s *Service) handleRequestVoteResult(peer string, raw json.RawMessage) {
	if s.role != Candidate {
		return
	}
	var res RequestVoteResult
	if err := json.Unmarshal(raw, &res); err != nil {
		s.logger.Warn("unparseable RequestVote result", zap.String("peer", peer), zap.Error(err))
		return
	}

	if p := s.peerByAddress(peer); p != nil {
		p.VoteGranted = res.VoteGranted
	}
	if res.VoteGranted {
		s.votesYes++
	} else {
		s.votesNo++
	}

	if s.votesYes > s.votesNo {
		s.enterLeader()
	}
}

// handleAppendEntries implements the AppendEntries receiver side: a
// heartbeat from a leader with a term at least ours resets our election
// timer and (if we were Candidate or believed ourselves to be ahead)
// returns us to Follower.
func (s *Service) handleAppendEntries(peer string, raw json.RawMessage) (json.RawMessage, error) {
	var req AppendEntriesParams
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("raft: bad AppendEntries params: %w", err)
	}

	if req.Term < s.persistent.CurrentTerm {
		return json.Marshal(AppendEntriesResult{Term: s.persistent.CurrentTerm, Success: false})
	}

	if req.Term > s.persistent.CurrentTerm || s.role != Follower {
		s.enterFollower(req.Term)
	} else {
		s.electionTimer.Restart(s.randomElectionTimeout())
	}

	if req.LeaderCommit > s.volatile.CommitIndex {
		s.volatile.CommitIndex = req.LeaderCommit
	}

	s.logger.Debug("AppendEntries received", zap.String("peer", peer), zap.String("leader", req.LeaderID), zap.Uint64("term", req.Term))

	return json.Marshal(AppendEntriesResult{Term: s.persistent.CurrentTerm, Success: true})
}

// handleAppendEntriesResult observes a heartbeat reply. A Leader that
// learns of a higher term steps down to Follower; this is the one place a
// higher term DOES force a transition, matching spec §4.3 ("a Leader that
// observes a higher term in any reply steps down").
func (s *Service) handleAppendEntriesResult(peer string, raw json.RawMessage) {
	if s.role != Leader {
		return
	}
	var res AppendEntriesResult
	if err := json.Unmarshal(raw, &res); err != nil {
		s.logger.Warn("unparseable AppendEntries result", zap.String("peer", peer), zap.Error(err))
		return
	}
	if res.Term > s.persistent.CurrentTerm {
		s.enterFollower(res.Term)
	}
}
