// Package raft implements the leader-election slice of the Raft role
// state machine described in spec §4.3: Follower/Candidate/Leader
// transitions, randomised election timers, heartbeat emission, vote
// collection, and term/log bookkeeping. Log replication beyond empty
// AppendEntries is out of scope.
package raft

import "fmt"

// Role is one of the states in spec §3. Unknown exists only until the
// first call to enterFollower.
type Role int

const (
	Unknown Role = iota
	Follower
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// Peer is a member of the consensus cluster (spec §3). The local peer is
// represented with Address == "" (the "no address" sentinel) and
// VoteGranted pre-set to true at the start of every election.
type Peer struct {
	Address     string // "" for the local node
	ID          string // "?" until learned from a reply
	VoteGranted bool
}

// IsSelf reports whether this Peer entry represents the local node.
func (p *Peer) IsSelf() bool {
	return p.Address == ""
}

func (p *Peer) String() string {
	if p.IsSelf() {
		return fmt.Sprintf("self(%s)", p.ID)
	}
	return fmt.Sprintf("%s(%s)", p.Address, p.ID)
}

// LogEntry is one append-only journal entry (spec §3: "each entry carries
// a term and an opaque payload"). EntryID is a uuid, used by internal/store
// as the journal's durable row key.
type LogEntry struct {
	EntryID string
	Term    uint64
	Payload []byte
}

// PersistentState is the per-Raft persistent state of spec §3.
type PersistentState struct {
	CurrentTerm uint64
	VotedFor    *string // nil if no vote has been recorded; a term bump does not clear it
	Log         []LogEntry
}

// VolatileState is the per-Raft volatile state of spec §3.
type VolatileState struct {
	CommitIndex uint64
	LastApplied uint64
}

// Config holds the three timing parameters of spec §4.3. ElectionTimeoutMin
// must be strictly less than ElectionTimeoutMax.
type Config struct {
	ElectionTimeoutMin int // milliseconds
	ElectionTimeoutMax int // milliseconds
	HeartbeatTimeout   int // milliseconds
}

func (c Config) Validate() error {
	if c.ElectionTimeoutMin >= c.ElectionTimeoutMax {
		return fmt.Errorf("raft: election_timeout_min (%d) must be < election_timeout_max (%d)", c.ElectionTimeoutMin, c.ElectionTimeoutMax)
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("raft: heartbeat_timeout must be positive")
	}
	return nil
}
