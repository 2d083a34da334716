package store

import "time"

// raftStateRow is the single-row table holding the durable slice of
// raft.PersistentState that must survive a restart: current_term and
// voted_for. There is always exactly one row, id=1.
type raftStateRow struct {
	ID          int `gorm:"primaryKey"`
	CurrentTerm uint64
	VotedFor    *string
}

func (raftStateRow) TableName() string { return "raft_state" }

// logEntryRow is one append-only journal row. EntryID is a google/uuid
// string, grounded on the teacher's use of UUIDv7 for time-ordered primary
// keys; Seq is the position in the log, used to restore ordering since
// created_at alone is not guaranteed monotonic under clock skew.
type logEntryRow struct {
	EntryID   string `gorm:"primaryKey"`
	Term      uint64
	Seq       uint64
	Payload   []byte
	CreatedAt time.Time
}

func (logEntryRow) TableName() string { return "log_entries" }
