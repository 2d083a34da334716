package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/raftkit/raftd/internal/raft"
)

// Persister implements raft.Persister against the journal database. Every
// write is a synchronous GORM call — raft.Service only calls SaveTermAndVote
// and AppendLog from the reactor thread, immediately before granting a vote
// or starting an election, satisfying spec §6's "flush before voting"
// durability note.
type Persister struct {
	db  *gorm.DB
	seq uint64
}

// NewPersister wraps db. It loads the current max sequence number so
// subsequently appended entries keep incrementing rather than restarting
// from zero after a restart.
func NewPersister(db *gorm.DB) (*Persister, error) {
	p := &Persister{db: db}
	var max struct{ Seq uint64 }
	if err := db.Model(&logEntryRow{}).Select("COALESCE(MAX(seq), 0) as seq").Scan(&max).Error; err != nil {
		return nil, fmt.Errorf("store: load max seq: %w", err)
	}
	p.seq = max.Seq
	return p, nil
}

// Load reads the persisted term and vote back into a raft.PersistentState,
// for use at startup before raft.NewService is constructed.
func (p *Persister) Load() (raft.PersistentState, error) {
	var row raftStateRow
	if err := p.db.First(&row, "id = ?", 1).Error; err != nil {
		return raft.PersistentState{}, fmt.Errorf("store: load raft state: %w", err)
	}
	return raft.PersistentState{CurrentTerm: row.CurrentTerm, VotedFor: row.VotedFor}, nil
}

// SaveTermAndVote persists the current term and vote, overwriting the
// single raft_state row.
func (p *Persister) SaveTermAndVote(term uint64, votedFor *string) error {
	return p.db.Model(&raftStateRow{}).Where("id = ?", 1).
		Updates(map[string]any{"current_term": term, "voted_for": votedFor}).Error
}

// AppendLog persists newly appended log entries, assigning each a
// monotonically increasing sequence number and a fresh uuid if EntryID is
// unset.
func (p *Persister) AppendLog(entries []raft.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]logEntryRow, 0, len(entries))
	now := time.Now()
	for _, e := range entries {
		id := e.EntryID
		if id == "" {
			id = uuid.NewString()
		}
		p.seq++
		rows = append(rows, logEntryRow{
			EntryID:   id,
			Term:      e.Term,
			Seq:       p.seq,
			Payload:   e.Payload,
			CreatedAt: now,
		})
	}
	return p.db.Create(&rows).Error
}
