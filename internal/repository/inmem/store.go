// Package inmem is a process-local implementation of the persistence port.
// Every table method takes the store's single lock, giving the same
// uniqueness and conditional-update guarantees as the SQL repositories.
package inmem

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

// Store holds every table behind one RWMutex.
type Store struct {
	mu   sync.RWMutex
	last time.Time
	seq  int64

	students      map[string]models.Student
	challenges    map[string]models.Challenge
	progress      []models.ProgressRecord
	evidence      map[string]evidenceRow
	conversations map[string]models.Conversation
	messages      []messageRow

	Students      *StudentTable
	Challenges    *ChallengeTable
	Progress      *ProgressTable
	Evidence      *EvidenceTable
	Conversations *ConversationTable
}

type evidenceRow struct {
	models.EvidenceSubmission
	seq int64
}

type messageRow struct {
	models.Message
	seq int64
}

// New returns an empty store.
func New() *Store {
	s := &Store{
		students:      make(map[string]models.Student),
		challenges:    make(map[string]models.Challenge),
		evidence:      make(map[string]evidenceRow),
		conversations: make(map[string]models.Conversation),
	}
	s.Students = &StudentTable{s: s}
	s.Challenges = &ChallengeTable{s: s}
	s.Progress = &ProgressTable{s: s}
	s.Evidence = &EvidenceTable{s: s}
	s.Conversations = &ConversationTable{s: s}
	return s
}

// now returns a strictly increasing UTC timestamp. Callers hold the write lock.
func (s *Store) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

// SeedProgress appends a ledger row without the uniqueness check, reproducing
// storage that already holds duplicates.
func (s *Store) SeedProgress(record models.ProgressRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.now()
	}
	s.progress = append(s.progress, record)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
