package inmem

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/grit-challenge-api/internal/models"
	"github.com/noah-isme/grit-challenge-api/internal/repository"
)

// ProgressTable mirrors repository.ProgressRepository.
type ProgressTable struct{ s *Store }

func (t *ProgressTable) matches(studentID, challengeID string) []int {
	idx := make([]int, 0, 1)
	for i, record := range t.s.progress {
		if record.StudentID == studentID && record.ChallengeID == challengeID {
			idx = append(idx, i)
		}
	}
	return idx
}

// Find returns the single row for a pair, sql.ErrNoRows, or repository.ErrDuplicateProgress.
func (t *ProgressTable) Find(_ context.Context, studentID, challengeID string) (*models.ProgressRecord, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	idx := t.matches(studentID, challengeID)
	switch len(idx) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		record := t.s.progress[idx[0]]
		return &record, nil
	default:
		return nil, repository.ErrDuplicateProgress
	}
}

// Insert adds a row unless the pair exists.
func (t *ProgressTable) Insert(_ context.Context, record *models.ProgressRecord) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if len(t.matches(record.StudentID, record.ChallengeID)) > 0 {
		return false, nil
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = t.s.now()
	}
	t.s.progress = append(t.s.progress, *record)
	return true, nil
}

// UpdateStatus applies a transition while the row is in one of params.From.
func (t *ProgressTable) UpdateStatus(_ context.Context, params repository.UpdateProgressParams) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	changed := false
	for _, i := range t.matches(params.StudentID, params.ChallengeID) {
		record := &t.s.progress[i]
		if !containsStatus(params.From, record.Status) {
			continue
		}
		record.Status = params.To
		record.NeedsRevision = params.NeedsRevision
		if record.StartedAt == nil && params.StartedAt != nil {
			started := *params.StartedAt
			record.StartedAt = &started
		}
		if record.CompletedAt == nil && params.CompletedAt != nil {
			completed := *params.CompletedAt
			record.CompletedAt = &completed
		}
		record.UpdatedAt = params.UpdatedAt
		if record.UpdatedAt.IsZero() {
			record.UpdatedAt = t.s.now()
		}
		changed = true
	}
	return changed, nil
}

// ListByStudent returns a student's rows, most recently updated first.
func (t *ProgressTable) ListByStudent(_ context.Context, studentID string) ([]models.ProgressRecord, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]models.ProgressRecord, 0)
	for _, record := range t.s.progress {
		if record.StudentID == studentID {
			out = append(out, record)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func containsStatus(set []models.ProgressStatus, status models.ProgressStatus) bool {
	for _, candidate := range set {
		if candidate == status {
			return true
		}
	}
	return false
}
