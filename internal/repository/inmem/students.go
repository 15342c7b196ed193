package inmem

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

// StudentTable mirrors repository.StudentRepository.
type StudentTable struct{ s *Store }

// FindByID returns a student or sql.ErrNoRows.
func (t *StudentTable) FindByID(_ context.Context, id string) (*models.Student, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	student, ok := t.s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

// ListBySchool returns students ordered by year level then name.
func (t *StudentTable) ListBySchool(_ context.Context, filter models.StudentFilter) ([]models.Student, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]models.Student, 0)
	for _, student := range t.s.students {
		if student.SchoolID != filter.SchoolID {
			continue
		}
		if filter.YearLevel != nil && student.YearLevel != *filter.YearLevel {
			continue
		}
		out = append(out, student)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].YearLevel != out[j].YearLevel {
			return out[i].YearLevel < out[j].YearLevel
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

// Create inserts a student.
func (t *StudentTable) Create(_ context.Context, student *models.Student) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.AwardTier == "" {
		student.AwardTier = models.AwardTierNone
	}
	now := t.s.now()
	student.CreatedAt = now
	student.UpdatedAt = now
	t.s.students[student.ID] = *student
	return nil
}

// UpdateAwardTier persists a recomputed tier.
func (t *StudentTable) UpdateAwardTier(_ context.Context, id string, tier models.AwardTier) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	student, ok := t.s.students[id]
	if !ok {
		return nil
	}
	student.AwardTier = tier
	student.UpdatedAt = t.s.now()
	t.s.students[id] = student
	return nil
}
