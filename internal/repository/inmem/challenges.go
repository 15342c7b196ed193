package inmem

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

// ChallengeTable mirrors repository.ChallengeRepository.
type ChallengeTable struct{ s *Store }

// Put upserts a catalog row.
func (t *ChallengeTable) Put(challenge models.Challenge) models.Challenge {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = t.s.now()
	}
	t.s.challenges[challenge.ID] = challenge
	return challenge
}

// FindByID returns a challenge or sql.ErrNoRows.
func (t *ChallengeTable) FindByID(_ context.Context, id string) (*models.Challenge, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	challenge, ok := t.s.challenges[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &challenge, nil
}

// FindByIDs returns the known challenges among ids.
func (t *ChallengeTable) FindByIDs(_ context.Context, ids []string) ([]models.Challenge, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]models.Challenge, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if challenge, ok := t.s.challenges[id]; ok {
			out = append(out, challenge)
		}
	}
	return out, nil
}

// List returns active challenges matching the filter.
func (t *ChallengeTable) List(_ context.Context, filter models.ChallengeFilter) ([]models.Challenge, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]models.Challenge, 0)
	for _, challenge := range t.s.challenges {
		if !challenge.Active {
			continue
		}
		if filter.SchoolID != "" && !challenge.AssignedTo(filter.SchoolID) {
			continue
		}
		if filter.Pathway != "" && challenge.Pathway != filter.Pathway {
			continue
		}
		if filter.Trait != "" && challenge.Trait != filter.Trait {
			continue
		}
		out = append(out, challenge)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pathway != out[j].Pathway {
			return out[i].Pathway < out[j].Pathway
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

// CountAssigned counts the active challenges assigned to a school.
func (t *ChallengeTable) CountAssigned(_ context.Context, schoolID string) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	total := 0
	for _, challenge := range t.s.challenges {
		if challenge.AssignedTo(schoolID) {
			total++
		}
	}
	return total, nil
}
