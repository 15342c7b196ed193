package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

const challengeColumns = `id, school_id, title, description, trait, pathway, subcategory, points, active, created_at`

// ChallengeRepository reads the challenge catalog.
type ChallengeRepository struct {
	db *sqlx.DB
}

// NewChallengeRepository constructs the repository.
func NewChallengeRepository(db *sqlx.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// FindByID returns a single challenge. sql.ErrNoRows is passed through.
func (r *ChallengeRepository) FindByID(ctx context.Context, id string) (*models.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`
	var challenge models.Challenge
	if err := r.db.GetContext(ctx, &challenge, query, id); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// FindByIDs returns the challenges matching ids. Unknown ids are skipped.
func (r *ChallengeRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Challenge, error) {
	if len(ids) == 0 {
		return []models.Challenge{}, nil
	}
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = ANY($1)`
	var challenges []models.Challenge
	if err := r.db.SelectContext(ctx, &challenges, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find challenges by ids: %w", err)
	}
	return challenges, nil
}

// List returns active challenges visible to the filter's school.
func (r *ChallengeRepository) List(ctx context.Context, filter models.ChallengeFilter) ([]models.Challenge, error) {
	var builder strings.Builder
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + challengeColumns + ` FROM challenges WHERE active = TRUE`)
	if filter.SchoolID != "" {
		args = append(args, filter.SchoolID)
		builder.WriteString(fmt.Sprintf(" AND (school_id IS NULL OR school_id = $%d)", len(args)))
	}
	if filter.Pathway != "" {
		args = append(args, filter.Pathway)
		builder.WriteString(fmt.Sprintf(" AND pathway = $%d", len(args)))
	}
	if filter.Trait != "" {
		args = append(args, filter.Trait)
		builder.WriteString(fmt.Sprintf(" AND trait = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY pathway ASC, title ASC")

	var challenges []models.Challenge
	if err := r.db.SelectContext(ctx, &challenges, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	return challenges, nil
}

// CountAssigned counts the active challenges assigned to a school.
func (r *ChallengeRepository) CountAssigned(ctx context.Context, schoolID string) (int, error) {
	const query = `SELECT COUNT(*) FROM challenges WHERE active = TRUE AND (school_id IS NULL OR school_id = $1)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, schoolID); err != nil {
		return 0, fmt.Errorf("count assigned challenges: %w", err)
	}
	return total, nil
}
