package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

const studentColumns = `id, school_id, year_level, display_name, avatar_url, award_tier, grit_bit_points, created_at, updated_at`

// StudentRepository reads student rows and maintains their GRIT standing.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student. sql.ErrNoRows is passed through.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListBySchool returns students of a school ordered by year level and name.
func (r *StudentRepository) ListBySchool(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	var builder strings.Builder
	args := []interface{}{filter.SchoolID}
	builder.WriteString(`SELECT ` + studentColumns + ` FROM students WHERE school_id = $1`)
	if filter.YearLevel != nil {
		args = append(args, *filter.YearLevel)
		builder.WriteString(fmt.Sprintf(" AND year_level = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY year_level ASC, display_name ASC")

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.AwardTier == "" {
		student.AwardTier = models.AwardTierNone
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, school_id, year_level, display_name, avatar_url, award_tier, grit_bit_points, created_at, updated_at)
	VALUES (:id, :school_id, :year_level, :display_name, :avatar_url, :award_tier, :grit_bit_points, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateAwardTier persists a recomputed tier.
func (r *StudentRepository) UpdateAwardTier(ctx context.Context, id string, tier models.AwardTier) error {
	const query = `UPDATE students SET award_tier = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, tier, time.Now().UTC()); err != nil {
		return fmt.Errorf("update award tier: %w", err)
	}
	return nil
}
