package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

const progressColumns = `id, student_id, challenge_id, status, needs_revision, started_at, completed_at, updated_at`

// ProgressRepository persists the per (student, challenge) ledger.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Find loads the ledger row for a pair. It returns sql.ErrNoRows when absent
// and ErrDuplicateProgress when more than one row exists.
func (r *ProgressRepository) Find(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_records WHERE student_id = $1 AND challenge_id = $2 LIMIT 2`
	var records []models.ProgressRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, challengeID); err != nil {
		return nil, fmt.Errorf("find progress record: %w", err)
	}
	switch len(records) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return &records[0], nil
	default:
		return nil, ErrDuplicateProgress
	}
}

// Insert creates a ledger row unless the pair already exists. The returned
// flag reports whether this call inserted it.
func (r *ProgressRepository) Insert(ctx context.Context, record *models.ProgressRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO progress_records (id, student_id, challenge_id, status, needs_revision, started_at, completed_at, updated_at)
	VALUES (:id, :student_id, :challenge_id, :status, :needs_revision, :started_at, :completed_at, :updated_at)
	ON CONFLICT (student_id, challenge_id) DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return false, fmt.Errorf("insert progress record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check progress insert rows: %w", err)
	}
	return rows == 1, nil
}

// UpdateProgressParams describes a guarded ledger transition.
type UpdateProgressParams struct {
	StudentID     string
	ChallengeID   string
	From          []models.ProgressStatus
	To            models.ProgressStatus
	NeedsRevision bool
	StartedAt     *time.Time
	CompletedAt   *time.Time
	UpdatedAt     time.Time
}

// UpdateStatus applies the transition only while the row is in one of the
// From states. StartedAt and CompletedAt never overwrite an existing value.
func (r *ProgressRepository) UpdateStatus(ctx context.Context, params UpdateProgressParams) (bool, error) {
	if params.UpdatedAt.IsZero() {
		params.UpdatedAt = time.Now().UTC()
	}
	from := make([]string, len(params.From))
	for i, status := range params.From {
		from[i] = string(status)
	}
	const query = `UPDATE progress_records
	SET status = $3, needs_revision = $4,
	    started_at = COALESCE(started_at, $5),
	    completed_at = COALESCE(completed_at, $6),
	    updated_at = $7
	WHERE student_id = $1 AND challenge_id = $2 AND status = ANY($8)`
	result, err := r.db.ExecContext(ctx, query,
		params.StudentID, params.ChallengeID, params.To, params.NeedsRevision,
		params.StartedAt, params.CompletedAt, params.UpdatedAt, pq.Array(from),
	)
	if err != nil {
		return false, fmt.Errorf("update progress status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check progress update rows: %w", err)
	}
	return rows > 0, nil
}

// ListByStudent returns every ledger row of a student.
func (r *ProgressRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ProgressRecord, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_records WHERE student_id = $1 ORDER BY updated_at DESC`
	var records []models.ProgressRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list progress records: %w", err)
	}
	return records, nil
}
