package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

const evidenceColumns = `id, student_id, challenge_id, submission_type, title, text_content, media_urls, status,
awarded_points, previous_submission_id, reviewed_by, reviewed_at, created_at, root_submission_id`

const uniqueViolation = "23505"

// EvidenceRepository persists evidence submissions and their point claims.
type EvidenceRepository struct {
	db *sqlx.DB
}

// NewEvidenceRepository constructs the repository.
func NewEvidenceRepository(db *sqlx.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// Create inserts a submission row. A second resubmission of the same prior
// row is refused with ErrSuperseded.
func (r *EvidenceRepository) Create(ctx context.Context, evidence *models.EvidenceSubmission) error {
	if evidence.ID == "" {
		evidence.ID = uuid.NewString()
	}
	if evidence.Status == "" {
		evidence.Status = models.EvidencePending
	}
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = time.Now().UTC()
	}
	if evidence.MediaURLs == nil {
		evidence.MediaURLs = pq.StringArray{}
	}
	if evidence.RootSubmissionID == "" {
		evidence.RootSubmissionID = evidence.ID
	}
	const query = `INSERT INTO evidence_submissions
	(id, student_id, challenge_id, submission_type, title, text_content, media_urls, status, awarded_points, previous_submission_id, reviewed_by, reviewed_at, created_at, root_submission_id)
	VALUES (:id, :student_id, :challenge_id, :submission_type, :title, :text_content, :media_urls, :status, :awarded_points, :previous_submission_id, :reviewed_by, :reviewed_at, :created_at, :root_submission_id)
	ON CONFLICT DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, evidence)
	if err != nil {
		return fmt.Errorf("create evidence submission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check evidence insert rows: %w", err)
	}
	if rows == 0 {
		if evidence.PreviousSubmissionID != nil {
			return fmt.Errorf("create evidence submission: %w", ErrSuperseded)
		}
		return fmt.Errorf("create evidence submission: duplicate id %s", evidence.ID)
	}
	return nil
}

// FindSuccessor returns the resubmission chained to priorID or sql.ErrNoRows.
func (r *EvidenceRepository) FindSuccessor(ctx context.Context, priorID string) (*models.EvidenceSubmission, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence_submissions WHERE previous_submission_id = $1`
	var evidence models.EvidenceSubmission
	if err := r.db.GetContext(ctx, &evidence, query, priorID); err != nil {
		return nil, err
	}
	return &evidence, nil
}

// FindByID returns a submission. sql.ErrNoRows is passed through.
func (r *EvidenceRepository) FindByID(ctx context.Context, id string) (*models.EvidenceSubmission, error) {
	query := `SELECT ` + evidenceColumns + ` FROM evidence_submissions WHERE id = $1`
	var evidence models.EvidenceSubmission
	if err := r.db.GetContext(ctx, &evidence, query, id); err != nil {
		return nil, err
	}
	return &evidence, nil
}

// ListByStudent returns a student's submissions newest first.
func (r *EvidenceRepository) ListByStudent(ctx context.Context, studentID string, status *models.EvidenceStatus) ([]models.EvidenceSubmission, error) {
	args := []interface{}{studentID}
	query := `SELECT ` + evidenceColumns + ` FROM evidence_submissions WHERE student_id = $1`
	if status != nil {
		args = append(args, *status)
		query += " AND status = $2"
	}
	query += " ORDER BY created_at DESC, id DESC"

	var items []models.EvidenceSubmission
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list student evidence: %w", err)
	}
	return items, nil
}

// ListPending returns pending submissions of a school joined with student and
// challenge context, newest first.
func (r *EvidenceRepository) ListPending(ctx context.Context, schoolID string, filter models.PendingFilter) ([]models.PendingEvidence, error) {
	var builder strings.Builder
	args := []interface{}{schoolID, models.EvidencePending}
	builder.WriteString(`SELECT e.id, e.student_id, e.challenge_id, e.submission_type, e.title, e.text_content, e.media_urls, e.status,
       e.awarded_points, e.previous_submission_id, e.reviewed_by, e.reviewed_at, e.created_at, e.root_submission_id,
       s.display_name AS student_name, s.year_level, c.title AS challenge_title, c.points AS challenge_points
FROM evidence_submissions e
JOIN students s ON s.id = e.student_id
LEFT JOIN challenges c ON c.id = e.challenge_id
WHERE s.school_id = $1 AND e.status = $2`)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" AND e.student_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		builder.WriteString(fmt.Sprintf(" AND e.submission_type = $%d", len(args)))
	}
	if filter.YearLevel != nil {
		args = append(args, *filter.YearLevel)
		builder.WriteString(fmt.Sprintf(" AND s.year_level = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY e.created_at DESC, e.id DESC")

	var items []models.PendingEvidence
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list pending evidence: %w", err)
	}
	return items, nil
}

// UpdateReviewParams describes a guarded review decision.
type UpdateReviewParams struct {
	ID         string
	Status     models.EvidenceStatus
	ReviewedBy string
	ReviewedAt time.Time
	// Blocked lists states the row must not be in for the update to apply.
	Blocked []models.EvidenceStatus
}

// UpdateReview sets the review outcome unless the row is in a blocked state.
// The flag reports whether a row changed.
func (r *EvidenceRepository) UpdateReview(ctx context.Context, params UpdateReviewParams) (bool, error) {
	blocked := make([]string, len(params.Blocked))
	for i, status := range params.Blocked {
		blocked[i] = string(status)
	}
	const query = `UPDATE evidence_submissions
	SET status = $2, reviewed_by = $3, reviewed_at = $4
	WHERE id = $1 AND NOT (status = ANY($5))`
	result, err := r.db.ExecContext(ctx, query, params.ID, params.Status, params.ReviewedBy, params.ReviewedAt, pq.Array(blocked))
	if err != nil {
		return false, fmt.Errorf("update evidence review: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check evidence review rows: %w", err)
	}
	return rows > 0, nil
}

// CreditGritBit claims the point award of a GRIT Bit and adds it to the
// student's running total inside one transaction. The claim is held by the
// whole revision chain: only the caller that flips awarded_points from NULL
// while no other attempt of the chain holds points credits. Others get
// credited=false.
func (r *EvidenceRepository) CreditGritBit(ctx context.Context, evidenceID, studentID string, points int) (credited bool, total int, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin grit credit tx: %w", err)
	}
	defer func() {
		if err != nil || !credited {
			_ = tx.Rollback()
		}
	}()

	const claimQuery = `UPDATE evidence_submissions SET awarded_points = $2 WHERE id = $1 AND awarded_points IS NULL
	AND NOT EXISTS (
		SELECT 1 FROM evidence_submissions chain
		WHERE chain.root_submission_id = evidence_submissions.root_submission_id AND chain.awarded_points IS NOT NULL
	)`
	result, err := tx.ExecContext(ctx, claimQuery, evidenceID, points)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			// a concurrent attempt of the same chain committed its claim first
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("claim grit points: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("check grit claim rows: %w", err)
	}
	if rows == 0 {
		return false, 0, nil
	}

	const creditQuery = `UPDATE students SET grit_bit_points = grit_bit_points + $2, updated_at = $3 WHERE id = $1 RETURNING grit_bit_points`
	if err = tx.QueryRowxContext(ctx, creditQuery, studentID, points, time.Now().UTC()).Scan(&total); err != nil {
		return false, 0, fmt.Errorf("credit student grit points: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit grit credit tx: %w", err)
	}
	return true, total, nil
}
