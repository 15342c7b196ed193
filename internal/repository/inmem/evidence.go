package inmem

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/grit-challenge-api/internal/models"
	"github.com/noah-isme/grit-challenge-api/internal/repository"
)

// EvidenceTable mirrors repository.EvidenceRepository.
type EvidenceTable struct{ s *Store }

func (r evidenceRow) snapshot() models.EvidenceSubmission {
	e := r.EvidenceSubmission
	e.MediaURLs = cloneStrings(e.MediaURLs)
	if e.AwardedPoints != nil {
		points := *e.AwardedPoints
		e.AwardedPoints = &points
	}
	return e
}

// newestFirst orders rows by creation time then insertion order, both descending.
func newestFirst(rows []evidenceRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
}

// Create inserts a submission row. A second resubmission of the same prior
// row is refused with repository.ErrSuperseded.
func (t *EvidenceTable) Create(_ context.Context, evidence *models.EvidenceSubmission) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if evidence.PreviousSubmissionID != nil {
		if _, ok := t.successor(*evidence.PreviousSubmissionID); ok {
			return repository.ErrSuperseded
		}
	}
	if evidence.ID == "" {
		evidence.ID = uuid.NewString()
	}
	if evidence.Status == "" {
		evidence.Status = models.EvidencePending
	}
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = t.s.now()
	}
	if evidence.MediaURLs == nil {
		evidence.MediaURLs = pq.StringArray{}
	}
	if evidence.RootSubmissionID == "" {
		evidence.RootSubmissionID = evidence.ID
	}
	row := evidenceRow{EvidenceSubmission: *evidence, seq: t.s.nextSeq()}
	row.MediaURLs = cloneStrings(evidence.MediaURLs)
	t.s.evidence[evidence.ID] = row
	return nil
}

// FindSuccessor returns the resubmission chained to priorID or sql.ErrNoRows.
func (t *EvidenceTable) FindSuccessor(_ context.Context, priorID string) (*models.EvidenceSubmission, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	row, ok := t.successor(priorID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	evidence := row.snapshot()
	return &evidence, nil
}

func (t *EvidenceTable) successor(priorID string) (evidenceRow, bool) {
	for _, row := range t.s.evidence {
		if row.PreviousSubmissionID != nil && *row.PreviousSubmissionID == priorID {
			return row, true
		}
	}
	return evidenceRow{}, false
}

// FindByID returns a submission or sql.ErrNoRows.
func (t *EvidenceTable) FindByID(_ context.Context, id string) (*models.EvidenceSubmission, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	row, ok := t.s.evidence[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	evidence := row.snapshot()
	return &evidence, nil
}

// ListByStudent returns a student's submissions newest first.
func (t *EvidenceTable) ListByStudent(_ context.Context, studentID string, status *models.EvidenceStatus) ([]models.EvidenceSubmission, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rows := make([]evidenceRow, 0)
	for _, row := range t.s.evidence {
		if row.StudentID != studentID {
			continue
		}
		if status != nil && row.Status != *status {
			continue
		}
		rows = append(rows, row)
	}
	newestFirst(rows)
	out := make([]models.EvidenceSubmission, len(rows))
	for i, row := range rows {
		out[i] = row.snapshot()
	}
	return out, nil
}

// ListPending joins pending rows with student and challenge context, newest first.
func (t *EvidenceTable) ListPending(_ context.Context, schoolID string, filter models.PendingFilter) ([]models.PendingEvidence, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rows := make([]evidenceRow, 0)
	for _, row := range t.s.evidence {
		if row.Status != models.EvidencePending {
			continue
		}
		student, ok := t.s.students[row.StudentID]
		if !ok || student.SchoolID != schoolID {
			continue
		}
		if filter.StudentID != "" && row.StudentID != filter.StudentID {
			continue
		}
		if filter.Type != "" && row.SubmissionType != filter.Type {
			continue
		}
		if filter.YearLevel != nil && student.YearLevel != *filter.YearLevel {
			continue
		}
		rows = append(rows, row)
	}
	newestFirst(rows)

	out := make([]models.PendingEvidence, 0, len(rows))
	for _, row := range rows {
		student := t.s.students[row.StudentID]
		item := models.PendingEvidence{
			EvidenceSubmission: row.snapshot(),
			StudentName:        student.DisplayName,
			YearLevel:          student.YearLevel,
		}
		if row.ChallengeID != nil {
			if challenge, ok := t.s.challenges[*row.ChallengeID]; ok {
				title, points := challenge.Title, challenge.Points
				item.ChallengeTitle = &title
				item.ChallengePoints = &points
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// UpdateReview sets the review outcome unless the row is in a blocked state.
func (t *EvidenceTable) UpdateReview(_ context.Context, params repository.UpdateReviewParams) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	row, ok := t.s.evidence[params.ID]
	if !ok {
		return false, nil
	}
	for _, blocked := range params.Blocked {
		if row.Status == blocked {
			return false, nil
		}
	}
	reviewedBy, reviewedAt := params.ReviewedBy, params.ReviewedAt
	row.Status = params.Status
	row.ReviewedBy = &reviewedBy
	row.ReviewedAt = &reviewedAt
	t.s.evidence[params.ID] = row
	return true, nil
}

// CreditGritBit claims a GRIT Bit award for its revision chain and adds it to
// the student's total atomically.
func (t *EvidenceTable) CreditGritBit(_ context.Context, evidenceID, studentID string, points int) (bool, int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	row, ok := t.s.evidence[evidenceID]
	if !ok || row.AwardedPoints != nil {
		return false, 0, nil
	}
	for _, other := range t.s.evidence {
		if other.ChainRoot() == row.ChainRoot() && other.AwardedPoints != nil {
			return false, 0, nil
		}
	}
	student, ok := t.s.students[studentID]
	if !ok {
		return false, 0, sql.ErrNoRows
	}
	awarded := points
	row.AwardedPoints = &awarded
	t.s.evidence[evidenceID] = row
	student.GritBitPoints += points
	student.UpdatedAt = t.s.now()
	t.s.students[studentID] = student
	return true, student.GritBitPoints, nil
}
