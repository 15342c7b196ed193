package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/grit-challenge-api/internal/models"
	"github.com/noah-isme/grit-challenge-api/internal/repository"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

type progressStore interface {
	Find(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error)
	Insert(ctx context.Context, record *models.ProgressRecord) (bool, error)
	UpdateStatus(ctx context.Context, params repository.UpdateProgressParams) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ProgressRecord, error)
}

type catalogReader interface {
	Get(ctx context.Context, id string) (*models.Challenge, error)
}

// ProgressService owns the per (student, challenge) lifecycle. Every
// transition is a guarded update so concurrent callers cannot regress state.
type ProgressService struct {
	repo    progressStore
	catalog catalogReader
	logger  *zap.Logger
	now     func() time.Time
}

// NewProgressService constructs the ledger service.
func NewProgressService(repo progressStore, catalog catalogReader, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{repo: repo, catalog: catalog, logger: logger, now: time.Now}
}

// Get returns the ledger row for a pair.
func (s *ProgressService) Get(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error) {
	record, err := s.repo.Find(ctx, studentID, challengeID)
	if err != nil {
		return nil, s.mapFindError(err, studentID, challengeID, func() error {
			return appErrors.Clone(appErrors.ErrNotFound, "progress record not found")
		})
	}
	return record, nil
}

// ListForStudent returns every ledger row of a student.
func (s *ProgressService) ListForStudent(ctx context.Context, studentID string) ([]models.ProgressRecord, error) {
	records, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load progress")
	}
	return records, nil
}

// Begin starts a challenge. It is idempotent and never regresses a record that
// is already past not_started.
func (s *ProgressService) Begin(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error) {
	if _, err := s.catalog.Get(ctx, challengeID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	record := &models.ProgressRecord{
		StudentID:   studentID,
		ChallengeID: challengeID,
		Status:      models.ProgressInProgress,
		StartedAt:   &now,
		UpdatedAt:   now,
	}
	inserted, err := s.repo.Insert(ctx, record)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to start challenge")
	}
	if inserted {
		return record, nil
	}

	if _, err := s.repo.UpdateStatus(ctx, repository.UpdateProgressParams{
		StudentID:   studentID,
		ChallengeID: challengeID,
		From:        []models.ProgressStatus{models.ProgressNotStarted},
		To:          models.ProgressInProgress,
		StartedAt:   &now,
		UpdatedAt:   now,
	}); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to start challenge")
	}
	return s.Get(ctx, studentID, challengeID)
}

// MarkSubmitted moves a started record to submitted and clears any revision flag.
func (s *ProgressService) MarkSubmitted(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error) {
	record, err := s.repo.Find(ctx, studentID, challengeID)
	if err != nil {
		return nil, s.mapFindError(err, studentID, challengeID, func() error {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "challenge has not been started")
		})
	}
	if record.Status == models.ProgressApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "challenge already approved")
	}
	now := s.now().UTC()
	changed, err := s.repo.UpdateStatus(ctx, repository.UpdateProgressParams{
		StudentID:   studentID,
		ChallengeID: challengeID,
		From:        []models.ProgressStatus{models.ProgressNotStarted, models.ProgressInProgress, models.ProgressSubmitted},
		To:          models.ProgressSubmitted,
		StartedAt:   &now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to mark challenge submitted")
	}
	if !changed {
		// approved concurrently between read and write
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "challenge already approved")
	}
	return s.Get(ctx, studentID, challengeID)
}

// MarkApproved completes a challenge. A record that is already approved is
// left untouched and reported with changed=false.
func (s *ProgressService) MarkApproved(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, bool, error) {
	if _, err := s.repo.Find(ctx, studentID, challengeID); err != nil {
		return nil, false, s.mapFindError(err, studentID, challengeID, missingProgressRecord)
	}
	now := s.now().UTC()
	changed, err := s.repo.UpdateStatus(ctx, repository.UpdateProgressParams{
		StudentID:   studentID,
		ChallengeID: challengeID,
		From:        []models.ProgressStatus{models.ProgressNotStarted, models.ProgressInProgress, models.ProgressSubmitted},
		To:          models.ProgressApproved,
		StartedAt:   &now,
		CompletedAt: &now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, false, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to mark challenge approved")
	}
	record, err := s.Get(ctx, studentID, challengeID)
	if err != nil {
		return nil, false, err
	}
	return record, changed, nil
}

// MarkNeedsRevision flags a submitted record for rework. Approved records are
// never regressed.
func (s *ProgressService) MarkNeedsRevision(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, bool, error) {
	record, err := s.repo.Find(ctx, studentID, challengeID)
	if err != nil {
		return nil, false, s.mapFindError(err, studentID, challengeID, missingProgressRecord)
	}
	if record.Status == models.ProgressApproved {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidTransition, "challenge already approved")
	}
	if record.Status == models.ProgressSubmitted && record.NeedsRevision {
		return record, false, nil
	}
	now := s.now().UTC()
	changed, err := s.repo.UpdateStatus(ctx, repository.UpdateProgressParams{
		StudentID:     studentID,
		ChallengeID:   challengeID,
		From:          []models.ProgressStatus{models.ProgressNotStarted, models.ProgressInProgress, models.ProgressSubmitted},
		To:            models.ProgressSubmitted,
		NeedsRevision: true,
		StartedAt:     &now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, false, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to flag challenge for revision")
	}
	if !changed {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidTransition, "challenge already approved")
	}
	record, err = s.Get(ctx, studentID, challengeID)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

func missingProgressRecord() error {
	return appErrors.Clone(appErrors.ErrConsistencyViolation, "progress record missing for evidence")
}

func (s *ProgressService) mapFindError(err error, studentID, challengeID string, missing func() error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		mapped := missing()
		if errors.Is(mapped, appErrors.ErrConsistencyViolation) {
			s.logger.Error("progress record missing for reviewed evidence",
				zap.String("student_id", studentID),
				zap.String("challenge_id", challengeID),
			)
		}
		return mapped
	case errors.Is(err, repository.ErrDuplicateProgress):
		s.logger.Error("duplicate progress records",
			zap.String("student_id", studentID),
			zap.String("challenge_id", challengeID),
		)
		return appErrors.WrapAs(appErrors.ErrConsistencyViolation, err, "duplicate progress records")
	default:
		return appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load progress")
	}
}
