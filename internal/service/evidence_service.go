package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	"github.com/noah-isme/grit-challenge-api/internal/repository"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

type evidenceStore interface {
	Create(ctx context.Context, evidence *models.EvidenceSubmission) error
	FindByID(ctx context.Context, id string) (*models.EvidenceSubmission, error)
	FindSuccessor(ctx context.Context, priorID string) (*models.EvidenceSubmission, error)
	ListByStudent(ctx context.Context, studentID string, status *models.EvidenceStatus) ([]models.EvidenceSubmission, error)
	ListPending(ctx context.Context, schoolID string, filter models.PendingFilter) ([]models.PendingEvidence, error)
	UpdateReview(ctx context.Context, params repository.UpdateReviewParams) (bool, error)
	CreditGritBit(ctx context.Context, evidenceID, studentID string, points int) (bool, int, error)
}

// MediaStore persists uploaded bytes and returns a durable URL.
type MediaStore interface {
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

type submissionLedger interface {
	Get(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error)
	Begin(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error)
	MarkSubmitted(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error)
}

type submissionRelay interface {
	LatestFeedback(ctx context.Context, evidenceID string) (string, error)
	ContinueThread(ctx context.Context, prior, next *models.EvidenceSubmission) (*models.Conversation, error)
}

// EvidenceService implements the family side of the submission protocol.
type EvidenceService struct {
	repo      evidenceStore
	students  studentReader
	catalog   catalogReader
	ledger    submissionLedger
	relay     submissionRelay
	media     MediaStore
	policy    MediaPolicy
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// EvidenceServiceDeps groups collaborators of the evidence service.
type EvidenceServiceDeps struct {
	Repo      evidenceStore
	Students  studentReader
	Catalog   catalogReader
	Ledger    submissionLedger
	Relay     submissionRelay
	Media     MediaStore
	Policy    MediaPolicy
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewEvidenceService constructs the service.
func NewEvidenceService(deps EvidenceServiceDeps) *EvidenceService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Policy == (MediaPolicy{}) {
		deps.Policy = DefaultMediaPolicy()
	}
	return &EvidenceService{
		repo:      deps.Repo,
		students:  deps.Students,
		catalog:   deps.Catalog,
		ledger:    deps.Ledger,
		relay:     deps.Relay,
		media:     deps.Media,
		policy:    deps.Policy,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
	}
}

func (s *EvidenceService) validate(text string, payload interface{}, media []dto.MediaUpload) error {
	if strings.TrimSpace(text) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "evidence text is required")
	}
	if err := s.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evidence payload")
	}
	return s.policy.Validate(media)
}

// Submit records new evidence for a challenge or, without a challenge, a GRIT Bit.
// Nothing is uploaded or written when validation fails.
func (s *EvidenceService) Submit(ctx context.Context, studentID string, req dto.SubmitEvidenceRequest) (*models.EvidenceSubmission, error) {
	if req.ChallengeID != nil && strings.TrimSpace(*req.ChallengeID) == "" {
		req.ChallengeID = nil
	}
	if err := s.validate(req.Text, req, req.Media); err != nil {
		return nil, err
	}

	evidence := &models.EvidenceSubmission{
		StudentID:      studentID,
		SubmissionType: models.SubmissionGritBit,
		Title:          strings.TrimSpace(req.Title),
		TextContent:    strings.TrimSpace(req.Text),
		Status:         models.EvidencePending,
	}
	if req.ChallengeID != nil {
		challenge, err := s.catalog.Get(ctx, *req.ChallengeID)
		if err != nil {
			return nil, err
		}
		if err := s.ensureSubmittable(ctx, studentID, challenge.ID); err != nil {
			return nil, err
		}
		challengeID := challenge.ID
		evidence.ChallengeID = &challengeID
		evidence.SubmissionType = models.SubmissionChallenge
		if evidence.Title == "" {
			evidence.Title = challenge.Title
		}
	}
	if evidence.Title == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "GRIT Bit title is required")
	}
	return s.store(ctx, evidence, req.Media, false)
}

// Resubmit answers a needs_revision decision with a new submission chained to
// the prior one. The newest leader feedback is carried into the text.
func (s *EvidenceService) Resubmit(ctx context.Context, studentID, priorID string, req dto.ResubmitEvidenceRequest) (*models.EvidenceSubmission, error) {
	if err := s.validate(req.Text, req, req.Media); err != nil {
		return nil, err
	}
	prior, err := s.repo.FindByID(ctx, priorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load evidence")
	}
	if prior.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "evidence belongs to another student")
	}
	if prior.Status != models.EvidenceNeedsRevision {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only evidence awaiting revision can be resubmitted")
	}
	if err := ensureNotSuperseded(ctx, s.repo, prior.ID); err != nil {
		return nil, err
	}
	if prior.ChallengeID != nil {
		if err := s.ensureSubmittable(ctx, studentID, *prior.ChallengeID); err != nil {
			return nil, err
		}
	}

	feedback, err := s.relay.LatestFeedback(ctx, prior.ID)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(req.Text)
	if feedback != "" {
		text = "[Previous feedback: " + feedback + "]\n\n" + text
	}
	priorRef := prior.ID
	next := &models.EvidenceSubmission{
		StudentID:            studentID,
		ChallengeID:          prior.ChallengeID,
		SubmissionType:       prior.SubmissionType,
		Title:                prior.Title,
		TextContent:          text,
		Status:               models.EvidencePending,
		PreviousSubmissionID: &priorRef,
		RootSubmissionID:     prior.ChainRoot(),
	}
	stored, err := s.store(ctx, next, req.Media, true)
	if err != nil {
		return nil, err
	}
	if _, err := s.relay.ContinueThread(ctx, prior, stored); err != nil {
		// the submission is durable; review will open a fresh thread if needed
		s.logger.Error("failed to continue review thread",
			zap.String("prior_submission_id", prior.ID),
			zap.String("submission_id", stored.ID),
			zap.Error(err),
		)
	}
	return stored, nil
}

// ensureNotSuperseded rejects a submission that a resubmission replaced.
func ensureNotSuperseded(ctx context.Context, repo evidenceStore, id string) error {
	next, err := repo.FindSuccessor(ctx, id)
	switch {
	case err == nil:
		return appErrors.Clone(appErrors.ErrInvalidTransition, "evidence was superseded by resubmission "+next.ID)
	case errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to check evidence chain")
	}
}

// ensureSubmittable rejects approved challenges and starts missing records.
func (s *EvidenceService) ensureSubmittable(ctx context.Context, studentID, challengeID string) error {
	record, err := s.ledger.Get(ctx, studentID, challengeID)
	switch {
	case err == nil:
		if record.Status == models.ProgressApproved {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "challenge already approved")
		}
		return nil
	case errors.Is(err, appErrors.ErrNotFound):
		_, err = s.ledger.Begin(ctx, studentID, challengeID)
		return err
	default:
		return err
	}
}

func (s *EvidenceService) store(ctx context.Context, evidence *models.EvidenceSubmission, media []dto.MediaUpload, resubmission bool) (*models.EvidenceSubmission, error) {
	urls, err := s.upload(ctx, media)
	if err != nil {
		return nil, err
	}
	evidence.MediaURLs = pq.StringArray(urls)
	if err := s.repo.Create(ctx, evidence); err != nil {
		s.cleanup(urls)
		if errors.Is(err, repository.ErrSuperseded) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "evidence was already resubmitted")
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to store evidence")
	}
	if evidence.ChallengeID != nil {
		if _, err := s.ledger.MarkSubmitted(ctx, evidence.StudentID, *evidence.ChallengeID); err != nil {
			s.logger.Error("evidence stored but ledger not advanced",
				zap.String("submission_id", evidence.ID),
				zap.String("student_id", evidence.StudentID),
				zap.String("challenge_id", *evidence.ChallengeID),
				zap.Error(err),
			)
			return nil, err
		}
	}
	s.metrics.RecordSubmission(evidence.SubmissionType, resubmission)
	s.logger.Info("evidence submitted",
		zap.String("submission_id", evidence.ID),
		zap.String("student_id", evidence.StudentID),
		zap.String("type", string(evidence.SubmissionType)),
		zap.Int("media", len(urls)),
	)
	return evidence, nil
}

func (s *EvidenceService) upload(ctx context.Context, media []dto.MediaUpload) ([]string, error) {
	urls := make([]string, 0, len(media))
	for _, upload := range media {
		_, contentType, _ := Classify(upload)
		url, err := s.media.Upload(ctx, upload.Filename, contentType, upload.Data)
		if err != nil {
			s.cleanup(urls)
			s.logger.Warn("media upload failed", zap.String("filename", upload.Filename), zap.Error(err))
			return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "media upload failed")
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// cleanup removes uploaded media best effort on a detached context.
func (s *EvidenceService) cleanup(urls []string) {
	for _, url := range urls {
		if err := s.media.Delete(context.Background(), url); err != nil {
			s.logger.Warn("failed to delete orphaned media", zap.String("url", url), zap.Error(err))
		}
	}
}

// Get returns a submission visible to the actor.
func (s *EvidenceService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.EvidenceSubmission, error) {
	evidence, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load evidence")
	}
	if err := s.authorizeStudent(ctx, actor, evidence.StudentID); err != nil {
		return nil, err
	}
	return evidence, nil
}

// List returns a student's submissions visible to the actor.
func (s *EvidenceService) List(ctx context.Context, actor *models.JWTClaims, query dto.EvidenceQuery) ([]models.EvidenceSubmission, error) {
	studentID := query.StudentID
	if actor.Role == models.RoleFamily {
		studentID = actor.StudentID
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if err := s.authorizeStudent(ctx, actor, studentID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListByStudent(ctx, studentID, query.Status)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to list evidence")
	}
	return items, nil
}

func (s *EvidenceService) authorizeStudent(ctx context.Context, actor *models.JWTClaims, studentID string) error {
	return authorizeStudentAccess(ctx, s.students, actor, studentID)
}

// authorizeStudentAccess lets families see their own student and leaders see
// students of their school. Other students read as not found.
func authorizeStudentAccess(ctx context.Context, students studentReader, actor *models.JWTClaims, studentID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleFamily:
		if actor.StudentID != studentID {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil
	case models.RoleLeader:
		student, err := students.FindByID(ctx, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load student")
		}
		if student.SchoolID != actor.SchoolID {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil
	}
	return appErrors.ErrForbidden
}
