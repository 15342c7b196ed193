package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	"github.com/noah-isme/grit-challenge-api/internal/repository"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

// Review steps named in partial failure logs and metrics.
const (
	stepEvidenceStatus = "evidence_status"
	stepLedger         = "ledger"
	stepPoints         = "points"
	stepAwardTier      = "award_tier"
	stepRelay          = "relay"
)

type reviewStudents interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	UpdateAwardTier(ctx context.Context, id string, tier models.AwardTier) error
}

type reviewLedger interface {
	Get(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error)
	MarkApproved(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, bool, error)
	MarkNeedsRevision(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, bool, error)
}

type reviewRelay interface {
	GetOrCreateForEvidence(ctx context.Context, evidence *models.EvidenceSubmission) (*models.Conversation, error)
	AppendOnce(ctx context.Context, conversationID string, sender models.SenderType, senderID, content string) (*models.Message, bool, error)
}

type summarizer interface {
	Summary(ctx context.Context, studentID string) (*models.ProgressSummary, error)
}

// ReviewService applies leader decisions. Each step is idempotent so a
// decision that failed part way can be retried as is.
type ReviewService struct {
	evidence   evidenceStore
	students   reviewStudents
	ledger     reviewLedger
	catalog    catalogReader
	relay      reviewRelay
	summaries  summarizer
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	gritPoints int
	now        func() time.Time
}

// ReviewServiceDeps groups collaborators of the review engine.
type ReviewServiceDeps struct {
	Evidence      evidenceStore
	Students      reviewStudents
	Ledger        reviewLedger
	Catalog       catalogReader
	Relay         reviewRelay
	Summaries     summarizer
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	GritBitPoints int
}

// NewReviewService constructs the review engine.
func NewReviewService(deps ReviewServiceDeps) *ReviewService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.GritBitPoints <= 0 {
		deps.GritBitPoints = 10
	}
	return &ReviewService{
		evidence:   deps.Evidence,
		students:   deps.Students,
		ledger:     deps.Ledger,
		catalog:    deps.Catalog,
		relay:      deps.Relay,
		summaries:  deps.Summaries,
		metrics:    deps.Metrics,
		validator:  deps.Validator,
		logger:     deps.Logger,
		gritPoints: deps.GritBitPoints,
		now:        time.Now,
	}
}

// progressTracker records which review steps completed for failure logs.
type progressTracker struct {
	svc       *ReviewService
	decision  string
	evidence  *models.EvidenceSubmission
	leaderID  string
	completed []string
}

func (t *progressTracker) done(step string) {
	t.completed = append(t.completed, step)
}

func (t *progressTracker) fail(step string, err error) error {
	t.svc.metrics.RecordPartialFailure(step)
	t.svc.logger.Error("review decision partially applied",
		zap.String("decision", t.decision),
		zap.String("submission_id", t.evidence.ID),
		zap.String("student_id", t.evidence.StudentID),
		zap.String("leader_id", t.leaderID),
		zap.Strings("completed_steps", t.completed),
		zap.String("failed_step", step),
		zap.Error(err),
	)
	if errors.Is(err, appErrors.ErrDependencyFailure) || errors.Is(err, appErrors.ErrConsistencyViolation) {
		return err
	}
	return appErrors.WrapAs(appErrors.ErrDependencyFailure, err, fmt.Sprintf("review %s failed at %s; retry is safe", t.decision, step))
}

// reviewTarget holds everything checked before a decision writes anything.
type reviewTarget struct {
	evidence  *models.EvidenceSubmission
	student   *models.Student
	record    *models.ProgressRecord
	challenge *models.Challenge
}

func (s *ReviewService) load(ctx context.Context, actor *models.JWTClaims, evidenceID string) (*reviewTarget, error) {
	evidence, err := s.evidence.FindByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load evidence")
	}
	student, err := s.students.FindByID(ctx, evidence.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("evidence references missing student", zap.String("submission_id", evidence.ID), zap.String("student_id", evidence.StudentID))
			return nil, appErrors.Clone(appErrors.ErrConsistencyViolation, "evidence references missing student")
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load student")
	}
	if student.SchoolID != actor.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
	}
	// only the newest attempt of a revision chain is reviewable
	if err := ensureNotSuperseded(ctx, s.evidence, evidence.ID); err != nil {
		return nil, err
	}
	target := &reviewTarget{evidence: evidence, student: student}
	if evidence.ChallengeID == nil {
		return target, nil
	}

	record, err := s.ledger.Get(ctx, evidence.StudentID, *evidence.ChallengeID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			s.logger.Error("progress record missing for reviewed evidence",
				zap.String("submission_id", evidence.ID),
				zap.String("student_id", evidence.StudentID),
				zap.String("challenge_id", *evidence.ChallengeID),
			)
			return nil, appErrors.Clone(appErrors.ErrConsistencyViolation, "progress record missing for evidence")
		}
		return nil, err
	}
	challenge, err := s.catalog.Get(ctx, *evidence.ChallengeID)
	if err != nil {
		if errors.Is(err, appErrors.ErrDependencyFailure) {
			return nil, err
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "challenge catalog entry unavailable")
	}
	target.record = record
	target.challenge = challenge
	return target, nil
}

// Approve accepts a submission, completes its challenge, awards points and
// notifies the family. Repeating an approval changes nothing further.
func (s *ReviewService) Approve(ctx context.Context, actor *models.JWTClaims, evidenceID string) (*dto.ApproveResult, error) {
	target, err := s.load(ctx, actor, evidenceID)
	if err != nil {
		return nil, err
	}
	evidence := target.evidence
	tracker := &progressTracker{svc: s, decision: "approve", evidence: evidence, leaderID: actor.UserID}
	result := &dto.ApproveResult{AlreadyApproved: evidence.Status == models.EvidenceApproved}

	changed, err := s.evidence.UpdateReview(ctx, repository.UpdateReviewParams{
		ID:         evidence.ID,
		Status:     models.EvidenceApproved,
		ReviewedBy: actor.UserID,
		ReviewedAt: s.now().UTC(),
		Blocked:    []models.EvidenceStatus{models.EvidenceApproved},
	})
	if err != nil {
		return nil, tracker.fail(stepEvidenceStatus, err)
	}
	result.AlreadyApproved = !changed
	tracker.done(stepEvidenceStatus)

	if target.challenge != nil {
		_, completed, err := s.ledger.MarkApproved(ctx, evidence.StudentID, target.challenge.ID)
		if err != nil {
			return nil, tracker.fail(stepLedger, err)
		}
		tracker.done(stepLedger)
		result.PointsAwarded = target.challenge.Points
		result.Credited = completed
	} else {
		credited, _, err := s.evidence.CreditGritBit(ctx, evidence.ID, evidence.StudentID, s.gritPoints)
		if err != nil {
			return nil, tracker.fail(stepPoints, err)
		}
		tracker.done(stepPoints)
		result.Credited = credited
		result.PointsAwarded = s.gritPoints
		if evidence.AwardedPoints != nil && !credited {
			result.PointsAwarded = *evidence.AwardedPoints
		}
		if credited {
			if err := s.refreshAwardTier(ctx, evidence.StudentID); err != nil {
				return nil, tracker.fail(stepAwardTier, err)
			}
			tracker.done(stepAwardTier)
		}
	}

	conversation, err := s.relay.GetOrCreateForEvidence(ctx, evidence)
	if err != nil {
		return nil, tracker.fail(stepRelay, err)
	}
	message := fmt.Sprintf("Approved! %s earned %d GRIT points.", target.student.DisplayName, result.PointsAwarded)
	if _, _, err := s.relay.AppendOnce(ctx, conversation.ID, models.SenderLeader, actor.UserID, message); err != nil {
		return nil, tracker.fail(stepRelay, err)
	}
	result.ConversationID = conversation.ID

	if result.Credited {
		s.metrics.RecordPointsAwarded(evidence.SubmissionType, result.PointsAwarded)
	}
	s.metrics.RecordReviewDecision("approve", changed)
	s.logger.Info("evidence approved",
		zap.String("submission_id", evidence.ID),
		zap.String("leader_id", actor.UserID),
		zap.Bool("changed", changed),
		zap.Bool("credited", result.Credited),
		zap.Int("points", result.PointsAwarded),
	)

	result.Submission = *s.reload(ctx, evidence, models.EvidenceApproved, actor.UserID)
	return result, nil
}

// RequestChanges sends a submission back with feedback. Approved submissions
// cannot be sent back.
func (s *ReviewService) RequestChanges(ctx context.Context, actor *models.JWTClaims, evidenceID string, req dto.RequestChangesRequest) (*dto.RequestChangesResult, error) {
	feedback := strings.TrimSpace(req.Feedback)
	if feedback == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "feedback is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}
	target, err := s.load(ctx, actor, evidenceID)
	if err != nil {
		return nil, err
	}
	evidence := target.evidence
	if evidence.Status == models.EvidenceApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "evidence already approved")
	}
	if target.record != nil && target.record.Status == models.ProgressApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "challenge already approved")
	}
	tracker := &progressTracker{svc: s, decision: "request_changes", evidence: evidence, leaderID: actor.UserID}

	changed, err := s.evidence.UpdateReview(ctx, repository.UpdateReviewParams{
		ID:         evidence.ID,
		Status:     models.EvidenceNeedsRevision,
		ReviewedBy: actor.UserID,
		ReviewedAt: s.now().UTC(),
		Blocked:    []models.EvidenceStatus{models.EvidenceApproved, models.EvidenceNeedsRevision},
	})
	if err != nil {
		return nil, tracker.fail(stepEvidenceStatus, err)
	}
	if !changed {
		current, err := s.evidence.FindByID(ctx, evidence.ID)
		if err != nil {
			return nil, tracker.fail(stepEvidenceStatus, err)
		}
		if current.Status == models.EvidenceApproved {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "evidence already approved")
		}
	}
	tracker.done(stepEvidenceStatus)

	if target.challenge != nil {
		if _, _, err := s.ledger.MarkNeedsRevision(ctx, evidence.StudentID, target.challenge.ID); err != nil {
			if errors.Is(err, appErrors.ErrInvalidTransition) {
				return nil, err
			}
			return nil, tracker.fail(stepLedger, err)
		}
		tracker.done(stepLedger)
	}

	conversation, err := s.relay.GetOrCreateForEvidence(ctx, evidence)
	if err != nil {
		return nil, tracker.fail(stepRelay, err)
	}
	if _, _, err := s.relay.AppendOnce(ctx, conversation.ID, models.SenderLeader, actor.UserID, feedback); err != nil {
		return nil, tracker.fail(stepRelay, err)
	}

	s.metrics.RecordReviewDecision("request_changes", changed)
	s.logger.Info("evidence sent back for revision",
		zap.String("submission_id", evidence.ID),
		zap.String("leader_id", actor.UserID),
		zap.Bool("changed", changed),
	)
	return &dto.RequestChangesResult{
		Submission:     *s.reload(ctx, evidence, models.EvidenceNeedsRevision, actor.UserID),
		Changed:        changed,
		ConversationID: conversation.ID,
	}, nil
}

// ListPending returns the review queue of the leader's school with only the
// newest pending row per (student, challenge). Older rows stay untouched.
func (s *ReviewService) ListPending(ctx context.Context, actor *models.JWTClaims, filter models.PendingFilter) ([]dto.ReviewItem, error) {
	rows, err := s.evidence.ListPending(ctx, actor.SchoolID, filter)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to list pending evidence")
	}
	return DedupePending(rows), nil
}

// DedupePending keeps the first row per dedupe key of newest-first input and
// counts the rows it suppressed.
func DedupePending(rows []models.PendingEvidence) []dto.ReviewItem {
	items := make([]dto.ReviewItem, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, row := range rows {
		key := row.DedupeKey()
		if i, seen := index[key]; seen {
			items[i].SuppressedDuplicates++
			continue
		}
		index[key] = len(items)
		items = append(items, dto.ReviewItem{
			EvidenceSubmission: row.EvidenceSubmission,
			StudentName:        row.StudentName,
			YearLevel:          row.YearLevel,
			ChallengeTitle:     row.ChallengeTitle,
			ChallengePoints:    row.ChallengePoints,
		})
	}
	return items
}

func (s *ReviewService) refreshAwardTier(ctx context.Context, studentID string) error {
	summary, err := s.summaries.Summary(ctx, studentID)
	if err != nil {
		return err
	}
	return s.students.UpdateAwardTier(ctx, studentID, summary.AwardTier)
}

// reload re-reads the reviewed row, falling back to the local copy.
func (s *ReviewService) reload(ctx context.Context, evidence *models.EvidenceSubmission, status models.EvidenceStatus, leaderID string) *models.EvidenceSubmission {
	current, err := s.evidence.FindByID(ctx, evidence.ID)
	if err == nil {
		return current
	}
	s.logger.Warn("failed to reload reviewed evidence", zap.String("submission_id", evidence.ID), zap.Error(err))
	fallback := *evidence
	fallback.Status = status
	fallback.ReviewedBy = &leaderID
	return &fallback
}
