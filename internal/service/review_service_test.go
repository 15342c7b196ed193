package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

type failingRelay struct {
	reviewRelay
	err error
}

func (f failingRelay) AppendOnce(context.Context, string, models.SenderType, string, string) (*models.Message, bool, error) {
	return nil, false, f.err
}

func (w *workflow) submitChallenge(t *testing.T, challenge models.Challenge, text string) *models.EvidenceSubmission {
	t.Helper()
	evidence, err := w.evidence.Submit(context.Background(), w.student.ID, dto.SubmitEvidenceRequest{ChallengeID: ptr(challenge.ID), Text: text})
	require.NoError(t, err)
	return evidence
}

func (w *workflow) submitGritBit(t *testing.T, title string) *models.EvidenceSubmission {
	t.Helper()
	evidence, err := w.evidence.Submit(context.Background(), w.student.ID, dto.SubmitEvidenceRequest{Title: title, Text: "it happened"})
	require.NoError(t, err)
	return evidence
}

func (w *workflow) messages(t *testing.T, conversationID string) []models.Message {
	t.Helper()
	thread, err := w.relay.Thread(context.Background(), w.leader, conversationID)
	require.NoError(t, err)
	return thread.Messages
}

func TestApproveGritBitDoubleClickCreditsOnce(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	evidence := w.submitGritBit(t, "Helped a friend")

	first, err := w.review.Approve(ctx, w.leader, evidence.ID)
	require.NoError(t, err)
	assert.True(t, first.Credited)
	assert.False(t, first.AlreadyApproved)
	assert.Equal(t, 10, first.PointsAwarded)
	assert.Equal(t, models.EvidenceApproved, first.Submission.Status)
	require.NotNil(t, first.Submission.AwardedPoints)
	assert.Equal(t, 10, *first.Submission.AwardedPoints)

	second, err := w.review.Approve(ctx, w.leader, evidence.ID)
	require.NoError(t, err)
	assert.False(t, second.Credited)
	assert.True(t, second.AlreadyApproved)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	student, err := w.store.Students.FindByID(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, student.GritBitPoints)

	messages := w.messages(t, first.ConversationID)
	require.Len(t, messages, 2)
	assert.Equal(t, models.SenderFamily, messages[0].SenderType)
	assert.Equal(t, "Approved! Ana earned 10 GRIT points.", messages[1].Content)
	assert.Equal(t, 10.0, counterValue(t, w, "grit_points_awarded_total", map[string]string{"type": "grit_bit"}))
}

func TestConcurrentApprovalsCreditOnce(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	evidence := w.submitGritBit(t, "Cooked dinner")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := w.review.Approve(ctx, w.leader, evidence.ID)
			if !assert.NoError(t, err) {
				return
			}
			if result.Credited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	student, err := w.store.Students.FindByID(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, student.GritBitPoints)
}

func TestConcurrentChallengeApprovalsCreditOnce(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	challenge := w.challenge("Plant a tree", "Resilience", 20)
	evidence := w.submitChallenge(t, challenge, "We planted an oak")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		credited int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := w.review.Approve(ctx, w.leader, evidence.ID)
			if !assert.NoError(t, err) {
				return
			}
			if result.Credited {
				mu.Lock()
				credited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, credited)
	summary, err := w.summary.Summary(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.Points, summary.GritPoints)
	assert.Equal(t, 1, summary.CompletedCount)

	record, err := w.progress.Get(ctx, w.student.ID, challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProgressApproved, record.Status)
}

// sendBackAndResubmit returns the revised submission chained to first.
func (w *workflow) sendBackAndResubmit(t *testing.T, first *models.EvidenceSubmission) *models.EvidenceSubmission {
	t.Helper()
	ctx := context.Background()
	_, err := w.review.RequestChanges(ctx, w.leader, first.ID, dto.RequestChangesRequest{Feedback: "Please add a photo"})
	require.NoError(t, err)
	second, err := w.evidence.Resubmit(ctx, w.student.ID, first.ID, dto.ResubmitEvidenceRequest{Text: "Here is the photo"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.RootSubmissionID)
	return second
}

func (w *workflow) gritBitPoints(t *testing.T) int {
	t.Helper()
	student, err := w.store.Students.FindByID(context.Background(), w.student.ID)
	require.NoError(t, err)
	return student.GritBitPoints
}

func TestGritBitChainStaleApproveDoesNotCreditTwice(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	first := w.submitGritBit(t, "Helped a friend")
	second := w.sendBackAndResubmit(t, first)

	approved, err := w.review.Approve(ctx, w.leader, second.ID)
	require.NoError(t, err)
	assert.True(t, approved.Credited)
	assert.Equal(t, 10, w.gritBitPoints(t))

	_, err = w.review.Approve(ctx, w.leader, first.ID)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	assert.Equal(t, 10, w.gritBitPoints(t))

	stale, err := w.store.Evidence.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvidenceNeedsRevision, stale.Status)
	assert.Nil(t, stale.AwardedPoints)
	assert.Equal(t, 10.0, counterValue(t, w, "grit_points_awarded_total", map[string]string{"type": "grit_bit"}))
}

func TestGritBitChainSecondResubmitIsRefused(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	first := w.submitGritBit(t, "Helped a friend")
	second := w.sendBackAndResubmit(t, first)

	_, err := w.review.Approve(ctx, w.leader, second.ID)
	require.NoError(t, err)

	_, err = w.evidence.Resubmit(ctx, w.student.ID, first.ID, dto.ResubmitEvidenceRequest{Text: "once more"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	submissions, err := w.store.Evidence.ListByStudent(ctx, w.student.ID, nil)
	require.NoError(t, err)
	assert.Len(t, submissions, 2)
	assert.Equal(t, 10, w.gritBitPoints(t))
}

func TestSupersededChallengeEvidenceIsNotReviewable(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	challenge := w.challenge("Plant a tree", "Resilience", 20)
	first := w.submitChallenge(t, challenge, "We planted an oak")
	second := w.sendBackAndResubmit(t, first)

	_, err := w.review.RequestChanges(ctx, w.leader, first.ID, dto.RequestChangesRequest{Feedback: "again"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
	_, err = w.review.Approve(ctx, w.leader, first.ID)
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	approved, err := w.review.Approve(ctx, w.leader, second.ID)
	require.NoError(t, err)
	assert.True(t, approved.Credited)
	assert.Len(t, w.messages(t, approved.ConversationID), 4)

	summary, err := w.summary.Summary(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, summary.GritPoints)
}

func TestRequestChangesThenResubmitThenApproveAwardsOnce(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	challenge := w.challenge("Plant a tree", "Resilience", 20)
	first := w.submitChallenge(t, challenge, "We planted an oak")

	sentBack, err := w.review.RequestChanges(ctx, w.leader, first.ID, dto.RequestChangesRequest{Feedback: "Please add a photo"})
	require.NoError(t, err)
	assert.True(t, sentBack.Changed)
	assert.Equal(t, models.EvidenceNeedsRevision, sentBack.Submission.Status)

	again, err := w.review.RequestChanges(ctx, w.leader, first.ID, dto.RequestChangesRequest{Feedback: "Please add a photo"})
	require.NoError(t, err)
	assert.False(t, again.Changed)

	record, err := w.progress.Get(ctx, w.student.ID, challenge.ID)
	require.NoError(t, err)
	assert.True(t, record.NeedsRevision)

	second, err := w.evidence.Resubmit(ctx, w.student.ID, first.ID, dto.ResubmitEvidenceRequest{
		Text:  "Here is the photo",
		Media: []dto.MediaUpload{photo("oak.png")},
	})
	require.NoError(t, err)

	pending, err := w.review.ListPending(ctx, w.leader, models.PendingFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	approved, err := w.review.Approve(ctx, w.leader, second.ID)
	require.NoError(t, err)
	assert.True(t, approved.Credited)
	assert.Equal(t, 20, approved.PointsAwarded)
	assert.Equal(t, sentBack.ConversationID, approved.ConversationID)

	repeat, err := w.review.Approve(ctx, w.leader, second.ID)
	require.NoError(t, err)
	assert.False(t, repeat.Credited)

	summary, err := w.summary.Summary(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, summary.GritPoints)
	assert.Equal(t, 1, summary.CompletedCount)
	assert.Zero(t, summary.NeedsRevisionCount)

	messages := w.messages(t, approved.ConversationID)
	require.Len(t, messages, 4)
	assert.Equal(t, models.SenderFamily, messages[0].SenderType)
	assert.Equal(t, "Please add a photo", messages[1].Content)
	assert.Equal(t, models.SenderFamily, messages[2].SenderType)
	assert.Contains(t, messages[2].Content, "Here is the photo")
	assert.Equal(t, "Approved! Ana earned 20 GRIT points.", messages[3].Content)

	_, err = w.review.RequestChanges(ctx, w.leader, second.ID, dto.RequestChangesRequest{Feedback: "too late"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestPendingQueueShowsNewestPerChallenge(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	challenge := w.challenge("Plant a tree", "Resilience", 20)

	older := w.submitChallenge(t, challenge, "We planted an oak")
	newer, err := w.evidence.Submit(ctx, w.student.ID, dto.SubmitEvidenceRequest{
		ChallengeID: ptr(challenge.ID),
		Text:        "Adding a photo",
		Media:       []dto.MediaUpload{photo("oak.png")},
	})
	require.NoError(t, err)
	gritA := w.submitGritBit(t, "Helped a friend")
	gritB := w.submitGritBit(t, "Helped a friend")

	pending, err := w.review.ListPending(ctx, w.leader, models.PendingFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 3)

	ids := make([]string, 0, len(pending))
	for _, item := range pending {
		ids = append(ids, item.ID)
		if item.ID == newer.ID {
			assert.Equal(t, 1, item.SuppressedDuplicates)
			require.NotNil(t, item.ChallengePoints)
			assert.Equal(t, 20, *item.ChallengePoints)
		}
	}
	assert.ElementsMatch(t, []string{newer.ID, gritA.ID, gritB.ID}, ids)
	assert.NotContains(t, ids, older.ID)

	stillThere, err := w.store.Evidence.FindByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvidencePending, stillThere.Status)

	foreign := &models.JWTClaims{UserID: "leader-2", Role: models.RoleLeader, SchoolID: "school-2"}
	empty, err := w.review.ListPending(ctx, foreign, models.PendingFilter{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestApproveForeignSchoolIsNotFound(t *testing.T) {
	w := newWorkflow(t)
	evidence := w.submitGritBit(t, "Helped a friend")
	foreign := &models.JWTClaims{UserID: "leader-2", Role: models.RoleLeader, SchoolID: "school-2"}

	_, err := w.review.Approve(context.Background(), foreign, evidence.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = w.review.Approve(context.Background(), w.leader, "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestApproveWithoutLedgerRecordIsConsistencyViolation(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	challenge := w.challenge("Plant a tree", "Resilience", 20)
	evidence := &models.EvidenceSubmission{
		StudentID:      w.student.ID,
		ChallengeID:    ptr(challenge.ID),
		SubmissionType: models.SubmissionChallenge,
		Title:          challenge.Title,
		TextContent:    "orphan",
		MediaURLs:      pq.StringArray{},
	}
	require.NoError(t, w.store.Evidence.Create(ctx, evidence))

	_, err := w.review.Approve(ctx, w.leader, evidence.ID)
	require.ErrorIs(t, err, appErrors.ErrConsistencyViolation)

	current, err := w.store.Evidence.FindByID(ctx, evidence.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvidencePending, current.Status)
}

func TestRequestChangesRequiresFeedback(t *testing.T) {
	w := newWorkflow(t)
	evidence := w.submitGritBit(t, "Helped a friend")

	_, err := w.review.RequestChanges(context.Background(), w.leader, evidence.ID, dto.RequestChangesRequest{Feedback: "  "})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestApprovePartialFailureIsRetryable(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	evidence := w.submitGritBit(t, "Helped a friend")

	broken := NewReviewService(ReviewServiceDeps{
		Evidence:  w.store.Evidence,
		Students:  w.store.Students,
		Ledger:    w.progress,
		Catalog:   w.catalog,
		Relay:     failingRelay{reviewRelay: w.relay, err: errors.New("relay offline")},
		Summaries: w.summary,
		Metrics:   w.metrics,
	})
	_, err := broken.Approve(ctx, w.leader, evidence.ID)
	require.ErrorIs(t, err, appErrors.ErrDependencyFailure)
	assert.Equal(t, 1.0, counterValue(t, w, "review_partial_failures_total", map[string]string{"step": "relay"}))

	student, err := w.store.Students.FindByID(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, student.GritBitPoints)

	retried, err := w.review.Approve(ctx, w.leader, evidence.ID)
	require.NoError(t, err)
	assert.False(t, retried.Credited)
	assert.Equal(t, 10, retried.PointsAwarded)

	student, err = w.store.Students.FindByID(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, student.GritBitPoints)
	assert.Len(t, w.messages(t, retried.ConversationID), 2)
}

func TestGritBitCreditRefreshesAwardTier(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		evidence := w.submitGritBit(t, "Kind act")
		_, err := w.review.Approve(ctx, w.leader, evidence.ID)
		require.NoError(t, err)
	}

	student, err := w.store.Students.FindByID(ctx, w.student.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, student.GritBitPoints)
	assert.Equal(t, models.AwardTierFor(50), student.AwardTier)
}

func TestDedupePendingKeepsFirstOfEachKey(t *testing.T) {
	challengeID := "c-1"
	rows := []models.PendingEvidence{
		{EvidenceSubmission: models.EvidenceSubmission{ID: "e-3", StudentID: "s-1", ChallengeID: &challengeID}},
		{EvidenceSubmission: models.EvidenceSubmission{ID: "g-1", StudentID: "s-1"}},
		{EvidenceSubmission: models.EvidenceSubmission{ID: "e-2", StudentID: "s-1", ChallengeID: &challengeID}},
		{EvidenceSubmission: models.EvidenceSubmission{ID: "e-1", StudentID: "s-2", ChallengeID: &challengeID}},
		{EvidenceSubmission: models.EvidenceSubmission{ID: "e-0", StudentID: "s-1", ChallengeID: &challengeID}},
	}

	items := DedupePending(rows)
	require.Len(t, items, 3)
	assert.Equal(t, "e-3", items[0].ID)
	assert.Equal(t, 2, items[0].SuppressedDuplicates)
	assert.Equal(t, "g-1", items[1].ID)
	assert.Equal(t, "e-1", items[2].ID)
	assert.Empty(t, DedupePending(nil))
}
