package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

var evidenceRowColumns = []string{"id", "student_id", "challenge_id", "submission_type", "title", "text_content", "media_urls", "status",
	"awarded_points", "previous_submission_id", "reviewed_by", "reviewed_at", "created_at", "root_submission_id"}

func TestEvidenceRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO evidence_submissions")).WillReturnResult(sqlmock.NewResult(1, 1))
	evidence := &models.EvidenceSubmission{
		StudentID:      "stu-1",
		ChallengeID:    strPtr("ch-1"),
		SubmissionType: models.SubmissionChallenge,
		Title:          "Speak up",
		TextContent:    "I spoke at assembly",
	}
	require.NoError(t, repo.Create(context.Background(), evidence))
	require.NotEmpty(t, evidence.ID)
	require.Equal(t, models.EvidencePending, evidence.Status)

	mock.ExpectQuery(regexp.QuoteMeta("FROM evidence_submissions WHERE id = $1")).
		WithArgs(evidence.ID).
		WillReturnRows(sqlmock.NewRows(evidenceRowColumns).
			AddRow(evidence.ID, "stu-1", "ch-1", "challenge", "Speak up", "I spoke at assembly", "{https://cdn/a.jpg,https://cdn/b.jpg}", "pending",
				nil, nil, nil, nil, time.Now(), evidence.ID))
	found, err := repo.FindByID(context.Background(), evidence.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/b.jpg"}, []string(found.MediaURLs))
	require.Nil(t, found.AwardedPoints)
	require.Equal(t, evidence.ID, found.ChainRoot())
	require.Equal(t, evidence.ID, evidence.RootSubmissionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryCreateRefusesSecondResubmission(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	evidence := &models.EvidenceSubmission{
		StudentID:            "stu-1",
		SubmissionType:       models.SubmissionGritBit,
		Title:                "Helped a friend",
		PreviousSubmissionID: strPtr("e-1"),
		RootSubmissionID:     "e-1",
	}
	err := repo.Create(context.Background(), evidence)
	require.ErrorIs(t, err, ErrSuperseded)
	require.Equal(t, "e-1", evidence.RootSubmissionID)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Create(context.Background(), &models.EvidenceSubmission{ID: "e-9", StudentID: "stu-1", SubmissionType: models.SubmissionGritBit})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrSuperseded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryFindSuccessor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM evidence_submissions WHERE previous_submission_id = $1")).
		WithArgs("e-1").
		WillReturnRows(sqlmock.NewRows(evidenceRowColumns).
			AddRow("e-2", "stu-1", nil, "grit_bit", "Helped a friend", "with photo", "{}", "pending",
				nil, "e-1", nil, nil, time.Now(), "e-1"))
	next, err := repo.FindSuccessor(context.Background(), "e-1")
	require.NoError(t, err)
	require.Equal(t, "e-2", next.ID)
	require.Equal(t, "e-1", next.ChainRoot())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE previous_submission_id = $1")).
		WithArgs("e-2").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.FindSuccessor(context.Background(), "e-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryListPendingFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	year := 5
	columns := append(append([]string{}, evidenceRowColumns...), "student_name", "year_level", "challenge_title", "challenge_points")
	mock.ExpectQuery(regexp.QuoteMeta("AND e.student_id = $3 AND e.submission_type = $4 AND s.year_level = $5 ORDER BY e.created_at DESC")).
		WithArgs("school-1", models.EvidencePending, "stu-1", models.SubmissionGritBit, 5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("e-1", "stu-1", nil, "grit_bit", "Helped a friend", "text", "{}", "pending",
				nil, nil, nil, nil, time.Now(), "e-1", "Ana", 5, nil, nil))

	items, err := repo.ListPending(context.Background(), "school-1", models.PendingFilter{
		StudentID: "stu-1",
		Type:      models.SubmissionGritBit,
		YearLevel: &year,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Ana", items[0].StudentName)
	require.True(t, items[0].IsGritBit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryUpdateReview(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	params := UpdateReviewParams{
		ID:         "e-1",
		Status:     models.EvidenceApproved,
		ReviewedBy: "leader-1",
		ReviewedAt: time.Now(),
		Blocked:    []models.EvidenceStatus{models.EvidenceApproved},
	}
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND NOT (status = ANY($5))")).WillReturnResult(sqlmock.NewResult(0, 1))
	changed, err := repo.UpdateReview(context.Background(), params)
	require.NoError(t, err)
	require.True(t, changed)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND NOT (status = ANY($5))")).WillReturnResult(sqlmock.NewResult(0, 0))
	changed, err = repo.UpdateReview(context.Background(), params)
	require.NoError(t, err)
	require.False(t, changed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryCreditGritBit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE evidence_submissions SET awarded_points = $2 WHERE id = $1 AND awarded_points IS NULL")).
		WithArgs("e-1", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE students SET grit_bit_points = grit_bit_points + $2")).
		WithArgs("stu-1", 10, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"grit_bit_points"}).AddRow(40))
	mock.ExpectCommit()

	credited, total, err := repo.CreditGritBit(context.Background(), "e-1", "stu-1", 10)
	require.NoError(t, err)
	require.True(t, credited)
	require.Equal(t, 40, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryCreditGritBitAlreadyClaimed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("AND awarded_points IS NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	credited, _, err := repo.CreditGritBit(context.Background(), "e-1", "stu-1", 10)
	require.NoError(t, err)
	require.False(t, credited)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryCreditGritBitChainAlreadyClaimed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("chain.root_submission_id = evidence_submissions.root_submission_id")).
		WithArgs("e-1", 10).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	credited, total, err := repo.CreditGritBit(context.Background(), "e-1", "stu-1", 10)
	require.NoError(t, err)
	require.False(t, credited)
	require.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvidenceRepositoryCreditGritBitRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEvidenceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("AND awarded_points IS NULL")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE students SET grit_bit_points")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	credited, _, err := repo.CreditGritBit(context.Background(), "e-1", "stu-1", 10)
	require.Error(t, err)
	require.False(t, credited)
	require.NoError(t, mock.ExpectationsWereMet())
}
