package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

var messageRowColumns = []string{"id", "conversation_id", "sender_type", "sender_id", "content", "is_read", "created_at"}

func TestConversationRepositoryCreateConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewConversationRepository(db)

	conversation := &models.Conversation{
		SchoolID:             "school-1",
		StudentID:            strPtr("stu-1"),
		Subject:              "GRIT Bit: Helped a friend",
		ConversationType:     models.ConversationEvidenceReview,
		EvidenceSubmissionID: strPtr("e-1"),
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).WillReturnResult(sqlmock.NewResult(1, 1))
	created, err := repo.Create(context.Background(), conversation)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, conversation.CreatedAt, conversation.LastMessageAt)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	created, err = repo.Create(context.Background(), &models.Conversation{SchoolID: "school-1", EvidenceSubmissionID: strPtr("e-1")})
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepositoryAppendMessage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewConversationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO messages")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET last_message_at = $2 WHERE id = $1")).
		WithArgs("conv-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	message := &models.Message{ConversationID: "conv-1", SenderType: models.SenderLeader, SenderID: "leader-1", Content: "Great work"}
	require.NoError(t, repo.AppendMessage(context.Background(), message))
	require.NotEmpty(t, message.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepositoryLatestMessage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewConversationRepository(db)

	leader := models.SenderLeader
	mock.ExpectQuery(regexp.QuoteMeta("AND sender_type = $2 ORDER BY created_at DESC, id DESC LIMIT 1")).
		WithArgs("conv-1", leader).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).
			AddRow("m-2", "conv-1", "leader", "leader-1", "add a photo", false, time.Now()))
	message, err := repo.LatestMessage(context.Background(), "conv-1", &leader)
	require.NoError(t, err)
	require.Equal(t, "add a photo", message.Content)

	mock.ExpectQuery(regexp.QuoteMeta("FROM messages WHERE conversation_id = $1 ORDER BY")).
		WithArgs("conv-2").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.LatestMessage(context.Background(), "conv-2", nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewConversationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE conversations SET is_read = TRUE")).WithArgs("conv-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE messages SET is_read = TRUE")).WithArgs("conv-1", models.SenderFamily).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkRead(context.Background(), "conv-1", models.SenderFamily))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepositoryListForStudentIncludesBroadcasts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewConversationRepository(db)

	columns := []string{"id", "school_id", "student_id", "year_level", "subject", "conversation_type", "evidence_submission_id", "is_read", "last_message_at", "created_at"}
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("OR (student_id IS NULL AND school_id = $2 AND (year_level IS NULL OR year_level = $3))")).
		WithArgs("stu-1", "school-1", 5).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("conv-1", "school-1", "stu-1", nil, "Challenge: Speak up", "evidence_review", "e-1", false, now, now).
			AddRow("conv-2", "school-1", nil, 5, "Camp week", "announcement", nil, false, now, now))

	items, err := repo.ListForStudent(context.Background(), "stu-1", "school-1", 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Nil(t, items[1].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}
