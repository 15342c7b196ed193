package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

const (
	conversationColumns = `id, school_id, student_id, year_level, subject, conversation_type, evidence_submission_id, is_read, last_message_at, created_at`
	messageColumns      = `id, conversation_id, sender_type, sender_id, content, is_read, created_at`
)

// ConversationRepository persists conversation threads and their messages.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository constructs the repository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// FindByID returns a conversation. sql.ErrNoRows is passed through.
func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, id); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindByEvidenceID returns the thread linked to a submission. sql.ErrNoRows is passed through.
func (r *ConversationRepository) FindByEvidenceID(ctx context.Context, evidenceID string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE evidence_submission_id = $1`
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, evidenceID); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Create inserts a conversation. A conflict on the evidence link leaves the
// existing row in place and reports created=false.
func (r *ConversationRepository) Create(ctx context.Context, conversation *models.Conversation) (bool, error) {
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	if conversation.LastMessageAt.IsZero() {
		conversation.LastMessageAt = conversation.CreatedAt
	}
	const query = `INSERT INTO conversations
	(id, school_id, student_id, year_level, subject, conversation_type, evidence_submission_id, is_read, last_message_at, created_at)
	VALUES (:id, :school_id, :student_id, :year_level, :subject, :conversation_type, :evidence_submission_id, :is_read, :last_message_at, :created_at)
	ON CONFLICT DO NOTHING`
	result, err := r.db.NamedExecContext(ctx, query, conversation)
	if err != nil {
		return false, fmt.Errorf("create conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check conversation insert rows: %w", err)
	}
	return rows == 1, nil
}

// Relink points an evidence review thread at a newer submission.
func (r *ConversationRepository) Relink(ctx context.Context, conversationID, evidenceID string) error {
	const query = `UPDATE conversations SET evidence_submission_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, conversationID, evidenceID); err != nil {
		return fmt.Errorf("relink conversation: %w", err)
	}
	return nil
}

// ListForStudent returns the student's threads plus school broadcasts that
// target the student's year level, most recently active first.
func (r *ConversationRepository) ListForStudent(ctx context.Context, studentID, schoolID string, yearLevel int) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
	WHERE student_id = $1
	   OR (student_id IS NULL AND school_id = $2 AND (year_level IS NULL OR year_level = $3))
	ORDER BY last_message_at DESC`
	var conversations []models.Conversation
	if err := r.db.SelectContext(ctx, &conversations, query, studentID, schoolID, yearLevel); err != nil {
		return nil, fmt.Errorf("list student conversations: %w", err)
	}
	return conversations, nil
}

// ListForSchool returns every thread of a school, most recently active first.
func (r *ConversationRepository) ListForSchool(ctx context.Context, schoolID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE school_id = $1 ORDER BY last_message_at DESC`
	var conversations []models.Conversation
	if err := r.db.SelectContext(ctx, &conversations, query, schoolID); err != nil {
		return nil, fmt.Errorf("list school conversations: %w", err)
	}
	return conversations, nil
}

// AppendMessage inserts a message and bumps the thread's last_message_at in one transaction.
func (r *ConversationRepository) AppendMessage(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append message tx: %w", err)
	}
	const insert = `INSERT INTO messages (id, conversation_id, sender_type, sender_id, content, is_read, created_at)
	VALUES (:id, :conversation_id, :sender_type, :sender_id, :content, :is_read, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, message); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = $2 WHERE id = $1`, message.ConversationID, message.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append message tx: %w", err)
	}
	return nil
}

// ListMessages returns a thread's messages oldest first.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// LatestMessage returns the newest message of a thread, optionally restricted
// to one sender type. sql.ErrNoRows is passed through.
func (r *ConversationRepository) LatestMessage(ctx context.Context, conversationID string, sender *models.SenderType) (*models.Message, error) {
	args := []interface{}{conversationID}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1`
	if sender != nil {
		args = append(args, *sender)
		query += " AND sender_type = $2"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 1"
	var message models.Message
	if err := r.db.GetContext(ctx, &message, query, args...); err != nil {
		return nil, err
	}
	return &message, nil
}

// MarkRead flags the thread read and every message written by the other party.
func (r *ConversationRepository) MarkRead(ctx context.Context, conversationID string, reader models.SenderType) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark read tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET is_read = TRUE WHERE id = $1`, conversationID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE conversation_id = $1 AND sender_type <> $2`, conversationID, reader); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("mark messages read: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark read tx: %w", err)
	}
	return nil
}
