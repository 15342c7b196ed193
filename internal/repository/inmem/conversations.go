package inmem

import (
	"context"
	"database/sql"
	"sort"

	"github.com/google/uuid"

	"github.com/noah-isme/grit-challenge-api/internal/models"
)

// ConversationTable mirrors repository.ConversationRepository.
type ConversationTable struct{ s *Store }

// FindByID returns a conversation or sql.ErrNoRows.
func (t *ConversationTable) FindByID(_ context.Context, id string) (*models.Conversation, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	conversation, ok := t.s.conversations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &conversation, nil
}

func (t *ConversationTable) byEvidence(evidenceID string) (models.Conversation, bool) {
	for _, conversation := range t.s.conversations {
		if conversation.EvidenceSubmissionID != nil && *conversation.EvidenceSubmissionID == evidenceID {
			return conversation, true
		}
	}
	return models.Conversation{}, false
}

// FindByEvidenceID returns the thread linked to a submission or sql.ErrNoRows.
func (t *ConversationTable) FindByEvidenceID(_ context.Context, evidenceID string) (*models.Conversation, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	conversation, ok := t.byEvidence(evidenceID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &conversation, nil
}

// Create inserts a conversation unless its evidence link is already taken.
func (t *ConversationTable) Create(_ context.Context, conversation *models.Conversation) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if conversation.EvidenceSubmissionID != nil {
		if _, taken := t.byEvidence(*conversation.EvidenceSubmissionID); taken {
			return false, nil
		}
	}
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	if _, exists := t.s.conversations[conversation.ID]; exists {
		return false, nil
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = t.s.now()
	}
	if conversation.LastMessageAt.IsZero() {
		conversation.LastMessageAt = conversation.CreatedAt
	}
	t.s.conversations[conversation.ID] = *conversation
	return true, nil
}

// Relink points a thread at a newer submission.
func (t *ConversationTable) Relink(_ context.Context, conversationID, evidenceID string) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	conversation, ok := t.s.conversations[conversationID]
	if !ok {
		return nil
	}
	linked := evidenceID
	conversation.EvidenceSubmissionID = &linked
	t.s.conversations[conversationID] = conversation
	return nil
}

func sortByActivity(items []models.Conversation) {
	sort.Slice(items, func(i, j int) bool { return items[i].LastMessageAt.After(items[j].LastMessageAt) })
}

// ListForStudent returns the student's threads plus matching school broadcasts.
func (t *ConversationTable) ListForStudent(_ context.Context, studentID, schoolID string, yearLevel int) ([]models.Conversation, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]models.Conversation, 0)
	for _, conversation := range t.s.conversations {
		switch {
		case conversation.StudentID != nil:
			if *conversation.StudentID != studentID {
				continue
			}
		case conversation.SchoolID != schoolID:
			continue
		case conversation.YearLevel != nil && *conversation.YearLevel != yearLevel:
			continue
		}
		out = append(out, conversation)
	}
	sortByActivity(out)
	return out, nil
}

// ListForSchool returns every thread of a school.
func (t *ConversationTable) ListForSchool(_ context.Context, schoolID string) ([]models.Conversation, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]models.Conversation, 0)
	for _, conversation := range t.s.conversations {
		if conversation.SchoolID == schoolID {
			out = append(out, conversation)
		}
	}
	sortByActivity(out)
	return out, nil
}

// AppendMessage stores a message and bumps last_message_at under one lock.
func (t *ConversationTable) AppendMessage(_ context.Context, message *models.Message) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	conversation, ok := t.s.conversations[message.ConversationID]
	if !ok {
		return sql.ErrNoRows
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = t.s.now()
	}
	t.s.messages = append(t.s.messages, messageRow{Message: *message, seq: t.s.nextSeq()})
	conversation.LastMessageAt = message.CreatedAt
	t.s.conversations[conversation.ID] = conversation
	return nil
}

func (t *ConversationTable) thread(conversationID string) []messageRow {
	rows := make([]messageRow, 0)
	for _, row := range t.s.messages {
		if row.ConversationID == conversationID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
	return rows
}

// ListMessages returns a thread's messages oldest first.
func (t *ConversationTable) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rows := t.thread(conversationID)
	out := make([]models.Message, len(rows))
	for i, row := range rows {
		out[i] = row.Message
	}
	return out, nil
}

// LatestMessage returns the newest message, optionally by sender type, or sql.ErrNoRows.
func (t *ConversationTable) LatestMessage(_ context.Context, conversationID string, sender *models.SenderType) (*models.Message, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rows := t.thread(conversationID)
	for i := len(rows) - 1; i >= 0; i-- {
		if sender == nil || rows[i].SenderType == *sender {
			message := rows[i].Message
			return &message, nil
		}
	}
	return nil, sql.ErrNoRows
}

// MarkRead flags the thread and the other party's messages as read.
func (t *ConversationTable) MarkRead(_ context.Context, conversationID string, reader models.SenderType) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	conversation, ok := t.s.conversations[conversationID]
	if !ok {
		return sql.ErrNoRows
	}
	conversation.IsRead = true
	t.s.conversations[conversationID] = conversation
	for i := range t.s.messages {
		if t.s.messages[i].ConversationID == conversationID && t.s.messages[i].SenderType != reader {
			t.s.messages[i].IsRead = true
		}
	}
	return nil
}
