package models

import "time"

// ConversationType distinguishes review threads from broadcasts.
type ConversationType string

const (
	ConversationEvidenceReview ConversationType = "evidence_review"
	ConversationAnnouncement   ConversationType = "announcement"
	ConversationGeneral        ConversationType = "general"
)

// SenderType identifies which side of the program wrote a message.
type SenderType string

const (
	SenderFamily SenderType = "family"
	SenderLeader SenderType = "leader"
)

// Conversation is a thread tied to a submission, a student, or a broadcast.
// Broadcasts have a nil StudentID and may narrow by YearLevel.
type Conversation struct {
	ID                   string           `db:"id" json:"id"`
	SchoolID             string           `db:"school_id" json:"school_id"`
	StudentID            *string          `db:"student_id" json:"student_id,omitempty"`
	YearLevel            *int             `db:"year_level" json:"year_level,omitempty"`
	Subject              string           `db:"subject" json:"subject"`
	ConversationType     ConversationType `db:"conversation_type" json:"conversation_type"`
	EvidenceSubmissionID *string          `db:"evidence_submission_id" json:"evidence_submission_id,omitempty"`
	IsRead               bool             `db:"is_read" json:"is_read"`
	LastMessageAt        time.Time        `db:"last_message_at" json:"last_message_at"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
}

// Message is an append-only entry ordered by CreatedAt.
type Message struct {
	ID             string     `db:"id" json:"id"`
	ConversationID string     `db:"conversation_id" json:"conversation_id"`
	SenderType     SenderType `db:"sender_type" json:"sender_type"`
	SenderID       string     `db:"sender_id" json:"sender_id"`
	Content        string     `db:"content" json:"content"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
