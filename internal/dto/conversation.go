package dto

import "github.com/noah-isme/grit-challenge-api/internal/models"

// AnnouncementRequest creates a school or year level broadcast.
type AnnouncementRequest struct {
	Subject   string `json:"subject" validate:"required,max=200"`
	Content   string `json:"content" validate:"required,max=10000"`
	YearLevel *int   `json:"yearLevel,omitempty" validate:"omitempty,min=0,max=20"`
}

// DirectMessageRequest opens a general thread with one student's family.
type DirectMessageRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	Subject   string `json:"subject" validate:"required,max=200"`
	Content   string `json:"content" validate:"required,max=10000"`
}

// SendMessageRequest appends to an existing thread.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

// ConversationThread returns a conversation with its messages.
type ConversationThread struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}
