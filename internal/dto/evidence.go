package dto

import "github.com/noah-isme/grit-challenge-api/internal/models"

// MediaUpload is one file attached to an evidence submission.
type MediaUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// SubmitEvidenceRequest carries a new challenge or GRIT Bit submission.
// A nil ChallengeID submits a GRIT Bit.
type SubmitEvidenceRequest struct {
	ChallengeID *string       `form:"challengeId" json:"challengeId,omitempty" validate:"omitempty,min=1,max=64"`
	Title       string        `form:"title" json:"title" validate:"max=200"`
	Text        string        `form:"text" json:"text" validate:"required,max=10000"`
	Media       []MediaUpload `form:"-" json:"-"`
}

// ResubmitEvidenceRequest answers a needs_revision decision with new content.
type ResubmitEvidenceRequest struct {
	Text  string        `form:"text" json:"text" validate:"required,max=10000"`
	Media []MediaUpload `form:"-" json:"-"`
}

// EvidenceQuery filters a student's own submissions.
type EvidenceQuery struct {
	StudentID string
	Status    *models.EvidenceStatus
}
