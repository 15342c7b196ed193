package dto

import "github.com/noah-isme/grit-challenge-api/internal/models"

// ReviewItem is one deduplicated row of the leader review queue.
type ReviewItem struct {
	models.EvidenceSubmission
	StudentName          string  `json:"student_name"`
	YearLevel            int     `json:"year_level"`
	ChallengeTitle       *string `json:"challenge_title,omitempty"`
	ChallengePoints      *int    `json:"challenge_points,omitempty"`
	SuppressedDuplicates int     `json:"suppressed_duplicates"`
}

// ApproveResult reports the effects of an approval.
type ApproveResult struct {
	Submission      models.EvidenceSubmission `json:"submission"`
	PointsAwarded   int                       `json:"points_awarded"`
	Credited        bool                      `json:"credited"`
	AlreadyApproved bool                      `json:"already_approved"`
	ConversationID  string                    `json:"conversation_id"`
}

// RequestChangesRequest carries leader feedback.
type RequestChangesRequest struct {
	Feedback string `json:"feedback" validate:"required,max=5000"`
}

// RequestChangesResult reports the effects of a request-changes decision.
type RequestChangesResult struct {
	Submission     models.EvidenceSubmission `json:"submission"`
	Changed        bool                      `json:"changed"`
	ConversationID string                    `json:"conversation_id"`
}
