package models

import (
	"time"

	"github.com/lib/pq"
)

// SubmissionType distinguishes challenge evidence from GRIT Bits.
type SubmissionType string

const (
	SubmissionChallenge SubmissionType = "challenge"
	SubmissionGritBit   SubmissionType = "grit_bit"
)

// EvidenceStatus captures the review state of a submission.
type EvidenceStatus string

const (
	EvidencePending       EvidenceStatus = "pending"
	EvidenceApproved      EvidenceStatus = "approved"
	EvidenceNeedsRevision EvidenceStatus = "needs_revision"
)

// EvidenceSubmission is a family-submitted artifact supporting a claim.
// Resubmissions form a chain through PreviousSubmissionID and share the
// RootSubmissionID of the first attempt.
type EvidenceSubmission struct {
	ID                   string         `db:"id" json:"id"`
	StudentID            string         `db:"student_id" json:"student_id"`
	ChallengeID          *string        `db:"challenge_id" json:"challenge_id,omitempty"`
	SubmissionType       SubmissionType `db:"submission_type" json:"submission_type"`
	Title                string         `db:"title" json:"title"`
	TextContent          string         `db:"text_content" json:"text_content"`
	MediaURLs            pq.StringArray `db:"media_urls" json:"media_urls"`
	Status               EvidenceStatus `db:"status" json:"status"`
	AwardedPoints        *int           `db:"awarded_points" json:"awarded_points,omitempty"`
	PreviousSubmissionID *string        `db:"previous_submission_id" json:"previous_submission_id,omitempty"`
	ReviewedBy           *string        `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time     `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	RootSubmissionID     string         `db:"root_submission_id" json:"root_submission_id"`
}

// ChainRoot returns the id of the first submission of the revision chain.
func (e EvidenceSubmission) ChainRoot() string {
	if e.RootSubmissionID != "" {
		return e.RootSubmissionID
	}
	return e.ID
}

// IsGritBit reports whether the submission has no linked challenge.
func (e EvidenceSubmission) IsGritBit() bool {
	return e.ChallengeID == nil
}

// DedupeKey groups submissions that compete for the same review slot.
func (e EvidenceSubmission) DedupeKey() string {
	if e.ChallengeID == nil {
		return "grit:" + e.ID
	}
	return e.StudentID + ":" + *e.ChallengeID
}

// PendingEvidence is a pending row joined with student and challenge context.
type PendingEvidence struct {
	EvidenceSubmission
	StudentName     string  `db:"student_name" json:"student_name"`
	YearLevel       int     `db:"year_level" json:"year_level"`
	ChallengeTitle  *string `db:"challenge_title" json:"challenge_title,omitempty"`
	ChallengePoints *int    `db:"challenge_points" json:"challenge_points,omitempty"`
}

// PendingFilter narrows the leader review queue.
type PendingFilter struct {
	StudentID string
	Type      SubmissionType
	YearLevel *int
}
