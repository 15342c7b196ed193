package models

import "time"

// ProgressStatus is the lifecycle state of a student on one challenge.
type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressSubmitted  ProgressStatus = "submitted"
	ProgressApproved   ProgressStatus = "approved"
)

// ProgressRecord is unique per (student, challenge).
type ProgressRecord struct {
	ID            string         `db:"id" json:"id"`
	StudentID     string         `db:"student_id" json:"student_id"`
	ChallengeID   string         `db:"challenge_id" json:"challenge_id"`
	Status        ProgressStatus `db:"status" json:"status"`
	NeedsRevision bool           `db:"needs_revision" json:"needs_revision"`
	StartedAt     *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}
