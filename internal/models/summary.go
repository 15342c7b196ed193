package models

// TraitBadge tracks completion of every assigned challenge sharing a trait.
type TraitBadge struct {
	Trait     string `json:"trait"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Earned    bool   `json:"earned"`
}

// ProgressSummary is the derived view a family sees for one student.
type ProgressSummary struct {
	StudentID          string       `json:"student_id"`
	CompletedCount     int          `json:"completed_count"`
	InProgressCount    int          `json:"in_progress_count"`
	NeedsRevisionCount int          `json:"needs_revision_count"`
	TotalAssigned      int          `json:"total_assigned"`
	GritPoints         int          `json:"grit_points"`
	ProgressPercentage int          `json:"progress_percentage"`
	AwardTier          AwardTier    `json:"award_tier"`
	Badges             []TraitBadge `json:"badges"`
}
