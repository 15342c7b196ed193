package models

import "time"

// Student represents a learner enrolled in the character challenge program.
type Student struct {
	ID            string    `db:"id" json:"id"`
	SchoolID      string    `db:"school_id" json:"school_id"`
	YearLevel     int       `db:"year_level" json:"year_level"`
	DisplayName   string    `db:"display_name" json:"display_name"`
	AvatarURL     *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	AwardTier     AwardTier `db:"award_tier" json:"award_tier"`
	GritBitPoints int       `db:"grit_bit_points" json:"grit_bit_points"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter narrows school level student listings.
type StudentFilter struct {
	SchoolID  string
	YearLevel *int
}
