package models

import "time"

// Pathway classifies who delivers or supervises a challenge.
type Pathway string

const (
	PathwaySpecialistLed  Pathway = "SPECIALIST_LED"
	PathwaySchoolLed      Pathway = "SCHOOL_LED"
	PathwayIndependentLed Pathway = "INDEPENDENT_LED"
)

// Valid reports whether the pathway is known.
func (p Pathway) Valid() bool {
	switch p {
	case PathwaySpecialistLed, PathwaySchoolLed, PathwayIndependentLed:
		return true
	}
	return false
}

// Challenge is catalog reference data. A nil SchoolID makes the challenge
// available to every school.
type Challenge struct {
	ID          string    `db:"id" json:"id"`
	SchoolID    *string   `db:"school_id" json:"school_id,omitempty"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Trait       string    `db:"trait" json:"trait"`
	Pathway     Pathway   `db:"pathway" json:"pathway"`
	Subcategory string    `db:"subcategory" json:"subcategory"`
	Points      int       `db:"points" json:"points"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AssignedTo reports whether the challenge counts toward a school's assigned set.
func (c Challenge) AssignedTo(schoolID string) bool {
	return c.Active && (c.SchoolID == nil || *c.SchoolID == schoolID)
}

// ChallengeFilter narrows catalog listings.
type ChallengeFilter struct {
	SchoolID string
	Pathway  Pathway
	Trait    string
}
