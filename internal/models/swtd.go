package models

import "time"

// ValidationStatus is the review outcome of an SWTD record.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "PENDING"
	ValidationApproved ValidationStatus = "APPROVED"
	ValidationRejected ValidationStatus = "REJECTED"
)

// Valid reports whether the status is one of the known outcomes.
func (s ValidationStatus) Valid() bool {
	switch s {
	case ValidationPending, ValidationApproved, ValidationRejected:
		return true
	}
	return false
}

// SWTDRecord is a single seminar, workshop, training or development
// event submitted by an employee for point credit. A record counts
// toward a term's summary iff it is not deleted, authored by the user,
// and dated within the term window.
type SWTDRecord struct {
	ID               string           `db:"id" json:"id"`
	AuthorID         string           `db:"author_id" json:"author_id"`
	TermID           string           `db:"term_id" json:"term_id"`
	Title            string           `db:"title" json:"title"`
	Venue            string           `db:"venue" json:"venue"`
	Category         string           `db:"category" json:"category"`
	Role             string           `db:"role" json:"role"`
	Points           float64          `db:"points" json:"points"`
	Benefits         string           `db:"benefits" json:"benefits"`
	StartDate        time.Time        `db:"start_date" json:"start_date"`
	EndDate          time.Time        `db:"end_date" json:"end_date"`
	ValidationStatus ValidationStatus `db:"validation_status" json:"validation_status"`
	ValidatorID      *string          `db:"validator_id" json:"validator_id,omitempty"`
	ValidatedAt      *time.Time       `db:"validated_at" json:"validated_at,omitempty"`
	IsDeleted        bool             `db:"is_deleted" json:"is_deleted"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// SWTDFilter defines filters for listing SWTD records.
type SWTDFilter struct {
	AuthorID  string
	TermID    string
	Status    ValidationStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// PointTotals holds per-status point sums for one author and window.
type PointTotals struct {
	ValidPoints   float64 `db:"valid_points"`
	PendingPoints float64 `db:"pending_points"`
	InvalidPoints float64 `db:"invalid_points"`
}
