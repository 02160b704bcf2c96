package models

import "time"

// TermType distinguishes regular semesters from the midyear/summer term,
// which carries its own reduced quota.
type TermType string

const (
	TermTypeRegular TermType = "REGULAR"
	TermTypeMidyear TermType = "MIDYEAR"
)

// Term models an administrative period employees earn points within.
type Term struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Type      TermType  `db:"type" json:"type"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
	IsDeleted bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsOngoing reports whether the term covers the given instant.
func (t *Term) IsOngoing(now time.Time) bool {
	return !now.Before(t.StartDate) && !now.After(t.EndDate)
}

// TermFilter defines filters supported by term list endpoints.
type TermFilter struct {
	Type      TermType
	Ongoing   *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
