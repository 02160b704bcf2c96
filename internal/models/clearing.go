package models

import "time"

// Clearing certifies that a user met their department's point quota for
// a term. AppliedPoints records the shortfall drawn from the user's
// point balance at grant time; it is the only information needed to
// reverse that specific grant later. Clearings are only ever
// soft-deleted, and at most one non-deleted row exists per (user, term).
type Clearing struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	TermID        string    `db:"term_id" json:"term_id"`
	ClearerID     string    `db:"clearer_id" json:"clearer_id"`
	AppliedPoints float64   `db:"applied_points" json:"applied_points"`
	IsDeleted     bool      `db:"is_deleted" json:"is_deleted"`
	DateCreated   time.Time `db:"date_created" json:"date_created"`
	DateModified  time.Time `db:"date_modified" json:"date_modified"`
}

// TermSummary is the per-user term status surfaced to callers.
type TermSummary struct {
	IsCleared bool         `json:"is_cleared"`
	Points    PointSummary `json:"points"`
}
