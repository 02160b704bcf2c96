package models

import "time"

// Department groups employees under a shared point quota. RequiredPoints
// applies to regular terms, MidyearPoints to midyear/summer terms.
type Department struct {
	ID             string    `db:"id" json:"id"`
	Code           string    `db:"code" json:"code"`
	Name           string    `db:"name" json:"name"`
	HeadID         *string   `db:"head_id" json:"head_id,omitempty"`
	RequiredPoints float64   `db:"required_points" json:"required_points"`
	MidyearPoints  float64   `db:"midyear_points" json:"midyear_points"`
	IsDeleted      bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// QuotaFor resolves the applicable quota for a term type.
func (d *Department) QuotaFor(termType TermType) float64 {
	if termType == TermTypeMidyear {
		return d.MidyearPoints
	}
	return d.RequiredPoints
}
