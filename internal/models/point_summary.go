package models

// PointSummary aggregates a user's SWTD points for one term by
// validation outcome, alongside the applicable quota. ExcessPoints and
// LackingPoints are derived from current-term valid points only and are
// mutually exclusive: at least one is always zero.
type PointSummary struct {
	ValidPoints    float64 `json:"valid_points"`
	PendingPoints  float64 `json:"pending_points"`
	InvalidPoints  float64 `json:"invalid_points"`
	RequiredPoints float64 `json:"required_points"`
	ExcessPoints   float64 `json:"excess_points"`
	LackingPoints  float64 `json:"lacking_points"`
}

// NewPointSummary derives the excess/lacking pair from totals and quota.
func NewPointSummary(totals PointTotals, required float64) PointSummary {
	summary := PointSummary{
		ValidPoints:    totals.ValidPoints,
		PendingPoints:  totals.PendingPoints,
		InvalidPoints:  totals.InvalidPoints,
		RequiredPoints: required,
	}
	if diff := summary.ValidPoints - required; diff > 0 {
		summary.ExcessPoints = diff
	} else {
		summary.LackingPoints = -diff
	}
	return summary
}
