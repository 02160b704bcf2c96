package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Notification records a state change delivered to a target user. The
// payload is an opaque JSON document shaped by the triggering event.
// Rows are immutable except for the viewed flag.
type Notification struct {
	ID        string         `db:"id" json:"id"`
	ActorID   string         `db:"actor_id" json:"actor_id"`
	TargetID  string         `db:"target_id" json:"target_id"`
	Data      types.JSONText `db:"data" json:"data"`
	IsViewed  bool           `db:"is_viewed" json:"is_viewed"`
	IsDeleted bool           `db:"is_deleted" json:"is_deleted"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ValidationNotificationData is the payload for validation-status
// transitions on SWTD records.
type ValidationNotificationData struct {
	RecordID string           `json:"record_id"`
	Title    string           `json:"title"`
	Status   ValidationStatus `json:"status"`
}

// ClearanceNotificationData is the payload for clearance grants and
// revocations, carrying the term's descriptive data.
type ClearanceNotificationData struct {
	TermID    string    `json:"term_id"`
	TermName  string    `json:"term_name"`
	TermType  TermType  `json:"term_type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Revoked   bool      `json:"revoked,omitempty"`
}
