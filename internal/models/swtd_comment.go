package models

import "time"

// SWTDComment is a discussion entry on an SWTD record, typically a
// reviewer asking for clarification or the author responding. Edits
// flip IsEdited so readers know the message changed after posting.
type SWTDComment struct {
	ID        string    `db:"id" json:"id"`
	SWTDID    string    `db:"swtd_id" json:"swtd_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Message   string    `db:"message" json:"message"`
	IsEdited  bool      `db:"is_edited" json:"is_edited"`
	IsDeleted bool      `db:"is_deleted" json:"is_deleted"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
