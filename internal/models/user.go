package models

import "time"

// AccessLevel is the ordered authorization level of a user.
// Department heads sit between regular employees and HR staff.
type AccessLevel string

const (
	AccessNone      AccessLevel = "NONE"
	AccessHead      AccessLevel = "HEAD"
	AccessStaff     AccessLevel = "STAFF"
	AccessSuperuser AccessLevel = "SUPERUSER"
)

// Rank maps access levels onto their ordering. Unknown levels rank lowest.
func (l AccessLevel) Rank() int {
	switch l {
	case AccessHead:
		return 1
	case AccessStaff:
		return 2
	case AccessSuperuser:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether the level meets the given minimum.
func (l AccessLevel) AtLeast(minimum AccessLevel) bool {
	return l.Rank() >= minimum.Rank()
}

// User represents an employee stored in the users table. PointBalance is
// the carry-over point ledger shared across all of the user's terms; it
// is written only by clearance grant/revoke transactions.
type User struct {
	ID           string      `db:"id" json:"id"`
	EmployeeID   string      `db:"employee_id" json:"employee_id"`
	Email        string      `db:"email" json:"email"`
	PasswordHash string      `db:"password_hash" json:"-"`
	FirstName    string      `db:"first_name" json:"first_name"`
	LastName     string      `db:"last_name" json:"last_name"`
	DepartmentID *string     `db:"department_id" json:"department_id,omitempty"`
	AccessLevel  AccessLevel `db:"access_level" json:"access_level"`
	PointBalance float64     `db:"point_balance" json:"point_balance"`
	IsDeleted    bool        `db:"is_deleted" json:"is_deleted"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name used in notifications and mail.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	DepartmentID string
	AccessLevel  *AccessLevel
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
