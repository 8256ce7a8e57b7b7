package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User represents the users table (marketplace profile data).
// Authentication lives outside this service; rows here mirror the
// identity provider and carry display fields only.
type User struct {
	ID         uuid.UUID
	FullName   sql.NullString
	Role       string // admin, landlord, tenant, user
	IsVerified bool
	Whatsapp   sql.NullString
	CreatedAt  time.Time
}

func (User) TableName() string {
	return "users"
}

// DisplayName returns the full name or a neutral fallback.
func (u User) DisplayName() string {
	if u.FullName.Valid && u.FullName.String != "" {
		return u.FullName.String
	}
	return "Guest"
}
