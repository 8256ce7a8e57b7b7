package listing

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Listing represents the listings table. Only the columns the messaging
// core needs are mapped; listing CRUD and search are owned elsewhere.
type Listing struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	Title          string
	Price          int64
	City           sql.NullString
	VerifiedStatus string // none, pending, verified, archived
	CreatedAt      time.Time
}

func (Listing) TableName() string {
	return "listings"
}
