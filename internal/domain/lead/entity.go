package lead

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Lead represents the leads table: a one-shot contact-form submission
// about a listing. Leads exist independently of conversations and are
// written even when the sender is anonymous.
type Lead struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey"`
	ListingID  uuid.UUID     `gorm:"type:uuid;index"`
	FromUserID uuid.NullUUID `gorm:"type:uuid"`
	Name       sql.NullString
	Message    string
	CreatedAt  time.Time
}

func (Lead) TableName() string {
	return "leads"
}
