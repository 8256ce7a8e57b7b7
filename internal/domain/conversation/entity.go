package conversation

import (
	"time"

	"habita-chat/internal/domain/listing"
	"habita-chat/internal/domain/user"

	"github.com/google/uuid"
)

// Status is the conversation lifecycle state. The only transition is
// active -> finished, performed by the landlord; there is no reopen.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Role identifies which side of a conversation a user is on.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
)

// Conversation represents the conversations table: the unique thread
// between one tenant and one landlord about one listing. The composite
// unique index makes find-or-create race-safe.
type Conversation struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	ListingID         uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_conversations_listing_tenant"`
	TenantID          uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_conversations_listing_tenant"`
	LandlordID        uuid.UUID `gorm:"type:uuid;index"`
	Status            Status
	DeletedByTenant   bool
	DeletedByLandlord bool
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// Relationships
	Listing  *listing.Listing `gorm:"foreignKey:ListingID"`
	Tenant   *user.User       `gorm:"foreignKey:TenantID"`
	Landlord *user.User       `gorm:"foreignKey:LandlordID"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// RoleOf reports which side userID is on, or false if not a party.
func (c Conversation) RoleOf(userID uuid.UUID) (Role, bool) {
	switch userID {
	case c.TenantID:
		return RoleTenant, true
	case c.LandlordID:
		return RoleLandlord, true
	}
	return "", false
}

// OtherParty returns the opposite participant of userID.
func (c Conversation) OtherParty(userID uuid.UUID) uuid.UUID {
	if userID == c.TenantID {
		return c.LandlordID
	}
	return c.TenantID
}

// HiddenFor reports whether the given role has soft-deleted the thread.
func (c Conversation) HiddenFor(role Role) bool {
	if role == RoleLandlord {
		return c.DeletedByLandlord
	}
	return c.DeletedByTenant
}

// DeletedFlagColumn maps a role to its visibility column.
func DeletedFlagColumn(role Role) string {
	if role == RoleLandlord {
		return "deleted_by_landlord"
	}
	return "deleted_by_tenant"
}
