package database

import (
	"database/sql"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/listing"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/domain/user"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedResult summarizes what SeedDevelopment created.
type SeedResult struct {
	Users         []user.User
	Listings      []listing.Listing
	Conversations []conversation.Conversation
	Messages      []message.Message
}

// SeedDevelopment loads a small fixture set for local work: a landlord
// with two listings, two tenants and one conversation with a short
// exchange. Idempotent; reruns upsert by primary key.
func SeedDevelopment(db *gorm.DB) (*SeedResult, error) {
	now := time.Now()

	landlord := user.User{
		ID:         uuid.MustParse("6f9619ff-8b86-d011-b42d-00cf4fc964ff"),
		FullName:   sql.NullString{String: "Marta Kowalska", Valid: true},
		Role:       "landlord",
		IsVerified: true,
		CreatedAt:  now,
	}
	tenantA := user.User{
		ID:        uuid.MustParse("16fd2706-8baf-433b-82eb-8c7fada847da"),
		FullName:  sql.NullString{String: "Jan Nowak", Valid: true},
		Role:      "tenant",
		CreatedAt: now,
	}
	tenantB := user.User{
		ID:        uuid.MustParse("91c95d48-0b9a-4a66-9b59-4b3c2b7c6d1e"),
		FullName:  sql.NullString{String: "Ola Wozniak", Valid: true},
		Role:      "tenant",
		CreatedAt: now,
	}

	flat := listing.Listing{
		ID:             uuid.MustParse("a1b2c3d4-0001-4000-8000-000000000001"),
		OwnerID:        landlord.ID,
		Title:          "2-room flat near the old town",
		Price:          2800,
		City:           sql.NullString{String: "Krakow", Valid: true},
		VerifiedStatus: "verified",
		CreatedAt:      now,
	}
	studio := listing.Listing{
		ID:             uuid.MustParse("a1b2c3d4-0002-4000-8000-000000000002"),
		OwnerID:        landlord.ID,
		Title:          "Studio with balcony",
		Price:          1900,
		City:           sql.NullString{String: "Krakow", Valid: true},
		VerifiedStatus: "pending",
		CreatedAt:      now,
	}

	conv := conversation.Conversation{
		ID:         uuid.MustParse("c0a80001-0000-4000-8000-000000000001"),
		ListingID:  flat.ID,
		TenantID:   tenantA.ID,
		LandlordID: landlord.ID,
		Status:     conversation.StatusActive,
		CreatedAt:  now.Add(-2 * time.Hour),
		UpdatedAt:  now.Add(-time.Hour),
	}

	msgs := []message.Message{
		{
			ID:             uuid.MustParse("d0a80001-0000-4000-8000-000000000001"),
			ConversationID: conv.ID,
			SenderID:       tenantA.ID,
			Content:        "Hi, is the flat still available from October?",
			CreatedAt:      now.Add(-2 * time.Hour),
		},
		{
			ID:             uuid.MustParse("d0a80001-0000-4000-8000-000000000002"),
			ConversationID: conv.ID,
			SenderID:       landlord.ID,
			Content:        "Yes, it is. Would you like to arrange a viewing?",
			CreatedAt:      now.Add(-time.Hour),
		},
	}

	result := &SeedResult{
		Users:         []user.User{landlord, tenantA, tenantB},
		Listings:      []listing.Listing{flat, studio},
		Conversations: []conversation.Conversation{conv},
		Messages:      msgs,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		upsert := clause.OnConflict{UpdateAll: true}
		if err := tx.Clauses(upsert).Create(&result.Users).Error; err != nil {
			return err
		}
		if err := tx.Clauses(upsert).Create(&result.Listings).Error; err != nil {
			return err
		}
		if err := tx.Clauses(upsert).Create(&result.Conversations).Error; err != nil {
			return err
		}
		return tx.Clauses(upsert).Create(&result.Messages).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
