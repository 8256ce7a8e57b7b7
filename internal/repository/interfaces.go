package repository

import (
	"context"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/lead"
	"habita-chat/internal/domain/listing"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/domain/user"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	GetByListingAndTenant(ctx context.Context, listingID, tenantID uuid.UUID) (conversation.Conversation, error)
	// ListForUser returns every conversation userID is a party to, newest
	// activity first, excluding rows the caller has soft-deleted.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error)
	// SetDeletedFlag flips one party's visibility flag and bumps updated_at.
	SetDeletedFlag(ctx context.Context, id uuid.UUID, role conversation.Role, hidden bool) error
	// MarkFinished transitions active->finished. Returns ErrNotFound when
	// the row does not exist and reports alreadyFinished when the row was
	// finished before the call (the transition is monotonic).
	MarkFinished(ctx context.Context, id uuid.UUID) (alreadyFinished bool, err error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	GetByClientMessageID(ctx context.Context, clientMessageID string) (message.Message, error)
	// ListByConversation returns the full log in created_at ascending order.
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]message.Message, error)
	GetLatest(ctx context.Context, conversationID uuid.UUID) (message.Message, error)
}

type LeadRepository interface {
	Create(ctx context.Context, l *lead.Lead) error
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]lead.Lead, error)
}

type ListingRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (listing.Listing, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
}
