package services

import (
	"context"
	"errors"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/events"
	"habita-chat/internal/proxy"
	"habita-chat/internal/repository"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
)

// ConversationService is the conversation directory: it finds or creates
// the unique thread between a tenant and a landlord for a listing, lists
// threads visible to a user and owns per-party visibility and the
// active->finished lifecycle.
type ConversationService struct {
	repo     repository.ConversationRepository
	listings repository.ListingRepository
	messages repository.MessageRepository
	access   *proxy.AccessControl
	bus      *events.Bus
	log      *logger.Logger
}

func NewConversationService(repo repository.ConversationRepository, listings repository.ListingRepository, messages repository.MessageRepository, access *proxy.AccessControl, bus *events.Bus, log *logger.Logger) *ConversationService {
	return &ConversationService{repo: repo, listings: listings, messages: messages, access: access, bus: bus, log: log}
}

// StartForListing finds or creates the caller's thread about a listing,
// resolving the landlord side from the listing's owner. Owners cannot
// open a thread with themselves.
func (s *ConversationService) StartForListing(ctx context.Context, listingID, tenantID uuid.UUID) (conversation.Conversation, error) {
	l, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if l.OwnerID == tenantID {
		return conversation.Conversation{}, habita_errors.ErrInvalidInput
	}
	return s.FindOrCreate(ctx, listingID, tenantID, l.OwnerID)
}

// ListForUser returns the caller's directory, newest activity first.
// Rows the caller has hidden are excluded at the query level.
func (s *ConversationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	return s.repo.ListForUser(ctx, userID)
}

// DirectoryEntry pairs a conversation with its newest message for
// directory rendering. LastMessage is nil for threads with no history.
type DirectoryEntry struct {
	Conversation conversation.Conversation
	LastMessage  *message.Message
}

// DirectoryForUser is ListForUser with a last-message preview per
// thread.
func (s *ConversationService) DirectoryForUser(ctx context.Context, userID uuid.UUID) ([]DirectoryEntry, error) {
	convs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries := make([]DirectoryEntry, 0, len(convs))
	for _, conv := range convs {
		entry := DirectoryEntry{Conversation: conv}
		last, err := s.messages.GetLatest(ctx, conv.ID)
		switch {
		case err == nil:
			entry.LastMessage = &last
		case !errors.Is(err, habita_errors.ErrNotFound):
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetByID returns the conversation if userID is a party to it.
func (s *ConversationService) GetByID(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error) {
	conv, _, err := s.access.RequireParty(ctx, conversationID, userID)
	return conv, err
}

// FindOrCreate resolves the unique conversation for (listing, tenant),
// inserting it when absent. The composite unique index closes the race
// between concurrent first contacts: the loser of the insert re-reads.
func (s *ConversationService) FindOrCreate(ctx context.Context, listingID, tenantID, landlordID uuid.UUID) (conversation.Conversation, error) {
	if listingID == uuid.Nil || tenantID == uuid.Nil || landlordID == uuid.Nil {
		return conversation.Conversation{}, habita_errors.ErrInvalidInput
	}
	if tenantID == landlordID {
		return conversation.Conversation{}, habita_errors.ErrInvalidInput
	}

	existing, err := s.repo.GetByListingAndTenant(ctx, listingID, tenantID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, habita_errors.ErrNotFound) {
		return conversation.Conversation{}, err
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:         uuid.New(),
		ListingID:  listingID,
		TenantID:   tenantID,
		LandlordID: landlordID,
		Status:     conversation.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, &conv); err != nil {
		if errors.Is(err, habita_errors.ErrAlreadyExists) {
			return s.repo.GetByListingAndTenant(ctx, listingID, tenantID)
		}
		return conversation.Conversation{}, err
	}

	s.emit(ctx, events.EventTypeConversationCreated, conv)
	return conv, nil
}

// SetVisibility flips the caller's own soft-delete flag. Each party may
// only touch its own flag, which keeps the two sides free of write-write
// conflicts on the row.
func (s *ConversationService) SetVisibility(ctx context.Context, conversationID, userID uuid.UUID, hidden bool) (conversation.Conversation, error) {
	_, role, err := s.access.RequireParty(ctx, conversationID, userID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if err := s.repo.SetDeletedFlag(ctx, conversationID, role, hidden); err != nil {
		return conversation.Conversation{}, err
	}
	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}

	// Visibility only affects the caller's own directory.
	s.emitTo(ctx, events.EventTypeConversationUpdated, conv, events.UserChannel(userID))
	return conv, nil
}

// Finish transitions the conversation to finished. Landlord only, and
// monotonic: repeated calls are a no-op, there is no reopen.
func (s *ConversationService) Finish(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error) {
	if _, err := s.access.RequireLandlord(ctx, conversationID, userID); err != nil {
		return conversation.Conversation{}, err
	}
	already, err := s.repo.MarkFinished(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if !already {
		s.emit(ctx, events.EventTypeConversationUpdated, conv)
	}
	return conv, nil
}

// Resolve returns the conversation id for (listing, tenant), used by
// reply-to-lead deep links. The caller must be one of the two parties.
func (s *ConversationService) Resolve(ctx context.Context, listingID, tenantID, callerID uuid.UUID) (uuid.UUID, error) {
	conv, err := s.repo.GetByListingAndTenant(ctx, listingID, tenantID)
	if err != nil {
		return uuid.Nil, err
	}
	if _, ok := conv.RoleOf(callerID); !ok {
		return uuid.Nil, habita_errors.ErrForbidden
	}
	return conv.ID, nil
}

// emit publishes to the conversation channel and both parties' user
// channels so open threads and directory listings both refresh.
func (s *ConversationService) emit(ctx context.Context, eventType string, conv conversation.Conversation) {
	s.emitTo(ctx, eventType, conv,
		events.ConversationChannel(conv.ID),
		events.UserChannel(conv.TenantID),
		events.UserChannel(conv.LandlordID),
	)
}

func (s *ConversationService) emitTo(ctx context.Context, eventType string, conv conversation.Conversation, channels ...string) {
	env, err := events.NewEnvelope(eventType, events.AggregateConversation, conv.ID.String(), conv)
	if err != nil {
		s.log.Errorf("build %s envelope: %v", eventType, err)
		return
	}
	s.bus.Emit(ctx, env, channels...)
}
