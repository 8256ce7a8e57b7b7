package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/lead"
	"habita-chat/internal/domain/listing"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/domain/user"
	habita_errors "habita-chat/pkg/errors"

	"github.com/google/uuid"
)

// memStore is a shared in-memory backend for the repository fakes.
type memStore struct {
	mu       sync.Mutex
	convs    map[uuid.UUID]conversation.Conversation
	msgs     []message.Message
	leads    []lead.Lead
	listings map[uuid.UUID]listing.Listing
	users    map[uuid.UUID]user.User

	failMessageCreate bool
	failConvCreate    bool
}

func newMemStore() *memStore {
	return &memStore{
		convs:    make(map[uuid.UUID]conversation.Conversation),
		listings: make(map[uuid.UUID]listing.Listing),
		users:    make(map[uuid.UUID]user.User),
	}
}

type memConversationRepo struct{ store *memStore }

func (r *memConversationRepo) Create(_ context.Context, c *conversation.Conversation) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failConvCreate {
		return fmt.Errorf("conversation insert failed")
	}
	for _, existing := range r.store.convs {
		if existing.ListingID == c.ListingID && existing.TenantID == c.TenantID {
			return habita_errors.ErrAlreadyExists
		}
	}
	r.store.convs[c.ID] = *c
	return nil
}

func (r *memConversationRepo) GetByID(_ context.Context, id uuid.UUID) (conversation.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.convs[id]
	if !ok {
		return conversation.Conversation{}, habita_errors.ErrNotFound
	}
	return c, nil
}

func (r *memConversationRepo) GetByListingAndTenant(_ context.Context, listingID, tenantID uuid.UUID) (conversation.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, c := range r.store.convs {
		if c.ListingID == listingID && c.TenantID == tenantID {
			return c, nil
		}
	}
	return conversation.Conversation{}, habita_errors.ErrNotFound
}

func (r *memConversationRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []conversation.Conversation
	for _, c := range r.store.convs {
		role, ok := c.RoleOf(userID)
		if !ok || c.HiddenFor(role) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memConversationRepo) SetDeletedFlag(_ context.Context, id uuid.UUID, role conversation.Role, hidden bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.convs[id]
	if !ok {
		return habita_errors.ErrNotFound
	}
	if role == conversation.RoleLandlord {
		c.DeletedByLandlord = hidden
	} else {
		c.DeletedByTenant = hidden
	}
	c.UpdatedAt = time.Now()
	r.store.convs[id] = c
	return nil
}

func (r *memConversationRepo) MarkFinished(_ context.Context, id uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.convs[id]
	if !ok {
		return false, habita_errors.ErrNotFound
	}
	if c.Status == conversation.StatusFinished {
		return true, nil
	}
	c.Status = conversation.StatusFinished
	c.UpdatedAt = time.Now()
	r.store.convs[id] = c
	return false, nil
}

func (r *memConversationRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	c, ok := r.store.convs[id]
	if !ok {
		return habita_errors.ErrNotFound
	}
	c.UpdatedAt = at
	r.store.convs[id] = c
	return nil
}

type memMessageRepo struct{ store *memStore }

func (r *memMessageRepo) Create(_ context.Context, m *message.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failMessageCreate {
		return fmt.Errorf("message insert failed")
	}
	if m.ClientMessageID.Valid {
		for _, existing := range r.store.msgs {
			if existing.ClientMessageID.Valid && existing.ClientMessageID.String == m.ClientMessageID.String {
				return habita_errors.ErrAlreadyExists
			}
		}
	}
	r.store.msgs = append(r.store.msgs, *m)
	return nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, m := range r.store.msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return message.Message{}, habita_errors.ErrNotFound
}

func (r *memMessageRepo) GetByClientMessageID(_ context.Context, clientMessageID string) (message.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, m := range r.store.msgs {
		if m.ClientMessageID.Valid && m.ClientMessageID.String == clientMessageID {
			return m, nil
		}
	}
	return message.Message{}, habita_errors.ErrNotFound
}

func (r *memMessageRepo) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]message.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []message.Message
	for _, m := range r.store.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memMessageRepo) GetLatest(_ context.Context, conversationID uuid.UUID) (message.Message, error) {
	msgs, _ := r.ListByConversation(context.Background(), conversationID)
	if len(msgs) == 0 {
		return message.Message{}, habita_errors.ErrNotFound
	}
	return msgs[len(msgs)-1], nil
}

type memLeadRepo struct{ store *memStore }

func (r *memLeadRepo) Create(_ context.Context, l *lead.Lead) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.leads = append(r.store.leads, *l)
	return nil
}

func (r *memLeadRepo) ListByListing(_ context.Context, listingID uuid.UUID) ([]lead.Lead, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []lead.Lead
	for _, l := range r.store.leads {
		if l.ListingID == listingID {
			out = append(out, l)
		}
	}
	return out, nil
}

type memListingRepo struct{ store *memStore }

func (r *memListingRepo) GetByID(_ context.Context, id uuid.UUID) (listing.Listing, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	l, ok := r.store.listings[id]
	if !ok {
		return listing.Listing{}, habita_errors.ErrNotFound
	}
	return l, nil
}

type memUserRepo struct{ store *memStore }

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (user.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[id]
	if !ok {
		return user.User{}, habita_errors.ErrNotFound
	}
	return u, nil
}

// capturePublisher records everything emitted on the bus.
type capturePublisher struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{payloads: make(map[string][][]byte)}
}

func (p *capturePublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads[channel] = append(p.payloads[channel], payload)
	return nil
}

func (p *capturePublisher) count(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads[channel])
}
