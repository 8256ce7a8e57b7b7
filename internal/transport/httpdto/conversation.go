package httpdto

import (
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/listing"
	"habita-chat/internal/domain/user"
)

type CreateConversationRequest struct {
	ListingID string `json:"listing_id"`
}

type SetVisibilityRequest struct {
	Hidden bool `json:"hidden"`
}

type ResolveConversationRequest struct {
	ListingID  string `json:"listing_id"`
	FromUserID string `json:"from_user_id"`
}

type ConversationResponse struct {
	ID                string           `json:"id"`
	ListingID         string           `json:"listing_id"`
	TenantID          string           `json:"tenant_id"`
	LandlordID        string           `json:"landlord_id"`
	Status            string           `json:"status"`
	DeletedByTenant   bool             `json:"deleted_by_tenant"`
	DeletedByLandlord bool             `json:"deleted_by_landlord"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
	Listing           *ListingSummary  `json:"listing,omitempty"`
	Tenant            *UserSummary     `json:"tenant,omitempty"`
	Landlord          *UserSummary     `json:"landlord,omitempty"`
	LastMessage       *MessageResponse `json:"last_message,omitempty"`
}

type ListingSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Price int64  `json:"price"`
	City  string `json:"city,omitempty"`
}

type UserSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsVerified bool   `json:"is_verified"`
}

type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Total         int                    `json:"total"`
}

func FromConversation(c conversation.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                c.ID.String(),
		ListingID:         c.ListingID.String(),
		TenantID:          c.TenantID.String(),
		LandlordID:        c.LandlordID.String(),
		Status:            string(c.Status),
		DeletedByTenant:   c.DeletedByTenant,
		DeletedByLandlord: c.DeletedByLandlord,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		Listing:           fromListing(c.Listing),
		Tenant:            fromUser(c.Tenant),
		Landlord:          fromUser(c.Landlord),
	}
}

func FromConversationSlice(items []conversation.Conversation) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(items))
	for _, c := range items {
		out = append(out, FromConversation(c))
	}
	return out
}

func fromListing(l *listing.Listing) *ListingSummary {
	if l == nil {
		return nil
	}
	summary := &ListingSummary{
		ID:    l.ID.String(),
		Title: l.Title,
		Price: l.Price,
	}
	if l.City.Valid {
		summary.City = l.City.String
	}
	return summary
}

func fromUser(u *user.User) *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:         u.ID.String(),
		Name:       u.DisplayName(),
		IsVerified: u.IsVerified,
	}
}
