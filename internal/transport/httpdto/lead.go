package httpdto

import (
	"time"

	"habita-chat/internal/domain/lead"
)

type SubmitLeadRequest struct {
	ListingID string `json:"listing_id"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

type LeadResponse struct {
	ID             string    `json:"id"`
	ListingID      string    `json:"listing_id"`
	FromUserID     string    `json:"from_user_id,omitempty"`
	Name           string    `json:"name,omitempty"`
	Message        string    `json:"message"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type ListLeadsResponse struct {
	Leads []LeadResponse `json:"leads"`
	Total int            `json:"total"`
}

func FromLead(l lead.Lead, conversationID string) LeadResponse {
	resp := LeadResponse{
		ID:             l.ID.String(),
		ListingID:      l.ListingID.String(),
		Message:        l.Message,
		ConversationID: conversationID,
		CreatedAt:      l.CreatedAt,
	}
	if l.FromUserID.Valid {
		resp.FromUserID = l.FromUserID.UUID.String()
	}
	if l.Name.Valid {
		resp.Name = l.Name.String
	}
	return resp
}
