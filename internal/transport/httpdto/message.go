package httpdto

import (
	"time"

	"habita-chat/internal/domain/message"
)

type SendMessageRequest struct {
	Content     string `json:"content"`
	ClientMsgID string `json:"client_message_id"`
}

type MessageResponse struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	SenderID        string    `json:"sender_id"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
}

type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
}

func FromMessage(m message.Message) MessageResponse {
	resp := MessageResponse{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID.String(),
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
	if m.ClientMessageID.Valid {
		resp.ClientMessageID = m.ClientMessageID.String
	}
	return resp
}

func FromMessageSlice(items []message.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(items))
	for _, m := range items {
		out = append(out, FromMessage(m))
	}
	return out
}
