package ws

import (
	"encoding/json"
	"time"

	"habita-chat/internal/session"
	"habita-chat/internal/transport/httpdto"
)

// Command is one inbound frame from the connected client. Type selects
// the operation; the remaining fields apply per type.
type Command struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Typing         bool   `json:"typing,omitempty"`
}

const (
	CmdList     = "list"
	CmdSelect   = "select"
	CmdDeepLink = "deeplink"
	CmdSend     = "send"
	CmdTyping   = "typing"
	CmdHide     = "hide"
	CmdFinish   = "finish"
	CmdPing     = "ping"
)

// Frame is one outbound frame to the connected client.
type Frame struct {
	Type           string                         `json:"type"`
	ConversationID string                         `json:"conversation_id,omitempty"`
	Directory      []httpdto.ConversationResponse `json:"directory,omitempty"`
	Conversation   *httpdto.ConversationResponse  `json:"conversation,omitempty"`
	Entries        []EntryFrame                   `json:"entries,omitempty"`
	Initial        bool                           `json:"initial,omitempty"`
	UserIDs        []string                       `json:"user_ids,omitempty"`
	SenderID       string                         `json:"sender_id,omitempty"`
	Typing         bool                           `json:"typing,omitempty"`
	TempID         string                         `json:"temp_id,omitempty"`
	Error          string                         `json:"error,omitempty"`
	Code           string                         `json:"code,omitempty"`
	Event          json.RawMessage                `json:"event,omitempty"`
}

const (
	FrameDirectory      = "directory"
	FrameConversation   = "conversation"
	FrameMessages       = "messages"
	FramePresence       = "presence"
	FrameTyping         = "typing"
	FrameSendFailed     = "send_failed"
	FrameDirectoryEvent = "directory_event"
	FrameError          = "error"
	FramePong           = "pong"
)

// EntryFrame is one thread row as shipped to the client. Pending marks
// an optimistic entry still awaiting its durable echo.
type EntryFrame struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending,omitempty"`
}

func entryFrames(entries []session.Entry) []EntryFrame {
	out := make([]EntryFrame, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryFrame{
			ID:        e.ID,
			SenderID:  e.SenderID.String(),
			Content:   e.Content,
			CreatedAt: e.CreatedAt,
			Pending:   e.Pending,
		})
	}
	return out
}
