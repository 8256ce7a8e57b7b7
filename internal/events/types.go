package events

// Event type constants, format: domain.action

// Durable change-feed events
const (
	EventTypeMessageCreated      = "message.created"
	EventTypeConversationCreated = "conversation.created"
	EventTypeConversationUpdated = "conversation.updated"
)

// Ephemeral events (never persisted)
const (
	EventTypeTyping         = "typing"
	EventTypePresenceJoined = "presence.joined"
	EventTypePresenceLeft   = "presence.left"
)

// Aggregate types carried in envelopes
const (
	AggregateConversation = "conversation"
	AggregateMessage      = "message"
	AggregatePresence     = "presence"
)

// TypingPayload is the broadcast body for typing signals.
type TypingPayload struct {
	SenderID string `json:"sender_id"`
	Typing   bool   `json:"typing"`
}

// PresencePayload announces a participant joining or leaving a
// conversation channel.
type PresencePayload struct {
	UserID   string `json:"user_id"`
	OnlineAt string `json:"online_at"`
}
