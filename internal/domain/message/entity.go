package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Message represents the messages table. Rows are append-only: no edits,
// no deletes, display order is created_at ascending.
//
// ClientMessageID is the sender-generated temporary id used for optimistic
// rendering. The store persists it and echoes it back on the change feed so
// clients reconcile by exact key instead of content heuristics. Uniqueness
// on the column makes retried sends idempotent.
type Message struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationID  uuid.UUID      `gorm:"type:uuid;index:idx_messages_conversation_created"`
	SenderID        uuid.UUID      `gorm:"type:uuid"`
	ClientMessageID sql.NullString `gorm:"uniqueIndex"`
	Content         string
	CreatedAt       time.Time `gorm:"index:idx_messages_conversation_created"`
}

func (Message) TableName() string {
	return "messages"
}
