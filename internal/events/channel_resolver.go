package events

import (
	"fmt"

	"github.com/google/uuid"
)

// Channel name prefixes. Conversation channels carry the per-thread feed
// (messages, status changes, typing, presence); user channels carry
// directory-level notifications so dashboards reorder without a thread
// subscription.
const (
	ChannelPrefixConversation = "channel:conversation:"
	ChannelPrefixUser         = "channel:user:"
)

func ConversationChannel(conversationID uuid.UUID) string {
	return fmt.Sprintf("%s%s", ChannelPrefixConversation, conversationID)
}

func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("%s%s", ChannelPrefixUser, userID)
}
