package session

import (
	"encoding/json"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/events"

	"github.com/google/uuid"
)

// onFeedEvent handles durable change notifications from the channel.
// Events carry the epoch of the subscription that produced them; a
// stale epoch means the user has moved on and the event is dropped.
func (s *Session) onFeedEvent(epoch uint64, env events.Envelope) {
	switch env.EventType {
	case events.EventTypeMessageCreated:
		var msg message.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			s.logger.Warnf("decode %s payload: %v", env.EventType, err)
			return
		}
		s.onFeedMessage(epoch, msg)
	case events.EventTypeConversationCreated, events.EventTypeConversationUpdated:
		var conv conversation.Conversation
		if err := json.Unmarshal(env.Payload, &conv); err != nil {
			s.logger.Warnf("decode %s payload: %v", env.EventType, err)
			return
		}
		s.onFeedConversation(epoch, conv)
	}
}

// onFeedMessage merges one change-feed row into the thread view.
// Suppression order matters: a durable id already present is a replay
// and dropped; a matching client id means this row is the echo of our
// own optimistic entry and replaces it in place; anything else is a new
// remote message appended at the tail.
func (s *Session) onFeedMessage(epoch uint64, msg message.Message) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateLive || msg.ConversationID != s.conversationID {
		s.mu.Unlock()
		return
	}

	durableID := msg.ID.String()
	changed := false
	if !s.hasEntryLocked(durableID) {
		if idx, ok := s.findPendingLocked(msg.ClientMessageID.String); msg.ClientMessageID.Valid && ok {
			s.entries[idx] = entryFromMessage(msg)
		} else {
			s.entries = append(s.entries, entryFromMessage(msg))
		}
		changed = true
	}

	id := s.conversationID
	var entries []Entry
	if changed {
		entries = make([]Entry, len(s.entries))
		copy(entries, s.entries)
	}
	s.mu.Unlock()

	if changed {
		s.listener.OnMessagesChanged(id, entries, false)
	}
}

// onFeedConversation picks up remote finish and visibility changes so
// an open thread reacts without a manual refresh.
func (s *Session) onFeedConversation(epoch uint64, conv conversation.Conversation) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateLive || conv.ID != s.conversationID {
		s.mu.Unlock()
		return
	}
	s.conv = conv
	s.mu.Unlock()
	s.listener.OnConversationUpdated(conv)
}

func (s *Session) onPresence(epoch uint64, userIDs []string) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateLive {
		s.mu.Unlock()
		return
	}
	id := s.conversationID
	s.mu.Unlock()
	s.listener.OnPresence(id, userIDs)
}

// onTyping relays the other party's typing signal, suppressing the echo
// of our own broadcast and arming the receiver-side auto-clear.
func (s *Session) onTyping(epoch uint64, senderID string, typing bool) {
	if senderID == s.userID.String() {
		return
	}

	s.mu.Lock()
	if s.epoch != epoch || s.state != StateLive {
		s.mu.Unlock()
		return
	}
	id := s.conversationID
	if t, ok := s.typingTimers[senderID]; ok {
		t.Stop()
		delete(s.typingTimers, senderID)
	}
	if typing {
		s.typingTimers[senderID] = time.AfterFunc(s.typingTTL, func() {
			s.expireTyping(epoch, senderID)
		})
	}
	s.mu.Unlock()

	s.listener.OnTyping(id, senderID, typing)
}

func (s *Session) expireTyping(epoch uint64, senderID string) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateLive {
		s.mu.Unlock()
		return
	}
	delete(s.typingTimers, senderID)
	id := s.conversationID
	s.mu.Unlock()
	s.listener.OnTyping(id, senderID, false)
}

// reconcile swaps the optimistic entry for the durable record after a
// successful append. The feed echo may have landed first; in that case
// the durable id is already present and the swap is a no-op.
func (s *Session) reconcile(epoch uint64, conversationID uuid.UUID, tempID string, msg message.Message) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateLive {
		s.mu.Unlock()
		return
	}

	changed := false
	if idx, ok := s.findPendingLocked(tempID); ok {
		if s.hasEntryLocked(msg.ID.String()) {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		} else {
			s.entries[idx] = entryFromMessage(msg)
		}
		changed = true
	}

	var entries []Entry
	if changed {
		entries = make([]Entry, len(s.entries))
		copy(entries, s.entries)
	}
	s.mu.Unlock()

	if changed {
		s.listener.OnMessagesChanged(conversationID, entries, false)
	}
}

// rollbackOptimistic removes a failed send's entry and surfaces the
// failure. No silent masking and no automatic retry.
func (s *Session) rollbackOptimistic(epoch uint64, conversationID uuid.UUID, tempID string, cause error) {
	s.mu.Lock()
	changed := false
	if s.epoch == epoch && s.state == StateLive {
		if idx, ok := s.findPendingLocked(tempID); ok {
			s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
			changed = true
		}
	}
	var entries []Entry
	if changed {
		entries = make([]Entry, len(s.entries))
		copy(entries, s.entries)
	}
	s.mu.Unlock()

	if changed {
		s.listener.OnMessagesChanged(conversationID, entries, false)
	}
	s.listener.OnSendFailed(conversationID, tempID, cause)
}

func (s *Session) hasEntryLocked(id string) bool {
	for _, e := range s.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) findPendingLocked(tempID string) (int, bool) {
	if tempID == "" {
		return 0, false
	}
	for i, e := range s.entries {
		if e.Pending && e.ID == tempID {
			return i, true
		}
	}
	return 0, false
}

func entryFromMessage(msg message.Message) Entry {
	return Entry{
		ID:        msg.ID.String(),
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}
