package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/events"
	"habita-chat/internal/realtime"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
)

// State is the session lifecycle around the currently selected
// conversation: Idle -> Loading -> Live -> Closed. Loading covers the
// history fetch and channel handshake; Live means the thread is on
// screen and the feed is (or tried to be) attached.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLive
	StateClosed
)

// TempIDPrefix marks an optimistic, not-yet-durable entry id. The same
// value travels to the store as the message's client id and comes back
// on the change feed, so reconciliation matches by exact key.
const TempIDPrefix = "temp-"

// defaultTypingTTL is how long a typing signal stays alive without
// renewal before receivers treat it as stopped.
const defaultTypingTTL = 3 * time.Second

// Entry is one row of the in-memory thread view. While Pending the ID
// is the temporary client id; after reconciliation it is the durable
// message id.
type Entry struct {
	ID        string
	SenderID  uuid.UUID
	Content   string
	CreatedAt time.Time
	Pending   bool
}

// Listener receives the session's outbound callbacks. Implementations
// push them down the client connection; callbacks may arrive from the
// feed goroutine and from the caller's goroutine, never concurrently
// with each other for the same session.
type Listener interface {
	OnMessagesChanged(conversationID uuid.UUID, entries []Entry, initial bool)
	OnConversationUpdated(conv conversation.Conversation)
	OnPresence(conversationID uuid.UUID, userIDs []string)
	OnTyping(conversationID uuid.UUID, senderID string, typing bool)
	OnSendFailed(conversationID uuid.UUID, tempID string, cause error)
}

// Directory is the conversation surface the session needs.
type Directory interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error)
	GetByID(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error)
	SetVisibility(ctx context.Context, conversationID, userID uuid.UUID, hidden bool) (conversation.Conversation, error)
	Finish(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error)
}

// Log is the message history surface the session needs.
type Log interface {
	ListMessages(ctx context.Context, conversationID, userID uuid.UUID) ([]message.Message, error)
	Append(ctx context.Context, conversationID, senderID uuid.UUID, content, clientMessageID string) (message.Message, error)
}

// Channel is one realtime subscription handle.
type Channel interface {
	Subscribe(ctx context.Context, h realtime.Handlers) error
	Broadcast(ctx context.Context, typing bool) error
	Close()
}

// ChannelOpener mints a channel handle for a conversation.
type ChannelOpener func(conversationID, userID uuid.UUID) Channel

// Session binds one authenticated user to the directory, the log and at
// most one live channel subscription at a time.
type Session struct {
	userID    uuid.UUID
	directory Directory
	log       Log
	open      ChannelOpener
	listener  Listener
	logger    *logger.Logger
	typingTTL time.Duration

	mu             sync.Mutex
	state          State
	epoch          uint64
	conversationID uuid.UUID
	conv           conversation.Conversation
	channel        Channel
	degraded       bool
	entries        []Entry

	// Receiver-side typing timers, keyed by sender id.
	typingTimers map[string]*time.Timer
	// Sender-side auto-clear for our own typing broadcast.
	localTyping *time.Timer
}

// Option tweaks session construction.
type Option func(*Session)

// WithTypingTTL overrides the typing auto-clear window.
func WithTypingTTL(ttl time.Duration) Option {
	return func(s *Session) { s.typingTTL = ttl }
}

func New(userID uuid.UUID, directory Directory, log Log, open ChannelOpener, listener Listener, lg *logger.Logger, opts ...Option) *Session {
	s := &Session{
		userID:       userID,
		directory:    directory,
		log:          log,
		open:         open,
		listener:     listener,
		logger:       lg,
		typingTTL:    defaultTypingTTL,
		state:        StateIdle,
		typingTimers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether the current selection runs without a live
// feed after a failed channel handshake.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Entries returns a copy of the current in-memory thread view.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// List returns the caller's directory listing.
func (s *Session) List(ctx context.Context) ([]conversation.Conversation, error) {
	return s.directory.ListForUser(ctx, s.userID)
}

// Select switches the session to a conversation, tearing down the
// previous subscription first. A nil id deselects back to Idle.
func (s *Session) Select(ctx context.Context, conversationID *uuid.UUID) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return habita_errors.ErrInvalidTransition
	}
	s.teardownLocked()
	if conversationID == nil {
		s.state = StateIdle
		s.mu.Unlock()
		return nil
	}
	s.epoch++
	epoch := s.epoch
	s.state = StateLoading
	s.conversationID = *conversationID
	s.mu.Unlock()

	conv, err := s.directory.GetByID(ctx, *conversationID, s.userID)
	if err != nil {
		s.abortSelect(epoch)
		return err
	}
	history, err := s.log.ListMessages(ctx, *conversationID, s.userID)
	if err != nil {
		s.abortSelect(epoch)
		return err
	}

	ch := s.open(*conversationID, s.userID)
	subErr := ch.Subscribe(ctx, realtime.Handlers{
		OnEvent:    func(env events.Envelope) { s.onFeedEvent(epoch, env) },
		OnPresence: func(userIDs []string) { s.onPresence(epoch, userIDs) },
		OnTyping:   func(senderID string, typing bool) { s.onTyping(epoch, senderID, typing) },
	})

	s.mu.Lock()
	if s.epoch != epoch || s.state != StateLoading {
		// A newer selection superseded this one while loading.
		s.mu.Unlock()
		ch.Close()
		return nil
	}
	s.conv = conv
	s.entries = entriesFromHistory(history)
	if subErr != nil {
		// Degraded mode: reads and sends still work, updates arrive
		// only on explicit refresh.
		s.logger.Warnf("channel subscribe for %s: %v", conversationID.String(), subErr)
		s.degraded = true
		ch.Close()
	} else {
		s.channel = ch
	}
	s.state = StateLive
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	s.listener.OnConversationUpdated(conv)
	s.listener.OnMessagesChanged(*conversationID, entries, true)
	return nil
}

// DeepLink selects a conversation reached from outside the directory
// listing, un-hiding it for the caller first if they had hidden it.
func (s *Session) DeepLink(ctx context.Context, conversationID uuid.UUID) error {
	conv, err := s.directory.GetByID(ctx, conversationID, s.userID)
	if err != nil {
		return err
	}
	role, ok := conv.RoleOf(s.userID)
	if ok && conv.HiddenFor(role) {
		if _, err := s.directory.SetVisibility(ctx, conversationID, s.userID, false); err != nil {
			return err
		}
	}
	return s.Select(ctx, &conversationID)
}

// Hide soft-deletes the selected conversation for the caller only and
// returns the session to Idle; the thread comes back on its own if the
// other party writes into it.
func (s *Session) Hide(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLive {
		s.mu.Unlock()
		return habita_errors.ErrInvalidTransition
	}
	id := s.conversationID
	s.mu.Unlock()

	conv, err := s.directory.SetVisibility(ctx, id, s.userID, true)
	if err != nil {
		return err
	}
	// Local-first: reflect immediately, then drop the selection. The
	// eventual feed echo lands after teardown and is ignored.
	s.listener.OnConversationUpdated(conv)
	return s.Select(ctx, nil)
}

// Finish closes the selected conversation for good. Landlord only;
// enforced by the directory, reflected locally without waiting for the
// feed echo.
func (s *Session) Finish(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLive {
		s.mu.Unlock()
		return habita_errors.ErrInvalidTransition
	}
	id := s.conversationID
	epoch := s.epoch
	s.mu.Unlock()

	conv, err := s.directory.Finish(ctx, id, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.epoch == epoch && s.state == StateLive {
		s.conv = conv
	}
	s.mu.Unlock()
	s.listener.OnConversationUpdated(conv)
	return nil
}

// Send validates, renders optimistically and appends durably. On store
// failure the optimistic entry is rolled back and the failure surfaced;
// the caller decides whether to resend.
func (s *Session) Send(ctx context.Context, text string) (string, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return "", habita_errors.ErrInvalidInput
	}

	s.mu.Lock()
	if s.state != StateLive {
		s.mu.Unlock()
		return "", habita_errors.ErrInvalidTransition
	}
	if s.conv.Status == conversation.StatusFinished {
		s.mu.Unlock()
		return "", habita_errors.ErrConversationFinished
	}
	id := s.conversationID
	epoch := s.epoch
	tempID := TempIDPrefix + uuid.NewString()
	s.entries = append(s.entries, Entry{
		ID:        tempID,
		SenderID:  s.userID,
		Content:   content,
		CreatedAt: time.Now(),
		Pending:   true,
	})
	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	s.listener.OnMessagesChanged(id, entries, false)

	msg, err := s.log.Append(ctx, id, s.userID, content, tempID)
	if err != nil {
		s.rollbackOptimistic(epoch, id, tempID, err)
		return tempID, err
	}
	s.reconcile(epoch, id, tempID, msg)
	return tempID, nil
}

// BroadcastTyping fires the ephemeral signal and arms the local
// auto-clear so a lost stop signal never leaves the indicator stuck.
func (s *Session) BroadcastTyping(ctx context.Context, typing bool) error {
	s.mu.Lock()
	if s.state != StateLive || s.channel == nil {
		s.mu.Unlock()
		return nil
	}
	ch := s.channel
	epoch := s.epoch
	if s.localTyping != nil {
		s.localTyping.Stop()
		s.localTyping = nil
	}
	if typing {
		s.localTyping = time.AfterFunc(s.typingTTL, func() {
			s.mu.Lock()
			stale := s.epoch != epoch || s.channel == nil
			cur := s.channel
			s.mu.Unlock()
			if stale {
				return
			}
			clearCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := cur.Broadcast(clearCtx, false); err != nil {
				s.logger.Warnf("typing auto-clear broadcast: %v", err)
			}
		})
	}
	s.mu.Unlock()
	return ch.Broadcast(ctx, typing)
}

// Close tears the session down permanently.
func (s *Session) Close() {
	s.mu.Lock()
	s.teardownLocked()
	s.state = StateClosed
	s.mu.Unlock()
}

func (s *Session) abortSelect(epoch uint64) {
	s.mu.Lock()
	if s.epoch == epoch && s.state == StateLoading {
		s.state = StateIdle
		s.conversationID = uuid.Nil
	}
	s.mu.Unlock()
}

// teardownLocked drops the current selection: channel, entries, timers.
// Bumping the epoch makes any in-flight callback for the old channel a
// no-op.
func (s *Session) teardownLocked() {
	s.epoch++
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	for sender, t := range s.typingTimers {
		t.Stop()
		delete(s.typingTimers, sender)
	}
	if s.localTyping != nil {
		s.localTyping.Stop()
		s.localTyping = nil
	}
	s.conversationID = uuid.Nil
	s.conv = conversation.Conversation{}
	s.entries = nil
	s.degraded = false
	s.state = StateIdle
}

func entriesFromHistory(history []message.Message) []Entry {
	entries := make([]Entry, 0, len(history))
	for _, m := range history {
		entries = append(entries, Entry{
			ID:        m.ID.String(),
			SenderID:  m.SenderID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return entries
}
