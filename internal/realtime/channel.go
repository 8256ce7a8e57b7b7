package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"habita-chat/internal/events"
	"habita-chat/internal/redis"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// State is the channel lifecycle: Closed -> Subscribing -> Subscribed ->
// Closed. Events are delivered and broadcasts accepted only while
// Subscribed.
type State int32

const (
	StateClosed State = iota
	StateSubscribing
	StateSubscribed
)

// Handlers receives the three sub-protocols multiplexed on one channel:
// durable change notifications, presence sync and the typing broadcast.
// Callbacks run on the channel's delivery goroutine.
type Handlers struct {
	OnEvent    func(env events.Envelope)
	OnPresence func(userIDs []string)
	OnTyping   func(senderID string, typing bool)
}

// Authorizer gates channel subscriptions. Default deny: a user who is
// not a party to the conversation never reaches Subscribed.
type Authorizer interface {
	CanSubscribe(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

// Manager opens per-conversation channels backed by Redis pub/sub and
// the presence store.
type Manager struct {
	client           *goredis.Client
	pub              events.Publisher
	presence         *redis.PresenceStore
	auth             Authorizer
	log              *logger.Logger
	subscribeTimeout time.Duration
	heartbeat        time.Duration
}

func NewManager(client *goredis.Client, pub events.Publisher, presence *redis.PresenceStore, auth Authorizer, log *logger.Logger) *Manager {
	return &Manager{
		client:           client,
		pub:              pub,
		presence:         presence,
		auth:             auth,
		log:              log,
		subscribeTimeout: 5 * time.Second,
		heartbeat:        30 * time.Second,
	}
}

// Open returns a channel handle in the Closed state. Nothing is
// delivered until Subscribe succeeds.
func (m *Manager) Open(conversationID, userID uuid.UUID) *Channel {
	return &Channel{
		manager:        m,
		conversationID: conversationID,
		userID:         userID,
	}
}

// Channel is one user's handle on one conversation's realtime feed.
type Channel struct {
	manager        *Manager
	conversationID uuid.UUID
	userID         uuid.UUID

	state  atomic.Int32
	cancel context.CancelFunc
	pubsub *goredis.PubSub
	wg     sync.WaitGroup
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

// Subscribe performs the handshake and starts delivery. On failure the
// channel returns to Closed and the caller may continue in a degraded,
// poll-on-demand mode; realtime is a liveness concern only.
func (c *Channel) Subscribe(ctx context.Context, h Handlers) error {
	if !c.state.CompareAndSwap(int32(StateClosed), int32(StateSubscribing)) {
		return nil
	}

	ok, err := c.manager.auth.CanSubscribe(ctx, c.conversationID, c.userID)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return err
	}
	if !ok {
		c.state.Store(int32(StateClosed))
		return habita_errors.ErrForbidden
	}

	runCtx, cancel := context.WithCancel(context.Background())
	pubsub := c.manager.client.Subscribe(runCtx, events.ConversationChannel(c.conversationID))

	// The handshake: wait for the subscription confirmation.
	confirmCtx, confirmCancel := context.WithTimeout(ctx, c.manager.subscribeTimeout)
	_, err = pubsub.Receive(confirmCtx)
	confirmCancel()
	if err != nil {
		pubsub.Close()
		cancel()
		c.state.Store(int32(StateClosed))
		return err
	}

	if !c.commit(cancel, pubsub) {
		// Close raced the handshake; it saw Subscribing and returned
		// early, so the teardown happens here.
		pubsub.Close()
		cancel()
		return nil
	}

	// Announce ourselves and tell the other side.
	if err := c.manager.presence.Join(runCtx, c.conversationID, c.userID); err != nil {
		c.manager.log.Warnf("presence join %s: %v", c.conversationID, err)
	}
	c.publishPresence(runCtx, events.EventTypePresenceJoined)
	c.syncPresence(runCtx, h)

	c.wg.Add(1)
	go c.run(runCtx, h)
	return nil
}

// commit finalizes the handshake. The swap from Subscribing fails only
// when Close won the race, in which case the channel stays Closed.
func (c *Channel) commit(cancel context.CancelFunc, pubsub *goredis.PubSub) bool {
	c.cancel = cancel
	c.pubsub = pubsub
	return c.state.CompareAndSwap(int32(StateSubscribing), int32(StateSubscribed))
}

func (c *Channel) run(ctx context.Context, h Handlers) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.manager.heartbeat)
	defer ticker.Stop()

	msgs := c.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.manager.presence.Heartbeat(ctx, c.conversationID, c.userID); err != nil {
				c.manager.log.Warnf("presence heartbeat %s: %v", c.conversationID, err)
			}
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.dispatch(ctx, []byte(msg.Payload), h)
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, payload []byte, h Handlers) {
	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.manager.log.Warnf("channel %s: malformed event: %v", c.conversationID, err)
		return
	}

	switch env.EventType {
	case events.EventTypeTyping:
		var tp events.TypingPayload
		if err := json.Unmarshal(env.Payload, &tp); err != nil {
			return
		}
		if h.OnTyping != nil {
			h.OnTyping(tp.SenderID, tp.Typing)
		}
	case events.EventTypePresenceJoined, events.EventTypePresenceLeft:
		c.syncPresence(ctx, h)
	default:
		if h.OnEvent != nil {
			h.OnEvent(env)
		}
	}
}

func (c *Channel) syncPresence(ctx context.Context, h Handlers) {
	if h.OnPresence == nil {
		return
	}
	users, err := c.manager.presence.Participants(ctx, c.conversationID)
	if err != nil {
		c.manager.log.Warnf("presence sync %s: %v", c.conversationID, err)
		return
	}
	h.OnPresence(users)
}

// Broadcast sends the ephemeral typing signal. Fire-and-forget, never
// persisted; requires Subscribed.
func (c *Channel) Broadcast(ctx context.Context, typing bool) error {
	if c.State() != StateSubscribed {
		return nil
	}
	env, err := events.NewEnvelope(events.EventTypeTyping, events.AggregatePresence, c.conversationID.String(), events.TypingPayload{
		SenderID: c.userID.String(),
		Typing:   typing,
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.manager.pub.Publish(ctx, events.ConversationChannel(c.conversationID), data)
}

// Close tears the subscription down. Presence departs automatically; no
// explicit leave message is required from the remote peer's view beyond
// the left event emitted here.
func (c *Channel) Close() {
	prev := State(c.state.Swap(int32(StateClosed)))
	if prev != StateSubscribed {
		return
	}

	ctx, cancelCtx := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelCtx()
	if err := c.manager.presence.Leave(ctx, c.conversationID, c.userID); err != nil {
		c.manager.log.Warnf("presence leave %s: %v", c.conversationID, err)
	}
	c.publishPresence(ctx, events.EventTypePresenceLeft)

	c.cancel()
	c.pubsub.Close()
	c.wg.Wait()
}

func (c *Channel) publishPresence(ctx context.Context, eventType string) {
	env, err := events.NewEnvelope(eventType, events.AggregatePresence, c.conversationID.String(), events.PresencePayload{
		UserID:   c.userID.String(),
		OnlineAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := c.manager.pub.Publish(ctx, events.ConversationChannel(c.conversationID), data); err != nil {
		c.manager.log.Warnf("publish %s for %s: %v", eventType, c.conversationID, err)
	}
}
