package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/events"
	"habita-chat/internal/realtime"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	mu    sync.Mutex
	convs map[uuid.UUID]conversation.Conversation
}

func (d *fakeDirectory) get(id uuid.UUID) (conversation.Conversation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.convs[id]
	return c, ok
}

func (d *fakeDirectory) put(c conversation.Conversation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.convs[c.ID] = c
}

func (d *fakeDirectory) ListForUser(_ context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []conversation.Conversation
	for _, c := range d.convs {
		role, ok := c.RoleOf(userID)
		if ok && !c.HiddenFor(role) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GetByID(_ context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error) {
	c, ok := d.get(conversationID)
	if !ok {
		return conversation.Conversation{}, habita_errors.ErrNotFound
	}
	if _, party := c.RoleOf(userID); !party {
		return conversation.Conversation{}, habita_errors.ErrForbidden
	}
	return c, nil
}

func (d *fakeDirectory) SetVisibility(_ context.Context, conversationID, userID uuid.UUID, hidden bool) (conversation.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.convs[conversationID]
	if !ok {
		return conversation.Conversation{}, habita_errors.ErrNotFound
	}
	role, party := c.RoleOf(userID)
	if !party {
		return conversation.Conversation{}, habita_errors.ErrForbidden
	}
	if role == conversation.RoleLandlord {
		c.DeletedByLandlord = hidden
	} else {
		c.DeletedByTenant = hidden
	}
	d.convs[conversationID] = c
	return c, nil
}

func (d *fakeDirectory) Finish(_ context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.convs[conversationID]
	if !ok {
		return conversation.Conversation{}, habita_errors.ErrNotFound
	}
	if userID != c.LandlordID {
		return conversation.Conversation{}, habita_errors.ErrForbidden
	}
	c.Status = conversation.StatusFinished
	d.convs[conversationID] = c
	return c, nil
}

type fakeLog struct {
	mu        sync.Mutex
	msgs      []message.Message
	appendErr error
	// beforeReturn runs after the durable insert but before Append
	// returns, simulating a change-feed echo racing the response.
	beforeReturn func(msg message.Message)
}

func (l *fakeLog) ListMessages(_ context.Context, conversationID, _ uuid.UUID) ([]message.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []message.Message
	for _, m := range l.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (l *fakeLog) Append(_ context.Context, conversationID, senderID uuid.UUID, content, clientMessageID string) (message.Message, error) {
	if l.appendErr != nil {
		return message.Message{}, l.appendErr
	}
	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if clientMessageID != "" {
		msg.ClientMessageID.String = clientMessageID
		msg.ClientMessageID.Valid = true
	}
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
	if l.beforeReturn != nil {
		l.beforeReturn(msg)
	}
	return msg, nil
}

type fakeChannel struct {
	mu           sync.Mutex
	subscribeErr error
	handlers     realtime.Handlers
	broadcasts   []bool
	closed       bool
}

func (c *fakeChannel) Subscribe(_ context.Context, h realtime.Handlers) error {
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Broadcast(_ context.Context, typing bool) error {
	c.mu.Lock()
	c.broadcasts = append(c.broadcasts, typing)
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeChannel) deliverMessage(t *testing.T, msg message.Message) {
	t.Helper()
	env, err := events.NewEnvelope(events.EventTypeMessageCreated, events.AggregateMessage, msg.ID.String(), msg)
	require.NoError(t, err)
	c.handlers.OnEvent(env)
}

func (c *fakeChannel) deliverConversation(t *testing.T, conv conversation.Conversation) {
	t.Helper()
	env, err := events.NewEnvelope(events.EventTypeConversationUpdated, events.AggregateConversation, conv.ID.String(), conv)
	require.NoError(t, err)
	c.handlers.OnEvent(env)
}

type typingEvent struct {
	senderID string
	typing   bool
}

type recListener struct {
	mu            sync.Mutex
	messageStates [][]Entry
	initials      []bool
	convUpdates   []conversation.Conversation
	presence      [][]string
	sendFailures  []string
	typingCh      chan typingEvent
}

func newRecListener() *recListener {
	return &recListener{typingCh: make(chan typingEvent, 16)}
}

func (l *recListener) OnMessagesChanged(_ uuid.UUID, entries []Entry, initial bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messageStates = append(l.messageStates, entries)
	l.initials = append(l.initials, initial)
}

func (l *recListener) OnConversationUpdated(conv conversation.Conversation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.convUpdates = append(l.convUpdates, conv)
}

func (l *recListener) OnPresence(_ uuid.UUID, userIDs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.presence = append(l.presence, userIDs)
}

func (l *recListener) OnTyping(_ uuid.UUID, senderID string, typing bool) {
	l.typingCh <- typingEvent{senderID: senderID, typing: typing}
}

func (l *recListener) OnSendFailed(_ uuid.UUID, tempID string, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendFailures = append(l.sendFailures, tempID)
}

func (l *recListener) lastEntries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messageStates) == 0 {
		return nil
	}
	return l.messageStates[len(l.messageStates)-1]
}

func (l *recListener) changeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messageStates)
}

type fixture struct {
	session  *Session
	dir      *fakeDirectory
	log      *fakeLog
	channel  *fakeChannel
	listener *recListener
	conv     conversation.Conversation
	tenant   uuid.UUID
	landlord uuid.UUID
}

func newFixture(t *testing.T, asLandlord bool, opts ...Option) *fixture {
	t.Helper()

	tenant := uuid.New()
	landlord := uuid.New()
	conv := conversation.Conversation{
		ID:         uuid.New(),
		ListingID:  uuid.New(),
		TenantID:   tenant,
		LandlordID: landlord,
		Status:     conversation.StatusActive,
	}

	dir := &fakeDirectory{convs: map[uuid.UUID]conversation.Conversation{conv.ID: conv}}
	flog := &fakeLog{}
	chFake := &fakeChannel{}
	listener := newRecListener()

	userID := tenant
	if asLandlord {
		userID = landlord
	}

	sess := New(userID, dir, flog,
		func(uuid.UUID, uuid.UUID) Channel { return chFake },
		listener, logger.NewNop(), opts...)

	return &fixture{
		session:  sess,
		dir:      dir,
		log:      flog,
		channel:  chFake,
		listener: listener,
		conv:     conv,
		tenant:   tenant,
		landlord: landlord,
	}
}

func (f *fixture) selectConv(t *testing.T) {
	t.Helper()
	require.NoError(t, f.session.Select(context.Background(), &f.conv.ID))
	require.Equal(t, StateLive, f.session.State())
}

func TestSelectLoadsHistory(t *testing.T) {
	f := newFixture(t, false)
	f.log.msgs = []message.Message{
		{ID: uuid.New(), ConversationID: f.conv.ID, SenderID: f.tenant, Content: "hi", CreatedAt: time.Now().Add(-time.Minute)},
		{ID: uuid.New(), ConversationID: f.conv.ID, SenderID: f.landlord, Content: "hello", CreatedAt: time.Now()},
	}

	f.selectConv(t)

	entries := f.listener.lastEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "hi", entries[0].Content)
	assert.Equal(t, "hello", entries[1].Content)
	assert.True(t, f.listener.initials[0])
	assert.False(t, f.session.Degraded())
}

func TestSelectDeniesStrangers(t *testing.T) {
	f := newFixture(t, false)
	other := conversation.Conversation{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		LandlordID: uuid.New(),
		Status:     conversation.StatusActive,
	}
	f.dir.put(other)

	err := f.session.Select(context.Background(), &other.ID)
	assert.ErrorIs(t, err, habita_errors.ErrForbidden)
	assert.Equal(t, StateIdle, f.session.State())
}

func TestSelectNilReturnsToIdle(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	require.NoError(t, f.session.Select(context.Background(), nil))
	assert.Equal(t, StateIdle, f.session.State())
	assert.True(t, f.channel.closed)
}

func TestSubscribeFailureDegrades(t *testing.T) {
	f := newFixture(t, false)
	f.channel.subscribeErr = fmt.Errorf("handshake timed out")

	require.NoError(t, f.session.Select(context.Background(), &f.conv.ID))

	// Reads and sends still work without the feed.
	assert.Equal(t, StateLive, f.session.State())
	assert.True(t, f.session.Degraded())

	_, err := f.session.Send(context.Background(), "still works")
	require.NoError(t, err)
}

func TestSendOptimisticThenReconciled(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	tempID, err := f.session.Send(context.Background(), "is this available?")
	require.NoError(t, err)
	assert.Contains(t, tempID, TempIDPrefix)

	entries := f.listener.lastEntries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Pending)
	assert.NotEqual(t, tempID, entries[0].ID)
	assert.Equal(t, "is this available?", entries[0].Content)

	// The intermediate state showed the pending optimistic entry.
	states := f.listener.messageStates
	require.GreaterOrEqual(t, len(states), 3)
	optimistic := states[len(states)-2]
	require.Len(t, optimistic, 1)
	assert.True(t, optimistic[0].Pending)
	assert.Equal(t, tempID, optimistic[0].ID)
}

func TestSendReconcilesWhenFeedEchoArrivesFirst(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	// The feed echo lands before the append response returns.
	f.log.beforeReturn = func(msg message.Message) {
		f.channel.deliverMessage(t, msg)
	}

	_, err := f.session.Send(context.Background(), "echo first")
	require.NoError(t, err)

	entries := f.listener.lastEntries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Pending)
	assert.Equal(t, "echo first", entries[0].Content)
}

func TestFeedEchoAfterReconcileIsDropped(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	_, err := f.session.Send(context.Background(), "hello")
	require.NoError(t, err)
	changesBefore := f.listener.changeCount()

	// Redeliver the durable record; at-least-once delivery must not
	// duplicate the entry.
	f.channel.deliverMessage(t, f.log.msgs[0])
	f.channel.deliverMessage(t, f.log.msgs[0])

	assert.Equal(t, changesBefore, f.listener.changeCount())
	assert.Len(t, f.listener.lastEntries(), 1)
}

func TestRemoteMessageAppended(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	remote := message.Message{
		ID:             uuid.New(),
		ConversationID: f.conv.ID,
		SenderID:       f.landlord,
		Content:        "yes, it is",
		CreatedAt:      time.Now(),
	}
	f.channel.deliverMessage(t, remote)

	entries := f.listener.lastEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, remote.ID.String(), entries[0].ID)
}

func TestMessageForOtherConversationIgnored(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)
	changesBefore := f.listener.changeCount()

	f.channel.deliverMessage(t, message.Message{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		SenderID:       f.landlord,
		Content:        "wrong thread",
		CreatedAt:      time.Now(),
	})

	assert.Equal(t, changesBefore, f.listener.changeCount())
}

func TestSendFailureRollsBack(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)
	f.log.appendErr = fmt.Errorf("store unavailable")

	tempID, err := f.session.Send(context.Background(), "lost message")
	require.Error(t, err)

	assert.Empty(t, f.listener.lastEntries())
	require.Len(t, f.listener.sendFailures, 1)
	assert.Equal(t, tempID, f.listener.sendFailures[0])
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.session.Send(context.Background(), "no selection")
	assert.ErrorIs(t, err, habita_errors.ErrInvalidTransition)

	f.selectConv(t)
	_, err = f.session.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, habita_errors.ErrInvalidInput)
}

func TestSendRejectedAfterRemoteFinish(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	finished := f.conv
	finished.Status = conversation.StatusFinished
	f.channel.deliverConversation(t, finished)

	_, err := f.session.Send(context.Background(), "too late")
	assert.ErrorIs(t, err, habita_errors.ErrConversationFinished)

	// The remote status change reached the listener without a refresh.
	updates := f.listener.convUpdates
	require.NotEmpty(t, updates)
	assert.Equal(t, conversation.StatusFinished, updates[len(updates)-1].Status)
}

func TestTypingRelayAndAutoExpiry(t *testing.T) {
	f := newFixture(t, false, WithTypingTTL(40*time.Millisecond))
	f.selectConv(t)

	other := f.landlord.String()
	f.channel.handlers.OnTyping(other, true)

	ev := <-f.listener.typingCh
	assert.Equal(t, other, ev.senderID)
	assert.True(t, ev.typing)

	// No renewal and no stop signal: the indicator clears on its own.
	select {
	case ev = <-f.listener.typingCh:
		assert.False(t, ev.typing)
	case <-time.After(time.Second):
		t.Fatal("typing indicator never expired")
	}
}

func TestTypingRenewalExtendsIndicator(t *testing.T) {
	f := newFixture(t, false, WithTypingTTL(60*time.Millisecond))
	f.selectConv(t)

	other := f.landlord.String()
	f.channel.handlers.OnTyping(other, true)
	<-f.listener.typingCh

	// Renew before expiry; the clear must come after the renewal's TTL.
	time.Sleep(30 * time.Millisecond)
	f.channel.handlers.OnTyping(other, true)
	<-f.listener.typingCh

	start := time.Now()
	select {
	case ev := <-f.listener.typingCh:
		assert.False(t, ev.typing)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("typing indicator never expired")
	}
}

func TestOwnTypingEchoSuppressed(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	f.channel.handlers.OnTyping(f.tenant.String(), true)

	select {
	case <-f.listener.typingCh:
		t.Fatal("own typing echo must not reach the listener")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastTypingArmsAutoClear(t *testing.T) {
	f := newFixture(t, false, WithTypingTTL(40*time.Millisecond))
	f.selectConv(t)

	require.NoError(t, f.session.BroadcastTyping(context.Background(), true))

	// The local auto-clear broadcasts the stop when the user goes quiet.
	assert.Eventually(t, func() bool {
		f.channel.mu.Lock()
		defer f.channel.mu.Unlock()
		return len(f.channel.broadcasts) == 2 && !f.channel.broadcasts[1]
	}, time.Second, 10*time.Millisecond)
}

func TestReselectDropsLateEvents(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)
	oldHandlers := f.channel.handlers

	second := conversation.Conversation{
		ID:         uuid.New(),
		ListingID:  uuid.New(),
		TenantID:   f.tenant,
		LandlordID: f.landlord,
		Status:     conversation.StatusActive,
	}
	f.dir.put(second)
	require.NoError(t, f.session.Select(context.Background(), &second.ID))
	changesBefore := f.listener.changeCount()

	// A straggler from the previous subscription must be ignored.
	env, err := events.NewEnvelope(events.EventTypeMessageCreated, events.AggregateMessage, uuid.NewString(), message.Message{
		ID:             uuid.New(),
		ConversationID: f.conv.ID,
		SenderID:       f.landlord,
		Content:        "late",
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	oldHandlers.OnEvent(env)

	assert.Equal(t, changesBefore, f.listener.changeCount())
}

func TestDeepLinkUnhides(t *testing.T) {
	f := newFixture(t, false)

	hidden := f.conv
	hidden.DeletedByTenant = true
	f.dir.put(hidden)

	require.NoError(t, f.session.DeepLink(context.Background(), f.conv.ID))

	got, _ := f.dir.get(f.conv.ID)
	assert.False(t, got.DeletedByTenant)
	assert.Equal(t, StateLive, f.session.State())
}

func TestHideReturnsToIdle(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	require.NoError(t, f.session.Hide(context.Background()))

	assert.Equal(t, StateIdle, f.session.State())
	got, _ := f.dir.get(f.conv.ID)
	assert.True(t, got.DeletedByTenant)
	assert.False(t, got.DeletedByLandlord)
}

func TestFinishLocalFirst(t *testing.T) {
	f := newFixture(t, true)
	f.selectConv(t)

	require.NoError(t, f.session.Finish(context.Background()))

	updates := f.listener.convUpdates
	require.NotEmpty(t, updates)
	assert.Equal(t, conversation.StatusFinished, updates[len(updates)-1].Status)

	_, err := f.session.Send(context.Background(), "one more thing")
	assert.ErrorIs(t, err, habita_errors.ErrConversationFinished)
}

func TestFinishDeniedForTenant(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	err := f.session.Finish(context.Background())
	assert.ErrorIs(t, err, habita_errors.ErrForbidden)
}

func TestCloseIsTerminal(t *testing.T) {
	f := newFixture(t, false)
	f.selectConv(t)

	f.session.Close()
	assert.Equal(t, StateClosed, f.session.State())
	assert.True(t, f.channel.closed)

	err := f.session.Select(context.Background(), &f.conv.ID)
	assert.ErrorIs(t, err, habita_errors.ErrInvalidTransition)
}
