package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"habita-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeCarriesPayload(t *testing.T) {
	payload := TypingPayload{SenderID: uuid.NewString(), Typing: true}

	env, err := NewEnvelope(EventTypeTyping, AggregatePresence, "conv-1", payload)
	require.NoError(t, err)
	assert.Equal(t, EventTypeTyping, env.EventType)
	assert.False(t, env.OccurredAt.IsZero())

	var decoded TypingPayload
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestChannelNames(t *testing.T) {
	convID := uuid.New()
	userID := uuid.New()

	assert.Equal(t, "channel:conversation:"+convID.String(), ConversationChannel(convID))
	assert.Equal(t, "channel:user:"+userID.String(), UserChannel(userID))
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

func TestBusFansOutToAllChannels(t *testing.T) {
	pub := &recordingPublisher{}
	bus := NewBus(pub, logger.NewNop())

	env, err := NewEnvelope(EventTypeConversationUpdated, AggregateConversation, "conv-1", map[string]string{"k": "v"})
	require.NoError(t, err)

	bus.Emit(context.Background(), env, "a", "b", "c")
	assert.Equal(t, []string{"a", "b", "c"}, pub.channels)
}
