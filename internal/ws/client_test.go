package ws

import (
	"context"
	"encoding/json"
	"testing"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/domain/message"
	"habita-chat/internal/realtime"
	"habita-chat/internal/session"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirectory struct{ conv conversation.Conversation }

func (d stubDirectory) ListForUser(context.Context, uuid.UUID) ([]conversation.Conversation, error) {
	return []conversation.Conversation{d.conv}, nil
}

func (d stubDirectory) GetByID(context.Context, uuid.UUID, uuid.UUID) (conversation.Conversation, error) {
	return d.conv, nil
}

func (d stubDirectory) SetVisibility(context.Context, uuid.UUID, uuid.UUID, bool) (conversation.Conversation, error) {
	return d.conv, nil
}

func (d stubDirectory) Finish(context.Context, uuid.UUID, uuid.UUID) (conversation.Conversation, error) {
	return d.conv, nil
}

type stubLog struct{}

func (stubLog) ListMessages(context.Context, uuid.UUID, uuid.UUID) ([]message.Message, error) {
	return nil, nil
}

func (stubLog) Append(context.Context, uuid.UUID, uuid.UUID, string, string) (message.Message, error) {
	return message.Message{}, nil
}

type stubChannel struct{}

func (stubChannel) Subscribe(context.Context, realtime.Handlers) error { return nil }
func (stubChannel) Broadcast(context.Context, bool) error              { return nil }
func (stubChannel) Close()                                             {}

func sessionClient(t *testing.T, conv conversation.Conversation, userID uuid.UUID) *Client {
	t.Helper()
	client := testClient(NewHub(), userID)
	opener := func(uuid.UUID, uuid.UUID) session.Channel { return stubChannel{} }
	client.session = session.New(userID, stubDirectory{conv: conv}, stubLog{}, opener, client, logger.NewNop())
	return client
}

func nextFrame(t *testing.T, client *Client) Frame {
	t.Helper()
	select {
	case data := <-client.send:
		var frame Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	default:
		t.Fatal("no frame delivered")
		return Frame{}
	}
}

func drainFrames(client *Client) {
	for {
		select {
		case <-client.send:
		default:
			return
		}
	}
}

func TestSendIntoFinishedConversationYieldsErrorFrame(t *testing.T) {
	userID := uuid.New()
	conv := conversation.Conversation{
		ID:         uuid.New(),
		ListingID:  uuid.New(),
		TenantID:   userID,
		LandlordID: uuid.New(),
		Status:     conversation.StatusFinished,
	}
	client := sessionClient(t, conv, userID)

	require.NoError(t, client.handleCommand([]byte(`{"type":"select","conversation_id":"`+conv.ID.String()+`"}`)))
	drainFrames(client)

	require.NoError(t, client.handleCommand([]byte(`{"type":"send","content":"hello?"}`)))

	frame := nextFrame(t, client)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "CONVERSATION_FINISHED", frame.Code)
}

func TestSendWithoutSelectionYieldsErrorFrame(t *testing.T) {
	userID := uuid.New()
	conv := conversation.Conversation{
		ID:         uuid.New(),
		ListingID:  uuid.New(),
		TenantID:   userID,
		LandlordID: uuid.New(),
		Status:     conversation.StatusActive,
	}
	client := sessionClient(t, conv, userID)

	require.NoError(t, client.handleCommand([]byte(`{"type":"send","content":"hello?"}`)))

	frame := nextFrame(t, client)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "INVALID_STATE", frame.Code)
}

func TestSendBlankContentYieldsErrorFrame(t *testing.T) {
	userID := uuid.New()
	conv := conversation.Conversation{
		ID:         uuid.New(),
		ListingID:  uuid.New(),
		TenantID:   userID,
		LandlordID: uuid.New(),
		Status:     conversation.StatusActive,
	}
	client := sessionClient(t, conv, userID)

	require.NoError(t, client.handleCommand([]byte(`{"type":"select","conversation_id":"`+conv.ID.String()+`"}`)))
	drainFrames(client)

	require.NoError(t, client.handleCommand([]byte(`{"type":"send","content":"   "}`)))

	frame := nextFrame(t, client)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "INVALID_REQUEST", frame.Code)
}
