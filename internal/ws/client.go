package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/redis"
	"habita-chat/internal/services"
	"habita-chat/internal/session"
	"habita-chat/internal/transport/httpdto"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// frameLimits caps the cheap ephemeral commands per minute per
// connection. Durable sends go through the Redis limiter instead.
type frameLimits struct {
	MaxTypingEvents int
	MaxPingMessages int
}

var defaultFrameLimits = frameLimits{
	MaxTypingEvents: 60,
	MaxPingMessages: 60,
}

type frameLimiter struct {
	typingTokens int
	pingTokens   int
	lastRefill   time.Time
	mu           sync.Mutex
}

func newFrameLimiter() *frameLimiter {
	return &frameLimiter{
		typingTokens: defaultFrameLimits.MaxTypingEvents,
		pingTokens:   defaultFrameLimits.MaxPingMessages,
		lastRefill:   time.Now(),
	}
}

func (rl *frameLimiter) Allow(cmdType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.typingTokens = defaultFrameLimits.MaxTypingEvents
		rl.pingTokens = defaultFrameLimits.MaxPingMessages
		rl.lastRefill = now
	}

	switch cmdType {
	case CmdTyping:
		if rl.typingTokens > 0 {
			rl.typingTokens--
			return true
		}
		return false
	case CmdPing:
		if rl.pingTokens > 0 {
			rl.pingTokens--
			return true
		}
		return false
	}
	return true
}

// Client is one WebSocket connection bound to one messaging session.
// It implements session.Listener; session callbacks become outbound
// frames.
type Client struct {
	id          string
	userID      uuid.UUID
	userChannel string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *session.Session
	frames  *frameLimiter
	limiter *redis.RateLimiter
	log     *logger.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, userChannel string, limiter *redis.RateLimiter, log *logger.Logger) *Client {
	return &Client{
		id:          uuid.NewString(),
		userID:      userID,
		userChannel: userChannel,
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		frames:      newFrameLimiter(),
		limiter:     limiter,
		log:         log,
	}
}

func (c *Client) readPump() {
	defer func() {
		c.session.Close()
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnf("ws unexpected close for %s: %v", c.userID, err)
			}
			break
		}

		raw = bytes.TrimSpace(bytes.Replace(raw, newline, space, -1))
		if err := c.handleCommand(raw); err != nil {
			c.log.Warnf("ws command from %s: %v", c.userID, err)
		}
	}
}

func (c *Client) handleCommand(raw []byte) error {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendError("malformed command", "INVALID_REQUEST")
		return err
	}

	if !c.frames.Allow(cmd.Type) {
		c.sendError("slow down", "RATE_LIMITED")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	ctx = services.WithUserContext(ctx, c.userID)

	switch cmd.Type {
	case CmdList:
		return c.handleList(ctx)
	case CmdSelect:
		return c.handleSelect(ctx, cmd)
	case CmdDeepLink:
		return c.handleDeepLink(ctx, cmd)
	case CmdSend:
		return c.handleSend(ctx, cmd)
	case CmdTyping:
		return c.session.BroadcastTyping(ctx, cmd.Typing)
	case CmdHide:
		return c.reportErr(c.session.Hide(ctx))
	case CmdFinish:
		return c.reportErr(c.session.Finish(ctx))
	case CmdPing:
		c.sendFrame(Frame{Type: FramePong})
		return nil
	default:
		c.sendError("unknown command", "INVALID_REQUEST")
		return nil
	}
}

func (c *Client) handleList(ctx context.Context) error {
	items, err := c.session.List(ctx)
	if err != nil {
		return c.reportErr(err)
	}
	c.sendFrame(Frame{
		Type:      FrameDirectory,
		Directory: httpdto.FromConversationSlice(items),
	})
	return nil
}

func (c *Client) handleSelect(ctx context.Context, cmd Command) error {
	if cmd.ConversationID == "" {
		return c.reportErr(c.session.Select(ctx, nil))
	}
	id, err := uuid.Parse(cmd.ConversationID)
	if err != nil {
		c.sendError("invalid conversation id", "INVALID_REQUEST")
		return nil
	}
	return c.reportErr(c.session.Select(ctx, &id))
}

func (c *Client) handleDeepLink(ctx context.Context, cmd Command) error {
	id, err := uuid.Parse(cmd.ConversationID)
	if err != nil {
		c.sendError("invalid conversation id", "INVALID_REQUEST")
		return nil
	}
	return c.reportErr(c.session.DeepLink(ctx, id))
}

func (c *Client) handleSend(ctx context.Context, cmd Command) error {
	if c.limiter != nil {
		res, err := c.limiter.AllowMessage(ctx, c.userID.String())
		if err != nil {
			c.log.Warnf("send rate check for %s: %v", c.userID, err)
		} else if !res.Allowed {
			c.sendError("message rate limit exceeded", "RATE_LIMITED")
			return nil
		}
	}
	tempID, err := c.session.Send(ctx, cmd.Content)
	if err != nil && tempID == "" {
		// Rejected before the optimistic append, so OnSendFailed never
		// fires and the denial needs an explicit frame. Failures after
		// the append already reached the client through the rollback.
		return c.reportErr(err)
	}
	return nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent wraps a raw user-channel event payload and queues it.
func (c *Client) SendEvent(payload []byte) {
	data, err := json.Marshal(Frame{Type: FrameDirectoryEvent, Event: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.log.Errorf("marshal %s frame: %v", f.Type, err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(msg, code string) {
	c.sendFrame(Frame{Type: FrameError, Error: msg, Code: code})
}

// enqueue is non-blocking; a connection too slow to drain its queue
// loses frames rather than stalling the hub.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// reportErr maps a session error to an error frame and swallows it;
// the connection stays up.
func (c *Client) reportErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, habita_errors.ErrNotFound):
		c.sendError("conversation not found", "NOT_FOUND")
	case errors.Is(err, habita_errors.ErrForbidden):
		c.sendError("not a party to this conversation", "FORBIDDEN")
	case errors.Is(err, habita_errors.ErrConversationFinished):
		c.sendError("conversation is finished", "CONVERSATION_FINISHED")
	case errors.Is(err, habita_errors.ErrInvalidTransition):
		c.sendError("no conversation selected", "INVALID_STATE")
	case errors.Is(err, habita_errors.ErrInvalidInput):
		c.sendError("invalid request", "INVALID_REQUEST")
	default:
		c.sendError("request failed", "REQUEST_FAILED")
	}
	return nil
}

// session.Listener implementation.

func (c *Client) OnMessagesChanged(conversationID uuid.UUID, entries []session.Entry, initial bool) {
	c.sendFrame(Frame{
		Type:           FrameMessages,
		ConversationID: conversationID.String(),
		Entries:        entryFrames(entries),
		Initial:        initial,
	})
}

func (c *Client) OnConversationUpdated(conv conversation.Conversation) {
	resp := httpdto.FromConversation(conv)
	c.sendFrame(Frame{
		Type:           FrameConversation,
		ConversationID: resp.ID,
		Conversation:   &resp,
	})
}

func (c *Client) OnPresence(conversationID uuid.UUID, userIDs []string) {
	c.sendFrame(Frame{
		Type:           FramePresence,
		ConversationID: conversationID.String(),
		UserIDs:        userIDs,
	})
}

func (c *Client) OnTyping(conversationID uuid.UUID, senderID string, typing bool) {
	c.sendFrame(Frame{
		Type:           FrameTyping,
		ConversationID: conversationID.String(),
		SenderID:       senderID,
		Typing:         typing,
	})
}

func (c *Client) OnSendFailed(conversationID uuid.UUID, tempID string, cause error) {
	c.sendFrame(Frame{
		Type:           FrameSendFailed,
		ConversationID: conversationID.String(),
		TempID:         tempID,
		Error:          "message could not be delivered",
		Code:           "SEND_FAILED",
	})
}
