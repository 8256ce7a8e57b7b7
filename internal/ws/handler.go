package ws

import (
	"net/http"
	"strings"

	"habita-chat/internal/events"
	"habita-chat/internal/redis"
	"habita-chat/internal/services"
	"habita-chat/internal/session"
	"habita-chat/internal/transport/httpdto"
	"habita-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionFactory builds the messaging session for a freshly
// authenticated connection. The listener is the connection itself.
type SessionFactory func(userID uuid.UUID, listener session.Listener) *session.Session

type Handler struct {
	auth     *services.AuthService
	hub      *Hub
	sessions SessionFactory
	limiter  *redis.RateLimiter
	log      *logger.Logger
}

func NewHandler(auth *services.AuthService, hub *Hub, sessions SessionFactory, limiter *redis.RateLimiter, log *logger.Logger) *Handler {
	return &Handler{auth: auth, hub: hub, sessions: sessions, limiter: limiter, log: log}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Connect authenticates the token, upgrades the connection and runs the
// pumps until the peer goes away.
func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	claims, err := h.auth.ParseAccessToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("ws upgrade for %s: %v", userID, err)
		return
	}

	client := newClient(h.hub, conn, userID, events.UserChannel(userID), h.limiter, h.log)
	client.session = h.sessions(userID, client)

	h.hub.Register(client)
	go client.writePump()
	client.readPump()
}
