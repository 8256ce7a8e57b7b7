package handler

import (
	"net/http"

	"habita-chat/internal/services"
	"habita-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	service *services.ConversationService
}

func NewConversationHandler(service *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// List returns the caller's directory, newest activity first. Threads
// the caller has hidden are absent.
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	entries, err := h.service.DirectoryForUser(c.Request.Context(), userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	items := make([]httpdto.ConversationResponse, 0, len(entries))
	for _, entry := range entries {
		resp := httpdto.FromConversation(entry.Conversation)
		if entry.LastMessage != nil {
			preview := httpdto.FromMessage(*entry.LastMessage)
			resp.LastMessage = &preview
		}
		items = append(items, resp)
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListConversationsResponse{
		Conversations: items,
		Total:         len(items),
	}))
}

// Create finds or creates the caller's thread about a listing. The
// caller becomes the tenant side; the landlord is the listing's owner.
func (h *ConversationHandler) Create(c *gin.Context) {
	var req httpdto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid listing id", "INVALID_REQUEST"))
		return
	}

	conv, err := h.service.StartForListing(c.Request.Context(), listingID, userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

func (h *ConversationHandler) GetByID(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conv, err := h.service.GetByID(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

// SetVisibility flips the caller's own soft-delete flag. Hiding with
// hidden=false is the deep-link un-hide path.
func (h *ConversationHandler) SetVisibility(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	var req httpdto.SetVisibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conv, err := h.service.SetVisibility(c.Request.Context(), conversationID, userID, req.Hidden)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

// Finish closes the conversation. Landlords only; repeated calls are a
// no-op.
func (h *ConversationHandler) Finish(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid conversation id", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	conv, err := h.service.Finish(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromConversation(conv)))
}

// Resolve maps (listing, tenant) to the conversation id for reply-to-
// lead deep links.
func (h *ConversationHandler) Resolve(c *gin.Context) {
	var req httpdto.ResolveConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid listing id", "INVALID_REQUEST"))
		return
	}
	tenantID, err := uuid.Parse(req.FromUserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid user id", "INVALID_REQUEST"))
		return
	}

	conversationID, err := h.service.Resolve(c.Request.Context(), listingID, tenantID, userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"conversation_id": conversationID.String()}))
}
