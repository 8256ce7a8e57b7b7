package handler

import (
	"net/http"

	"habita-chat/internal/services"
	"habita-chat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type LeadHandler struct {
	service *services.LeadService
}

func NewLeadHandler(service *services.LeadService) *LeadHandler {
	return &LeadHandler{service: service}
}

// Submit takes a contact-form submission. Anonymous visitors get a bare
// lead; authenticated non-owners additionally get a conversation seeded
// with their message.
func (h *LeadHandler) Submit(c *gin.Context) {
	var req httpdto.SubmitLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid listing id", "INVALID_REQUEST"))
		return
	}

	in := services.SubmitLeadInput{
		ListingID: listingID,
		Name:      req.Name,
		Message:   req.Message,
	}
	if userID, ok := services.UserIDFromContext(c.Request.Context()); ok {
		in.FromUserID = &userID
	}

	res, err := h.service.Submit(c.Request.Context(), in)
	if err != nil {
		respondErr(c, err)
		return
	}

	conversationID := ""
	if res.ConversationID != uuid.Nil {
		conversationID = res.ConversationID.String()
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromLead(res.Lead, conversationID)))
}

// ListByListing returns a listing's lead trail to its owner.
func (h *LeadHandler) ListByListing(c *gin.Context) {
	userID, ok := services.UserIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid listing id", "INVALID_REQUEST"))
		return
	}

	leads, err := h.service.ListByListing(c.Request.Context(), listingID, userID)
	if err != nil {
		respondErr(c, err)
		return
	}

	items := make([]httpdto.LeadResponse, 0, len(leads))
	for _, l := range leads {
		items = append(items, httpdto.FromLead(l, ""))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListLeadsResponse{
		Leads: items,
		Total: len(items),
	}))
}
