package handler

import (
	"errors"
	"net/http"

	"habita-chat/internal/transport/httpdto"
	habita_errors "habita-chat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// respondErr translates a service error into the HTTP response. The
// sentinel taxonomy maps one-to-one onto status codes; anything
// unmatched is an internal error and hides its detail.
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, habita_errors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
	case errors.Is(err, habita_errors.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
	case errors.Is(err, habita_errors.ErrForbidden):
		c.JSON(http.StatusForbidden, httpdto.NewErrorResponse("not a party to this conversation", "FORBIDDEN"))
	case errors.Is(err, habita_errors.ErrNotFound):
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("not found", "NOT_FOUND"))
	case errors.Is(err, habita_errors.ErrConversationFinished):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("conversation is finished", "CONVERSATION_FINISHED"))
	case errors.Is(err, habita_errors.ErrConflict), errors.Is(err, habita_errors.ErrAlreadyExists):
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse("conflict", "CONFLICT"))
	case errors.Is(err, habita_errors.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
	default:
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal error", "INTERNAL_ERROR"))
	}
}
