package middleware

import (
	"errors"
	"net/http"

	"habita-chat/internal/transport/httpdto"
	habita_errors "habita-chat/pkg/errors"
	"habita-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler maps service-layer sentinel errors pushed onto the gin
// error list to HTTP responses. Handlers that already wrote a response
// are left alone.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, code := mapError(err)
		if l != nil && status >= http.StatusInternalServerError {
			l.Errorf("request error: %s", err.Error())
		}
		c.JSON(status, httpdto.NewErrorResponse(err.Error(), code))
	}
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, habita_errors.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, habita_errors.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, habita_errors.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, habita_errors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, habita_errors.ErrConversationFinished):
		return http.StatusConflict, "CONVERSATION_FINISHED"
	case errors.Is(err, habita_errors.ErrConflict), errors.Is(err, habita_errors.ErrAlreadyExists):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, habita_errors.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, habita_errors.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
