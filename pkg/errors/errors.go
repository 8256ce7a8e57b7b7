package habita_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrAlreadyExists        = errors.New("already exists")
	ErrConversationFinished = errors.New("conversation finished")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}
