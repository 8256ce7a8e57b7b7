package services

import (
	"context"

	"habita-chat/pkg/logger"

	"github.com/google/uuid"
)

type contextKey string

const userIDContextKey contextKey = "auth_user_id"

// WithUserContext binds the authenticated user to ctx for downstream
// handlers and log enrichment.
func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, logger.UserIdKey, userID.String())
}

// UserIDFromContext extracts the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDContextKey).(uuid.UUID)
	return id, ok
}
