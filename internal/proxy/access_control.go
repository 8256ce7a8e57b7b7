package proxy

import (
	"context"

	"habita-chat/internal/domain/conversation"
	"habita-chat/internal/repository"
	habita_errors "habita-chat/pkg/errors"

	"github.com/google/uuid"
)

// AccessControl guards conversation operations. Authorization failures
// are returned as ErrForbidden so callers surface a denied action rather
// than silently filtering.
type AccessControl struct {
	conversationRepo repository.ConversationRepository
}

func NewAccessControl(conversationRepo repository.ConversationRepository) *AccessControl {
	return &AccessControl{conversationRepo: conversationRepo}
}

// RequireParty loads the conversation and verifies userID is one of its
// two parties, returning the row and the caller's role.
func (a *AccessControl) RequireParty(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, conversation.Role, error) {
	conv, err := a.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, "", err
	}
	role, ok := conv.RoleOf(userID)
	if !ok {
		return conversation.Conversation{}, "", habita_errors.ErrForbidden
	}
	return conv, role, nil
}

// RequireLandlord verifies userID is the landlord party. Only the
// landlord may finish a conversation.
func (a *AccessControl) RequireLandlord(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Conversation, error) {
	conv, role, err := a.RequireParty(ctx, conversationID, userID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if role != conversation.RoleLandlord {
		return conversation.Conversation{}, habita_errors.ErrForbidden
	}
	return conv, nil
}

// CanSubscribe reports whether userID may open the realtime channel for
// a conversation. Same party rule as reads; default deny.
func (a *AccessControl) CanSubscribe(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	_, _, err := a.RequireParty(ctx, conversationID, userID)
	if err == habita_errors.ErrForbidden || err == habita_errors.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
