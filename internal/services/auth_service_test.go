package services

import (
	"testing"

	habita_errors "habita-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := NewAuthService("test-secret", 60)
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID)
	require.NoError(t, err)

	claims, err := svc.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
}

func TestParseAccessTokenRejectsBadInput(t *testing.T) {
	svc := NewAuthService("test-secret", 60)

	_, err := svc.ParseAccessToken("")
	assert.ErrorIs(t, err, habita_errors.ErrUnauthorized)

	_, err = svc.ParseAccessToken("not.a.token")
	assert.ErrorIs(t, err, habita_errors.ErrUnauthorized)

	other := NewAuthService("different-secret", 60)
	token, err := other.GenerateAccessToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(token)
	assert.ErrorIs(t, err, habita_errors.ErrUnauthorized)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService("test-secret", -1)

	token, err := svc.GenerateAccessToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(token)
	assert.ErrorIs(t, err, habita_errors.ErrUnauthorized)
}
