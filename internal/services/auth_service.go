package services

import (
	"fmt"
	"time"

	habita_errors "habita-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService validates access tokens issued by the marketplace's
// identity provider. Registration, login and session management are not
// this service's concern; it only needs the caller's identity.
type AuthService struct {
	secret []byte
	expiry time.Duration
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func NewAuthService(secret string, expiryMin int) *AuthService {
	return &AuthService{
		secret: []byte(secret),
		expiry: time.Duration(expiryMin) * time.Minute,
	}
}

func (s *AuthService) ParseAccessToken(token string) (*Claims, error) {
	if token == "" {
		return nil, habita_errors.ErrUnauthorized
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, habita_errors.ErrUnauthorized
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, habita_errors.ErrUnauthorized
	}
	return claims, nil
}

// GenerateAccessToken mints a token for dev seeding and tests.
func (s *AuthService) GenerateAccessToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
