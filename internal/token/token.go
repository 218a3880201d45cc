// Package token issues and verifies HS256-signed identity tokens.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload carried by every token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Identity returns the caller these claims describe.
func (c Claims) Identity() models.Identity {
	return models.Identity{UserID: c.UserID, Username: c.Username, Role: c.Role, Email: c.Email}
}

// Service signs and verifies tokens with a process-wide secret.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates a token service. A non-positive ttl falls back to 30 minutes.
func NewService(secret, issuer string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue attaches exp, iat, iss and a fresh jti to the identity and signs it.
func (s *Service) Issue(identity models.Identity) (string, Claims, error) {
	now := s.now()
	claims := Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Role:     identity.Role,
		Email:    identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks structure, algorithm, signature and expiry. On any failure
// it returns apperr.ErrInvalidToken and no claims.
func (s *Service) Verify(tokenString string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, s.key,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, invalid(err)
	}
	if claims.UserID == 0 || claims.ID == "" {
		return Claims{}, invalid(errors.New("missing identity claims"))
	}
	return claims, nil
}

func (s *Service) key(*jwt.Token) (any, error) {
	return s.secret, nil
}

func invalid(cause error) error {
	if cause == nil {
		return apperr.ErrInvalidToken
	}
	return fmt.Errorf("%w: %v", apperr.ErrInvalidToken, cause)
}
