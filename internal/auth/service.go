// Package auth logs users in and out and resolves bearer tokens to
// identities, honoring revocations.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/audit"
	"github.com/corebank/backend/internal/models"
	"github.com/corebank/backend/internal/token"
)

// Session is the outcome of a successful login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type Service struct {
	db           *sql.DB
	tokens       *token.Service
	hasher       *Hasher
	revocations  Revocations
	audit        audit.Recorder
	queryTimeout time.Duration
}

func NewService(db *sql.DB, tokens *token.Service, hasher *Hasher, revocations Revocations, recorder audit.Recorder, queryTimeout time.Duration) *Service {
	return &Service{
		db:           db,
		tokens:       tokens,
		hasher:       hasher,
		revocations:  revocations,
		audit:        recorder,
		queryTimeout: queryTimeout,
	}
}

// Login checks the credential and issues a token. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password, ip string) (Session, error) {
	username = strings.TrimSpace(username)
	log.Printf("[AUTH] Login attempt for %q from %s", username, ip)

	if username == "" || password == "" {
		s.record(ctx, audit.SeverityWarning, ip, username, "Failed login attempt", http.StatusUnauthorized)
		return Session{}, apperr.ErrInvalidCredentials
	}

	user, err := s.findUser(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		log.Printf("[AUTH] User not found: %q", username)
		s.record(ctx, audit.SeverityWarning, ip, username, "Failed login attempt", http.StatusUnauthorized)
		return Session{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		log.Printf("[AUTH] User lookup failed for %q: %v", username, err)
		s.record(ctx, audit.SeverityError, ip, username, "Login failed: internal error", http.StatusInternalServerError)
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		log.Printf("[AUTH] Invalid password for user %d", user.ID)
		s.record(ctx, audit.SeverityWarning, ip, username, "Failed login attempt", http.StatusUnauthorized)
		return Session{}, apperr.ErrInvalidCredentials
	}

	signed, claims, err := s.tokens.Issue(user.Identity())
	if err != nil {
		log.Printf("[AUTH] Token generation failed for user %d: %v", user.ID, err)
		s.record(ctx, audit.SeverityError, ip, username, "Login failed: internal error", http.StatusInternalServerError)
		return Session{}, err
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	s.record(ctx, audit.SeverityInfo, ip, username, "Login successful", http.StatusOK)
	return Session{Token: signed, ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}

// Logout revokes tokenString until its natural expiry. A token that is
// invalid or already revoked is rejected.
func (s *Service) Logout(ctx context.Context, tokenString, ip string) error {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		s.record(ctx, audit.SeverityWarning, ip, "unknown", "Logout rejected: invalid token", http.StatusUnauthorized)
		return err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.Printf("[AUTH] Revocation lookup failed for user %d: %v", claims.UserID, err)
		s.record(ctx, audit.SeverityError, ip, claims.Username, "Logout failed: internal error", http.StatusInternalServerError)
		return fmt.Errorf("lookup revocation: %w", err)
	}
	if revoked {
		s.record(ctx, audit.SeverityWarning, ip, claims.Username, "Logout rejected: token already revoked", http.StatusUnauthorized)
		return apperr.ErrInvalidToken
	}

	if err := s.revocations.Revoke(ctx, claims); err != nil {
		log.Printf("[AUTH] Failed to revoke token for user %d: %v", claims.UserID, err)
		s.record(ctx, audit.SeverityError, ip, claims.Username, "Logout failed: internal error", http.StatusInternalServerError)
		return fmt.Errorf("revoke token: %w", err)
	}

	log.Printf("[AUTH] Logout successful for user %d", claims.UserID)
	s.record(ctx, audit.SeverityInfo, ip, claims.Username, "Logout successful", http.StatusOK)
	return nil
}

// Authenticate resolves tokenString to an identity. Revoked tokens are
// invalid, and so is any token whose revocation state cannot be read.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (models.Identity, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.Printf("[AUTH] Revocation lookup failed for user %d: %v", claims.UserID, err)
		return models.Identity{}, fmt.Errorf("%w: revocation state unavailable", apperr.ErrInvalidToken)
	}
	if revoked {
		return models.Identity{}, fmt.Errorf("%w: token revoked", apperr.ErrInvalidToken)
	}
	return claims.Identity(), nil
}

func (s *Service) findUser(ctx context.Context, username string) (models.User, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	var user models.User
	var fullName, email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password, role, full_name, email FROM bank.users WHERE username = $1`,
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &fullName, &email)
	if err != nil {
		return models.User{}, err
	}
	user.FullName = fullName.String
	user.Email = email.String
	return user, nil
}

func (s *Service) record(ctx context.Context, severity, ip, username, action string, status int) {
	s.audit.Record(ctx, audit.Event{Severity: severity, IP: ip, Username: username, Action: action, Status: status})
}
