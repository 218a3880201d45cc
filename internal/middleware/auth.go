package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/audit"
	"github.com/corebank/backend/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

var (
	errMissingHeader = errors.New("Authorization header required")
	errHeaderFormat  = errors.New("Invalid authorization header format")
)

// Authenticator resolves a bearer token to the caller it was issued to.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.Identity, error)
}

// Auth rejects requests without a valid, unrevoked bearer token and stores
// the caller's identity in the request context.
func Auth(authn Authenticator, recorder audit.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err != nil {
				recorder.Record(r.Context(), audit.Event{
					Severity: audit.SeverityWarning,
					IP:       ClientIP(r),
					Action:   "Rejected request to " + r.URL.Path + ": " + err.Error(),
					Status:   http.StatusUnauthorized,
				})
				unauthorized(w, err.Error())
				return
			}

			identity, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				recorder.Record(r.Context(), audit.Event{
					Severity: audit.SeverityWarning,
					IP:       ClientIP(r),
					Action:   "Rejected request to " + r.URL.Path + ": invalid or expired token",
					Status:   http.StatusUnauthorized,
				})
				unauthorized(w, apperr.Message(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingHeader
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errHeaderFormat
	}
	return parts[1], nil
}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns the caller stored by Auth.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}

// ClientIP returns the host part of RemoteAddr, which chi's RealIP
// middleware has already resolved from proxy headers.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
