package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/audit"
	"github.com/corebank/backend/internal/auth"
	mW "github.com/corebank/backend/internal/middleware"
)

// Sessions logs callers in and out.
type Sessions interface {
	Login(ctx context.Context, username, password, ip string) (auth.Session, error)
	Logout(ctx context.Context, tokenString, ip string) error
}

// Codes issues and checks one-time codes.
type Codes interface {
	Generate(ctx context.Context, userID int64) (string, time.Time, error)
	Validate(ctx context.Context, userID int64, code string) (bool, error)
}

type AuthHandler struct {
	sessions  Sessions
	codes     Codes
	audit     audit.Recorder
	validator *ValidationHelper
}

func NewAuthHandler(sessions Sessions, codes Codes, recorder audit.Recorder) *AuthHandler {
	return &AuthHandler{
		sessions:  sessions,
		codes:     codes,
		audit:     recorder,
		validator: NewValidationHelper(),
	}
}

// Login exchanges a username and password for a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if !h.validator.decodeBody(w, r, h.audit, "Login", &req) {
		return
	}

	session, err := h.sessions.Login(r.Context(), req.Username, req.Password, mW.ClientIP(r))
	if err != nil {
		SendAppError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"message":    "Login successful",
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"user":       session.User,
	})
}

// Logout revokes the bearer token presented with the request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, err := mW.BearerToken(r)
	if err != nil {
		reject(w, r, h.audit, "Logout", err.Error(), http.StatusUnauthorized, nil)
		return
	}

	if err := h.sessions.Logout(r.Context(), token, mW.ClientIP(r)); err != nil {
		SendAppError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// GenerateOTP issues a fresh code for the caller. There is no delivery
// channel, so the code is returned in the response.
func (h *AuthHandler) GenerateOTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFrom(r.Context())
	if !ok {
		reject(w, r, h.audit, "OTP request", apperr.Message(apperr.ErrInvalidToken), http.StatusUnauthorized, nil)
		return
	}
	ip := mW.ClientIP(r)

	code, expiresAt, err := h.codes.Generate(r.Context(), identity.UserID)
	if err != nil {
		log.Printf("[OTP] Failed to generate code for user %d: %v", identity.UserID, err)
		h.record(r, audit.SeverityError, ip, identity.Username, "OTP generation failed", http.StatusInternalServerError)
		SendAppError(w, err)
		return
	}

	h.record(r, audit.SeverityInfo, ip, identity.Username, "OTP generated", http.StatusOK)
	sendJSON(w, http.StatusOK, map[string]any{
		"message":    "OTP generated",
		"otp":        code,
		"expires_at": expiresAt,
	})
}

// ValidateOTP consumes a code outside of any purchase.
func (h *AuthHandler) ValidateOTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := mW.IdentityFrom(r.Context())
	if !ok {
		reject(w, r, h.audit, "OTP request", apperr.Message(apperr.ErrInvalidToken), http.StatusUnauthorized, nil)
		return
	}
	ip := mW.ClientIP(r)

	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if !h.validator.decodeBody(w, r, h.audit, "OTP validation", &req) {
		return
	}

	valid, err := h.codes.Validate(r.Context(), identity.UserID, req.Code)
	if err != nil {
		h.record(r, audit.SeverityError, ip, identity.Username, "OTP validation failed", apperr.StatusCode(err))
		SendAppError(w, err)
		return
	}
	if !valid {
		h.record(r, audit.SeverityWarning, ip, identity.Username, "Invalid or expired OTP", http.StatusBadRequest)
		SendAppError(w, apperr.ErrInvalidOTP)
		return
	}

	h.record(r, audit.SeverityInfo, ip, identity.Username, "OTP valid", http.StatusOK)
	sendJSON(w, http.StatusOK, map[string]string{"message": "OTP valid"})
}

func (h *AuthHandler) record(r *http.Request, severity, ip, username, action string, status int) {
	h.audit.Record(r.Context(), audit.Event{
		Severity: severity,
		IP:       ip,
		Username: username,
		Action:   action,
		Status:   status,
	})
}
