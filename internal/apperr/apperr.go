// Package apperr defines the error taxonomy shared by the services and the
// mapping from those errors to HTTP status codes and public messages.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidOTP           = errors.New("invalid or expired OTP")
	ErrInvalidEstablishment = errors.New("invalid or unregistered establishment")
	ErrCreditLimitExceeded  = errors.New("credit limit exceeded")
	ErrTransactionFailure   = errors.New("transaction failed")
)

// Error carries a public message alongside the sentinel it wraps. The
// message is what callers see; Cause is kept for internal logging only.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// New returns an error of the given kind with a caller-facing message.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Validation is shorthand for New(ErrValidation, message).
func Validation(message string) error {
	return New(ErrValidation, message)
}

// NotFound is shorthand for New(ErrNotFound, message).
func NotFound(message string) error {
	return New(ErrNotFound, message)
}

// Transaction wraps a persistence-layer failure of an atomic unit.
func Transaction(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrTransactionFailure) {
		return cause
	}
	return &Error{Kind: ErrTransactionFailure, Message: "transaction could not be completed", Cause: cause}
}

var kinds = []error{
	ErrInvalidCredentials,
	ErrInvalidToken,
	ErrValidation,
	ErrNotFound,
	ErrInsufficientFunds,
	ErrInvalidOTP,
	ErrInvalidEstablishment,
	ErrCreditLimitExceeded,
	ErrTransactionFailure,
}

// Known reports whether err belongs to the taxonomy.
func Known(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// StatusCode maps err onto an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidOTP),
		errors.Is(err, ErrInvalidEstablishment),
		errors.Is(err, ErrCreditLimitExceeded):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransactionFailure) && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text safe to show a caller. Errors outside the
// taxonomy never leak their detail.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTransactionFailure) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "operation timed out"
		}
		return ErrTransactionFailure.Error()
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal error"
}
