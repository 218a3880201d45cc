package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/corebank/backend/internal/apperr"
	"github.com/corebank/backend/internal/audit"
	mW "github.com/corebank/backend/internal/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxBodyBytes = 1_048_576

func init() {
	// Amounts go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Error: message}

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	sendJSON(w, statusCode, errorResp)
}

// SendAppError renders err with the status and public message of its kind.
func SendAppError(w http.ResponseWriter, err error) {
	SendErrorResponse(w, apperr.Message(err), apperr.StatusCode(err), nil)
}

func sendJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// reject audits a request turned away before it reached a service and
// writes the error response.
func reject(w http.ResponseWriter, r *http.Request, recorder audit.Recorder, action, message string, statusCode int, validationErr error) {
	identity, _ := mW.IdentityFrom(r.Context())
	recorder.Record(r.Context(), audit.Event{
		Severity: audit.SeverityWarning,
		IP:       mW.ClientIP(r),
		Username: identity.Username,
		Action:   action + " rejected: " + message,
		Status:   statusCode,
	})
	SendErrorResponse(w, message, statusCode, validationErr)
}

// decodeBody reads a single JSON object into dst and validates it. On
// failure the rejection has been audited and the response written.
func (vh *ValidationHelper) decodeBody(w http.ResponseWriter, r *http.Request, recorder audit.Recorder, action string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		reject(w, r, recorder, action, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		reject(w, r, recorder, action, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := vh.ValidateStruct(dst); err != nil {
		reject(w, r, recorder, action, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}
