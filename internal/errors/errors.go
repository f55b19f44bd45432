package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GatewayError represents an error that can be returned to clients.
// It serializes to the platform-wide response envelope.
type GatewayError struct {
	Status     int
	Code       string
	Message    string
	Details    string
	underlying error
}

// envelope is the JSON body shape shared by every LMS service.
type envelope struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Error     envelopeError `json:"error"`
	Timestamp string        `json:"timestamp"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func (e *GatewayError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as a JSON envelope to the response.
func (e *GatewayError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(envelope{
		Success: false,
		Message: e.Message,
		Error: envelopeError{
			Code:    e.Code,
			Details: e.Details,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Common errors, one per taxonomy entry.
var (
	ErrNotFound = &GatewayError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: "No route matches the requested path",
	}

	ErrUnauthenticated = &GatewayError{
		Status:  http.StatusUnauthorized,
		Code:    "AUTHENTICATION_FAILED",
		Message: "Authentication required",
	}

	ErrForbidden = &GatewayError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: "Insufficient permissions",
	}

	ErrRateLimited = &GatewayError{
		Status:  http.StatusTooManyRequests,
		Code:    "RATE_LIMITED",
		Message: "Too many requests",
	}

	ErrServiceUnavailable = &GatewayError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: "Service is currently unavailable",
	}

	ErrBadRequest = &GatewayError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_FAILED",
		Message: "Malformed request",
	}

	ErrInternal = &GatewayError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
	}
)

// New creates a new GatewayError.
func New(status int, code, message string) *GatewayError {
	return &GatewayError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a status, code and message.
func Wrap(err error, status int, code, message string) *GatewayError {
	return &GatewayError{
		Status:     status,
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithDetails returns a copy of the error with details attached.
func (e *GatewayError) WithDetails(details string) *GatewayError {
	return &GatewayError{
		Status:     e.Status,
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		underlying: e.underlying,
	}
}

// WithMessage returns a copy of the error with a different message.
func (e *GatewayError) WithMessage(message string) *GatewayError {
	return &GatewayError{
		Status:     e.Status,
		Code:       e.Code,
		Message:    message,
		Details:    e.Details,
		underlying: e.underlying,
	}
}

// IsGatewayError checks if an error is a GatewayError.
func IsGatewayError(err error) (*GatewayError, bool) {
	if ge, ok := err.(*GatewayError); ok {
		return ge, true
	}
	return nil, false
}
