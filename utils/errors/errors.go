package errors

import (
	"fmt"
	"net/http"
)

// APIError represents a custom error type for API responses
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

var (
	ErrInvalidInput = NewAPIError("VALIDATION_ERROR", "Invalid request data", http.StatusBadRequest)
	ErrUnauthorized = NewAPIError("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrNotFound     = NewAPIError("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternal     = NewAPIError("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)

	// SOS lifecycle conflicts. 409 for state conflicts, 403 for
	// authorization-shaped refusals.
	ErrActiveAlertExists = NewAPIError("SOS_ACTIVE", "An SOS alert is already active for this user", http.StatusConflict)
	ErrAlreadyResponded  = NewAPIError("ALREADY_RESPONDED", "You have already responded to this alert", http.StatusConflict)
	ErrAlertClosed       = NewAPIError("ALERT_CLOSED", "This alert is no longer active", http.StatusConflict)
	ErrSelfResponse      = NewAPIError("SELF_RESPONSE", "You cannot respond to your own alert", http.StatusForbidden)
	ErrNotOwner          = NewAPIError("NOT_OWNER", "Only the owner may perform this action", http.StatusForbidden)

	ErrUpstream = NewAPIError("UPSTREAM_ERROR", "An external service is unavailable", http.StatusBadGateway)
)

func Wrap(err error, code, message string, status int) *APIError {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return NewAPIError(code, message, status, err.Error())
}
