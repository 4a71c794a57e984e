// Package errors provides structured error handling for the application.
// Errors below the router boundary are recovered locally and converted to
// user-facing assistant messages; only authentication and validation errors
// at the edge map to non-200 HTTP responses.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents an error code
type ErrorCode string

const (
	// Edge errors: the only codes allowed to surface as non-200 responses
	CodeBadRequest   ErrorCode = "BAD_REQUEST"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"

	// Degradation codes: recovered into a user-facing assistant message,
	// recorded in logs and message metadata, never escalated
	CodeClassificationDegraded     ErrorCode = "CLASSIFICATION_DEGRADED"
	CodeExtractionInvalid          ErrorCode = "EXTRACTION_INVALID"
	CodeRetrievalBranchUnavailable ErrorCode = "RETRIEVAL_BRANCH_UNAVAILABLE"
	CodeWebhookUnavailable         ErrorCode = "WEBHOOK_UNAVAILABLE"
	CodeExternalServiceError       ErrorCode = "EXTERNAL_SERVICE_ERROR"
	CodeConversationStoreError     ErrorCode = "CONVERSATION_STORE_ERROR"
)

// AppError represents an application error with structured information
type AppError struct {
	Code     ErrorCode      `json:"code"`
	Message  string         `json:"message"`
	Details  string         `json:"details,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Cause    error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// StatusCode returns the appropriate HTTP status code. Degradation codes
// intentionally map to 200: by the time they occur, a conversation turn has
// begun and the system answers something rather than failing loudly.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeClassificationDegraded, CodeExtractionInvalid,
		CodeRetrievalBranchUnavailable, CodeWebhookUnavailable:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// WithMetadata adds metadata to the error
func (e *AppError) WithMetadata(key string, value any) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// WithCause adds a cause error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// New creates a new application error
func New(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewBadRequestError creates a bad request error
func NewBadRequestError(message string) *AppError {
	return New(CodeBadRequest, message, "")
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "Authentication required"
	}
	return New(CodeUnauthorized, message, "")
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), "")
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return New(CodeInternal, message, "")
}

// NewClassificationDegradedError records a classifier failure that was
// silently downgraded to general chat
func NewClassificationDegradedError(reason string, cause error) *AppError {
	return New(CodeClassificationDegraded, "Intent classification degraded", reason).WithCause(cause)
}

// NewExtractionInvalidError records an extracted recipe that failed the
// recipe invariants; the details are shown to the user verbatim
func NewExtractionInvalidError(reason string) *AppError {
	return New(CodeExtractionInvalid, "Recipe extraction failed", reason)
}

// NewRetrievalBranchUnavailableError records a retrieval branch whose
// backing store or index is missing or errored
func NewRetrievalBranchUnavailableError(branch string, cause error) *AppError {
	return New(
		CodeRetrievalBranchUnavailable,
		"Retrieval branch unavailable",
		fmt.Sprintf("%s branch degraded to empty results", branch),
	).WithMetadata("branch", branch).WithCause(cause)
}

// NewWebhookUnavailableError records an unreachable or slow workflow engine
func NewWebhookUnavailableError(cause error) *AppError {
	return New(CodeWebhookUnavailable, "Workflow engine unavailable", "").WithCause(cause)
}

// NewConversationStoreError records a conversation store read or write
// failure
func NewConversationStoreError(message string, cause error) *AppError {
	return New(CodeConversationStoreError, message, "").WithCause(cause)
}

// NewExternalServiceError creates an external service error
func NewExternalServiceError(service string, cause error) *AppError {
	return New(
		CodeExternalServiceError,
		"External service error",
		fmt.Sprintf("Failed to communicate with %s", service),
	).WithCause(cause)
}

// Wrap wraps an error as an internal error if it's not already an AppError
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// Is checks if an error is of a specific error code
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// UserMessage extracts the text of an error that is safe to show to the
// end user. Details take precedence because the degradation constructors
// put the readable reason there.
func UserMessage(err error) string {
	if appErr, ok := err.(*AppError); ok {
		if appErr.Details != "" {
			return appErr.Details
		}
		return appErr.Message
	}
	return err.Error()
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeInternal
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// ErrorDetails represents the error details in API responses
type ErrorDetails struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// ToErrorResponse converts an AppError to an API error response
func ToErrorResponse(err *AppError, requestID string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetails{
			Code:      err.Code,
			Message:   err.Message,
			Details:   err.Details,
			RequestID: requestID,
		},
	}
}
