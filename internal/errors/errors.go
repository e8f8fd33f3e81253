// Package errors provides standardized error types for the go-feedback server.
// This enables consistent error handling, categorization, and user-friendly messages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents standardized error categories
type ErrorCode string

const (
	// Session errors
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"
	ErrCodeSessionTerminal ErrorCode = "SESSION_TERMINAL"
	ErrCodeSessionExpired  ErrorCode = "SESSION_EXPIRED"

	// Feedback protocol errors
	ErrCodeFeedbackTimeout ErrorCode = "FEEDBACK_TIMEOUT"
	ErrCodeWaitInterrupted ErrorCode = "WAIT_INTERRUPTED"

	// Transport errors
	ErrCodeSocketClosed ErrorCode = "SOCKET_CLOSED"
	ErrCodeSocketSend   ErrorCode = "SOCKET_SEND_FAILED"

	// Command / process errors
	ErrCodeCommandBlocked    ErrorCode = "COMMAND_BLOCKED"
	ErrCodeCommandFailed     ErrorCode = "COMMAND_FAILED"
	ErrCodeProcessTerminated ErrorCode = "PROCESS_TERMINATED"

	// Resource errors
	ErrCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	ErrCodeDatabaseError     ErrorCode = "DATABASE_ERROR"
	ErrCodeFileSystemError   ErrorCode = "FILESYSTEM_ERROR"

	// Validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// FeedbackError is the standardized error type for the application
type FeedbackError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// Error implements the error interface
func (e *FeedbackError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with the underlying cause
func (e *FeedbackError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *FeedbackError) WithContext(key string, value any) *FeedbackError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for the user
func (e *FeedbackError) WithSuggestion(suggestion string) *FeedbackError {
	e.Suggestion = suggestion
	return e
}

// WithDetails adds detailed information
func (e *FeedbackError) WithDetails(details string) *FeedbackError {
	e.Details = details
	return e
}

// New creates a new FeedbackError
func New(code ErrorCode, message string) *FeedbackError {
	return &FeedbackError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(cause error, code ErrorCode, message string) *FeedbackError {
	return &FeedbackError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Is checks if the error matches the given error code
func Is(err error, code ErrorCode) bool {
	var fbErr *FeedbackError
	if errors.As(err, &fbErr) {
		return fbErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var fbErr *FeedbackError
	if errors.As(err, &fbErr) {
		return fbErr.Code
	}
	return ErrCodeInternal
}

// --- Convenience constructors for common errors ---

// SessionNotFound creates a session not found error
func SessionNotFound(sessionID string) *FeedbackError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session not found: %s", sessionID)).
		WithContext("session_id", sessionID).
		WithSuggestion("Use get_feedback_status without a session_id to see the current session")
}

// NoActiveSession creates a no active session error
func NoActiveSession() *FeedbackError {
	return New(ErrCodeNoActiveSession, "no active feedback session").
		WithSuggestion("Call interactive_feedback to start a new feedback round")
}

// FeedbackTimeout creates a timeout error for an abandoned feedback wait
func FeedbackTimeout(sessionID string, waitedSeconds int) *FeedbackError {
	return New(ErrCodeFeedbackTimeout, fmt.Sprintf("timed out waiting for user feedback after %d seconds", waitedSeconds)).
		WithContext("session_id", sessionID).
		WithContext("waited_seconds", waitedSeconds).
		WithSuggestion("The session was cleaned up automatically; retry with a longer timeout if the reviewer needs more time")
}

// WaitInterrupted creates an error for a feedback wait cancelled by the caller
func WaitInterrupted(sessionID string, cause error) *FeedbackError {
	return Wrap(cause, ErrCodeWaitInterrupted, "feedback wait interrupted").
		WithContext("session_id", sessionID)
}

// CommandBlocked creates a blocked command error
func CommandBlocked(command, reason string) *FeedbackError {
	return New(ErrCodeCommandBlocked, fmt.Sprintf("command blocked for security: %s", reason)).
		WithContext("command", command).
		WithSuggestion("Remove shell metacharacters and retry with a plain argument list")
}

// InvalidInput creates an invalid input error
func InvalidInput(field, reason string) *FeedbackError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid input for %s: %s", field, reason)).
		WithContext("field", field)
}

// MissingRequired creates a missing required field error
func MissingRequired(field string) *FeedbackError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("required field missing: %s", field)).
		WithContext("field", field)
}

// DatabaseError creates a database error
func DatabaseError(cause error, operation string) *FeedbackError {
	return Wrap(cause, ErrCodeDatabaseError, fmt.Sprintf("database operation failed: %s", operation)).
		WithContext("operation", operation).
		WithSuggestion("Check database connection and try again")
}

// FileSystemError creates a filesystem error
func FileSystemError(cause error, path string) *FeedbackError {
	return Wrap(cause, ErrCodeFileSystemError, "filesystem operation failed").
		WithContext("path", path).
		WithSuggestion("Check file permissions and disk space")
}

// InternalError creates an internal error
func InternalError(cause error, details string) *FeedbackError {
	return Wrap(cause, ErrCodeInternal, "internal error occurred").
		WithDetails(details).
		WithSuggestion("Please report this issue if it persists")
}
