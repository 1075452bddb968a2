package types

import "fmt"

// ErrorCode represents a unified error code across the runtime.
type ErrorCode string

// Agent runtime error codes
const (
	ErrCodeAgentNotReady     ErrorCode = "AGENT_NOT_READY"
	ErrCodeAgentNotFound     ErrorCode = "AGENT_NOT_FOUND"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeUnknownCapability ErrorCode = "UNKNOWN_CAPABILITY"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeHandlerPanic      ErrorCode = "HANDLER_PANIC"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// Routing and supervision error codes
const (
	ErrCodeNoRouteFound      ErrorCode = "NO_ROUTE_FOUND"
	ErrCodeNoAgentsAvailable ErrorCode = "NO_AGENTS_AVAILABLE"
	ErrCodeNoAgentAvailable  ErrorCode = "NO_AGENT_AVAILABLE"
)

// Registry, workflow and monitor error codes
const (
	ErrCodeNodeNotFound     ErrorCode = "NODE_NOT_FOUND"
	ErrCodeAlertNotFound    ErrorCode = "ALERT_NOT_FOUND"
	ErrCodeWorkflowNotFound ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrCodeStepFailed       ErrorCode = "STEP_FAILED"
)

// Error represents a structured error with a stable code. Every public
// operation in the runtime reports failures through this type so callers can
// branch on Code without string matching.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
