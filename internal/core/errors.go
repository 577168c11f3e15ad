// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Preset errors
	ErrPresetNotFound     = &Error{Code: "PRESET_NOT_FOUND", Message: "preset not found"}
	ErrNameConflict       = &Error{Code: "NAME_CONFLICT", Message: "preset name already exists"}
	ErrInvalidName        = &Error{Code: "INVALID_NAME", Message: "invalid preset name"}
	ErrMalformedDraftName = &Error{Code: "MALFORMED_DRAFT_NAME", Message: "malformed draft name"}

	// Persistence errors
	ErrNetwork = &Error{Code: "NETWORK_ERROR", Message: "persistence call failed"}

	// Session errors
	ErrNoActivePreset        = &Error{Code: "NO_ACTIVE_PRESET", Message: "no preset is active"}
	ErrPresetActive          = &Error{Code: "PRESET_ACTIVE", Message: "a preset is already active, switch instead"}
	ErrConfirmationRequired  = &Error{Code: "CONFIRMATION_REQUIRED", Message: "user confirmation required"}
	ErrOperationAborted      = &Error{Code: "OPERATION_ABORTED", Message: "operation aborted by user"}
	ErrSessionNotFound       = &Error{Code: "SESSION_NOT_FOUND", Message: "session not found"}
	ErrSessionClosed         = &Error{Code: "SESSION_CLOSED", Message: "session closed"}
	ErrNamespaceAlreadyInUse = &Error{Code: "NAMESPACE_IN_USE", Message: "preset namespace already has an editing session"}

	// Job errors
	ErrJobNotFound    = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrBacktestFailed = &Error{Code: "BACKTEST_FAILED", Message: "backtest failed"}

	// Request errors
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Message: "malformed request"}
	ErrUnauthorized   = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
