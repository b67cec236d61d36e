package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassConflict indicates two declarations disagree about a shared name.
	// Examples: the same alias claimed by two packages.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: unsupported platform, invalid version, missing template.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource key that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, msg, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// Two engine errors match when class and code agree.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// ErrorClass returns the class as a plain string for metrics labels.
func (e *EngineError) ErrorClass() string {
	return string(e.Class)
}

// ErrorCode returns the code for metrics labels.
func (e *EngineError) ErrorCode() string {
	return e.Code
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// CodeOf returns the code of the first engine error in the chain, or "".
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeConflict              = "CONFLICT"
	ErrCodeInternal              = "INTERNAL_ERROR"
	ErrCodeUnsupportedPlatform   = "UNSUPPORTED_PLATFORM"
	ErrCodeUnimplementedStrategy = "UNIMPLEMENTED_STRATEGY"
	ErrCodeInvalidVersion        = "INVALID_VERSION"
	ErrCodeTemplateRender        = "TEMPLATE_RENDER_ERROR"
	ErrCodeDanglingReference     = "DANGLING_REFERENCE"
	ErrCodeMissingGuard          = "MISSING_GUARD"
	ErrCodeCycle                 = "CIRCULAR_DEPENDENCY"
)

// Sentinels for errors.Is. They carry no message; compare only.
var (
	ErrUnsupportedPlatform   = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeUnsupportedPlatform}
	ErrUnimplementedStrategy = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeUnimplementedStrategy}
	ErrInvalidVersion        = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeInvalidVersion}
	ErrTemplateRender        = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeTemplateRender}
	ErrDanglingReference     = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeDanglingReference}
	ErrMissingGuard          = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeMissingGuard}
	ErrCycle                 = &EngineError{Class: ErrorClassPermanent, Code: ErrCodeCycle}
	ErrAliasConflict         = &EngineError{Class: ErrorClassConflict, Code: ErrCodeConflict}
)
