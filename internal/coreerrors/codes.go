// Package coreerrors defines structured, coded errors shared by the provider
// routing layer and the conversation context engine.
package coreerrors

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a specific error type for core operations.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates invalid setup parameters. Fatal at
	// setup; rejected before any state changes.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
	// ErrCodeTimeout indicates a provider probe or generation call exceeded
	// its bound. Counts as one failed attempt for retry purposes.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeProviderExhausted indicates the load balancer tried every
	// eligible candidate without success.
	ErrCodeProviderExhausted ErrorCode = "PROVIDER_EXHAUSTED"
	// ErrCodeValidation indicates a conversation context failed structural
	// validation on write.
	ErrCodeValidation ErrorCode = "VALIDATION"
	// ErrCodeIdentity indicates repair was attempted on a context missing
	// its identity fields, which cannot be synthesized.
	ErrCodeIdentity ErrorCode = "IDENTITY"
	// ErrCodeNotFound indicates the requested record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// CoreError is a structured error carrying a code and optional cause.
type CoreError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair to the error.
func (e *CoreError) WithContext(key string, value any) *CoreError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Configuration creates a configuration error.
func Configuration(msg string) *CoreError {
	return &CoreError{Code: ErrCodeConfiguration, Message: msg}
}

// Timeout creates a timeout error.
func Timeout(msg string, cause error) *CoreError {
	return &CoreError{Code: ErrCodeTimeout, Message: msg, Cause: cause}
}

// ProviderExhausted creates a provider exhausted error. attempts maps each
// tried provider name to its failure reason.
func ProviderExhausted(msg string, attempts map[string]string) *CoreError {
	e := &CoreError{Code: ErrCodeProviderExhausted, Message: msg}
	for name, reason := range attempts {
		e.WithContext(name, reason)
	}
	return e
}

// Validation creates a validation error.
func Validation(msg string) *CoreError {
	return &CoreError{Code: ErrCodeValidation, Message: msg}
}

// Identity creates an unrecoverable identity error.
func Identity(msg string) *CoreError {
	return &CoreError{Code: ErrCodeIdentity, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *CoreError {
	return &CoreError{Code: ErrCodeNotFound, Message: msg}
}

// HasCode reports whether err is or wraps a CoreError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
