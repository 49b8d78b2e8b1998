package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code and message, so wrapped
// instances still match the package-level sentinels below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"

	ErrCodeSynthesisParse     = "SYNTHESIS_PARSE_ERROR"
	ErrCodeSynthesisTransport = "SYNTHESIS_TRANSPORT_ERROR"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeStageLocked        = "STAGE_LOCKED"
)

// Validation errors
var (
	ErrInvalidTrend         = NewDomainError(ErrCodeValidation, "invalid trend label")
	ErrInvalidImpact        = NewDomainError(ErrCodeValidation, "invalid impact level")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrWrongDimensions      = NewDomainError(ErrCodeValidation, "vector has wrong dimensions")
)

// Not found errors
var ErrInsightsNotFound = NewDomainError(ErrCodeNotFound, "no insight generation for group")

// Pipeline errors
var (
	ErrSynthesisParse     = NewDomainError(ErrCodeSynthesisParse, "synthesis response failed validation")
	ErrSynthesisTransport = NewDomainError(ErrCodeSynthesisTransport, "synthesis request failed")
	ErrStoreUnavailable   = NewDomainError(ErrCodeStoreUnavailable, "store unavailable")
	ErrStageLocked        = NewDomainError(ErrCodeStageLocked, "stage is already running")
)

// NewSynthesisParseError wraps a structural validation failure for one group.
func NewSynthesisParseError(group string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeSynthesisParse, ErrSynthesisParse.Message, fmt.Errorf("group %q: %w", group, err))
}
