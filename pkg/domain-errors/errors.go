// Package domainerrors provides coded errors for the service layer.
//
// Services return these so transports can map failures to status codes and
// callers can branch on the failure class without string matching. Each error
// carries a Code (the failure class) and optionally a Condition (the precise
// domain condition, e.g. insufficient_escrow) for callers that need to
// distinguish failures sharing a class.
//
// Infrastructure layers return pkg/platform/sentinel errors; services
// translate those into domain errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. Codes are stable API surface: transports map
// them to HTTP statuses and clients may branch on them.
type Code string

const (
	// CodeUnauthorized: caller identity missing or unverifiable.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden: caller is authenticated but not permitted (wrong owner,
	// wrong participant, not an admin).
	CodeForbidden Code = "forbidden"
	// CodeNotFound: the referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict: a duplicate entry (already registered, already enrolled).
	CodeConflict Code = "conflict"
	// CodeInvalidInput: the input violates a validation rule (zero unit,
	// amount not a multiple of the unit, exceeds an endowment or maximum).
	CodeInvalidInput Code = "invalid_input"
	// CodeInvalidState: the entity is in the wrong state for the operation
	// (wrong match phase, roster closed, registration already closed).
	CodeInvalidState Code = "invalid_state"
	// CodeResourceExhausted: a resource cannot cover the request
	// (insufficient escrow, matches still pending, nothing left to withdraw).
	CodeResourceExhausted Code = "resource_exhausted"
	// CodeInvariantViolation: a model invariant was broken by a constructor
	// or transition; services usually translate this to a caller-facing code.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeTimeout: the operation was abandoned before completing.
	CodeTimeout Code = "timeout"
	// CodeInternal: an unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// Condition names the exact domain condition behind a failure, using the
// stable snake_case wire form. Conditions are declared next to the models
// that raise them.
type Condition string

// Error is a coded domain error.
type Error struct {
	Code      Code
	Condition Condition
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with a code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// NewCondition creates a domain error carrying a named condition.
func NewCondition(code Code, condition Condition, message string) error {
	return &Error{Code: code, Condition: condition, Message: message}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// HasCondition reports whether err (or anything it wraps) carries the
// condition.
func HasCondition(err error, condition Condition) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Condition == condition
	}
	return false
}

// CodeOf extracts the code, or CodeInternal for non-domain errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ConditionOf extracts the condition, or the empty condition when unset.
func ConditionOf(err error) Condition {
	var de *Error
	if errors.As(err, &de) {
		return de.Condition
	}
	return ""
}
