package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an error for transport mapping.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindBusinessRule
	KindNotFound
	KindForbidden
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified, user-facing error. Two errors with the same Code
// match under errors.Is, so a message can be specialised per call site.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e carrying a different message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func NewValidationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func NewBusinessError(code, msg string) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: msg}
}

func NewNotFoundError(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func NewForbiddenError(code, msg string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: msg}
}

func NewConflictError(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

// ErrConcurrencyConflict is returned when the store aborts a unit of work
// because of lock contention. Safe to retry.
var ErrConcurrencyConflict = NewConflictError("concurrency_conflict", "the resource is being modified concurrently, please retry")

// InsufficientTierError is returned when a tier-gated action is attempted by a
// user whose tier ranks below the requirement.
type InsufficientTierError struct {
	Required Tier
	Actual   Tier
}

func (e *InsufficientTierError) Error() string {
	return fmt.Sprintf("this requires the %s tier, your current tier is %s", e.Required, e.Actual)
}

// KindOf reports the kind of err, KindInternal for anything unclassified.
func KindOf(err error) ErrorKind {
	var tierErr *InsufficientTierError
	if errors.As(err, &tierErr) {
		return KindForbidden
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err.
func CodeOf(err error) string {
	var tierErr *InsufficientTierError
	if errors.As(err, &tierErr) {
		return "insufficient_tier"
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}
