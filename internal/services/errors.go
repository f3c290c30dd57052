package services

import (
	"errors"
	"fmt"
)

// Common service errors
var (
	ErrNotFound            = errors.New("record not found")
	ErrInvalidPassword     = errors.New("invalid password")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrDuplicate           = errors.New("duplicate record")
	ErrInvalidRecoveryCode = errors.New("recovery code invalid or expired")
)

// ValidationError indicates rejected input. Missing or malformed fields are
// reported back to the caller instead of being silently defaulted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvariantViolation indicates a domain rule would be broken by the requested
// operation (e.g. disbursing a loan with no active funding source).
type InvariantViolation struct {
	Rule string
}

func (e *InvariantViolation) Error() string {
	return e.Rule
}

// NewInvariantViolation builds an InvariantViolation
func NewInvariantViolation(rule string) error {
	return &InvariantViolation{Rule: rule}
}

// PersistenceError wraps a failed storage write so callers can distinguish
// storage failures from domain rejections. The underlying error is preserved
// for errors.Is/As.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError wraps err with the failed operation name
func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// ErrStaleState is returned when a conditional update loses against a
// concurrent writer (lock_version mismatch). The caller should reload and
// retry or surface the conflict.
var ErrStaleState = errors.New("record was modified by another process")

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvariantViolation reports whether err is an InvariantViolation
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}
