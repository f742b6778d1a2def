package store

import (
	"errors"
	"fmt"
)

// StoreError represents a failure surfaced by the persistence layer.
//
// The four codes map to how callers should react:
//   - Not found: expected, not exceptional - the caller treats absence as normal
//   - Constraint violated: caller error (duplicate id, dangling foreign key)
//   - Transient: lock contention survived all retries - retryable by caller
//   - Init failed: schema/database cannot be created - fatal
type StoreError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Entity names the affected table-level entity ("project", "artifact", ...).
	Entity string

	// ID identifies the affected row, when known.
	ID string

	// Err is the underlying driver error, if any.
	Err error
}

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the requested entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeConstraint indicates a uniqueness or foreign-key violation.
	ErrCodeConstraint ErrorCode = "CONSTRAINT_VIOLATED"

	// ErrCodeTransient indicates lock contention that exhausted retries.
	ErrCodeTransient ErrorCode = "TRANSIENT"

	// ErrCodeInit indicates the database or schema could not be created.
	ErrCodeInit ErrorCode = "INIT_FAILED"
)

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := string(e.Code)
	if e.Entity != "" && e.ID != "" {
		msg = fmt.Sprintf("%s: %s %s", e.Code, e.Entity, e.ID)
	} else if e.Entity != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Entity)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying driver error to errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// notFound builds a NOT_FOUND error for the given entity and id.
func notFound(entity, id string) error {
	return &StoreError{Code: ErrCodeNotFound, Entity: entity, ID: id}
}

// IsNotFound returns true if the error is a NOT_FOUND store error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsConstraint returns true if the error is a constraint violation.
func IsConstraint(err error) bool {
	return hasCode(err, ErrCodeConstraint)
}

// IsTransient returns true if the error is retry-exhausted lock contention.
func IsTransient(err error) bool {
	return hasCode(err, ErrCodeTransient)
}

// IsInit returns true if the error is a fatal initialization failure.
func IsInit(err error) bool {
	return hasCode(err, ErrCodeInit)
}

func hasCode(err error, code ErrorCode) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
