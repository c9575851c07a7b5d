package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                 = errors.New("not found")
	ErrValidation               = errors.New("validation error")
	ErrConflict                 = errors.New("conflict")
	ErrInsufficientCredits      = errors.New("insufficient credits")
	ErrIndexingFailed           = errors.New("indexing failed")
	ErrExternalStoreUnavailable = errors.New("external store unavailable")
	ErrLedgerInconsistency      = errors.New("ledger inconsistency")
)

// ValidationError represents a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a new validation error
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a validation error (including wrapped errors)
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// NotFoundError represents a missing or foreign-owned resource.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Message)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError constructs NotFoundError
func NewNotFoundError(resource, message string) NotFoundError {
	return NotFoundError{Resource: resource, Message: message}
}

// ConflictError represents a unique constraint or duplicate resource error
type ConflictError struct {
	Field   string
	Message string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Field, e.Message)
}

func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// NewConflictError constructs ConflictError
func NewConflictError(field, message string) ConflictError {
	return ConflictError{Field: field, Message: message}
}

// InsufficientCreditsError is returned when a debit precondition fails. Nothing was charged.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d; no credits were charged", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool { return target == ErrInsufficientCredits }

// IndexingFailedError is returned after a failed vector upsert whose compensation ran.
type IndexingFailedError struct {
	VectorID string
	Refunded int64
	Cause    error
}

func (e *IndexingFailedError) Error() string {
	return fmt.Sprintf("indexing failed: %v; %d credits were refunded", e.Cause, e.Refunded)
}

func (e *IndexingFailedError) Is(target error) bool { return target == ErrIndexingFailed }
func (e *IndexingFailedError) Unwrap() error        { return e.Cause }

// StoreUnavailableError reports a transient failure of the record store or vector index.
// Charged is the amount that stays debited; Refunded is the amount returned by compensation.
type StoreUnavailableError struct {
	Store    string
	Op       string
	Charged  int64
	Refunded int64
	Cause    error
}

func (e *StoreUnavailableError) Error() string {
	var billing string
	switch {
	case e.Charged > 0:
		billing = fmt.Sprintf("%d credits were charged", e.Charged)
	case e.Refunded > 0:
		billing = fmt.Sprintf("%d credits were refunded", e.Refunded)
	default:
		billing = "no credits were charged"
	}
	return fmt.Sprintf("%s unavailable during %s: %v; %s", e.Store, e.Op, e.Cause, billing)
}

func (e *StoreUnavailableError) Is(target error) bool { return target == ErrExternalStoreUnavailable }
func (e *StoreUnavailableError) Unwrap() error        { return e.Cause }

// LedgerInconsistencyError is raised when compensation itself failed. It requires operator action.
type LedgerInconsistencyError struct {
	UserID  string
	Charged int64
	Detail  string
	Cause   error
}

func (e *LedgerInconsistencyError) Error() string {
	billing := "credits were refunded"
	if e.Charged > 0 {
		billing = fmt.Sprintf("%d credits were charged and not refunded", e.Charged)
	}
	return fmt.Sprintf("ledger inconsistency for user %s: %s: %v; %s; operator intervention required",
		e.UserID, e.Detail, e.Cause, billing)
}

func (e *LedgerInconsistencyError) Is(target error) bool { return target == ErrLedgerInconsistency }
func (e *LedgerInconsistencyError) Unwrap() error        { return e.Cause }
