package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is; the typed errors below match them.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConcurrency       = errors.New("concurrent modification")
	ErrNotFound          = errors.New("not found")
)

// ValidationError is malformed or out-of-range input, rejected before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidDonationError is returned by allocation when a donation cannot be
// accepted. It is a validation failure.
type InvalidDonationError struct {
	ProjectID *uint
	Reason    string
}

func (e *InvalidDonationError) Error() string {
	if e.ProjectID != nil {
		return fmt.Sprintf("invalid donation for project %d: %s", *e.ProjectID, e.Reason)
	}
	return "invalid donation: " + e.Reason
}

func (e *InvalidDonationError) Is(target error) bool { return target == ErrValidation }

// InvalidTransitionError names the state precondition that did not hold.
type InvalidTransitionError struct {
	Entity       string
	ID           uint
	From         string
	To           string
	Precondition string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %d: cannot move %s -> %s: %s", e.Entity, e.ID, e.From, e.To, e.Precondition)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConcurrencyError means a racing commit invalidated the precondition; retry with fresh state.
type ConcurrencyError struct {
	Entity string
	ID     uint
	Detail string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("%s %d changed concurrently: %s", e.Entity, e.ID, e.Detail)
}

func (e *ConcurrencyError) Is(target error) bool { return target == ErrConcurrency }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}
