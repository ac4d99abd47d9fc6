package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is; the typed errors below
// unwrap to one of these.
var (
	ErrValidation                  = errors.New("validation failed")
	ErrNotFound                    = errors.New("not found")
	ErrAlreadyExists               = errors.New("already exists")
	ErrDuplicateActiveSubscription = errors.New("tenant already has an active subscription")
	ErrNoActiveSubscription        = errors.New("tenant has no active subscription")
	ErrInvalidTransition           = errors.New("invalid state transition")
	ErrAlreadyTerminal             = errors.New("already in a terminal state")
	ErrConcurrentModification      = errors.New("concurrent modification")
	ErrQuotaExceeded               = errors.New("quota exceeded")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OutOfRangeError is a ValidationError for numeric inputs outside [Min, Max].
type OutOfRangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s must be between %d and %d, got %d", e.Field, e.Min, e.Max, e.Value)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// TransitionError is returned when a state machine rejects a move.
type TransitionError struct {
	Machine string
	From    string
	To      string
	// Terminal is set when From is absorbing.
	Terminal bool
}

func (e *TransitionError) Error() string {
	if e.Terminal {
		return fmt.Sprintf("%s: %s is terminal, cannot move to %s", e.Machine, e.From, e.To)
	}
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Machine, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	if target == ErrInvalidTransition {
		return true
	}
	return e.Terminal && target == ErrAlreadyTerminal
}

// DuplicateActiveSubscriptionError carries the blocking subscription when known.
type DuplicateActiveSubscriptionError struct {
	TenantID       string
	SubscriptionID string
}

func (e *DuplicateActiveSubscriptionError) Error() string {
	if e.SubscriptionID == "" {
		return fmt.Sprintf("tenant %s already has an active subscription", e.TenantID)
	}
	return fmt.Sprintf("tenant %s already has an active subscription (%s)", e.TenantID, e.SubscriptionID)
}

func (e *DuplicateActiveSubscriptionError) Is(target error) bool {
	return target == ErrDuplicateActiveSubscription
}

// QuotaExceededError is returned by operations that hard-fail on a denied
// quota check. CheckQuota itself reports denial as a result, not an error.
type QuotaExceededError struct {
	QuotaType QuotaType
	Usage     float64
	Requested float64
	Limit     float64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota %s exceeded: usage %g + %g > limit %g", e.QuotaType, e.Usage, e.Requested, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }
