/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error categories in one place. Callers match with errors.Is against
  the sentinels; the structured types carry context and unwrap to them.

ERROR CATEGORIES:
  1. Not found    - referenced entry, card, invoice or limit does not exist
  2. Invalid state - operation forbidden by the entity's current state
  3. Validation   - malformed input, rejected before any store mutation
  4. Store        - wraps transport/database failures; never retried here

PROPAGATION POLICY:
  The engine never swallows errors, with one deliberate exception: the
  limit tracker's ApplyEntryDelta logs and discards internal failures so
  that best-effort budget bookkeeping can never block a ledger write.

SEE ALSO:
  - api/handlers.go: Maps these categories onto HTTP status codes
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is wrapped by every missing-entity error.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is wrapped when an operation is invoked on an entity
	// whose state forbids it (e.g. assigning a non-credit entry, paying an
	// already-paid invoice).
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is wrapped by input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrStore is wrapped by persistence failures. The engine does not
	// retry; retry and backoff policy belongs to the caller.
	ErrStore = errors.New("store failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Entity string // "entry", "card", "invoice", "limit"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidStateError describes why an operation was refused.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StoreError wraps an underlying persistence failure with the operation
// that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return ErrStore }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is the caller's fault
// (validation or state), as opposed to a store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidState)
}
