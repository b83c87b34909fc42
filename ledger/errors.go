/*
errors.go - Centralized error types for the ledger engine

ERROR CATEGORIES:
  1. Validation errors - bad line items, rejected before any mutation
  2. Conflict errors   - card identity races, retryable by the caller
  3. Not-found errors  - unknown card / reason references

Range queries never error on missing data; absence is zero stockout days or
an omitted tag, never an error value.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnclassifiedLineItem is returned when a line item carries none of
	// reason, source, or destination. The whole batch is rejected.
	ErrUnclassifiedLineItem = errors.New("line item has no reason, source or destination")

	// ErrUnknownReason is returned when a line item references a reason the
	// catalog does not know.
	ErrUnknownReason = errors.New("unknown reason")

	// ErrInvalidQuantity is returned for a negative quantity magnitude.
	ErrInvalidQuantity = errors.New("quantity must not be negative")

	// ErrMissingOccurredDate is returned when a line item has no occurred date.
	ErrMissingOccurredDate = errors.New("missing occurred date")

	// ErrCardNotFound is returned when a referenced stock card doesn't exist.
	ErrCardNotFound = errors.New("stock card not found")

	// ErrCardExists is returned when creating a card whose identity tuple is
	// already taken. Callers should retry with lookup-or-create.
	ErrCardExists = errors.New("stock card already exists for identity")

	// ErrEmptyBatch is returned when an event batch contains no line items.
	ErrEmptyBatch = errors.New("event batch has no line items")

	// ErrInvalidRange is returned when a range query has end before start.
	ErrInvalidRange = errors.New("invalid range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BatchValidationError pinpoints the first invalid line item in a batch.
type BatchValidationError struct {
	Index int
	Cause error
}

func (e *BatchValidationError) Error() string {
	return fmt.Sprintf("line item %d: %v", e.Index, e.Cause)
}

func (e *BatchValidationError) Unwrap() error { return e.Cause }

// IdentityConflictError reports a card creation race on an identity tuple.
type IdentityConflictError struct {
	Identity CardIdentity
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("card already exists for facility=%s program=%s orderable=%s lot=%s",
		e.Identity.FacilityID, e.Identity.ProgramID, e.Identity.OrderableID, e.Identity.LotID)
}

func (e *IdentityConflictError) Unwrap() error { return ErrCardExists }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true when the error is due to invalid ingestion input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnclassifiedLineItem) ||
		errors.Is(err, ErrUnknownReason) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrMissingOccurredDate) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrInvalidRange)
}

// IsConflict returns true when the error might succeed on retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCardExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCardNotFound)
}
