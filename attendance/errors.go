/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All sentinel errors in one place. Structured errors in the ledger package
  carry diagnostics and unwrap to these, so callers can always branch with
  errors.Is regardless of which layer produced the failure.

ERROR CATEGORIES:
  1. Reconciliation failures - UnknownPoll, TabNotFound, RowCreationFailed,
     ColumnNotFound, WriteError. Terminal for the current answer, no retry.
  2. Configuration - missing ledger identifier, bad timezone, bad times
  3. Validation - malformed polls and categories

SEE ALSO:
  - ledger/errors.go: Structured errors with diagnostic payloads
  - api/handlers.go: Maps these to HTTP status codes
*/
package attendance

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownPoll is returned when an answer references a poll id with no metadata.
	ErrUnknownPoll = errors.New("unknown poll")

	// ErrTabNotFound is returned when no ledger tab matches the poll period.
	ErrTabNotFound = errors.New("ledger tab not found")

	// ErrRowCreationFailed is returned when a member row can be neither found nor created.
	ErrRowCreationFailed = errors.New("ledger row creation failed")

	// ErrColumnNotFound is returned when no column matches the poll day and category.
	ErrColumnNotFound = errors.New("ledger column not found")

	// ErrWriteError is returned when the ledger range update fails.
	ErrWriteError = errors.New("ledger write failed")

	// ErrConfiguration is returned for missing or invalid settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidPoll is returned when poll metadata violates its invariants.
	ErrInvalidPoll = errors.New("invalid poll")

	// ErrInvalidCategory is returned for an unknown prayer category.
	ErrInvalidCategory = errors.New("invalid category")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing poll or ledger location.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownPoll) ||
		errors.Is(err, ErrTabNotFound) ||
		errors.Is(err, ErrColumnNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPoll) ||
		errors.Is(err, ErrInvalidCategory)
}
