package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/sholat-ledger/attendance"
)

// =============================================================================
// STRUCTURED ERRORS - Carry diagnostics, unwrap to attendance sentinels
// =============================================================================

// TabNotFoundError lists what was tried and what the spreadsheet offered.
type TabNotFoundError struct {
	Candidates []string
	Available  []string
	ListErr    error // set when listing tabs failed
}

func (e *TabNotFoundError) Error() string {
	msg := fmt.Sprintf("no tab matches %s (available: %s)",
		strings.Join(e.Candidates, ", "), strings.Join(e.Available, ", "))
	if e.ListErr != nil {
		msg += fmt.Sprintf("; list tabs: %v", e.ListErr)
	}
	return msg
}

func (e *TabNotFoundError) Unwrap() []error {
	if e.ListErr != nil {
		return []error{attendance.ErrTabNotFound, e.ListErr}
	}
	return []error{attendance.ErrTabNotFound}
}

// ColumnNotFoundError is the debug payload of a failed column scan.
type ColumnNotFoundError struct {
	TargetDay    string
	Category     string
	DateColumn   int // -1 when the date itself was not found
	DateRow      []string
	SubHeaderRow []string
}

func (e *ColumnNotFoundError) Error() string {
	if e.DateColumn < 0 {
		return fmt.Sprintf("date %s not found in header row %q", e.TargetDay, e.DateRow)
	}
	return fmt.Sprintf("category %s not found from column %s for date %s in sub-header row %q",
		e.Category, ColumnLetter(e.DateColumn), e.TargetDay, e.SubHeaderRow)
}

func (e *ColumnNotFoundError) Unwrap() error { return attendance.ErrColumnNotFound }

// RowCreationError explains why no member row could be placed.
type RowCreationError struct {
	Identity string
	Reason   string
}

func (e *RowCreationError) Error() string {
	return fmt.Sprintf("cannot create row for %q: %s", e.Identity, e.Reason)
}

func (e *RowCreationError) Unwrap() error { return attendance.ErrRowCreationFailed }

// =============================================================================
// RECONCILE ERROR - Terminal failure of one answer
// =============================================================================

// Stage is a state of the answer reconciliation.
type Stage string

const (
	StageReceived       Stage = "received"
	StageMetadataLookup Stage = "metadata_lookup"
	StageTabResolved    Stage = "tab_resolved"
	StageRowResolved    Stage = "row_resolved"
	StageColumnResolved Stage = "column_resolved"
	StageWritten        Stage = "written"
)

// ReconcileError is returned for every Failed transition. Stage is the state
// that could not be reached; Reason is one of the attendance sentinels.
type ReconcileError struct {
	Stage    Stage
	Reason   error
	PollID   string
	Identity string
	Err      error
}

func (e *ReconcileError) Error() string {
	msg := fmt.Sprintf("%v: poll %s, user %s, stage %s", e.Reason, e.PollID, e.Identity, e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReconcileError) Unwrap() []error {
	errs := []error{e.Reason}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Diagnostics flattens the structured cause for logging and API responses.
func (e *ReconcileError) Diagnostics() map[string]any {
	d := map[string]any{
		"stage":    string(e.Stage),
		"poll_id":  e.PollID,
		"identity": e.Identity,
	}
	var tabErr *TabNotFoundError
	var colErr *ColumnNotFoundError
	var rowErr *RowCreationError
	switch {
	case errors.As(e.Err, &tabErr):
		d["candidates"] = tabErr.Candidates
		d["available_tabs"] = tabErr.Available
	case errors.As(e.Err, &colErr):
		d["target_day"] = colErr.TargetDay
		d["category"] = colErr.Category
		d["date_row"] = colErr.DateRow
		d["sub_header_row"] = colErr.SubHeaderRow
	case errors.As(e.Err, &rowErr):
		d["reason"] = rowErr.Reason
	}
	return d
}
