package ledger

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/warp/sholat-ledger/attendance"
)

// DefaultSummaryMarkers start the totals block at the bottom of a tab.
var DefaultSummaryMarkers = []string{"total member", "total sholat", "toleransi"}

// Resolver finds cells in one grid snapshot. First match wins in every scan.
type Resolver struct {
	SummaryMarkers []string
}

func (r Resolver) markers() []string {
	if len(r.SummaryMarkers) == 0 {
		return DefaultSummaryMarkers
	}
	return r.SummaryMarkers
}

func (r Resolver) isSummary(v string) bool {
	v = strings.ToLower(v)
	for _, m := range r.markers() {
		if m != "" && strings.Contains(v, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// =============================================================================
// ROW RESOLUTION
// =============================================================================

// FindRow returns the 1-based row whose column 0 matches identity.
func (r Resolver) FindRow(rows [][]string, identity string) (int, bool) {
	want := attendance.NormalizeIdentity(identity)
	if want == "" {
		return 0, false
	}
	for i := range rows {
		if attendance.NormalizeIdentity(cell(rows, i, 0)) == want {
			return i + 1, true
		}
	}
	return 0, false
}

// NextRow returns the 1-based row for a new member: the row right below the
// last member row above the first summary marker.
func (r Resolver) NextRow(rows [][]string, identity string) (int, error) {
	last := -1
	for i := range rows {
		v := cell(rows, i, 0)
		if r.isSummary(v) {
			break
		}
		if i >= FirstUserRow && v != "" {
			last = i
		}
	}
	if last < 0 {
		return 0, &RowCreationError{Identity: identity, Reason: "tab has no member rows to append below"}
	}

	// +1 past the last member, +1 for 1-based rows.
	next := last + 2
	if v := cell(rows, next-1, 0); v != "" {
		return 0, &RowCreationError{
			Identity: identity,
			Reason:   fmt.Sprintf("row %d is occupied by %q; leave a blank row above the totals", next, v),
		}
	}
	return next, nil
}

// FindOrCreateRow returns the member's 1-based row, writing the identity
// into column 0 of a new row when the member is not yet registered.
func (r Resolver) FindOrCreateRow(ctx context.Context, w Writer, tab string, rows [][]string, identity string) (row int, created bool, err error) {
	if strings.TrimSpace(identity) == "" {
		return 0, false, &RowCreationError{Identity: identity, Reason: "empty identity"}
	}
	if row, ok := r.FindRow(rows, identity); ok {
		return row, false, nil
	}
	row, err = r.NextRow(rows, identity)
	if err != nil {
		return 0, false, err
	}
	if err := w.WriteCell(ctx, tab, row, 0, strings.TrimSpace(identity)); err != nil {
		return 0, false, fmt.Errorf("register %q at row %d: %w", identity, row, err)
	}
	return row, true, nil
}

// =============================================================================
// COLUMN RESOLUTION
// =============================================================================

// FindColumn returns the 0-based column for day (e.g. "6") and category.
// The date header must contain day as a whole word, so "1" never matches
// "11" or "21". The category is then searched in the sub-header row from the
// date column rightwards.
func (r Resolver) FindColumn(rows [][]string, day string, category attendance.Category) (int, error) {
	notFound := &ColumnNotFoundError{
		TargetDay:    day,
		Category:     category.Label(),
		DateColumn:   -1,
		DateRow:      rowAt(rows, DateHeaderRow),
		SubHeaderRow: rowAt(rows, SubHeaderRow),
	}

	dayPattern, err := regexp.Compile(`\b` + regexp.QuoteMeta(day) + `\b`)
	if err != nil || day == "" {
		return -1, notFound
	}

	dateCol := -1
	if DateHeaderRow < len(rows) {
		for c := range rows[DateHeaderRow] {
			if dayPattern.MatchString(cell(rows, DateHeaderRow, c)) {
				dateCol = c
				break
			}
		}
	}
	if dateCol < 0 {
		return -1, notFound
	}
	notFound.DateColumn = dateCol

	if SubHeaderRow < len(rows) {
		for c := dateCol; c < len(rows[SubHeaderRow]); c++ {
			if strings.EqualFold(cell(rows, SubHeaderRow, c), category.Label()) {
				return c, nil
			}
		}
	}
	return -1, notFound
}

// UserName returns the display name in column 1 of a 1-based row, if any.
func UserName(rows [][]string, row int) string {
	return cell(rows, row-1, 1)
}
