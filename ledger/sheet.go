/*
Package ledger reconciles poll answers into the attendance spreadsheet.

PURPOSE:
  Maps an incoming answer to exactly one ledger cell (tab, row, column) from
  the poll's sent time and category, registers first-time members, and writes
  the mark. The spreadsheet is reached only through the narrow Sheet
  interface below.

LEDGER LAYOUT:
  Each tab is one month (e.g. "AGUSTUS") or one year ("2025").
    row 0:  title (unused)
    row 1:  date headers, e.g. "1 Agustus", one per date group
    row 2:  category sub-headers, e.g. "Dzuhur", "Asar"
    row 3+: one row per member, identity in column 0, optional name in column 1
  Rows from the first summary marker ("Total Member", ...) down are never
  member rows.

COMPONENTS:
  Locator:    Resolves a tab from ordered candidates (locator.go)
  Resolver:   Finds or creates the member row, finds the column (resolver.go)
  Writer:     Single-cell update with A1 column letters (writer.go)
  Reconciler: Orchestrates the above per answer (reconciler.go)

CONCURRENCY:
  Row creation is read-then-write. All row/column resolution and the write
  for one tab run under a per-tab Locker so two new members never compute
  the same insertion row.

SEE ALSO:
  - sheets/: Google Sheets and in-memory Sheet implementations
  - attendance/: Poll metadata and answer log
*/
package ledger

import (
	"context"
	"strings"
)

// Sheet is the external ledger range API.
type Sheet interface {
	// ListTabs returns the tab names in spreadsheet order.
	ListTabs(ctx context.Context) ([]string, error)

	// ReadAll returns the tab as a grid of formatted strings. Rows may be ragged.
	ReadAll(ctx context.Context, tab string) ([][]string, error)

	// WriteRange updates rangeSpec (A1 notation without the tab) in tab.
	WriteRange(ctx context.Context, tab, rangeSpec string, values [][]any) error
}

// Grid row indexes (0-based).
const (
	DateHeaderRow = 1
	SubHeaderRow  = 2
	FirstUserRow  = 3
)

// cell returns the trimmed value at rows[r][c], or "" when out of range.
func cell(rows [][]string, r, c int) string {
	if r < 0 || r >= len(rows) || c < 0 || c >= len(rows[r]) {
		return ""
	}
	return strings.TrimSpace(rows[r][c])
}

func rowAt(rows [][]string, r int) []string {
	if r < 0 || r >= len(rows) {
		return nil
	}
	return append([]string(nil), rows[r]...)
}

func hasContent(rows [][]string) bool {
	for _, row := range rows {
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				return true
			}
		}
	}
	return false
}
