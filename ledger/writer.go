package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// COLUMN LETTERS - Bijective base-26 (A..Z, AA..ZZ, AAA..)
// =============================================================================

// ColumnLetter converts a 0-based column index to its A1 label.
// 0 -> A, 25 -> Z, 26 -> AA, 701 -> ZZ, 702 -> AAA.
func ColumnLetter(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append(b, byte('A'+(n-1)%26))
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// ColumnIndex converts an A1 label back to a 0-based column index.
func ColumnIndex(label string) (int, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return 0, fmt.Errorf("empty column label")
	}
	n := 0
	for _, r := range label {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column label %q", label)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// CellRange builds the single-cell A1 range for a 1-based row and 0-based column.
func CellRange(row, column int) string {
	return ColumnLetter(column) + strconv.Itoa(row)
}

// =============================================================================
// WRITER - Exactly one cell per call
// =============================================================================

type Writer struct {
	Sheet Sheet
}

// WriteCell mutates one cell. row is 1-based, column 0-based.
// A failed write is returned unmodified; there is no batching or rollback.
func (w Writer) WriteCell(ctx context.Context, tab string, row, column int, value any) error {
	if row < 1 || column < 0 {
		return fmt.Errorf("invalid cell row=%d column=%d", row, column)
	}
	return w.Sheet.WriteRange(ctx, tab, CellRange(row, column), [][]any{{value}})
}
