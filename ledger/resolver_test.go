package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sholat-ledger/attendance"
	"github.com/warp/sholat-ledger/ledger"
	"github.com/warp/sholat-ledger/sheets"
)

// augustGrid is a month tab with two members, three spare rows and a totals block.
func augustGrid() [][]string {
	return [][]string{
		{"ABSENSI SHOLAT AGUSTUS 2025"},
		{"ID", "Nama", "1 Agustus", "", "4 Agustus", "", "6 Agustus", "", "11 Agustus", ""},
		{"", "", "Dzuhur", "Asar", "Dzuhur", "Asar", "Dzuhur", "Asar", "Dzuhur", "Asar"},
		{"101", "Ahmad"},
		{"102", "Budi"},
		{},
		{},
		{},
		{"Total Member", "2"},
		{"Total Sholat"},
	}
}

func TestColumnLetter_RoundTrip(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for idx, label := range cases {
		assert.Equal(t, label, ledger.ColumnLetter(idx), "index %d", idx)
		back, err := ledger.ColumnIndex(label)
		require.NoError(t, err)
		assert.Equal(t, idx, back, "label %s", label)
	}
	for i := 0; i < 2000; i++ {
		back, err := ledger.ColumnIndex(ledger.ColumnLetter(i))
		require.NoError(t, err)
		require.Equal(t, i, back)
	}

	_, err := ledger.ColumnIndex("A1")
	assert.Error(t, err)
	assert.Equal(t, "G6", ledger.CellRange(6, 6))
}

func TestFindRow(t *testing.T) {
	var r ledger.Resolver
	rows := augustGrid()

	row, ok := r.FindRow(rows, "102")
	assert.True(t, ok)
	assert.Equal(t, 5, row)

	row, ok = r.FindRow(rows, " 101 ")
	assert.True(t, ok, "identity is trimmed")
	assert.Equal(t, 4, row)

	_, ok = r.FindRow(rows, "999")
	assert.False(t, ok)
	_, ok = r.FindRow(rows, "")
	assert.False(t, ok)
}

func TestNextRow_StopsAtSummary(t *testing.T) {
	var r ledger.Resolver

	row, err := r.NextRow(augustGrid(), "103")
	require.NoError(t, err)
	assert.Equal(t, 6, row, "directly below the last member")
}

func TestNextRow_Errors(t *testing.T) {
	var r ledger.Resolver

	// No member rows at all.
	_, err := r.NextRow(augustGrid()[:3], "103")
	assert.ErrorIs(t, err, attendance.ErrRowCreationFailed)

	// Totals directly below the last member.
	tight := [][]string{{}, {"", "", "6"}, {"", "", "Dzuhur"}, {"101"}, {"TOTAL MEMBER"}}
	_, err = r.NextRow(tight, "103")
	var rowErr *ledger.RowCreationError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, "103", rowErr.Identity)
}

func TestNextRow_CustomMarkers(t *testing.T) {
	r := ledger.Resolver{SummaryMarkers: []string{"jumlah"}}
	rows := [][]string{{}, {}, {}, {"101"}, {}, {"Jumlah hadir"}, {"999"}}

	row, err := r.NextRow(rows, "x")
	require.NoError(t, err)
	assert.Equal(t, 5, row, "rows below the marker are ignored")
}

func TestFindOrCreateRow_Idempotent(t *testing.T) {
	// GIVEN: A tab without member 103
	ctx := context.Background()
	sheet := sheets.NewMemory()
	sheet.AddTab("AGUSTUS", augustGrid())
	w := ledger.Writer{Sheet: sheet}
	var r ledger.Resolver

	// WHEN: The member is resolved twice, re-reading in between
	rows, _ := sheet.ReadAll(ctx, "AGUSTUS")
	first, created, err := r.FindOrCreateRow(ctx, w, "AGUSTUS", rows, "103")
	require.NoError(t, err)
	assert.True(t, created)

	rows, _ = sheet.ReadAll(ctx, "AGUSTUS")
	second, created, err := r.FindOrCreateRow(ctx, w, "AGUSTUS", rows, "103")
	require.NoError(t, err)

	// THEN: The same row comes back and only one registration was written
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Len(t, sheet.Writes(), 1)
	assert.Equal(t, "103", sheet.Cell("AGUSTUS", "A6"))
}

func TestFindOrCreateRow_EmptyIdentity(t *testing.T) {
	var r ledger.Resolver
	_, _, err := r.FindOrCreateRow(context.Background(), ledger.Writer{Sheet: sheets.NewMemory()}, "AGUSTUS", augustGrid(), "  ")
	assert.ErrorIs(t, err, attendance.ErrRowCreationFailed)
}

func TestFindColumn(t *testing.T) {
	var r ledger.Resolver
	rows := augustGrid()

	tests := []struct {
		day  string
		cat  attendance.Category
		want string
	}{
		{"6", attendance.CategoryDzuhur, "G"},
		{"6", attendance.CategoryAsar, "H"},
		{"1", attendance.CategoryDzuhur, "C"},
		{"11", attendance.CategoryAsar, "J"},
		{"4", attendance.CategoryAsar, "F"},
	}
	for _, tt := range tests {
		col, err := r.FindColumn(rows, tt.day, tt.cat)
		require.NoError(t, err, "%s %s", tt.day, tt.cat)
		assert.Equal(t, tt.want, ledger.ColumnLetter(col), "%s %s", tt.day, tt.cat)
	}
}

func TestFindColumn_WholeWordDay(t *testing.T) {
	// GIVEN: Only day 11 and 21 exist
	var r ledger.Resolver
	rows := [][]string{
		{},
		{"", "", "11 Agustus", "", "21 Agustus", ""},
		{"", "", "Dzuhur", "Asar", "Dzuhur", "Asar"},
	}

	// THEN: Day 1 matches neither
	_, err := r.FindColumn(rows, "1", attendance.CategoryDzuhur)
	var colErr *ledger.ColumnNotFoundError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, -1, colErr.DateColumn)
	assert.Equal(t, "1", colErr.TargetDay)
	assert.True(t, errors.Is(err, attendance.ErrColumnNotFound))
}

func TestFindColumn_CategoryMissing(t *testing.T) {
	var r ledger.Resolver
	rows := [][]string{
		{},
		{"", "", "6 Agustus", ""},
		{"", "", "Dzuhur", ""},
	}

	_, err := r.FindColumn(rows, "6", attendance.CategoryAsar)
	var colErr *ledger.ColumnNotFoundError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, 2, colErr.DateColumn)
	assert.Equal(t, "asar", colErr.Category)
	assert.Equal(t, []string{"", "", "Dzuhur", ""}, colErr.SubHeaderRow)
}

func TestUserName(t *testing.T) {
	rows := augustGrid()
	assert.Equal(t, "Ahmad", ledger.UserName(rows, 4))
	assert.Equal(t, "", ledger.UserName(rows, 6))
	assert.Equal(t, "", ledger.UserName(rows, 100))
}
