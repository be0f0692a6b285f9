package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation(DefaultTimezone)
	require.NoError(t, err)
	return loc
}

func TestGate_WeekdayRules(t *testing.T) {
	loc := jakarta(t)
	gate := DefaultGate(loc)

	// 2025-08-04 is a Monday.
	monday := time.Date(2025, 8, 4, 9, 0, 0, 0, loc)
	tests := []struct {
		name   string
		offset int
		cat    Category
		want   SkipReason
	}{
		{"monday dzuhur", 0, CategoryDzuhur, SendPoll},
		{"thursday asar", 3, CategoryAsar, SendPoll},
		{"friday dzuhur skipped", 4, CategoryDzuhur, SkipCongregation},
		{"friday asar sent", 4, CategoryAsar, SendPoll},
		{"saturday dzuhur", 5, CategoryDzuhur, SkipWeekend},
		{"saturday asar", 5, CategoryAsar, SkipWeekend},
		{"sunday asar", 6, CategoryAsar, SkipWeekend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day := monday.AddDate(0, 0, tt.offset)
			assert.Equal(t, tt.want, gate.Evaluate(day, tt.cat, nil))
			assert.Equal(t, tt.want == SendPoll, gate.ShouldSend(day, tt.cat, nil))
		})
	}
}

func TestGate_UsesLocalDate(t *testing.T) {
	// GIVEN: Friday 23:30 UTC, which is already Saturday in Jakarta
	loc := jakarta(t)
	gate := DefaultGate(loc)
	instant := time.Date(2025, 8, 8, 23, 30, 0, 0, time.UTC)

	// THEN: The weekend rule applies
	assert.Equal(t, SkipWeekend, gate.Evaluate(instant, CategoryAsar, nil))
}

func TestGate_Holidays(t *testing.T) {
	loc := jakarta(t)
	gate := DefaultGate(loc)

	oneOff, err := ParseHolidaySet([]string{"2025-08-11"})
	require.NoError(t, err)
	recurring := HolidaySet{{ID: "new-year", Date: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), Recurring: true}}
	cal := Calendars{oneOff, recurring, nil}

	assert.Equal(t, SkipHoliday, gate.Evaluate(time.Date(2025, 8, 11, 9, 0, 0, 0, loc), CategoryDzuhur, cal))
	assert.Equal(t, SendPoll, gate.Evaluate(time.Date(2025, 8, 12, 9, 0, 0, 0, loc), CategoryDzuhur, cal))
	// 2027-01-01 is a Friday; asar is only blocked by the holiday.
	assert.Equal(t, SkipHoliday, gate.Evaluate(time.Date(2027, 1, 1, 9, 0, 0, 0, loc), CategoryAsar, cal))
}

func TestGate_WeekendWinsOverHoliday(t *testing.T) {
	loc := jakarta(t)
	cal, err := ParseHolidaySet([]string{"2025-08-17"}) // a Sunday
	require.NoError(t, err)

	assert.Equal(t, SkipWeekend, DefaultGate(loc).Evaluate(time.Date(2025, 8, 17, 9, 0, 0, 0, loc), CategoryDzuhur, cal))
}

func TestGate_InvalidCategory(t *testing.T) {
	loc := jakarta(t)
	assert.Equal(t, SkipInvalid, DefaultGate(loc).Evaluate(time.Date(2025, 8, 4, 9, 0, 0, 0, loc), Category("maghrib"), nil))
}

func TestParseHolidaySet_RejectsBadDate(t *testing.T) {
	_, err := ParseHolidaySet([]string{"2025-13-01"})
	assert.Error(t, err)
}
