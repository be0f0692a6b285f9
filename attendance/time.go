package attendance

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// LOCAL CALENDAR - Indonesian month/day names and tab candidates
// =============================================================================

// DefaultTimezone is where the group lives; ledger dates are local dates.
const DefaultTimezone = "Asia/Jakarta"

var monthNames = [...]string{
	"JANUARI", "FEBRUARI", "MARET", "APRIL", "MEI", "JUNI",
	"JULI", "AGUSTUS", "SEPTEMBER", "OKTOBER", "NOVEMBER", "DESEMBER",
}

var dayNames = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

// MonthName returns the upper-case Indonesian month name used as a tab name.
func MonthName(m time.Month) string { return monthNames[m-1] }

// DayName returns the Indonesian weekday name.
func DayName(d time.Weekday) string { return dayNames[d] }

// LoadLocation wraps time.LoadLocation with a configuration error.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrConfiguration, name, err)
	}
	return loc, nil
}

// TabCandidates returns the ledger tab names to try for a poll sent at t,
// finest partition first: [month name, 4-digit year].
func TabCandidates(t time.Time, loc *time.Location) []string {
	local := t.In(loc)
	return []string{MonthName(local.Month()), strconv.Itoa(local.Year())}
}

// LocalDay is the poll's calendar day as it appears in the date header row.
func LocalDay(t time.Time, loc *time.Location) string {
	return strconv.Itoa(t.In(loc).Day())
}

// Question renders the poll text, e.g. "Sholat Dzuhur di Masjid ( Rabu, 6 Agustus 2025 )".
func Question(c Category, t time.Time, loc *time.Location) string {
	local := t.In(loc)
	month := MonthName(local.Month())
	month = month[:1] + strings.ToLower(month[1:])
	return fmt.Sprintf("Sholat %s di Masjid ( %s, %d %s %d )",
		c.Title(), DayName(local.Weekday()), local.Day(), month, local.Year())
}

// ParseClock parses an "HH:MM" dispatch time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q: want HH:MM", ErrConfiguration, s)
	}
	return t.Hour(), t.Minute(), nil
}
