package attendance

import (
	"time"
)

// =============================================================================
// HOLIDAY CALENDAR - Days with no poll
// =============================================================================

// Holiday is a day the group does not meet. Date is a civil date (UTC midnight).
type Holiday struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Name      string    `json:"name"`
	Recurring bool      `json:"recurring"` // true = same month/day every year
}

// Matches reports whether the holiday falls on the civil date y-m-d.
func (h Holiday) Matches(y int, m time.Month, d int) bool {
	if h.Recurring {
		return h.Date.Month() == m && h.Date.Day() == d
	}
	return h.Date.Year() == y && h.Date.Month() == m && h.Date.Day() == d
}

// HolidayCalendar provides holiday lookup for a local date.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// HolidaySet is a static calendar, typically loaded from configuration.
type HolidaySet []Holiday

func (s HolidaySet) IsHoliday(date time.Time) bool {
	y, m, d := date.Date()
	for _, h := range s {
		if h.Matches(y, m, d) {
			return true
		}
	}
	return false
}

// ParseHolidaySet parses YYYY-MM-DD dates.
func ParseHolidaySet(dates []string) (HolidaySet, error) {
	set := make(HolidaySet, 0, len(dates))
	for _, s := range dates {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, err
		}
		set = append(set, Holiday{ID: s, Date: t, Name: s})
	}
	return set, nil
}

// Calendars merges several calendars; a date is a holiday if any says so.
type Calendars []HolidayCalendar

func (cs Calendars) IsHoliday(date time.Time) bool {
	for _, c := range cs {
		if c != nil && c.IsHoliday(date) {
			return true
		}
	}
	return false
}

// =============================================================================
// SCHEDULE GATE - Should a poll go out today?
// =============================================================================

type SkipReason string

const (
	SendPoll         SkipReason = ""
	SkipWeekend      SkipReason = "weekend"
	SkipCongregation SkipReason = "congregational prayer"
	SkipHoliday      SkipReason = "holiday"
	SkipInvalid      SkipReason = "invalid category"
)

// Gate decides whether a poll is sent on a given date.
// It holds no state between calls; evaluate it fresh every day.
type Gate struct {
	Weekend           []time.Weekday
	CongregationalDay time.Weekday
	Location          *time.Location
}

// DefaultGate skips Saturday, Sunday and the Friday dzuhur.
func DefaultGate(loc *time.Location) Gate {
	return Gate{
		Weekend:           []time.Weekday{time.Saturday, time.Sunday},
		CongregationalDay: time.Friday,
		Location:          loc,
	}
}

// Evaluate returns SendPoll or the first rule that blocks the poll.
// Rules in order: weekend, dzuhur on the congregational day, holiday.
func (g Gate) Evaluate(date time.Time, c Category, holidays HolidayCalendar) SkipReason {
	if !c.Valid() {
		return SkipInvalid
	}
	if g.Location != nil {
		date = date.In(g.Location)
	}
	wd := date.Weekday()
	for _, w := range g.Weekend {
		if wd == w {
			return SkipWeekend
		}
	}
	if c == CategoryDzuhur && wd == g.CongregationalDay {
		return SkipCongregation
	}
	if holidays != nil && holidays.IsHoliday(date) {
		return SkipHoliday
	}
	return SendPoll
}

// ShouldSend is Evaluate collapsed to a bool.
func (g Gate) ShouldSend(date time.Time, c Category, holidays HolidayCalendar) bool {
	return g.Evaluate(date, c, holidays) == SendPoll
}
