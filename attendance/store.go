/*
store.go - Persistence interface for polls and answers

PURPOSE:
  Defines the interface between the reconciler and the database. The Poll
  Store owns PollMetadata and the answer log; the ledger spreadsheet is not
  stored here.

KEY INTERFACES:
  Store:        Poll metadata (by poll id and by sent date) + answer log
  HolidayStore: Persisted holiday calendar

KEYING:
  Metadata is keyed by poll id, never only by calendar day, so an answer
  arriving after midnight still finds its poll. The by-date lookup exists for
  listing and legacy tooling.

APPEND-ONLY CONTRACT:
  - RecordPoll(): Write once. A second write with the same id is rejected.
  - AppendAnswer(): Append only. Concurrent appends for one poll never lose
    an entry.
  - NO Update() or Delete() methods exist for polls or answers.
  - SavePollResults(): Upsert. Only Telegram's latest tally is kept.

IMPLEMENTATIONS:
  - attendance/store/memory.go: In-memory for testing/dev
  - store/sqlite/sqlite.go: SQLite
  - store/bolt/bolt.go: bbolt, one JSON document per poll id

SEE ALSO:
  - ledger/reconciler.go: Main consumer
*/
package attendance

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicatePoll is returned when RecordPoll is called twice for one id.
var ErrDuplicatePoll = errors.New("poll already recorded")

// Store handles persistence of polls and their answer logs.
type Store interface {
	// RecordPoll persists metadata. Metadata is validated first.
	RecordPoll(ctx context.Context, m PollMetadata) error

	// GetPoll returns (nil, nil) when the poll id is unknown.
	GetPoll(ctx context.Context, pollID string) (*PollMetadata, error)

	// PollsSentOn returns polls whose local sent date is the civil date of day.
	PollsSentOn(ctx context.Context, day time.Time, loc *time.Location) ([]PollMetadata, error)

	// AppendAnswer adds a record to the poll's log.
	AppendAnswer(ctx context.Context, pollID string, rec AnswerRecord) error

	// Answers returns the log in append order.
	Answers(ctx context.Context, pollID string) ([]AnswerRecord, error)

	// SavePollResults replaces the stored Telegram tally for a poll.
	SavePollResults(ctx context.Context, r PollResults) error

	// PollResults returns (nil, nil) when no tally was reported.
	PollResults(ctx context.Context, pollID string) (*PollResults, error)
}

// HolidayStore persists the holiday calendar.
type HolidayStore interface {
	HolidayCalendar
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context) ([]Holiday, error)
}

// PollStore is what the server needs from a backend.
type PollStore interface {
	Store
	HolidayStore
	Close() error
}
