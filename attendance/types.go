/*
Package attendance provides the domain model for the prayer attendance poll.

PURPOSE:
  A poll is dispatched to the group every business day for each prayer slot.
  Members answer it, and every answer is reconciled into a spreadsheet ledger.
  This package holds the types shared by the dispatcher, the poll store and
  the ledger reconciler.

KEY CONCEPTS IN THIS FILE (types.go):
  - Category: Which daily prayer slot the poll concerns (dzuhur, asar)
  - Option: A validated {index, label} pair, fixed when the poll is created
  - PollMetadata: Immutable record of a dispatched poll
  - AnswerRecord: One entry of the append-only answer log
  - Answer: An incoming answer event, before reconciliation

DESIGN PRINCIPLES:
  1. Immutability: Poll metadata never changes after dispatch
  2. Append-only: Answers are never edited; a retraction is a new record
  3. Validation at creation: Options are checked once, when the poll is built

SEE ALSO:
  - store.go: Poll Store interface
  - schedule.go: Schedule Gate
  - ledger/reconciler.go: Consumes these types
*/
package attendance

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// CATEGORY - Daily prayer slot
// =============================================================================

type Category string

const (
	CategoryDzuhur Category = "dzuhur" // early prayer
	CategoryAsar   Category = "asar"   // late prayer
)

// Categories lists every category in dispatch order.
var Categories = []Category{CategoryDzuhur, CategoryAsar}

var categoryAliases = map[string]Category{
	"dzuhur": CategoryDzuhur,
	"zuhur":  CategoryDzuhur,
	"dhuhr":  CategoryDzuhur,
	"asar":   CategoryAsar,
	"ashar":  CategoryAsar,
	"asr":    CategoryAsar,
}

// ParseCategory maps a user or config supplied name to a Category.
func ParseCategory(s string) (Category, error) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// Label is the text expected in the ledger sub-header row.
func (c Category) Label() string { return string(c) }

// Title is the capitalized name used in poll questions.
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

func (c Category) Valid() bool { return c == CategoryDzuhur || c == CategoryAsar }

// =============================================================================
// OPTION - Validated answer choice
// =============================================================================

// Option is one of the two fixed answers of a poll.
// Index 0 is the attending option ("Masjid").
type Option struct {
	Index int
	Label string
}

// Attending reports whether choosing this option marks the member present.
func (o Option) Attending() bool { return o.Index == 0 }

// DefaultOptions are the labels used by the daily poll.
var DefaultOptions = []string{"Masjid", "Basecamp"}

// =============================================================================
// POLL METADATA - Immutable record of a dispatched poll
// =============================================================================

type PollMetadata struct {
	PollID    string    `json:"poll_id"`
	SentAt    time.Time `json:"sent_at"`
	Category  Category  `json:"waktu"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	ChatID    int64     `json:"chat_id,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
}

// NewPollMetadata builds and validates poll metadata.
func NewPollMetadata(pollID string, sentAt time.Time, category Category, question string, options []string) (PollMetadata, error) {
	m := PollMetadata{
		PollID:   pollID,
		SentAt:   sentAt,
		Category: category,
		Question: question,
		Options:  append([]string(nil), options...),
	}
	if err := m.Validate(); err != nil {
		return PollMetadata{}, err
	}
	return m, nil
}

// Validate checks the invariants every stored poll must satisfy.
func (m PollMetadata) Validate() error {
	if strings.TrimSpace(m.PollID) == "" {
		return fmt.Errorf("%w: empty poll id", ErrInvalidPoll)
	}
	if m.SentAt.IsZero() {
		return fmt.Errorf("%w: missing sent_at", ErrInvalidPoll)
	}
	if !m.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, m.Category)
	}
	if len(m.Options) != 2 {
		return fmt.Errorf("%w: want 2 options, got %d", ErrInvalidPoll, len(m.Options))
	}
	for i, o := range m.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrInvalidPoll, i)
		}
	}
	return nil
}

// Option resolves an answer index. A nil or out-of-range index is not recognized.
func (m PollMetadata) Option(index *int) (Option, bool) {
	if index == nil || *index < 0 || *index >= len(m.Options) {
		return Option{}, false
	}
	return Option{Index: *index, Label: m.Options[*index]}, true
}

// OptionByLabel resolves a label, case-insensitively.
func (m PollMetadata) OptionByLabel(label string) (Option, bool) {
	for i, o := range m.Options {
		if strings.EqualFold(strings.TrimSpace(o), strings.TrimSpace(label)) {
			return Option{Index: i, Label: o}, true
		}
	}
	return Option{}, false
}

// =============================================================================
// ANSWERS
// =============================================================================

// User identifies who answered. ID is the ledger identity.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Answer is an incoming answer event. OptionIndex is nil for a retracted vote.
type Answer struct {
	PollID      string
	User        User
	OptionIndex *int
}

// AnswerRecord is one entry of the append-only answer log.
// Option is nil for a retraction or an unrecognized index.
type AnswerRecord struct {
	UserID     string    `json:"user_id"`
	User       string    `json:"user"`
	Option     *string   `json:"option"`
	RecordedAt time.Time `json:"time"`
}

// NormalizeIdentity is the key used to match ledger rows.
func NormalizeIdentity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IntPtr is a small helper for building answers.
func IntPtr(i int) *int { return &i }
