/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, keeping the wire
  contract (including the field names existing clients already use, such as
  "waktu", "row_updated" and "column_updated") apart from domain types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sholat-ledger/attendance"
)

// =============================================================================
// POLLS
// =============================================================================

// PollDTO represents stored poll metadata.
type PollDTO struct {
	PollID    string   `json:"poll_id"`
	SentAt    string   `json:"sent_at"`
	Date      string   `json:"date"`
	Waktu     string   `json:"waktu"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	ChatID    int64    `json:"chat_id,omitempty"`
	MessageID int      `json:"message_id,omitempty"`
}

func toPollDTO(m attendance.PollMetadata, loc *time.Location) PollDTO {
	return PollDTO{
		PollID:    m.PollID,
		SentAt:    m.SentAt.In(loc).Format(time.RFC3339),
		Date:      m.SentAt.In(loc).Format("2006-01-02"),
		Waktu:     string(m.Category),
		Question:  m.Question,
		Options:   m.Options,
		ChatID:    m.ChatID,
		MessageID: m.MessageID,
	}
}

// AnswerDTO is one entry of a poll's answer log. A null option is a retraction.
type AnswerDTO struct {
	UserID string  `json:"user_id"`
	User   string  `json:"user"`
	Option *string `json:"option"`
	Time   string  `json:"time"`
}

// OptionTallyDTO is one option's share of the latest answers.
type OptionTallyDTO struct {
	Option  string          `json:"option"`
	Voters  int             `json:"voters"`
	Percent decimal.Decimal `json:"percent"`
}

// SummaryDTO is the tally of a poll.
type SummaryDTO struct {
	PollID    string           `json:"poll_id"`
	Waktu     string           `json:"waktu"`
	Date      string           `json:"date"`
	Options   []OptionTallyDTO `json:"options"`
	Counted   int              `json:"counted"`
	Retracted int              `json:"retracted"`

	// Telegram is the tally from the last poll update, when one arrived.
	Telegram *TelegramTallyDTO `json:"telegram,omitempty"`
}

// TelegramTallyDTO is Telegram's own count, including anonymous votes.
type TelegramTallyDTO struct {
	Closed      bool             `json:"closed"`
	TotalVoters int              `json:"total_voters"`
	Options     []OptionCountDTO `json:"options"`
	UpdatedAt   string           `json:"updated_at"`
}

type OptionCountDTO struct {
	Option string `json:"option"`
	Voters int    `json:"voters"`
}

// =============================================================================
// TELEGRAM
// =============================================================================

// TestPollRequest simulates one member answering a poll.
type TestPollRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Option   string `json:"option"`
	Date     string `json:"date"`
	Waktu    string `json:"waktu"`
}

// TestPollDataDTO echoes the request merged with the ledger outcome.
type TestPollDataDTO struct {
	UserID        string `json:"user_id"`
	Option        string `json:"option"`
	Date          string `json:"date"`
	Waktu         string `json:"waktu"`
	PollID        string `json:"poll_id"`
	Sheet         string `json:"sheet,omitempty"`
	RowUpdated    int    `json:"row_updated,omitempty"`
	ColumnUpdated string `json:"column_updated,omitempty"`
	Value         bool   `json:"value"`
	RowCreated    bool   `json:"row_created,omitempty"`
	UserName      string `json:"user_name,omitempty"`
}

// ResultResponse is the envelope used by the telegram endpoints.
type ResultResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

type CreateHolidayRequest struct {
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error       string         `json:"error"`
	Details     string         `json:"details,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}
