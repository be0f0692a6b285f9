/*
Package sqlite provides a SQLite-backed implementation of the poll store.

PURPOSE:
  Implements attendance.Store and attendance.HolidayStore using SQLite.

INTERFACES IMPLEMENTED:
  attendance.Store:        Poll metadata + append-only answer log
  attendance.HolidayStore: Holiday calendar

APPEND-ONLY ENFORCEMENT:
  - polls: INSERT only, poll_id is the primary key (duplicate = rejected)
  - answers: INSERT only, ordered by an autoincrement id
  - No UPDATE or DELETE statements on either table
  - poll_results: upsert, holds only Telegram's latest tally

KEY TABLES:
  polls:    One row per dispatched poll, keyed by poll_id
  answers:  Answer log, one row per received answer
  holidays: One-off and recurring holidays
  poll_results: Telegram's per-option counts, one row per poll

INDEXES:
  - idx_polls_sent_unix: By-date listing
  - idx_answers_poll: Answer log replay (hot path)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; each answer is a single INSERT, so
  concurrent appends for one poll can never overwrite each other.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/polls.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
  - store/bolt/bolt.go: Embedded key-value alternative
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/sholat-ledger/attendance"
)

// Store implements the poll store interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Polls (write once)
	CREATE TABLE IF NOT EXISTS polls (
		poll_id TEXT PRIMARY KEY,
		sent_at TEXT NOT NULL,
		sent_unix INTEGER NOT NULL,
		category TEXT NOT NULL,
		question TEXT NOT NULL,
		options_json TEXT NOT NULL,
		chat_id INTEGER,
		message_id INTEGER,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_polls_sent_unix
		ON polls(sent_unix);

	-- Answers (append-only)
	CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		poll_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT,
		option TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_answers_poll
		ON answers(poll_id, id);

	-- Telegram tallies (latest wins)
	CREATE TABLE IF NOT EXISTS poll_results (
		poll_id TEXT PRIMARY KEY,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		total_voters INTEGER NOT NULL,
		counts_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// POLL STORE (attendance.Store interface)
// =============================================================================

// RecordPoll inserts poll metadata. A second insert for the same id fails
// with attendance.ErrDuplicatePoll.
func (s *Store) RecordPoll(ctx context.Context, m attendance.PollMetadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	optionsJSON, err := json.Marshal(m.Options)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO polls (poll_id, sent_at, sent_unix, category, question, options_json, chat_id, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		m.PollID,
		m.SentAt.Format(time.RFC3339Nano),
		m.SentAt.Unix(),
		string(m.Category),
		m.Question,
		string(optionsJSON),
		m.ChatID,
		m.MessageID,
		time.Now().Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", attendance.ErrDuplicatePoll, m.PollID)
	}
	return err
}

// GetPoll returns (nil, nil) for an unknown poll id.
func (s *Store) GetPoll(ctx context.Context, pollID string) (*attendance.PollMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT poll_id, sent_at, category, question, options_json, chat_id, message_id
		FROM polls WHERE poll_id = ?
	`, pollID)

	m, err := scanPoll(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// PollsSentOn returns polls sent during the local day containing day.
func (s *Store) PollsSentOn(ctx context.Context, day time.Time, loc *time.Location) ([]attendance.PollMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx, `
		SELECT poll_id, sent_at, category, question, options_json, chat_id, message_id
		FROM polls WHERE sent_unix >= ? AND sent_unix < ?
		ORDER BY sent_unix ASC
	`, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var polls []attendance.PollMetadata
	for rows.Next() {
		m, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, m)
	}
	return polls, rows.Err()
}

// AppendAnswer inserts one answer row.
func (s *Store) AppendAnswer(ctx context.Context, pollID string, rec attendance.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var option sql.NullString
	if rec.Option != nil {
		option = sql.NullString{String: *rec.Option, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers (poll_id, user_id, user_name, option, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, pollID, rec.UserID, nullString(rec.User), option, rec.RecordedAt.Format(time.RFC3339Nano))
	return err
}

// Answers returns the log in insertion order.
func (s *Store) Answers(ctx context.Context, pollID string) ([]attendance.AnswerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, user_name, option, recorded_at
		FROM answers WHERE poll_id = ?
		ORDER BY id ASC
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []attendance.AnswerRecord
	for rows.Next() {
		var rec attendance.AnswerRecord
		var userName, option sql.NullString
		var recordedAt string
		if err := rows.Scan(&rec.UserID, &userName, &option, &recordedAt); err != nil {
			return nil, err
		}
		rec.User = userName.String
		if option.Valid {
			v := option.String
			rec.Option = &v
		}
		rec.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SavePollResults upserts Telegram's tally for a poll.
func (s *Store) SavePollResults(ctx context.Context, r attendance.PollResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts, err := json.Marshal(r.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO poll_results (poll_id, closed, total_voters, counts_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(poll_id) DO UPDATE SET
			closed = excluded.closed,
			total_voters = excluded.total_voters,
			counts_json = excluded.counts_json,
			updated_at = excluded.updated_at
	`, r.PollID, r.Closed, r.TotalVoters, string(counts), r.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// PollResults returns (nil, nil) when no tally was saved.
func (s *Store) PollResults(ctx context.Context, pollID string) (*attendance.PollResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := attendance.PollResults{PollID: pollID}
	var counts, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT closed, total_voters, counts_json, updated_at
		FROM poll_results WHERE poll_id = ?
	`, pollID).Scan(&r.Closed, &r.TotalVoters, &counts, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
		return nil, fmt.Errorf("poll %s: bad counts: %w", pollID, err)
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPoll(row scanner) (attendance.PollMetadata, error) {
	var m attendance.PollMetadata
	var sentAt, category, optionsJSON string
	var chatID sql.NullInt64
	var messageID sql.NullInt64
	if err := row.Scan(&m.PollID, &sentAt, &category, &m.Question, &optionsJSON, &chatID, &messageID); err != nil {
		return m, err
	}
	t, err := time.Parse(time.RFC3339Nano, sentAt)
	if err != nil {
		return m, fmt.Errorf("poll %s: bad sent_at %q: %w", m.PollID, sentAt, err)
	}
	m.SentAt = t
	m.Category = attendance.Category(category)
	if err := json.Unmarshal([]byte(optionsJSON), &m.Options); err != nil {
		return m, fmt.Errorf("poll %s: bad options: %w", m.PollID, err)
	}
	m.ChatID = chatID.Int64
	m.MessageID = int(messageID.Int64)
	return m, nil
}

// =============================================================================
// HOLIDAYS (attendance.HolidayStore interface)
// =============================================================================

// SaveHoliday saves a holiday to the database.
func (s *Store) SaveHoliday(ctx context.Context, h attendance.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.Date.Format("2006-01-02"),
		h.Name,
		h.Recurring,
		time.Now().Format(time.RFC3339),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// ListHolidays returns all holidays ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]attendance.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, name, recurring FROM holidays ORDER BY date ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []attendance.Holiday
	for rows.Next() {
		var h attendance.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date, _ = time.Parse("2006-01-02", dateStr)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// IsHoliday checks if a date is a holiday.
func (s *Store) IsHoliday(date time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (recurring = FALSE AND date = ?)
		   OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
	`

	var count int
	err := s.db.QueryRow(query, date.Format("2006-01-02"), date.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
