// Package store provides an in-memory attendance.PollStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/sholat-ledger/attendance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	polls    map[string]attendance.PollMetadata
	answers  map[string][]attendance.AnswerRecord
	holidays map[string]attendance.Holiday
	results  map[string]attendance.PollResults
}

func NewMemory() *Memory {
	return &Memory{
		polls:    make(map[string]attendance.PollMetadata),
		answers:  make(map[string][]attendance.AnswerRecord),
		holidays: make(map[string]attendance.Holiday),
		results:  make(map[string]attendance.PollResults),
	}
}

// RecordPoll stores metadata once.
func (m *Memory) RecordPoll(_ context.Context, meta attendance.PollMetadata) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.polls[meta.PollID]; ok {
		return fmt.Errorf("%w: %s", attendance.ErrDuplicatePoll, meta.PollID)
	}
	meta.Options = append([]string(nil), meta.Options...)
	m.polls[meta.PollID] = meta
	return nil
}

func (m *Memory) GetPoll(_ context.Context, pollID string) (*attendance.PollMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, ok := m.polls[pollID]
	if !ok {
		return nil, nil
	}
	meta.Options = append([]string(nil), meta.Options...)
	return &meta, nil
}

func (m *Memory) PollsSentOn(_ context.Context, day time.Time, loc *time.Location) ([]attendance.PollMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := day.In(loc).Format("2006-01-02")
	var result []attendance.PollMetadata
	for _, meta := range m.polls {
		if meta.SentAt.In(loc).Format("2006-01-02") == want {
			result = append(result, meta)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SentAt.Before(result[j].SentAt) })
	return result, nil
}

// AppendAnswer adds a record. Append-only.
func (m *Memory) AppendAnswer(_ context.Context, pollID string, rec attendance.AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[pollID] = append(m.answers[pollID], rec)
	return nil
}

func (m *Memory) Answers(_ context.Context, pollID string) ([]attendance.AnswerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.AnswerRecord, len(m.answers[pollID]))
	copy(result, m.answers[pollID])
	return result, nil
}

func (m *Memory) SavePollResults(_ context.Context, r attendance.PollResults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Counts = append([]attendance.OptionCount(nil), r.Counts...)
	m.results[r.PollID] = r
	return nil
}

func (m *Memory) PollResults(_ context.Context, pollID string) (*attendance.PollResults, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.results[pollID]
	if !ok {
		return nil, nil
	}
	r.Counts = append([]attendance.OptionCount(nil), r.Counts...)
	return &r, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) SaveHoliday(_ context.Context, h attendance.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holidays, id)
	return nil
}

func (m *Memory) ListHolidays(_ context.Context) ([]attendance.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]attendance.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) IsHoliday(date time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	y, mo, d := date.Date()
	for _, h := range m.holidays {
		if h.Matches(y, mo, d) {
			return true
		}
	}
	return false
}

func (m *Memory) Close() error { return nil }
