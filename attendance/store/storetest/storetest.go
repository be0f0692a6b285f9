// Package storetest is a conformance suite every attendance.PollStore must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sholat-ledger/attendance"
)

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) attendance.PollStore) {
	t.Run("RecordAndGet", func(t *testing.T) { testRecordAndGet(t, newStore(t)) })
	t.Run("RejectsDuplicateAndInvalid", func(t *testing.T) { testRejects(t, newStore(t)) })
	t.Run("PollsSentOnLocalDate", func(t *testing.T) { testPollsSentOn(t, newStore(t)) })
	t.Run("AnswerLogOrder", func(t *testing.T) { testAnswerLog(t, newStore(t)) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("Holidays", func(t *testing.T) { testHolidays(t, newStore(t)) })
	t.Run("PollResultsLatestWins", func(t *testing.T) { testPollResults(t, newStore(t)) })
}

func jakarta(t *testing.T) *time.Location {
	t.Helper()
	loc, err := attendance.LoadLocation(attendance.DefaultTimezone)
	require.NoError(t, err)
	return loc
}

func poll(t *testing.T, id string, sentAt time.Time, c attendance.Category) attendance.PollMetadata {
	t.Helper()
	m, err := attendance.NewPollMetadata(id, sentAt, c, "Sholat "+c.Title(), attendance.DefaultOptions)
	require.NoError(t, err)
	return m
}

func testRecordAndGet(t *testing.T, s attendance.PollStore) {
	ctx := context.Background()
	loc := jakarta(t)

	// GIVEN: A dispatched poll with chat coordinates
	m := poll(t, "5432", time.Date(2025, 8, 6, 8, 56, 0, 0, loc), attendance.CategoryDzuhur)
	m.ChatID = -100123
	m.MessageID = 77
	require.NoError(t, s.RecordPoll(ctx, m))

	// WHEN: It is read back by id
	got, err := s.GetPoll(ctx, "5432")

	// THEN: Every field survives
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.PollID, got.PollID)
	assert.True(t, m.SentAt.Equal(got.SentAt))
	assert.Equal(t, attendance.CategoryDzuhur, got.Category)
	assert.Equal(t, m.Question, got.Question)
	assert.Equal(t, attendance.DefaultOptions, got.Options)
	assert.Equal(t, int64(-100123), got.ChatID)
	assert.Equal(t, 77, got.MessageID)

	// Unknown ids are (nil, nil).
	missing, err := s.GetPoll(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testRejects(t *testing.T, s attendance.PollStore) {
	ctx := context.Background()
	m := poll(t, "dup", time.Date(2025, 8, 6, 1, 56, 0, 0, time.UTC), attendance.CategoryAsar)
	require.NoError(t, s.RecordPoll(ctx, m))

	err := s.RecordPoll(ctx, m)
	assert.ErrorIs(t, err, attendance.ErrDuplicatePoll)

	bad := m
	bad.PollID = "bad"
	bad.Options = []string{"only one"}
	assert.ErrorIs(t, s.RecordPoll(ctx, bad), attendance.ErrInvalidPoll)
}

func testPollsSentOn(t *testing.T, s attendance.PollStore) {
	ctx := context.Background()
	loc := jakarta(t)

	// GIVEN: Two polls on 6 Aug (local) and one sent at 00:30 local on 7 Aug,
	// which is still 6 Aug in UTC
	require.NoError(t, s.RecordPoll(ctx, poll(t, "asar-6", time.Date(2025, 8, 6, 11, 13, 0, 0, loc), attendance.CategoryAsar)))
	require.NoError(t, s.RecordPoll(ctx, poll(t, "dzuhur-6", time.Date(2025, 8, 6, 8, 56, 0, 0, loc), attendance.CategoryDzuhur)))
	require.NoError(t, s.RecordPoll(ctx, poll(t, "early-7", time.Date(2025, 8, 7, 0, 30, 0, 0, loc), attendance.CategoryDzuhur)))

	// WHEN: Listing 6 Aug in Jakarta
	got, err := s.PollsSentOn(ctx, time.Date(2025, 8, 6, 15, 0, 0, 0, loc), loc)

	// THEN: Only the local-date matches, oldest first
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dzuhur-6", got[0].PollID)
	assert.Equal(t, "asar-6", got[1].PollID)

	next, err := s.PollsSentOn(ctx, time.Date(2025, 8, 7, 12, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "early-7", next[0].PollID)
}

func testAnswerLog(t *testing.T, s attendance.PollStore) {
	ctx := context.Background()
	at := time.Date(2025, 8, 6, 2, 0, 0, 0, time.UTC)
	masjid := "Masjid"

	require.NoError(t, s.AppendAnswer(ctx, "p1", attendance.AnswerRecord{UserID: "101", User: "Ahmad", Option: &masjid, RecordedAt: at}))
	require.NoError(t, s.AppendAnswer(ctx, "p1", attendance.AnswerRecord{UserID: "101", User: "Ahmad", Option: nil, RecordedAt: at.Add(time.Second)}))
	require.NoError(t, s.AppendAnswer(ctx, "p2", attendance.AnswerRecord{UserID: "202", Option: &masjid, RecordedAt: at}))

	log, err := s.Answers(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "Ahmad", log[0].User)
	require.NotNil(t, log[0].Option)
	assert.Equal(t, "Masjid", *log[0].Option)
	assert.Nil(t, log[1].Option, "retraction is stored as null")
	assert.True(t, at.Equal(log[0].RecordedAt))

	empty, err := s.Answers(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testConcurrentAppends(t *testing.T, s attendance.PollStore) {
	ctx := context.Background()
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AppendAnswer(ctx, "busy", attendance.AnswerRecord{
				UserID:     fmt.Sprintf("u%d", i),
				RecordedAt: time.Now(),
			}))
		}(i)
	}
	wg.Wait()

	log, err := s.Answers(ctx, "busy")
	require.NoError(t, err)
	assert.Len(t, log, n, "no concurrent append may be lost")
}

func testPollResults(t *testing.T, s attendance.PollStore) {
	ctx := context.Background()
	at := time.Date(2025, 8, 6, 4, 0, 0, 0, time.UTC)

	none, err := s.PollResults(ctx, "5432")
	require.NoError(t, err)
	assert.Nil(t, none)

	// GIVEN: An open tally followed by the closing one
	require.NoError(t, s.SavePollResults(ctx, attendance.PollResults{
		PollID: "5432", TotalVoters: 1, UpdatedAt: at,
		Counts: []attendance.OptionCount{{Label: "Masjid", Voters: 1}, {Label: "Basecamp", Voters: 0}},
	}))
	require.NoError(t, s.SavePollResults(ctx, attendance.PollResults{
		PollID: "5432", Closed: true, TotalVoters: 3, UpdatedAt: at.Add(time.Hour),
		Counts: []attendance.OptionCount{{Label: "Masjid", Voters: 2}, {Label: "Basecamp", Voters: 1}},
	}))

	// WHEN: It is read back
	got, err := s.PollResults(ctx, "5432")

	// THEN: Only the latest tally remains
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Closed)
	assert.Equal(t, 3, got.TotalVoters)
	assert.Equal(t, []attendance.OptionCount{{Label: "Masjid", Voters: 2}, {Label: "Basecamp", Voters: 1}}, got.Counts)
	assert.True(t, at.Add(time.Hour).Equal(got.UpdatedAt))
}

func testHolidays(t *testing.T, s attendance.PollStore) {
	ctx := context.Background()
	loc := jakarta(t)

	require.NoError(t, s.SaveHoliday(ctx, attendance.Holiday{
		ID: "merdeka", Date: time.Date(2025, 8, 17, 0, 0, 0, 0, time.UTC), Name: "Kemerdekaan", Recurring: true,
	}))
	require.NoError(t, s.SaveHoliday(ctx, attendance.Holiday{
		ID: "cuti", Date: time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), Name: "Cuti bersama",
	}))

	list, err := s.ListHolidays(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "merdeka", list[0].ID)

	assert.True(t, s.IsHoliday(time.Date(2026, 8, 17, 9, 0, 0, 0, loc)), "recurring matches any year")
	assert.True(t, s.IsHoliday(time.Date(2025, 8, 18, 9, 0, 0, 0, loc)))
	assert.False(t, s.IsHoliday(time.Date(2026, 8, 18, 9, 0, 0, 0, loc)), "one-off matches its year only")

	require.NoError(t, s.DeleteHoliday(ctx, "cuti"))
	assert.False(t, s.IsHoliday(time.Date(2025, 8, 18, 9, 0, 0, 0, loc)))
}
