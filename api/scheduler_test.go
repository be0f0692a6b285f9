package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/sholat-ledger/attendance"
	memstore "github.com/warp/sholat-ledger/attendance/store"
	"github.com/warp/sholat-ledger/telegram"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	questions []string
	err       error
}

func (f *fakeDispatcher) SendPoll(_ context.Context, question string, _ []string) (telegram.Sent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return telegram.Sent{}, f.err
	}
	f.questions = append(f.questions, question)
	return telegram.Sent{PollID: fmt.Sprintf("poll-%d", len(f.questions)), ChatID: -100, MessageID: len(f.questions)}, nil
}

func (f *fakeDispatcher) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.questions)
}

type schedFixture struct {
	ps    *PollScheduler
	d     *fakeDispatcher
	store *memstore.Memory
	loc   *time.Location
	now   time.Time
}

func newSchedFixture(t *testing.T) *schedFixture {
	t.Helper()
	loc, err := attendance.LoadLocation(attendance.DefaultTimezone)
	require.NoError(t, err)

	f := &schedFixture{d: &fakeDispatcher{}, store: memstore.NewMemory(), loc: loc}
	f.ps = NewPollScheduler(f.store, f.store, f.d, attendance.DefaultGate(loc), zaptest.NewLogger(t))
	f.ps.Now = func() time.Time { return f.now }
	return f
}

func TestTick_FiresOncePerDay(t *testing.T) {
	// GIVEN: Wednesday 6 August, one minute after the dzuhur slot
	f := newSchedFixture(t)
	ctx := context.Background()
	f.now = time.Date(2025, 8, 6, 8, 57, 0, 0, f.loc)

	// WHEN: The scheduler ticks twice
	first := f.ps.Tick(ctx)
	second := f.ps.Tick(ctx)

	// THEN: Dzuhur is sent once and recorded with chat coordinates
	require.Len(t, first, 1)
	assert.Empty(t, second)
	assert.True(t, first[0].Sent)
	assert.Equal(t, attendance.CategoryDzuhur, first[0].Category)
	assert.Equal(t, "Sholat Dzuhur di Masjid ( Rabu, 6 Agustus 2025 )", first[0].Question)

	meta, err := f.store.GetPoll(ctx, "poll-1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, int64(-100), meta.ChatID)
	assert.Equal(t, 1, meta.MessageID)
	assert.True(t, meta.SentAt.Equal(f.now))

	// Asar fires at its own slot, dzuhur again the next day.
	f.now = time.Date(2025, 8, 6, 11, 13, 30, 0, f.loc)
	assert.Len(t, f.ps.Tick(ctx), 1)
	f.now = time.Date(2025, 8, 7, 9, 0, 0, 0, f.loc)
	assert.Len(t, f.ps.Tick(ctx), 1)
	assert.Equal(t, 3, f.d.sent())
}

func TestTick_Window(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	f.now = time.Date(2025, 8, 6, 8, 55, 0, 0, f.loc)
	assert.Empty(t, f.ps.Tick(ctx), "before the slot")

	f.now = time.Date(2025, 8, 6, 9, 27, 0, 0, f.loc)
	assert.Empty(t, f.ps.Tick(ctx), "past the catch-up window")
	assert.Zero(t, f.d.sent())
}

func TestTick_GateSkips(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()

	// Friday dzuhur is skipped but still counts as handled.
	f.now = time.Date(2025, 8, 8, 9, 0, 0, 0, f.loc)
	res := f.ps.Tick(ctx)
	require.Len(t, res, 1)
	assert.False(t, res[0].Sent)
	assert.Equal(t, string(attendance.SkipCongregation), res[0].Skipped)
	assert.Empty(t, f.ps.Tick(ctx))

	// Holiday from the store.
	require.NoError(t, f.store.SaveHoliday(ctx, attendance.Holiday{
		ID: "h", Date: time.Date(2025, 8, 11, 0, 0, 0, 0, time.UTC), Name: "Libur",
	}))
	f.now = time.Date(2025, 8, 11, 11, 20, 0, 0, f.loc)
	res = f.ps.Tick(ctx)
	require.Len(t, res, 1)
	assert.Equal(t, string(attendance.SkipHoliday), res[0].Skipped)
	assert.Zero(t, f.d.sent())
}

func TestTick_DispatchErrorIsNotRetried(t *testing.T) {
	f := newSchedFixture(t)
	f.d.err = errors.New("Too Many Requests")
	f.now = time.Date(2025, 8, 6, 8, 57, 0, 0, f.loc)

	assert.Empty(t, f.ps.Tick(context.Background()))

	f.d.err = nil
	assert.Empty(t, f.ps.Tick(context.Background()), "slot already claimed")
}

func TestRunNow(t *testing.T) {
	f := newSchedFixture(t)
	ctx := context.Background()
	f.now = time.Date(2025, 8, 9, 14, 0, 0, 0, f.loc) // Saturday

	res, err := f.ps.RunNow(ctx, attendance.CategoryAsar, false)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, string(attendance.SkipWeekend), res.Skipped)

	res, err = f.ps.RunNow(ctx, attendance.CategoryAsar, true)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "poll-1", res.PollID)

	_, err = f.ps.RunNow(ctx, attendance.Category("isya"), true)
	assert.ErrorIs(t, err, attendance.ErrInvalidCategory)
}

func TestScheduler_StartStop(t *testing.T) {
	f := newSchedFixture(t)
	f.now = time.Date(2025, 8, 6, 8, 57, 0, 0, f.loc)
	f.ps.CheckInterval = time.Hour

	f.ps.Start()
	f.ps.Start() // no-op
	f.ps.Stop()
	f.ps.Stop()

	// The first tick runs on start.
	assert.Equal(t, 1, f.d.sent())
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("11:13")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 11, Minute: 13}, c)
	assert.Equal(t, "11:13", c.String())

	_, err = ParseClock("25:00")
	assert.Error(t, err)
}
