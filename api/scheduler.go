/*
scheduler.go - Daily poll dispatch scheduler

PURPOSE:
  Sends the dzuhur and asar attendance polls once per local day at their
  configured times, and records the metadata the reconciler needs.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each category fires at most once per local date
  - The schedule gate (weekend, Friday dzuhur, holidays) is evaluated on
    every dispatch; nothing about the gate is cached across days
  - A missed slot is caught up only within CatchUp of its time, so a
    restart in the afternoon does not send the morning poll

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 minute)
  - CatchUp: How late a slot may still fire (default: 30 minutes)

USAGE:
  scheduler := NewPollScheduler(store, holidays, bot, gate, logger)
  scheduler.At[attendance.CategoryDzuhur] = Clock{8, 56}
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SendPoll endpoint (manual dispatch)
  - attendance/schedule.go: Gate
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/sholat-ledger/attendance"
	"github.com/warp/sholat-ledger/telegram"
)

// Clock is a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	h, m, err := attendance.ParseClock(s)
	return Clock{Hour: h, Minute: m}, err
}

func (c Clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// DispatchResult reports one dispatch attempt.
type DispatchResult struct {
	Category attendance.Category `json:"waktu"`
	Sent     bool                `json:"sent"`
	Skipped  string              `json:"skipped,omitempty"`
	PollID   string              `json:"poll_id,omitempty"`
	Question string              `json:"question,omitempty"`
	SentAt   time.Time           `json:"sent_at"`
}

// PollScheduler dispatches the daily polls.
type PollScheduler struct {
	Store         attendance.Store
	Holidays      attendance.HolidayCalendar
	Dispatcher    telegram.Dispatcher
	Gate          attendance.Gate
	At            map[attendance.Category]Clock
	Options       []string
	CheckInterval time.Duration
	CatchUp       time.Duration
	Logger        *zap.Logger
	Now           func() time.Time

	fired  map[attendance.Category]string // category -> local date already handled
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPollScheduler creates a scheduler with the default dispatch times.
func NewPollScheduler(store attendance.Store, holidays attendance.HolidayCalendar, d telegram.Dispatcher, gate attendance.Gate, logger *zap.Logger) *PollScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollScheduler{
		Store:      store,
		Holidays:   holidays,
		Dispatcher: d,
		Gate:       gate,
		At: map[attendance.Category]Clock{
			attendance.CategoryDzuhur: {Hour: 8, Minute: 56},
			attendance.CategoryAsar:   {Hour: 11, Minute: 13},
		},
		Options:       attendance.DefaultOptions,
		CheckInterval: time.Minute,
		CatchUp:       30 * time.Minute,
		Logger:        logger,
		Now:           time.Now,
		fired:         make(map[attendance.Category]string),
	}
}

// Start begins the scheduler.
func (ps *PollScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		return
	}
	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)
	go ps.run(ps.ticker, ps.stop)

	fields := []zap.Field{zap.Duration("interval", ps.CheckInterval)}
	for c, at := range ps.At {
		fields = append(fields, zap.String(string(c), at.String()))
	}
	ps.Logger.Info("poll scheduler started", fields...)
}

// Stop stops the scheduler and waits for an in-flight dispatch.
func (ps *PollScheduler) Stop() {
	ps.mu.Lock()
	if ps.ticker == nil {
		ps.mu.Unlock()
		return
	}
	ps.ticker.Stop()
	close(ps.stop)
	ps.ticker = nil
	ps.mu.Unlock()

	ps.wg.Wait()
	ps.Logger.Info("poll scheduler stopped")
}

func (ps *PollScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ps.wg.Done()

	ps.Tick(context.Background())
	for {
		select {
		case <-ticker.C:
			ps.Tick(context.Background())
		case <-stop:
			return
		}
	}
}

// Tick fires every category whose slot has come and that has not fired
// today. It returns the attempts made.
func (ps *PollScheduler) Tick(ctx context.Context) []DispatchResult {
	now := ps.now().In(ps.location())
	today := now.Format("2006-01-02")

	var results []DispatchResult
	for _, c := range attendance.Categories {
		at, ok := ps.At[c]
		if !ok {
			continue
		}
		slot := at.on(now)
		if now.Before(slot) || now.Sub(slot) > ps.catchUp() {
			continue
		}
		if !ps.claim(c, today) {
			continue
		}
		res, err := ps.dispatch(ctx, c, now, false)
		if err != nil {
			ps.Logger.Error("scheduled dispatch failed", zap.String("waktu", string(c)), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results
}

// RunNow dispatches one category immediately. With force the gate is not
// consulted. A gate skip is a result, not an error.
func (ps *PollScheduler) RunNow(ctx context.Context, c attendance.Category, force bool) (DispatchResult, error) {
	if !c.Valid() {
		return DispatchResult{}, fmt.Errorf("%w: %q", attendance.ErrInvalidCategory, c)
	}
	return ps.dispatch(ctx, c, ps.now().In(ps.location()), force)
}

func (ps *PollScheduler) dispatch(ctx context.Context, c attendance.Category, now time.Time, force bool) (DispatchResult, error) {
	res := DispatchResult{Category: c, SentAt: now}
	log := ps.Logger.With(zap.String("waktu", string(c)), zap.String("date", now.Format("2006-01-02")))

	if !force {
		if reason := ps.Gate.Evaluate(now, c, ps.Holidays); reason != attendance.SendPoll {
			res.Skipped = string(reason)
			log.Info("poll skipped", zap.String("reason", res.Skipped))
			return res, nil
		}
	}

	question := attendance.Question(c, now, ps.location())
	sent, err := ps.Dispatcher.SendPoll(ctx, question, ps.Options)
	if err != nil {
		return res, err
	}

	meta, err := attendance.NewPollMetadata(sent.PollID, now, c, question, ps.Options)
	if err != nil {
		return res, err
	}
	meta.ChatID = sent.ChatID
	meta.MessageID = sent.MessageID
	if err := ps.Store.RecordPoll(ctx, meta); err != nil {
		return res, fmt.Errorf("record poll %s: %w", sent.PollID, err)
	}

	res.Sent = true
	res.PollID = sent.PollID
	res.Question = question
	log.Info("poll dispatched", zap.String("poll_id", sent.PollID))
	return res, nil
}

// claim marks c as handled for day, reporting false if it already was.
func (ps *PollScheduler) claim(c attendance.Category, day string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.fired == nil {
		ps.fired = make(map[attendance.Category]string)
	}
	if ps.fired[c] == day {
		return false
	}
	ps.fired[c] = day
	return true
}

func (ps *PollScheduler) location() *time.Location {
	if ps.Gate.Location == nil {
		return time.UTC
	}
	return ps.Gate.Location
}

func (ps *PollScheduler) catchUp() time.Duration {
	if ps.CatchUp <= 0 {
		return 30 * time.Minute
	}
	return ps.CatchUp
}

func (ps *PollScheduler) now() time.Time {
	if ps.Now == nil {
		return time.Now()
	}
	return ps.Now()
}
