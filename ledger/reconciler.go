package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/sholat-ledger/attendance"
)

// DefaultTimeout bounds the ledger calls made for one answer.
const DefaultTimeout = 20 * time.Second

// Result is the outcome of one reconciled answer.
type Result struct {
	PollID      string `json:"poll_id"`
	Identity    string `json:"user_id"`
	Option      string `json:"option,omitempty"`
	Recognized  bool   `json:"recognized"`
	Written     bool   `json:"written"`
	Tab         string `json:"sheet,omitempty"`
	Row         int    `json:"row_updated,omitempty"`
	Column      string `json:"column_updated,omitempty"`
	ColumnIndex int    `json:"-"`
	Value       bool   `json:"value"`
	RowCreated  bool   `json:"row_created,omitempty"`
	UserName    string `json:"user_name,omitempty"`
}

// Reconciler applies answers to the ledger.
//
// STATES:
//
//	Received -> MetadataLookup -> TabResolved -> RowResolved -> ColumnResolved -> Written
//	any step may go to Failed, returned as *ReconcileError. There is no retry;
//	the webhook layer decides whether to re-deliver.
type Reconciler struct {
	Polls    attendance.Store
	Sheet    Sheet
	Locks    Locker
	Resolver Resolver
	Location *time.Location
	Timeout  time.Duration
	Logger   *zap.Logger
	Now      func() time.Time

	lockOnce sync.Once
}

// NewReconciler wires a reconciler with in-process tab locks.
func NewReconciler(polls attendance.Store, sheet Sheet, loc *time.Location, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		Polls:    polls,
		Sheet:    sheet,
		Locks:    NewKeyedMutex(),
		Location: loc,
		Timeout:  DefaultTimeout,
		Logger:   logger,
		Now:      time.Now,
	}
}

// HandleAnswer runs the full state machine for one incoming answer.
//
// The answer is appended to the poll's log as soon as the poll is known, so
// the audit trail survives ledger failures. Unrecognized or retracted choices
// are logged but never written to the ledger, and so are votes without a
// member identity.
func (r *Reconciler) HandleAnswer(ctx context.Context, a attendance.Answer) (*Result, error) {
	log := r.Logger.With(zap.String("poll_id", a.PollID), zap.String("user_id", a.User.ID))

	meta, err := r.Polls.GetPoll(ctx, a.PollID)
	if err != nil {
		return nil, fmt.Errorf("lookup poll %s: %w", a.PollID, err)
	}
	if meta == nil {
		return nil, r.fail(log, &ReconcileError{
			Stage:    StageMetadataLookup,
			Reason:   attendance.ErrUnknownPoll,
			PollID:   a.PollID,
			Identity: a.User.ID,
		})
	}

	opt, recognized := meta.Option(a.OptionIndex)
	rec := attendance.AnswerRecord{
		UserID:     a.User.ID,
		User:       a.User.DisplayName,
		RecordedAt: r.now(),
	}
	if recognized {
		label := opt.Label
		rec.Option = &label
	}
	if err := r.Polls.AppendAnswer(ctx, a.PollID, rec); err != nil {
		return nil, fmt.Errorf("append answer for poll %s: %w", a.PollID, err)
	}

	if !recognized {
		log.Info("answer not recognized, ledger left unchanged", zap.Any("option_index", a.OptionIndex))
		return &Result{PollID: a.PollID, Identity: a.User.ID}, nil
	}
	if attendance.NormalizeIdentity(a.User.ID) == "" {
		log.Warn("answer has no member identity, ledger left unchanged", zap.String("option", opt.Label))
		return &Result{PollID: a.PollID, Option: opt.Label}, nil
	}
	return r.Reconcile(ctx, *meta, a.User.ID, opt)
}

// Reconcile writes one recognized option into the ledger.
func (r *Reconciler) Reconcile(ctx context.Context, meta attendance.PollMetadata, identity string, opt attendance.Option) (*Result, error) {
	log := r.Logger.With(zap.String("poll_id", meta.PollID), zap.String("user_id", identity))
	failure := func(stage Stage, reason, err error) error {
		return r.fail(log, &ReconcileError{
			Stage:    stage,
			Reason:   reason,
			PollID:   meta.PollID,
			Identity: identity,
			Err:      err,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	locator := Locator{Sheet: r.Sheet, Logger: r.Logger}
	tab, err := locator.ResolveTab(ctx, attendance.TabCandidates(meta.SentAt, r.location()))
	if err != nil {
		return nil, failure(StageTabResolved, attendance.ErrTabNotFound, err)
	}

	unlock, err := r.locks().Lock(ctx, tab)
	if err != nil {
		return nil, failure(StageRowResolved, attendance.ErrRowCreationFailed, fmt.Errorf("lock tab %s: %w", tab, err))
	}
	defer unlock()

	// Snapshot read under the lock so row creation sees every earlier registration.
	rows, err := r.Sheet.ReadAll(ctx, tab)
	if err != nil {
		return nil, failure(StageTabResolved, attendance.ErrTabNotFound, fmt.Errorf("read tab %s: %w", tab, err))
	}
	if !hasContent(rows) {
		return nil, failure(StageTabResolved, attendance.ErrTabNotFound, fmt.Errorf("tab %s is empty", tab))
	}

	writer := Writer{Sheet: r.Sheet}
	row, created, err := r.Resolver.FindOrCreateRow(ctx, writer, tab, rows, identity)
	if err != nil {
		return nil, failure(StageRowResolved, attendance.ErrRowCreationFailed, err)
	}
	if created {
		log.Info("registered new member row", zap.String("sheet", tab), zap.Int("row", row))
	}

	col, err := r.Resolver.FindColumn(rows, attendance.LocalDay(meta.SentAt, r.location()), meta.Category)
	if err != nil {
		return nil, failure(StageColumnResolved, attendance.ErrColumnNotFound, err)
	}

	value := opt.Attending()
	if err := writer.WriteCell(ctx, tab, row, col, value); err != nil {
		return nil, failure(StageWritten, attendance.ErrWriteError, err)
	}

	res := &Result{
		PollID:      meta.PollID,
		Identity:    identity,
		Option:      opt.Label,
		Recognized:  true,
		Written:     true,
		Tab:         tab,
		Row:         row,
		Column:      ColumnLetter(col),
		ColumnIndex: col,
		Value:       value,
		RowCreated:  created,
		UserName:    UserName(rows, row),
	}
	log.Info("ledger updated",
		zap.String("sheet", tab),
		zap.Int("row", row),
		zap.String("column", res.Column),
		zap.String("option", opt.Label),
		zap.Bool("value", value))
	return res, nil
}

func (r *Reconciler) fail(log *zap.Logger, e *ReconcileError) error {
	fields := []zap.Field{zap.String("reason", e.Reason.Error()), zap.Any("diagnostics", e.Diagnostics())}
	if e.Err != nil {
		fields = append(fields, zap.Error(e.Err))
	}
	if errors.Is(e.Reason, attendance.ErrUnknownPoll) {
		log.Warn("answer for unknown poll", fields...)
	} else {
		log.Error("reconciliation failed", fields...)
	}
	return e
}

func (r *Reconciler) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Reconciler) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r *Reconciler) locks() Locker {
	r.lockOnce.Do(func() {
		if r.Locks == nil {
			r.Locks = NewKeyedMutex()
		}
	})
	return r.Locks
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
