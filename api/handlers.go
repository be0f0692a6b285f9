/*
handlers.go - HTTP API handlers for the attendance ledger

PURPOSE:
  Exposes poll dispatch, answer reconciliation and the poll store via REST.
  Handles HTTP request/response and JSON serialization and delegates to the
  reconciler, the scheduler and the store.

ENDPOINTS:
  Telegram:
    POST   /api/telegram/webhook             Telegram update (poll_answer, poll tally)
    POST   /api/telegram/test-poll           Simulate one answer end to end
    POST   /api/telegram/send-poll/{waktu}   Dispatch a poll now (?force=true skips the gate)

  Polls:
    GET    /api/polls?date=YYYY-MM-DD        Polls sent on a local date
    GET    /api/polls/{id}                   Poll metadata
    GET    /api/polls/{id}/answers           Append-only answer log
    GET    /api/polls/{id}/summary           Latest-answer tally + Telegram's count

  Scenarios (in-memory ledger only):
    GET    /api/scenarios                    List demo ledgers
    POST   /api/scenarios/load               Seed a demo ledger

  Holidays:
    GET    /api/holidays                     List holidays
    POST   /api/holidays                     Create holiday
    POST   /api/holidays/defaults            Add national recurring holidays
    DELETE /api/holidays/{id}                Delete holiday

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown poll
  - 409: Duplicate poll id
  - 422: Ledger tab, row or column could not be resolved
  - 502: Ledger write failed
  - 503: Telegram not configured
  - 500: Internal errors

  The webhook is the exception: any well-formed update gets 200 {"ok":true}
  so Telegram does not redeliver an answer that failed for domain reasons.
  The failure is logged with its diagnostics instead.

SECURITY NOTE:
  No authentication. Put the service behind a proxy that only forwards the
  webhook path from Telegram when exposing it publicly.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/reconciler.go: Answer state machine
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/sholat-ledger/attendance"
	"github.com/warp/sholat-ledger/ledger"
	"github.com/warp/sholat-ledger/sheets"
	"github.com/warp/sholat-ledger/telegram"
)

// maxUpdateBytes bounds a webhook body.
const maxUpdateBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      attendance.PollStore
	Reconciler *ledger.Reconciler
	Scheduler  *PollScheduler // nil when Telegram is not configured
	Location   *time.Location
	Options    []string
	Logger     *zap.Logger

	// Demo is the in-memory ledger scenarios load into; nil with the Google driver.
	Demo *sheets.Memory

	// NewPollID names synthetic test polls.
	NewPollID func() string
	Now       func() time.Time
}

// NewHandler creates a handler. scheduler may be nil.
func NewHandler(store attendance.PollStore, rec *ledger.Reconciler, scheduler *PollScheduler, loc *time.Location, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Store:      store,
		Reconciler: rec,
		Scheduler:  scheduler,
		Location:   loc,
		Options:    attendance.DefaultOptions,
		Logger:     logger,
		NewPollID:  func() string { return "test_" + uuid.NewString() },
		Now:        time.Now,
	}
}

// =============================================================================
// TELEGRAM ENDPOINTS
// =============================================================================

// Webhook receives Telegram updates.
// POST /api/telegram/webhook
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	update, err := telegram.DecodeUpdate(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid update", err)
		return
	}

	// Processing must finish even if Telegram hangs up; the reconciler
	// applies its own timeout.
	ctx := context.WithoutCancel(r.Context())
	log := h.Logger.With(zap.Int("update_id", update.UpdateID))

	switch {
	case update.PollAnswer != nil:
		answer := telegram.AnswerFromPollAnswer(update.PollAnswer)
		res, err := h.Reconciler.HandleAnswer(ctx, answer)
		var rerr *ledger.ReconcileError
		switch {
		case errors.As(err, &rerr):
			// Already logged with diagnostics by the reconciler.
		case err != nil:
			log.Error("answer processing failed", zap.String("poll_id", answer.PollID), zap.Error(err))
		case res.Written:
			log.Debug("answer applied", zap.String("poll_id", res.PollID), zap.String("cell", res.Column+fmt.Sprint(res.Row)))
		}
	case update.Poll != nil:
		log.Info("poll state update",
			zap.String("poll_id", update.Poll.ID),
			zap.Bool("closed", update.Poll.IsClosed),
			zap.Int("voters", update.Poll.TotalVoterCount))
		h.saveResults(ctx, log, telegram.ResultsFromPoll(update.Poll, h.now()))
	default:
		log.Debug("update ignored")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// saveResults keeps Telegram's tally for polls this server dispatched.
func (h *Handler) saveResults(ctx context.Context, log *zap.Logger, res attendance.PollResults) {
	meta, err := h.Store.GetPoll(ctx, res.PollID)
	if err != nil {
		log.Error("poll lookup failed", zap.String("poll_id", res.PollID), zap.Error(err))
		return
	}
	if meta == nil {
		log.Debug("tally for unknown poll ignored", zap.String("poll_id", res.PollID))
		return
	}
	if err := h.Store.SavePollResults(ctx, res); err != nil {
		log.Error("failed to save poll tally", zap.String("poll_id", res.PollID), zap.Error(err))
	}
}

// TestPoll records a synthetic poll and runs one answer through the ledger.
// POST /api/telegram/test-poll
func (h *Handler) TestPoll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TestPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResult(w, http.StatusBadRequest, ResultResponse{Message: "Validation failed", Errors: map[string][]string{"body": {err.Error()}}})
		return
	}

	errs := map[string][]string{}
	if strings.TrimSpace(req.UserID) == "" {
		errs["user_id"] = append(errs["user_id"], "The user id field is required.")
	} else if len(req.UserID) > 100 {
		errs["user_id"] = append(errs["user_id"], "The user id may not be greater than 100 characters.")
	}
	category, err := attendance.ParseCategory(req.Waktu)
	if err != nil {
		errs["waktu"] = append(errs["waktu"], "The selected waktu is invalid.")
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, h.Location)
	if err != nil {
		errs["date"] = append(errs["date"], "The date does not match the format Y-m-d.")
	}
	if len(errs) == 0 {
		labels := attendance.PollMetadata{Options: h.Options}
		if _, ok := labels.OptionByLabel(req.Option); !ok {
			errs["option"] = append(errs["option"], "The selected option is invalid.")
		}
	}
	if len(errs) > 0 {
		writeResult(w, http.StatusBadRequest, ResultResponse{Message: "Validation failed", Errors: errs})
		return
	}

	meta, err := attendance.NewPollMetadata(
		h.NewPollID(),
		day,
		category,
		fmt.Sprintf("Sholat %s di Masjid (Testing)", category.Title()),
		h.Options,
	)
	if err != nil {
		writeResult(w, http.StatusBadRequest, ResultResponse{Message: "Validation failed", Errors: map[string][]string{"poll": {err.Error()}}})
		return
	}
	if err := h.Store.RecordPoll(ctx, meta); err != nil {
		writeResult(w, statusFor(err), ResultResponse{Message: "Terjadi kesalahan: " + err.Error()})
		return
	}

	opt, _ := meta.OptionByLabel(req.Option)
	res, err := h.Reconciler.HandleAnswer(ctx, attendance.Answer{
		PollID:      meta.PollID,
		User:        attendance.User{ID: req.UserID, DisplayName: req.UserName},
		OptionIndex: attendance.IntPtr(opt.Index),
	})
	if err != nil {
		writeResult(w, statusFor(err), ResultResponse{
			Message: "Terjadi kesalahan: " + err.Error(),
			Data:    diagnostics(err),
		})
		return
	}

	writeResult(w, http.StatusOK, ResultResponse{
		Success: true,
		Message: "Data berhasil disimpan ke Google Sheets",
		Data: TestPollDataDTO{
			UserID:        req.UserID,
			Option:        opt.Label,
			Date:          req.Date,
			Waktu:         string(category),
			PollID:        meta.PollID,
			Sheet:         res.Tab,
			RowUpdated:    res.Row,
			ColumnUpdated: res.Column,
			Value:         res.Value,
			RowCreated:    res.RowCreated,
			UserName:      res.UserName,
		},
	})
}

// SendPoll dispatches a poll immediately.
// POST /api/telegram/send-poll/{waktu}
func (h *Handler) SendPoll(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Telegram is not configured", nil)
		return
	}
	category, err := attendance.ParseCategory(chi.URLParam(r, "waktu"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Argumen waktu harus dzuhur atau asar", err)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	res, err := h.Scheduler.RunNow(r.Context(), category, force)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Gagal kirim poll", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// POLL ENDPOINTS
// =============================================================================

// ListPolls returns polls sent on a local date (default today).
// GET /api/polls?date=YYYY-MM-DD
func (h *Handler) ListPolls(w http.ResponseWriter, r *http.Request) {
	day := h.now().In(h.Location)
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, h.Location)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		day = d
	}

	polls, err := h.Store.PollsSentOn(r.Context(), day, h.Location)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list polls", err)
		return
	}
	dtos := make([]PollDTO, 0, len(polls))
	for _, p := range polls {
		dtos = append(dtos, toPollDTO(p, h.Location))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format("2006-01-02"), "polls": dtos})
}

// GetPoll returns a poll's metadata.
// GET /api/polls/{id}
func (h *Handler) GetPoll(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.lookupPoll(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toPollDTO(*meta, h.Location))
}

// GetAnswers returns a poll's answer log in arrival order.
// GET /api/polls/{id}/answers
func (h *Handler) GetAnswers(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.lookupPoll(w, r)
	if !ok {
		return
	}
	log, err := h.Store.Answers(r.Context(), meta.PollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get answers", err)
		return
	}
	dtos := make([]AnswerDTO, 0, len(log))
	for _, rec := range log {
		dtos = append(dtos, AnswerDTO{
			UserID: rec.UserID,
			User:   rec.User,
			Option: rec.Option,
			Time:   rec.RecordedAt.In(h.Location).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"poll_id": meta.PollID, "answers": dtos})
}

// GetSummary tallies the latest answer of each member.
// GET /api/polls/{id}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.lookupPoll(w, r)
	if !ok {
		return
	}
	log, err := h.Store.Answers(r.Context(), meta.PollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get answers", err)
		return
	}

	s := attendance.Summarize(*meta, log)
	dto := SummaryDTO{
		PollID:    s.PollID,
		Waktu:     string(meta.Category),
		Date:      meta.SentAt.In(h.Location).Format("2006-01-02"),
		Options:   make([]OptionTallyDTO, 0, len(s.Options)),
		Counted:   s.Counted,
		Retracted: s.Retracted,
	}
	for _, o := range s.Options {
		dto.Options = append(dto.Options, OptionTallyDTO{Option: o.Label, Voters: o.Voters, Percent: o.Share})
	}

	results, err := h.Store.PollResults(r.Context(), meta.PollID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get poll tally", err)
		return
	}
	if results != nil {
		dto.Telegram = &TelegramTallyDTO{
			Closed:      results.Closed,
			TotalVoters: results.TotalVoters,
			Options:     make([]OptionCountDTO, 0, len(results.Counts)),
			UpdatedAt:   results.UpdatedAt.In(h.Location).Format(time.RFC3339),
		}
		for _, c := range results.Counts {
			dto.Telegram.Options = append(dto.Telegram.Options, OptionCountDTO{Option: c.Label, Voters: c.Voters})
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) lookupPoll(w http.ResponseWriter, r *http.Request) (*attendance.PollMetadata, bool) {
	id := chi.URLParam(r, "id")
	meta, err := h.Store.GetPoll(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get poll", err)
		return nil, false
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, "Poll not found", fmt.Errorf("%w: %s", attendance.ErrUnknownPoll, id))
		return nil, false
	}
	return meta, true
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns all holidays.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}

	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, HolidayDTO{
			ID:        hol.ID,
			Date:      hol.Date.Format("2006-01-02"),
			Name:      hol.Name,
			Recurring: hol.Recurring,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": dtos})
}

// CreateHoliday creates a new holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Date and name are required", nil)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := attendance.Holiday{
		ID:        "holiday-" + uuid.NewString(),
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "created",
		"holiday": holiday.ID,
	})
}

// nationalHolidays are the fixed-date Indonesian public holidays.
var nationalHolidays = []struct {
	month time.Month
	day   int
	name  string
}{
	{time.January, 1, "Tahun Baru Masehi"},
	{time.May, 1, "Hari Buruh Internasional"},
	{time.June, 1, "Hari Lahir Pancasila"},
	{time.August, 17, "Hari Kemerdekaan Republik Indonesia"},
	{time.December, 25, "Hari Raya Natal"},
}

// AddDefaultHolidays adds the fixed-date national holidays as recurring entries.
// POST /api/holidays/defaults
func (h *Handler) AddDefaultHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.now().In(h.Location).Year()
	for _, d := range nationalHolidays {
		holiday := attendance.Holiday{
			ID:        fmt.Sprintf("holiday-%02d%02d", d.month, d.day),
			Date:      time.Date(year, d.month, d.day, 0, 0, 0, 0, time.UTC),
			Name:      d.name,
			Recurring: true,
		}
		if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "created",
		"count":  len(nationalHolidays),
	})
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// Healthz reports liveness.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeResult(w http.ResponseWriter, status int, resp ResultResponse) {
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
		resp.Diagnostics = diagnostics(err)
	}
	writeJSON(w, status, resp)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case attendance.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrUnknownPoll):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrDuplicatePoll):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrWriteError):
		return http.StatusBadGateway
	case errors.Is(err, attendance.ErrTabNotFound),
		errors.Is(err, attendance.ErrColumnNotFound),
		errors.Is(err, attendance.ErrRowCreationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func diagnostics(err error) map[string]any {
	var rerr *ledger.ReconcileError
	if errors.As(err, &rerr) {
		return rerr.Diagnostics()
	}
	return nil
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}
