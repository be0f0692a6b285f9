/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Webhook answer handling (always 200 for well-formed updates)
- Test poll validation and end-to-end ledger write
- Poll store inspection, holidays, scenarios
- Error to status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/sholat-ledger/attendance"
	memstore "github.com/warp/sholat-ledger/attendance/store"
	"github.com/warp/sholat-ledger/ledger"
	"github.com/warp/sholat-ledger/sheets"
)

type testServer struct {
	handler *Handler
	router  *chi.Mux
	store   *memstore.Memory
	sheet   *sheets.Memory
	loc     *time.Location
}

// newTestServer serves an August 2025 ledger with members 101..103.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	loc, err := attendance.LoadLocation(attendance.DefaultTimezone)
	require.NoError(t, err)

	store := memstore.NewMemory()
	sheet := sheets.NewMemory()
	sheet.AddTab("AGUSTUS", ledgerGrid(2025, time.August, demoMembers, 3))

	logger := zaptest.NewLogger(t)
	rec := ledger.NewReconciler(store, sheet, loc, logger)
	h := NewHandler(store, rec, nil, loc, logger)
	h.Demo = sheet
	h.Now = func() time.Time { return time.Date(2025, 8, 6, 10, 0, 0, 0, loc) }

	n := 0
	h.NewPollID = func() string {
		n++
		return fmt.Sprintf("test_%d", n)
	}

	return &testServer{handler: h, router: NewRouter(h, []string{"*"}), store: store, sheet: sheet, loc: loc}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (s *testServer) recordPoll(t *testing.T, id string, sentAt time.Time, c attendance.Category) {
	t.Helper()
	m, err := attendance.NewPollMetadata(id, sentAt, c, attendance.Question(c, sentAt, s.loc), attendance.DefaultOptions)
	require.NoError(t, err)
	require.NoError(t, s.store.RecordPoll(context.Background(), m))
}

// =============================================================================
// TEST POLL
// =============================================================================

func TestTestPoll_WritesLedger(t *testing.T) {
	// GIVEN: Member 101 in the August ledger
	s := newTestServer(t)

	// WHEN: A dzuhur answer for 6 August is simulated
	rr := s.do(t, http.MethodPost, "/api/telegram/test-poll", TestPollRequest{
		UserID: "101", Option: "Masjid", Date: "2025-08-06", Waktu: "dzuhur",
	})

	// THEN: The cell under "6 Agustus" / Dzuhur is marked
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[ResultResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "Data berhasil disimpan ke Google Sheets", resp.Message)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "AGUSTUS", data["sheet"])
	assert.Equal(t, float64(4), data["row_updated"])
	assert.Equal(t, "I", data["column_updated"])
	assert.Equal(t, true, data["value"])
	assert.Equal(t, "test_1", data["poll_id"])
	assert.Equal(t, "TRUE", s.sheet.Cell("AGUSTUS", "I4"))

	// The synthetic poll is stored at local midnight of the date.
	meta, err := s.store.GetPoll(context.Background(), "test_1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "Sholat Dzuhur di Masjid (Testing)", meta.Question)
	assert.True(t, meta.SentAt.Equal(time.Date(2025, 8, 6, 0, 0, 0, 0, s.loc)))
}

func TestTestPoll_NewMemberBasecamp(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/telegram/test-poll", TestPollRequest{
		UserID: "104", UserName: "Dewi", Option: "basecamp", Date: "2025-08-05", Waktu: "Asar",
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	data := decode[ResultResponse](t, rr).Data.(map[string]any)
	assert.Equal(t, float64(7), data["row_updated"])
	assert.Equal(t, "H", data["column_updated"])
	assert.Equal(t, false, data["value"])
	assert.Equal(t, true, data["row_created"])
	assert.Equal(t, "104", s.sheet.Cell("AGUSTUS", "A7"))
	assert.Equal(t, "FALSE", s.sheet.Cell("AGUSTUS", "H7"))
}

func TestTestPoll_Validation(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/telegram/test-poll", map[string]string{
		"user_id": "", "option": "Masjid", "date": "06-08-2025", "waktu": "isya",
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decode[ResultResponse](t, rr)
	assert.False(t, resp.Success)
	assert.Equal(t, "Validation failed", resp.Message)
	assert.Contains(t, resp.Errors, "user_id")
	assert.Contains(t, resp.Errors, "waktu")
	assert.Contains(t, resp.Errors, "date")
	assert.Empty(t, s.sheet.Writes())

	rr = s.do(t, http.MethodPost, "/api/telegram/test-poll", TestPollRequest{
		UserID: "101", Option: "Rumah", Date: "2025-08-06", Waktu: "dzuhur",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decode[ResultResponse](t, rr).Errors, "option")

	rr = s.do(t, http.MethodPost, "/api/telegram/test-poll", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTestPoll_LedgerFailureReportsDiagnostics(t *testing.T) {
	// GIVEN: No September tab
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/telegram/test-poll", TestPollRequest{
		UserID: "101", Option: "Masjid", Date: "2025-09-01", Waktu: "dzuhur",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	resp := decode[ResultResponse](t, rr)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "Terjadi kesalahan")
	data := resp.Data.(map[string]any)
	assert.Equal(t, []any{"SEPTEMBER", "2025"}, data["candidates"])
}

// =============================================================================
// WEBHOOK
// =============================================================================

func pollAnswerUpdate(pollID string, userID int64, options ...int) map[string]any {
	return map[string]any{
		"update_id": 1,
		"poll_answer": map[string]any{
			"poll_id":    pollID,
			"user":       map[string]any{"id": userID, "is_bot": false, "first_name": "Budi"},
			"option_ids": options,
		},
	}
}

func TestWebhook_AppliesAnswer(t *testing.T) {
	// GIVEN: A dispatched dzuhur poll for 6 August
	s := newTestServer(t)
	s.recordPoll(t, "5432", time.Date(2025, 8, 6, 8, 56, 0, 0, s.loc), attendance.CategoryDzuhur)

	// WHEN: Member 102 votes Masjid
	rr := s.do(t, http.MethodPost, "/api/telegram/webhook", pollAnswerUpdate("5432", 102, 0))

	// THEN: Telegram gets ok and the ledger is updated
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]bool{"ok": true}, decode[map[string]bool](t, rr))
	assert.Equal(t, "TRUE", s.sheet.Cell("AGUSTUS", "I5"))

	log, err := s.store.Answers(context.Background(), "5432")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "Budi", log[0].User)
}

func TestWebhook_FailuresStillAcknowledge(t *testing.T) {
	s := newTestServer(t)

	// Unknown poll.
	rr := s.do(t, http.MethodPost, "/api/telegram/webhook", pollAnswerUpdate("ghost", 102, 0))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Poll state updates and unrelated updates.
	rr = s.do(t, http.MethodPost, "/api/telegram/webhook", map[string]any{
		"update_id": 2,
		"poll":      map[string]any{"id": "5432", "question": "q", "options": []any{}, "total_voter_count": 3, "is_closed": true},
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodPost, "/api/telegram/webhook", map[string]any{"update_id": 3})
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Empty(t, s.sheet.Writes())
}

func TestWebhook_AnonymousAdminVoteIsNotRegistered(t *testing.T) {
	// GIVEN: A dispatched poll and a vote cast on behalf of the group chat
	s := newTestServer(t)
	s.recordPoll(t, "5432", time.Date(2025, 8, 6, 8, 56, 0, 0, s.loc), attendance.CategoryDzuhur)

	// WHEN: The update has voter_chat and no user
	rr := s.do(t, http.MethodPost, "/api/telegram/webhook", map[string]any{
		"update_id": 4,
		"poll_answer": map[string]any{
			"poll_id":    "5432",
			"voter_chat": map[string]any{"id": -1001234567890, "type": "supergroup", "title": "Tim"},
			"option_ids": []int{0},
		},
	})

	// THEN: It is acknowledged and audited, but no member row is written
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, s.sheet.Writes())

	log, err := s.store.Answers(context.Background(), "5432")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Empty(t, log[0].UserID)
}

func TestWebhook_StoresTelegramTally(t *testing.T) {
	s := newTestServer(t)
	s.recordPoll(t, "5432", time.Date(2025, 8, 6, 8, 56, 0, 0, s.loc), attendance.CategoryDzuhur)
	pollUpdate := func(id string, closed bool, masjid, basecamp int) map[string]any {
		return map[string]any{
			"update_id": 5,
			"poll": map[string]any{
				"id":       id,
				"question": "Sholat Dzuhur di Masjid",
				"options": []any{
					map[string]any{"text": "Masjid", "voter_count": masjid},
					map[string]any{"text": "Basecamp", "voter_count": basecamp},
				},
				"total_voter_count": masjid + basecamp,
				"is_closed":         closed,
			},
		}
	}

	// WHEN: An open tally and then the closing tally arrive
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/telegram/webhook", pollUpdate("5432", false, 1, 0)).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/telegram/webhook", pollUpdate("5432", true, 2, 1)).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/telegram/webhook", pollUpdate("ghost", true, 1, 0)).Code)

	// THEN: The summary carries the latest tally; unknown polls are not stored
	rr := s.do(t, http.MethodGet, "/api/polls/5432/summary", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sum := decode[SummaryDTO](t, rr)
	require.NotNil(t, sum.Telegram)
	assert.True(t, sum.Telegram.Closed)
	assert.Equal(t, 3, sum.Telegram.TotalVoters)
	assert.Equal(t, []OptionCountDTO{{Option: "Masjid", Voters: 2}, {Option: "Basecamp", Voters: 1}}, sum.Telegram.Options)

	ghost, err := s.store.PollResults(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, ghost)
}

func TestWebhook_RejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/api/telegram/webhook", "{")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// SEND POLL
// =============================================================================

func TestSendPoll_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodPost, "/api/telegram/send-poll/dzuhur", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSendPoll_Dispatches(t *testing.T) {
	// GIVEN: A scheduler whose clock says Wednesday
	s := newTestServer(t)
	d := &fakeDispatcher{}
	ps := NewPollScheduler(s.store, s.store, d, attendance.DefaultGate(s.loc), zaptest.NewLogger(t))
	ps.Now = s.handler.Now
	s.handler.Scheduler = ps

	// WHEN: Asar is sent manually
	rr := s.do(t, http.MethodPost, "/api/telegram/send-poll/asar", nil)

	// THEN: The poll goes out and is recorded
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[DispatchResult](t, rr)
	assert.True(t, res.Sent)
	assert.Equal(t, "poll-1", res.PollID)

	meta, err := s.store.GetPoll(context.Background(), "poll-1")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, attendance.CategoryAsar, meta.Category)

	rr = s.do(t, http.MethodPost, "/api/telegram/send-poll/isya", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// =============================================================================
// POLLS
// =============================================================================

func TestPollEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.recordPoll(t, "5432", time.Date(2025, 8, 6, 8, 56, 0, 0, s.loc), attendance.CategoryDzuhur)
	s.recordPoll(t, "5433", time.Date(2025, 8, 5, 11, 13, 0, 0, s.loc), attendance.CategoryAsar)
	s.do(t, http.MethodPost, "/api/telegram/webhook", pollAnswerUpdate("5432", 101, 0))
	s.do(t, http.MethodPost, "/api/telegram/webhook", pollAnswerUpdate("5432", 102, 1))
	s.do(t, http.MethodPost, "/api/telegram/webhook", pollAnswerUpdate("5432", 102))

	t.Run("list by date", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/polls?date=2025-08-06", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Date  string    `json:"date"`
			Polls []PollDTO `json:"polls"`
		}](t, rr)
		assert.Equal(t, "2025-08-06", body.Date)
		require.Len(t, body.Polls, 1)
		assert.Equal(t, "5432", body.Polls[0].PollID)
		assert.Equal(t, "dzuhur", body.Polls[0].Waktu)
	})

	t.Run("list defaults to today", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/polls", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"5432"`)

		rr = s.do(t, http.MethodGet, "/api/polls?date=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("get", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/polls/5433", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2025-08-05T11:13:00+07:00", decode[PollDTO](t, rr).SentAt)

		rr = s.do(t, http.MethodGet, "/api/polls/nope", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("answers", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/polls/5432/answers", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Answers []AnswerDTO `json:"answers"`
		}](t, rr)
		require.Len(t, body.Answers, 3)
		assert.Nil(t, body.Answers[2].Option, "retraction")
	})

	t.Run("summary", func(t *testing.T) {
		rr := s.do(t, http.MethodGet, "/api/polls/5432/summary", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		sum := decode[SummaryDTO](t, rr)
		assert.Equal(t, 1, sum.Counted)
		assert.Equal(t, 1, sum.Retracted)
		assert.Equal(t, 1, sum.Options[0].Voters)
		assert.Equal(t, "100", sum.Options[0].Percent.String())
	})
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidayEndpoints(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "2025-08-18", Name: "Cuti bersama"})
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[map[string]any](t, rr)["holiday"].(string)
	assert.True(t, s.store.IsHoliday(time.Date(2025, 8, 18, 9, 0, 0, 0, s.loc)))

	rr = s.do(t, http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "18/08/2025", Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = s.do(t, http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "2025-08-18"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/holidays/defaults", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, s.store.IsHoliday(time.Date(2030, 8, 17, 9, 0, 0, 0, s.loc)), "recurring")

	rr = s.do(t, http.MethodGet, "/api/holidays", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[struct {
		Holidays []HolidayDTO `json:"holidays"`
	}](t, rr)
	assert.Len(t, list.Holidays, 1+len(nationalHolidays))

	rr = s.do(t, http.MethodDelete, "/api/holidays/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, s.store.IsHoliday(time.Date(2025, 8, 18, 9, 0, 0, 0, s.loc)))
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "tight-totals")

	// Tight totals: a new member cannot be placed.
	rr = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "tight-totals"})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodPost, "/api/telegram/test-poll", TestPollRequest{
		UserID: "999", Option: "Masjid", Date: "2025-08-06", Waktu: "dzuhur",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.handler.Demo = nil
	rr = s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "month-tab"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLedgerGrid_WeekdaysOnly(t *testing.T) {
	grid := ledgerGrid(2025, time.August, demoMembers, 2)

	// 21 weekdays in August 2025, two columns each after ID and Nama.
	assert.Len(t, grid[1], 2+21*2)
	assert.Equal(t, "1 Agustus", grid[1][2])
	assert.Equal(t, "4 Agustus", grid[1][4])
	assert.Equal(t, "Dzuhur", grid[2][2])
	assert.Equal(t, "Asar", grid[2][3])
	assert.Equal(t, "Total Member", grid[3+3+2][0])
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{attendance.ErrInvalidCategory, http.StatusBadRequest},
		{attendance.ErrInvalidPoll, http.StatusBadRequest},
		{&ledger.ReconcileError{Reason: attendance.ErrUnknownPoll}, http.StatusNotFound},
		{fmt.Errorf("record: %w", attendance.ErrDuplicatePoll), http.StatusConflict},
		{&ledger.ReconcileError{Reason: attendance.ErrWriteError}, http.StatusBadGateway},
		{&ledger.ReconcileError{Reason: attendance.ErrTabNotFound}, http.StatusUnprocessableEntity},
		{&ledger.ReconcileError{Reason: attendance.ErrColumnNotFound}, http.StatusUnprocessableEntity},
		{&ledger.ReconcileError{Reason: attendance.ErrRowCreationFailed}, http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
