/*
scenarios.go - Demo ledger loaders for testing and demonstrations

PURPOSE:

	Seeds the in-memory spreadsheet (SHEETS_DRIVER=memory) with ledger
	layouts that exercise specific reconciliation paths, so the test-poll
	endpoint can be tried without a Google account.

AVAILABLE SCENARIOS:

	month-tab:     Month tab for the current month, three members
	year-tab:      Only a year tab exists (tab fallback)
	tight-totals:  Totals directly below the last member (row creation fails)

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenario_id": "month-tab"}

NOTE:

	Loading replaces the tabs a scenario writes. Not available with the
	Google driver.

SEE ALSO:
  - handlers.go: TestPoll
  - sheets/memory.go: In-memory spreadsheet
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/sholat-ledger/attendance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo ledger.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "month-tab",
		Name:        "Month Tab",
		Description: "Current month tab with weekday date groups and three members",
	},
	{
		ID:          "year-tab",
		Name:        "Year Tab",
		Description: "No month tab; answers fall back to the tab named after the year",
	},
	{
		ID:          "tight-totals",
		Name:        "Tight Totals",
		Description: "Totals block directly below the last member; new members cannot be registered",
	},
}

var demoMembers = [][]string{
	{"101", "Ahmad"},
	{"102", "Budi"},
	{"103", "Citra"},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns the available demo ledgers.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}

// LoadScenario seeds the in-memory ledger.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Demo == nil {
		writeError(w, http.StatusConflict, "Scenarios need SHEETS_DRIVER=memory", nil)
		return
	}
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	now := h.now().In(h.Location)
	var tabs []string
	switch req.ScenarioID {
	case "month-tab":
		name := attendance.MonthName(now.Month())
		h.Demo.AddTab(name, ledgerGrid(now.Year(), now.Month(), demoMembers, 3))
		tabs = append(tabs, name)
	case "year-tab":
		name := strconv.Itoa(now.Year())
		h.Demo.AddTab(name, ledgerGrid(now.Year(), now.Month(), demoMembers, 3))
		tabs = append(tabs, name)
	case "tight-totals":
		name := attendance.MonthName(now.Month())
		h.Demo.AddTab(name, ledgerGrid(now.Year(), now.Month(), demoMembers, 0))
		tabs = append(tabs, name)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID), zap.Strings("tabs", tabs))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"tabs":     tabs,
	})
}

// ledgerGrid lays out one month: a title row, a date header per weekday,
// Dzuhur/Asar sub-headers, the members, spare blank rows and the totals.
func ledgerGrid(year int, month time.Month, members [][]string, spare int) [][]string {
	title := attendance.MonthName(month)
	monthLabel := title[:1] + strings.ToLower(title[1:])

	dates := []string{"ID", "Nama"}
	subs := []string{"", ""}
	for d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC); d.Month() == month; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		dates = append(dates, fmt.Sprintf("%d %s", d.Day(), monthLabel), "")
		subs = append(subs, attendance.CategoryDzuhur.Title(), attendance.CategoryAsar.Title())
	}

	grid := [][]string{
		{fmt.Sprintf("ABSENSI SHOLAT %s %d", title, year)},
		dates,
		subs,
	}
	for _, m := range members {
		grid = append(grid, append([]string(nil), m...))
	}
	for i := 0; i < spare; i++ {
		grid = append(grid, []string{})
	}
	grid = append(grid,
		[]string{"Total Member", strconv.Itoa(len(members))},
		[]string{"Total Sholat"},
	)
	return grid
}
