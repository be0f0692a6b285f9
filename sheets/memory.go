// Package sheets provides ledger.Sheet implementations.
package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/warp/sholat-ledger/ledger"
)

// =============================================================================
// MEMORY SHEET - In-memory spreadsheet (for testing/dev)
// =============================================================================

// Write records one WriteRange call.
type Write struct {
	Tab    string
	Range  string
	Values [][]any
}

type Memory struct {
	mu     sync.RWMutex
	order  []string
	tabs   map[string][][]string
	writes []Write

	// Injected failures.
	ListErr  error
	WriteErr error
}

func NewMemory() *Memory {
	return &Memory{tabs: make(map[string][][]string)}
}

// AddTab creates or replaces a tab.
func (m *Memory) AddTab(name string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[name]; !ok {
		m.order = append(m.order, name)
	}
	m.tabs[name] = copyGrid(rows)
}

func (m *Memory) ListTabs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]string(nil), m.order...), nil
}

// ReadAll resolves the tab name case-insensitively, like A1 ranges do.
func (m *Memory) ReadAll(_ context.Context, tab string) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.lookup(tab)
	if !ok {
		return nil, fmt.Errorf("unable to parse range: %s", tab)
	}
	return copyGrid(m.tabs[name]), nil
}

var a1Cell = regexp.MustCompile(`^([A-Za-z]+)([0-9]+)$`)

// WriteRange supports single-cell and rectangular ranges anchored at their top-left cell.
func (m *Memory) WriteRange(_ context.Context, tab, rangeSpec string, values [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	name, ok := m.lookup(tab)
	if !ok {
		return fmt.Errorf("unable to parse range: %s!%s", tab, rangeSpec)
	}

	anchor := strings.SplitN(rangeSpec, ":", 2)[0]
	match := a1Cell.FindStringSubmatch(anchor)
	if match == nil {
		return fmt.Errorf("unable to parse range: %s!%s", tab, rangeSpec)
	}
	col, err := ledger.ColumnIndex(match[1])
	if err != nil {
		return err
	}
	row, _ := strconv.Atoi(match[2])
	if row < 1 {
		return fmt.Errorf("unable to parse range: %s!%s", tab, rangeSpec)
	}

	grid := m.tabs[name]
	for i, vals := range values {
		r := row - 1 + i
		for len(grid) <= r {
			grid = append(grid, nil)
		}
		for j, v := range vals {
			c := col + j
			for len(grid[r]) <= c {
				grid[r] = append(grid[r], "")
			}
			grid[r][c] = format(v)
		}
	}
	m.tabs[name] = grid
	m.writes = append(m.writes, Write{Tab: name, Range: rangeSpec, Values: values})
	return nil
}

// Writes returns every successful WriteRange call in order.
func (m *Memory) Writes() []Write {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Write(nil), m.writes...)
}

// Cell returns the value at an A1 cell such as "B5".
func (m *Memory) Cell(tab, a1 string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match := a1Cell.FindStringSubmatch(a1)
	if match == nil {
		return ""
	}
	col, _ := ledger.ColumnIndex(match[1])
	row, _ := strconv.Atoi(match[2])
	grid := m.tabs[tab]
	if row < 1 || row > len(grid) || col >= len(grid[row-1]) {
		return ""
	}
	return grid[row-1][col]
}

func (m *Memory) lookup(tab string) (string, bool) {
	if _, ok := m.tabs[tab]; ok {
		return tab, true
	}
	for _, name := range m.order {
		if strings.EqualFold(name, strings.TrimSpace(tab)) {
			return name, true
		}
	}
	return "", false
}

// format renders a value the way the Sheets API returns FORMATTED_VALUE.
func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func copyGrid(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
