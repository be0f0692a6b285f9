package ledger

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Locator resolves a logical period to a concrete tab.
type Locator struct {
	Sheet  Sheet
	Logger *zap.Logger
}

// ResolveTab returns the first candidate that exists, using the stored tab
// name so later writes keep the spreadsheet's casing.
//
// Strategy 1 compares candidates against the tab list, trimmed and
// case-insensitive. Only when the list is unavailable or empty does
// strategy 2 read each candidate directly and accept the first with content.
func (l *Locator) ResolveTab(ctx context.Context, candidates []string) (string, error) {
	tabs, listErr := l.Sheet.ListTabs(ctx)
	if listErr == nil {
		for _, c := range candidates {
			for _, t := range tabs {
				if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(c)) {
					return t, nil
				}
			}
		}
	}

	if listErr != nil || len(tabs) == 0 {
		l.logger().Warn("tab list unavailable, probing candidates directly",
			zap.Strings("candidates", candidates), zap.Error(listErr))
		for _, c := range candidates {
			if ctx.Err() != nil {
				break
			}
			rows, err := l.Sheet.ReadAll(ctx, c)
			if err != nil {
				l.logger().Debug("candidate tab unreadable", zap.String("tab", c), zap.Error(err))
				continue
			}
			if hasContent(rows) {
				return c, nil
			}
		}
	}

	if listErr == nil && ctx.Err() != nil {
		listErr = ctx.Err()
	}
	return "", &TabNotFoundError{
		Candidates: append([]string(nil), candidates...),
		Available:  tabs,
		ListErr:    listErr,
	}
}

func (l *Locator) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}
