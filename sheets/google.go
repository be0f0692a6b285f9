package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/warp/sholat-ledger/attendance"
)

// =============================================================================
// GOOGLE SHEET - ledger.Sheet over the Sheets v4 API
// =============================================================================

// GoogleConfig configures the Sheets client.
type GoogleConfig struct {
	SpreadsheetID   string
	CredentialsFile string // service account JSON; empty = application default credentials
	RequestsPerMin  int    // client-side quota guard, default 60
}

type Google struct {
	svc           *gsheets.Service
	spreadsheetID string
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewGoogle authenticates and builds the client.
func NewGoogle(ctx context.Context, cfg GoogleConfig, logger *zap.Logger) (*Google, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("%w: GOOGLE_SHEET_ID not configured", attendance.ErrConfiguration)
	}

	var creds *google.Credentials
	var err error
	if cfg.CredentialsFile != "" {
		data, readErr := os.ReadFile(cfg.CredentialsFile)
		if readErr != nil {
			return nil, fmt.Errorf("%w: read credentials: %v", attendance.ErrConfiguration, readErr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, gsheets.SpreadsheetsScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, gsheets.SpreadsheetsScope)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: google credentials: %v", attendance.ErrConfiguration, err)
	}

	svc, err := gsheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newGoogle(svc, cfg.SpreadsheetID, cfg.RequestsPerMin, logger), nil
}

func newGoogle(svc *gsheets.Service, spreadsheetID string, perMin int, logger *zap.Logger) *Google {
	if perMin <= 0 {
		perMin = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Google{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		limiter:       rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), max(perMin/6, 1)),
		logger:        logger,
	}
}

func (g *Google) ListTabs(ctx context.Context) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	tabs := make([]string, 0, len(ss.Sheets))
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			tabs = append(tabs, s.Properties.Title)
		}
	}
	return tabs, nil
}

func (g *Google) ReadAll(ctx context.Context, tab string) ([][]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, quoteTab(tab)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tab, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = format(v)
		}
	}
	return rows, nil
}

func (g *Google) WriteRange(ctx context.Context, tab, rangeSpec string, values [][]any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	rng := quoteTab(tab) + "!" + rangeSpec
	// RAW keeps identities like "007" or "=x" as literal text; booleans
	// still land as TRUE/FALSE.
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	g.logger.Debug("range updated", zap.String("range", rng))
	return nil
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
