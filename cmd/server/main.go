/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, JSON file, env vars) and apply flags
  2. Initialize logger
  3. Open the poll store (sqlite, bolt or memory)
  4. Connect to the ledger spreadsheet
  5. Wire the reconciler (Redis lock when configured)
  6. Start the Telegram dispatcher and scheduler when a bot token is set
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  JSON config file (default: config/config.json)
  -port    HTTP server port (overrides config)
  -store   Store driver: sqlite | bolt | memory
  -db      Store path; ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  ./server -config=./config/config.json
  STORE_DRIVER=bolt ./server -db=./data/polls.bolt
  SHEETS_DRIVER=memory ./server -store=memory -port=3000

SEE ALSO:
  - config/config.go: Settings and precedence
  - api/server.go: Router configuration
  - api/scheduler.go: Poll dispatch
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/sholat-ledger/api"
	"github.com/warp/sholat-ledger/attendance"
	memstore "github.com/warp/sholat-ledger/attendance/store"
	"github.com/warp/sholat-ledger/config"
	"github.com/warp/sholat-ledger/ledger"
	"github.com/warp/sholat-ledger/logging"
	"github.com/warp/sholat-ledger/sheets"
	"github.com/warp/sholat-ledger/store/bolt"
	"github.com/warp/sholat-ledger/store/redis"
	"github.com/warp/sholat-ledger/store/sqlite"
	"github.com/warp/sholat-ledger/telegram"
)

func main() {
	// Flags
	configPath := flag.String("config", "config/config.json", "JSON config file")
	port := flag.String("port", "", "HTTP server port")
	storeDriver := flag.String("store", "", "Store driver: sqlite, bolt or memory")
	dbPath := flag.String("db", "", "Store path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.App.Port = *port
	}
	if *storeDriver != "" && *storeDriver != cfg.Store.Driver {
		cfg.Store.Driver = *storeDriver
		if *storeDriver == "bolt" && cfg.Store.Path == "./data/polls.db" {
			cfg.Store.Path = "./data/polls.bolt"
		}
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	store, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()

	static, err := attendance.ParseHolidaySet(cfg.Schedule.Holidays)
	if err != nil {
		return err
	}
	holidays := attendance.Calendars{store, static}

	// Ledger
	sheet, err := openSheet(ctx, cfg.Sheets, logger)
	if err != nil {
		return err
	}
	reconciler := ledger.NewReconciler(store, sheet, loc, logger.Named("reconciler"))
	reconciler.Timeout = time.Duration(cfg.Sheets.TimeoutSec) * time.Second
	if len(cfg.Sheets.SummaryMarkers) > 0 {
		reconciler.Resolver.SummaryMarkers = cfg.Sheets.SummaryMarkers
	}
	if cfg.Redis.Addr != "" {
		client, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer client.Close()
		locker := redis.NewLocker(client, logger.Named("lock"))
		locker.TTL = redis.LeaseTTLFor(reconciler.Timeout)
		reconciler.Locks = locker
		logger.Info("using redis tab locks", zap.String("addr", cfg.Redis.Addr), zap.Duration("lease_ttl", locker.TTL))
	}

	// Telegram
	var scheduler *api.PollScheduler
	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger.Named("telegram"))
		if err != nil {
			return err
		}
		if cfg.Telegram.WebhookURL != "" {
			if err := bot.SetWebhook(cfg.Telegram.WebhookURL); err != nil {
				return err
			}
		}
		scheduler = api.NewPollScheduler(store, holidays, bot, attendance.DefaultGate(loc), logger.Named("scheduler"))
		scheduler.CheckInterval = time.Duration(cfg.Schedule.TickSeconds) * time.Second
		for c, at := range map[attendance.Category]string{
			attendance.CategoryDzuhur: cfg.Schedule.DzuhurAt,
			attendance.CategoryAsar:   cfg.Schedule.AsarAt,
		} {
			clock, err := api.ParseClock(at)
			if err != nil {
				return err
			}
			scheduler.At[c] = clock
		}
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, poll dispatch disabled")
	}

	handler := api.NewHandler(store, reconciler, scheduler, loc, logger.Named("api"))
	if mem, ok := sheet.(*sheets.Memory); ok {
		handler.Demo = mem
	}
	router := api.NewRouter(handler, cfg.App.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Store.Driver),
			zap.String("sheets", cfg.Sheets.Driver),
			zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func openStore(cfg config.Store) (attendance.PollStore, error) {
	switch cfg.Driver {
	case "sqlite":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		return sqlite.New(cfg.Path)
	case "bolt":
		if err := ensureDir(cfg.Path); err != nil {
			return nil, err
		}
		return bolt.New(cfg.Path)
	case "memory":
		return memstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", attendance.ErrConfiguration, cfg.Driver)
	}
}

func openSheet(ctx context.Context, cfg config.Sheets, logger *zap.Logger) (ledger.Sheet, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory ledger, writes are not persisted")
		return sheets.NewMemory(), nil
	}
	return sheets.NewGoogle(ctx, sheets.GoogleConfig{
		SpreadsheetID:   cfg.SpreadsheetID,
		CredentialsFile: cfg.CredentialsFile,
		RequestsPerMin:  cfg.RequestsPerMin,
	}, logger.Named("sheets"))
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
