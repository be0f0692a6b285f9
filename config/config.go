// Package config loads server settings.
//
// Precedence, lowest first: .env (exported into the environment), JSON file,
// defaults for zero values, environment variables. Command-line flags are
// applied by cmd/server on top of the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/sholat-ledger/attendance"
)

type App struct {
	Port           string   `json:"port"`
	Timezone       string   `json:"timezone"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type Store struct {
	Driver string `json:"driver"` // sqlite | bolt | memory
	Path   string `json:"path"`
}

type Sheets struct {
	Driver          string   `json:"driver"` // google | memory
	SpreadsheetID   string   `json:"spreadsheet_id"`
	CredentialsFile string   `json:"credentials_file"`
	RequestsPerMin  int      `json:"requests_per_minute"`
	TimeoutSec      int      `json:"timeout_seconds"`
	SummaryMarkers  []string `json:"summary_markers"`
}

type Telegram struct {
	BotToken   string `json:"bot_token"`
	ChatID     int64  `json:"chat_id"`
	WebhookURL string `json:"webhook_url"`
}

type Schedule struct {
	DzuhurAt    string   `json:"dzuhur_at"`
	AsarAt      string   `json:"asar_at"`
	Holidays    []string `json:"holidays"`
	TickSeconds int      `json:"tick_seconds"`
}

type Redis struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type Log struct {
	Level      string `json:"level"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Config groups every section of the settings file.
type Config struct {
	App      App      `json:"app"`
	Store    Store    `json:"store"`
	Sheets   Sheets   `json:"sheets"`
	Telegram Telegram `json:"telegram"`
	Schedule Schedule `json:"schedule"`
	Redis    Redis    `json:"redis"`
	Log      Log      `json:"log"`
}

// Load builds a Config. A missing file is not an error; invalid JSON is.
func Load(path string) (Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if err := loadJSON(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadJSON(path string, out *Config) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", attendance.ErrConfiguration, path, err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(out); err != nil {
		return fmt.Errorf("%w: parse %s: %v", attendance.ErrConfiguration, path, err)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.App.Port == "" {
		c.App.Port = "8080"
	}
	if c.App.Timezone == "" {
		c.App.Timezone = attendance.DefaultTimezone
	}
	if len(c.App.AllowedOrigins) == 0 {
		c.App.AllowedOrigins = []string{"*"}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case "bolt":
			c.Store.Path = "./data/polls.bolt"
		default:
			c.Store.Path = "./data/polls.db"
		}
	}
	if c.Sheets.Driver == "" {
		c.Sheets.Driver = "google"
	}
	if c.Sheets.RequestsPerMin == 0 {
		c.Sheets.RequestsPerMin = 60
	}
	if c.Sheets.TimeoutSec == 0 {
		c.Sheets.TimeoutSec = 20
	}
	if c.Schedule.DzuhurAt == "" {
		c.Schedule.DzuhurAt = "08:56"
	}
	if c.Schedule.AsarAt == "" {
		c.Schedule.AsarAt = "11:13"
	}
	if c.Schedule.TickSeconds == 0 {
		c.Schedule.TickSeconds = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}
}

func applyEnvOverrides(c *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setList := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitAndTrim(v)
		}
	}
	var errs []error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: not an integer", key, v))
				return
			}
			*dst = i
		}
	}

	setString("PORT", &c.App.Port)
	setString("APP_TIMEZONE", &c.App.Timezone)
	setList("CORS_ALLOWED_ORIGINS", &c.App.AllowedOrigins)

	setString("STORE_DRIVER", &c.Store.Driver)
	setString("STORE_PATH", &c.Store.Path)

	setString("SHEETS_DRIVER", &c.Sheets.Driver)
	setString("GOOGLE_SHEET_ID", &c.Sheets.SpreadsheetID)
	setString("GOOGLE_CREDENTIALS_FILE", &c.Sheets.CredentialsFile)
	setInt("SHEETS_REQUESTS_PER_MINUTE", &c.Sheets.RequestsPerMin)
	setInt("SHEETS_TIMEOUT_SECONDS", &c.Sheets.TimeoutSec)
	setList("SUMMARY_MARKERS", &c.Sheets.SummaryMarkers)

	setString("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	setString("TELEGRAM_WEBHOOK_URL", &c.Telegram.WebhookURL)
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID=%q: not an integer", v))
		} else {
			c.Telegram.ChatID = id
		}
	}

	setString("DZUHUR_AT", &c.Schedule.DzuhurAt)
	setString("ASAR_AT", &c.Schedule.AsarAt)
	setList("HOLIDAYS", &c.Schedule.Holidays)
	setInt("SCHEDULE_TICK_SECONDS", &c.Schedule.TickSeconds)

	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("REDIS_PASSWORD", &c.Redis.Password)
	setInt("REDIS_DB", &c.Redis.DB)

	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_PATH", &c.Log.Path)
	setInt("LOG_MAX_SIZE_MB", &c.Log.MaxSizeMB)
	setInt("LOG_MAX_BACKUPS", &c.Log.MaxBackups)
	setInt("LOG_MAX_AGE_DAYS", &c.Log.MaxAgeDays)
	if v := os.Getenv("LOG_COMPRESS"); v != "" {
		c.Log.Compress = v == "true" || v == "1"
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", attendance.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "bolt", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Sheets.Driver {
	case "google":
		if c.Sheets.SpreadsheetID == "" {
			errs = append(errs, errors.New("GOOGLE_SHEET_ID not configured"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown sheets driver %q", c.Sheets.Driver))
	}
	if _, err := attendance.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, err)
	}
	for name, at := range map[string]string{"dzuhur_at": c.Schedule.DzuhurAt, "asar_at": c.Schedule.AsarAt} {
		if _, _, err := attendance.ParseClock(at); err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", name, err))
		}
	}
	if _, err := attendance.ParseHolidaySet(c.Schedule.Holidays); err != nil {
		errs = append(errs, fmt.Errorf("holidays: %v", err))
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID required when a bot token is set"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", attendance.ErrConfiguration, errors.Join(errs...))
}

// Location returns the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return attendance.LoadLocation(c.App.Timezone)
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
