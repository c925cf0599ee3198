package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// FetchMode selects how listing pages are retrieved.
const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

type Config struct {
	DatabaseURI        string
	HTTPAddr           string
	SchedulerInterval  time.Duration
	StalenessWindow    time.Duration
	FetchMode          string
	FetchRatePerMinute int
	OLXBaseURL         string
	GeminiAPIKey       string
	GeminiModel        string
	LogLevel           slog.Level
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using system environment")
	}

	databaseURI := os.Getenv("LOKUM_DATABASE_URI")
	if databaseURI == "" {
		return nil, fmt.Errorf("LOKUM_DATABASE_URI environment variable is required but not set")
	}

	httpAddr := os.Getenv("LOKUM_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8000"
	}

	intervalMinutes := 5
	if v := os.Getenv("LOKUM_SCHEDULER_INTERVAL_MINUTES"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOKUM_SCHEDULER_INTERVAL_MINUTES %q: %w", v, err)
		}
		intervalMinutes = parsed
	}

	stalenessWeeks := 2
	if v := os.Getenv("LOKUM_STALENESS_WEEKS"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOKUM_STALENESS_WEEKS %q: %w", v, err)
		}
		stalenessWeeks = parsed
	}

	fetchMode := os.Getenv("LOKUM_FETCH_MODE")
	if fetchMode == "" {
		fetchMode = FetchModeHTTP
	}
	if fetchMode != FetchModeHTTP && fetchMode != FetchModeBrowser {
		return nil, fmt.Errorf("invalid LOKUM_FETCH_MODE %q: must be %q or %q", fetchMode, FetchModeHTTP, FetchModeBrowser)
	}

	fetchRate := 30
	if v := os.Getenv("LOKUM_FETCH_RATE_PER_MINUTE"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOKUM_FETCH_RATE_PER_MINUTE %q: %w", v, err)
		}
		fetchRate = parsed
	}

	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if geminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, enrichment will fail until configured")
	}

	logLevel := slog.LevelInfo
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := logLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
	}

	return &Config{
		DatabaseURI:        databaseURI,
		HTTPAddr:           httpAddr,
		SchedulerInterval:  time.Duration(intervalMinutes) * time.Minute,
		StalenessWindow:    time.Duration(stalenessWeeks) * 7 * 24 * time.Hour,
		FetchMode:          fetchMode,
		FetchRatePerMinute: fetchRate,
		OLXBaseURL:         os.Getenv("LOKUM_OLX_BASE_URL"),
		GeminiAPIKey:       geminiAPIKey,
		// Empty selects the enrichment engine's default model.
		GeminiModel: os.Getenv("GEMINI_MODEL"),
		LogLevel:    logLevel,
	}, nil
}
