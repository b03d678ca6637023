// Package config loads application settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

// Config is the complete application configuration. Values are immutable
// after Load.
type Config struct {
	// DataDir is the root of the local candle store.
	DataDir string `env:"CANDLE_DATA_DIR" envDefault:"data"`

	// Exchange is the store partition name local files are written under.
	Exchange string `env:"CANDLE_EXCHANGE" envDefault:"coinbase"`

	// DefaultPair is used when the CLI is invoked without --pair.
	DefaultPair string `env:"CANDLE_DEFAULT_PAIR" envDefault:"BTC-USD"`

	// DefaultTimeframes is the comma-separated list used when the CLI is
	// invoked without --timeframes.
	DefaultTimeframes string `env:"CANDLE_DEFAULT_TIMEFRAMES" envDefault:"5m,30m,1h,4h,6h,1d,1w"`

	// CDPKeyPath points at the Coinbase Developer Platform key file used
	// for authenticated timeframes.
	CDPKeyPath string `env:"CDP_API_KEY_PATH" envDefault:"cdp_api_key.json"`

	Sheets  SheetsConfig  `envPrefix:"SHEETS_"`
	HTTP    HTTPConfig    `envPrefix:"HTTP_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// SheetsConfig configures the optional Google Sheets sync. Either a
// spreadsheet ID or a Drive folder must be set; with only a folder, the
// per-pair spreadsheet is located (or created) inside it by name.
type SheetsConfig struct {
	CredentialsPath string `env:"CREDENTIALS_PATH" envDefault:"credentials.json"`
	SpreadsheetID   string `env:"SPREADSHEET_ID"`
	FolderID        string `env:"FOLDER_ID"`
}

// Enabled reports whether a sync target is configured.
func (s SheetsConfig) Enabled() bool {
	return s.SpreadsheetID != "" || s.FolderID != ""
}

// HTTPConfig tunes the exchange clients. The zero values fall through to
// each client's production defaults.
type HTTPConfig struct {
	ExchangeBaseURL string        `env:"EXCHANGE_BASE_URL"`
	AdvancedBaseURL string        `env:"ADVANCED_BASE_URL"`
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"10s"`
	ExchangeDelay   time.Duration `env:"EXCHANGE_DELAY" envDefault:"200ms"`
	AdvancedDelay   time.Duration `env:"ADVANCED_DELAY" envDefault:"300ms"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"text"` // text, json
	FilePath   string `env:"FILE_PATH"`                // when set, logs also rotate into this file
	MaxSizeMB  int    `env:"MAX_SIZE" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"MAX_AGE" envDefault:"30"`
	Compress   bool   `env:"COMPRESS" envDefault:"true"`
}

// Load reads configuration from the process environment. A .env file in
// the working directory is merged in first when present; a missing file
// is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var problems []string

	if c.DataDir == "" {
		problems = append(problems, "CANDLE_DATA_DIR cannot be empty")
	}
	if c.Exchange == "" {
		problems = append(problems, "CANDLE_EXCHANGE cannot be empty")
	}
	if _, err := models.ParsePair(c.DefaultPair); err != nil {
		problems = append(problems, fmt.Sprintf("CANDLE_DEFAULT_PAIR: %v", err))
	}
	if _, err := models.ParseTimeframes(c.DefaultTimeframes); err != nil {
		problems = append(problems, fmt.Sprintf("CANDLE_DEFAULT_TIMEFRAMES: %v", err))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, "LOG_FORMAT must be one of: text, json")
	}

	if c.HTTP.Timeout <= 0 {
		problems = append(problems, "HTTP_TIMEOUT must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}
