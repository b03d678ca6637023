package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "coinbase", cfg.Exchange)
	assert.Equal(t, "BTC-USD", cfg.DefaultPair)
	assert.Equal(t, "5m,30m,1h,4h,6h,1d,1w", cfg.DefaultTimeframes)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 200*time.Millisecond, cfg.HTTP.ExchangeDelay)
	assert.Equal(t, 300*time.Millisecond, cfg.HTTP.AdvancedDelay)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Sheets.Enabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CANDLE_DATA_DIR", "/var/candles")
	t.Setenv("CANDLE_DEFAULT_PAIR", "ETH-USD")
	t.Setenv("SHEETS_SPREADSHEET_ID", "sheet-123")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/candles", cfg.DataDir)
	assert.Equal(t, "ETH-USD", cfg.DefaultPair)
	assert.Equal(t, "sheet-123", cfg.Sheets.SpreadsheetID)
	assert.True(t, cfg.Sheets.Enabled())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"empty exchange", func(c *Config) { c.Exchange = "" }},
		{"bad default pair", func(c *Config) { c.DefaultPair = "BTCUSD" }},
		{"bad timeframe list", func(c *Config) { c.DefaultTimeframes = "1h,9h" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "yaml" }},
		{"non-positive timeout", func(c *Config) { c.HTTP.Timeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
