package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSymbol = "BTC/USD"

var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewCandle_ValidData(t *testing.T) {
	tests := []struct {
		name   string
		open   string
		high   string
		low    string
		close  string
		volume string
	}{
		{
			name:   "bullish_candle",
			open:   "100.00",
			high:   "105.50",
			low:    "99.25",
			close:  "104.00",
			volume: "1500.75",
		},
		{
			name:   "bearish_candle",
			open:   "100.00",
			high:   "102.00",
			low:    "95.50",
			close:  "96.75",
			volume: "2000.00",
		},
		{
			name:   "doji_candle",
			open:   "100.00",
			high:   "101.00",
			low:    "99.00",
			close:  "100.00",
			volume: "500.25",
		},
		{
			name:   "zero_volume",
			open:   "100.00",
			high:   "100.50",
			low:    "99.50",
			close:  "100.25",
			volume: "0",
		},
		{
			name:   "high_precision",
			open:   "100.123456789",
			high:   "100.987654321",
			low:    "99.111111111",
			close:  "100.555555555",
			volume: "1234.567890123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candle, err := NewCandle(testTime, tt.open, tt.high, tt.low, tt.close, tt.volume, testSymbol)

			require.NoError(t, err)
			require.NotNil(t, candle)
			assert.Equal(t, testTime, candle.Timestamp)
			assert.Equal(t, tt.open, candle.Open)
			assert.Equal(t, tt.high, candle.High)
			assert.Equal(t, tt.low, candle.Low)
			assert.Equal(t, tt.close, candle.Close)
			assert.Equal(t, tt.volume, candle.Volume)
			assert.Equal(t, testSymbol, candle.Symbol)
		})
	}
}

func TestCandle_Validate_InvalidData(t *testing.T) {
	tests := []struct {
		name      string
		candle    Candle
		wantField string
	}{
		{
			name: "zero_timestamp",
			candle: Candle{
				Open: "100", High: "101", Low: "99", Close: "100", Volume: "10", Symbol: testSymbol,
			},
			wantField: "timestamp",
		},
		{
			name: "empty_symbol",
			candle: Candle{
				Timestamp: testTime,
				Open:      "100", High: "101", Low: "99", Close: "100", Volume: "10",
			},
			wantField: "symbol",
		},
		{
			name: "non_numeric_open",
			candle: Candle{
				Timestamp: testTime,
				Open:      "abc", High: "101", Low: "99", Close: "100", Volume: "10", Symbol: testSymbol,
			},
			wantField: "open",
		},
		{
			name: "negative_volume",
			candle: Candle{
				Timestamp: testTime,
				Open:      "100", High: "101", Low: "99", Close: "100", Volume: "-1", Symbol: testSymbol,
			},
			wantField: "volume",
		},
		{
			name: "high_below_open",
			candle: Candle{
				Timestamp: testTime,
				Open:      "102", High: "101", Low: "99", Close: "100", Volume: "10", Symbol: testSymbol,
			},
			wantField: "high",
		},
		{
			name: "low_above_close",
			candle: Candle{
				Timestamp: testTime,
				Open:      "100", High: "101", Low: "99.5", Close: "99.2", Volume: "10", Symbol: testSymbol,
			},
			wantField: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candle.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestCandle_DecimalAccessors(t *testing.T) {
	candle, err := NewCandle(testTime, "100.5", "105", "99.5", "104.25", "1500", testSymbol)
	require.NoError(t, err)

	open, err := candle.OpenDecimal()
	require.NoError(t, err)
	assert.Equal(t, "100.5", open.String())

	volume, err := candle.VolumeDecimal()
	require.NoError(t, err)
	assert.Equal(t, "1500", volume.String())
}

func TestNewCandle_NormalizesToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	local := time.Date(2024, 1, 1, 7, 0, 0, 0, loc)
	candle, err := NewCandle(local, "100", "101", "99", "100", "10", testSymbol)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, candle.Timestamp.Location())
	assert.True(t, candle.Timestamp.Equal(local))
}
