package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		input   string
		want    Timeframe
		wantErr bool
	}{
		{input: "1h", want: Timeframe1h},
		{input: " 1D ", want: Timeframe1d},
		{input: "4H", want: Timeframe4h},
		{input: "1w", want: Timeframe1w},
		{input: "2h", wantErr: true},
		{input: "", wantErr: true},
		{input: "daily", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tf, err := ParseTimeframe(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tf)
		})
	}
}

func TestParseTimeframes(t *testing.T) {
	tfs, err := ParseTimeframes("1h, 4h,1d")
	require.NoError(t, err)
	assert.Equal(t, []Timeframe{Timeframe1h, Timeframe4h, Timeframe1d}, tfs)

	_, err = ParseTimeframes("1h,bogus")
	assert.Error(t, err)
}

func TestTimeframe_Provenance(t *testing.T) {
	assert.Equal(t, ProvenanceDirect, Timeframe1h.Provenance())
	assert.Equal(t, ProvenanceDirect, Timeframe1d.Provenance())
	assert.Equal(t, ProvenanceAuthenticated, Timeframe30m.Provenance())
	assert.Equal(t, ProvenanceDerived, Timeframe4h.Provenance())
	assert.Equal(t, ProvenanceDerived, Timeframe1w.Provenance())
}

func TestTimeframe_Source(t *testing.T) {
	src, ok := Timeframe4h.Source()
	require.True(t, ok)
	assert.Equal(t, Timeframe1h, src)

	src, ok = Timeframe1w.Source()
	require.True(t, ok)
	assert.Equal(t, Timeframe1d, src)

	_, ok = Timeframe1h.Source()
	assert.False(t, ok)
}

func TestTimeframe_Duration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Timeframe5m.Duration())
	assert.Equal(t, 24*time.Hour, Timeframe1d.Duration())
	assert.Equal(t, 7*24*time.Hour, Timeframe1w.Duration())
	assert.Equal(t, 3600, Timeframe1h.Seconds())
}

func TestPairHelpers(t *testing.T) {
	pair, err := ParsePair("btc-usd")
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", pair)

	_, err = ParsePair("BTCUSD")
	assert.Error(t, err)
	_, err = ParsePair("-USD")
	assert.Error(t, err)

	assert.Equal(t, "BTC/USD", CanonicalSymbol("BTC-USD"))
	assert.Equal(t, "BTC-USD", PairFromSymbol("BTC/USD"))
}
