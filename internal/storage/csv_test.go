package storage

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

var testKey = Key{Exchange: "coinbase", Pair: "BTC-USD", Timeframe: models.Timeframe1h}

func newTestStore(t *testing.T) *CSVStore {
	t.Helper()
	return NewCSVStore(afero.NewMemMapFs(), "data", nil)
}

func hourlyBars(start time.Time, n int) []models.Candle {
	bars := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)
		bars = append(bars, models.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      fmt.Sprintf("%g", base),
			High:      fmt.Sprintf("%g", base+5),
			Low:       fmt.Sprintf("%g", base-5),
			Close:     fmt.Sprintf("%g", base+1),
			Volume:    "10",
			Symbol:    "BTC/USD",
		})
	}
	return bars
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestKey_Path(t *testing.T) {
	assert.Equal(t, "data/coinbase/BTC-USD_1h.csv", testKey.Path("data"))

	slashKey := Key{Exchange: "Coinbase", Pair: "btc/usd", Timeframe: models.Timeframe1w}
	assert.Equal(t, "data/coinbase/BTC-USD_1w.csv", slashKey.Path("data"))
}

func TestCSVStore_SaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	bars := hourlyBars(t0, 3)

	added, err := store.Save(bars, testKey, true)
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.True(t, store.Exists(testKey))

	loaded, err := store.Load(testKey)
	require.NoError(t, err)
	assert.Equal(t, bars, loaded)
}

func TestCSVStore_FileLayoutContract(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCSVStore(fs, "data", nil)

	_, err := store.Save(hourlyBars(t0, 1), testKey, true)
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "data/coinbase/BTC-USD_1h.csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,open,high,low,close,volume,symbol", lines[0])
	assert.Equal(t, "2024-01-01T00:00:00Z,100,105,95,101,10,BTC/USD", lines[1])
}

func TestCSVStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(testKey)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, store.Exists(testKey))
}

func TestCSVStore_MergeAddsOnlyNewRows(t *testing.T) {
	store := newTestStore(t)

	added, err := store.Save(hourlyBars(t0, 5), testKey, true)
	require.NoError(t, err)
	require.Equal(t, 5, added)

	// Overlapping window: 3 old hours plus 2 new ones.
	added, err = store.Save(hourlyBars(t0.Add(2*time.Hour), 5), testKey, true)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	loaded, err := store.Load(testKey)
	require.NoError(t, err)
	assert.Len(t, loaded, 7)
}

func TestCSVStore_MergePureOverlapIsZeroNeverNegative(t *testing.T) {
	store := newTestStore(t)
	bars := hourlyBars(t0, 4)

	_, err := store.Save(bars, testKey, true)
	require.NoError(t, err)

	// Re-saving a strict subset must report zero added, not a negative
	// delta: the merged set can never shrink below the prior total.
	added, err := store.Save(bars[1:3], testKey, true)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	loaded, err := store.Load(testKey)
	require.NoError(t, err)
	assert.Len(t, loaded, 4)
}

func TestCSVStore_MergeNewDataSupersedesOld(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(hourlyBars(t0, 1), testKey, true)
	require.NoError(t, err)

	revised := hourlyBars(t0, 1)
	revised[0].Close = "999"
	added, err := store.Save(revised, testKey, true)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	loaded, err := store.Load(testKey)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "999", loaded[0].Close, "merge keeps the newer row on timestamp conflict")
}

func TestCSVStore_SaveWithoutMergeReplaces(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(hourlyBars(t0, 5), testKey, true)
	require.NoError(t, err)

	added, err := store.Save(hourlyBars(t0.Add(100*time.Hour), 2), testKey, false)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	loaded, err := store.Load(testKey)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestCSVStore_SaveSortsUnorderedInput(t *testing.T) {
	store := newTestStore(t)
	bars := hourlyBars(t0, 3)
	unordered := []models.Candle{bars[2], bars[0], bars[1]}

	_, err := store.Save(unordered, testKey, true)
	require.NoError(t, err)

	loaded, err := store.Load(testKey)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i := 1; i < len(loaded); i++ {
		assert.True(t, loaded[i-1].Timestamp.Before(loaded[i].Timestamp), "series must be strictly ascending")
	}
}

func TestCSVStore_SaveEmptyIsNoop(t *testing.T) {
	store := newTestStore(t)

	added, err := store.Save(nil, testKey, true)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.False(t, store.Exists(testKey))
}

func TestCSVStore_LoadCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing_column",
			content: "timestamp,open,high,low,close,volume\n2024-01-01T00:00:00Z,1,2,0.5,1.5,10\n",
		},
		{
			name:    "empty_file",
			content: "",
		},
		{
			name:    "bad_timestamp",
			content: "timestamp,open,high,low,close,volume,symbol\nyesterday,1,2,0.5,1.5,10,BTC/USD\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			store := NewCSVStore(fs, "data", nil)
			require.NoError(t, afero.WriteFile(fs, testKey.Path("data"), []byte(tt.content), 0o644))

			_, err := store.Load(testKey)
			var cerr *CorruptStoreError
			require.ErrorAs(t, err, &cerr)
		})
	}
}

func TestCSVStore_Stats(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(hourlyBars(t0, 3), testKey, true)
	require.NoError(t, err)
	_, err = store.Save(hourlyBars(t0, 3), Key{Exchange: "coinbase", Pair: "ETH-USD", Timeframe: models.Timeframe1d}, true)
	require.NoError(t, err)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.FilesByExchange["coinbase"])
	assert.Positive(t, stats.TotalSizeBytes)
}
