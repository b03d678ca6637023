package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

func newTestCoinbaseClient(t *testing.T, handler http.Handler) *CoinbaseClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewCoinbaseClient(CoinbaseOptions{
		BaseURL: server.URL,
		Delay:   time.Millisecond,
	}, nil)
	client.now = func() time.Time {
		return time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return client
}

// exchangeCandleJSON renders one wire-format candle array for a fake server.
func exchangeCandleJSON(ts time.Time, price int) string {
	return fmt.Sprintf("[%d,%d,%d,%d,%d,10]", ts.Unix(), price-5, price+5, price, price+1)
}

func TestCoinbaseFetchCandles(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("rows come back chronological with canonical symbol", func(t *testing.T) {
		client := newTestCoinbaseClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/products/BTC-USD/candles", r.URL.Path)
			assert.Equal(t, "3600", r.URL.Query().Get("granularity"))
			// Newest first, the way the Exchange API responds.
			fmt.Fprintf(w, "[%s,%s,%s]",
				exchangeCandleJSON(now.Add(-1*time.Hour), 102),
				exchangeCandleJSON(now.Add(-2*time.Hour), 101),
				exchangeCandleJSON(now.Add(-3*time.Hour), 100))
		}))

		rows, err := client.FetchCandles(context.Background(), FetchRequest{
			Pair: "BTC-USD", Timeframe: models.Timeframe1h, Count: 3,
		})

		require.NoError(t, err)
		require.Len(t, rows, 3)
		for i := 1; i < len(rows); i++ {
			assert.True(t, rowTime(rows[i-1]).Before(rowTime(rows[i])))
		}
		assert.Equal(t, "BTC/USD", rows[0]["symbol"])
	})

	t.Run("failed window is skipped, fetch continues", func(t *testing.T) {
		var windowIdx int
		client := newTestCoinbaseClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			windowIdx++
			if windowIdx == 2 {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
				return
			}
			start, _ := time.Parse("2006-01-02T15:04:05Z", r.URL.Query().Get("start"))
			fmt.Fprintf(w, "[%s]", exchangeCandleJSON(start, 100))
		}))

		// 900 candles = 3 windows of 300.
		rows, err := client.FetchCandles(context.Background(), FetchRequest{
			Pair: "BTC-USD", Timeframe: models.Timeframe1h, Count: 900,
		})

		require.NoError(t, err)
		assert.Equal(t, 3, windowIdx, "all windows must be attempted")
		assert.Len(t, rows, 2, "surviving windows still contribute rows")
	})

	t.Run("malformed rows are dropped", func(t *testing.T) {
		client := newTestCoinbaseClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "[%s,[12345]]", exchangeCandleJSON(now.Add(-time.Hour), 100))
		}))

		rows, err := client.FetchCandles(context.Background(), FetchRequest{
			Pair: "BTC-USD", Timeframe: models.Timeframe1h, Count: 2,
		})

		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		client := newTestCoinbaseClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "[]")
		}))

		rows, err := client.FetchCandles(context.Background(), FetchRequest{
			Pair: "BTC-USD", Timeframe: models.Timeframe1h, Count: 10,
		})

		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("non-direct timeframe is rejected", func(t *testing.T) {
		client := newTestCoinbaseClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))

		_, err := client.FetchCandles(context.Background(), FetchRequest{
			Pair: "BTC-USD", Timeframe: models.Timeframe30m, Count: 10,
		})
		assert.Error(t, err)

		_, err = client.FetchCandles(context.Background(), FetchRequest{
			Pair: "BTC-USD", Timeframe: models.Timeframe4h, Count: 10,
		})
		assert.Error(t, err)
	})

	t.Run("invalid request is rejected before any call", func(t *testing.T) {
		client := newTestCoinbaseClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))

		_, err := client.FetchCandles(context.Background(), FetchRequest{
			Pair: "BTCUSD", Timeframe: models.Timeframe1h,
		})
		assert.Error(t, err)
	})
}

func TestCoinbaseValidateSymbol(t *testing.T) {
	client := newTestCoinbaseClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/products/BTC-USD" {
			fmt.Fprint(w, `{"id":"BTC-USD"}`)
			return
		}
		http.NotFound(w, r)
	}))

	assert.True(t, client.ValidateSymbol(context.Background(), "BTC-USD"))
	assert.False(t, client.ValidateSymbol(context.Background(), "FAKE-USD"))
}
