// Package exchange fetches OHLCV data from the Coinbase REST APIs.
//
// Two adapters live here: CoinbaseClient for the public Exchange API
// (5m/1h/6h/1d) and AdvancedTradeClient for the authenticated Advanced
// Trade API (30m, JWT-signed requests). Both paginate a requested span into
// windows of at most the API's per-request candle cap, fetch the windows
// strictly sequentially with a fixed inter-call delay, and prefer partial
// results over total failure: one window's error is logged and skipped.
package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/candle-tools/go-candle-ingest/internal/models"
	"github.com/candle-tools/go-candle-ingest/internal/series"
)

// PageCap is the maximum number of candles either Coinbase API returns per
// request.
const PageCap = 300

// rangeCountBuffer is added to range-derived candle counts so the windows
// comfortably cover the requested years.
const rangeCountBuffer = 100

// CandleFetcher is the contract the orchestrator consumes. Raw rows come
// back oldest-first, timestamp-deduplicated; the normalizer turns them into
// a canonical series.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, req FetchRequest) ([]series.Row, error)
}

// SymbolValidator probes whether a trading pair exists on the exchange.
type SymbolValidator interface {
	// ValidateSymbol returns false on any failure, network errors
	// included; absence and unreachability are deliberately collapsed.
	ValidateSymbol(ctx context.Context, pair string) bool
}

// APIError reports a failed exchange request.
type APIError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("exchange API error %d on %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("exchange API error on %s: %s", e.URL, e.Message)
}

// FetchRequest describes one fetch operation. Either a year range or a
// candle count is given; with neither, the latest PageCap candles are
// fetched.
type FetchRequest struct {
	Pair      string // request form, e.g. "BTC-USD"
	Timeframe models.Timeframe
	Count     int // candles to fetch backward from now; ignored when years are set
	StartYear int // optional, inclusive (Jan 1 00:00:00 UTC)
	EndYear   int // optional, inclusive (Dec 31 23:59:59 UTC)
}

// Validate checks the request is well-formed.
func (r FetchRequest) Validate() error {
	if _, err := models.ParsePair(r.Pair); err != nil {
		return err
	}
	if !r.Timeframe.Valid() {
		return fmt.Errorf("unknown timeframe %q", r.Timeframe)
	}
	if r.Count < 0 {
		return fmt.Errorf("candle count cannot be negative")
	}
	if r.StartYear != 0 && r.EndYear != 0 && r.StartYear > r.EndYear {
		return fmt.Errorf("start year %d cannot be after end year %d", r.StartYear, r.EndYear)
	}
	return nil
}

// Span resolves the request into an absolute [start, end] range and the
// candle count it implies. A start-only range ends now; an end-only range
// begins two years before the end year.
func (r FetchRequest) Span(now time.Time) (start, end time.Time, count int) {
	step := r.Timeframe.Duration()

	switch {
	case r.StartYear != 0 || r.EndYear != 0:
		startYear := r.StartYear
		if startYear == 0 {
			startYear = r.EndYear - 2
		}
		start = time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC)
		if r.EndYear != 0 {
			end = time.Date(r.EndYear, 12, 31, 23, 59, 59, 0, time.UTC)
			if end.After(now) {
				end = now
			}
		} else {
			end = now
		}
		count = int(end.Sub(start)/step) + rangeCountBuffer
	default:
		count = r.Count
		if count <= 0 {
			count = PageCap
		}
		end = now
		start = end.Add(-time.Duration(count) * step)
	}
	return start, end, count
}

// window is one bounded time span fetched in a single request. Windows are
// derived per fetch and discarded afterward.
type window struct {
	start time.Time
	end   time.Time
}

// paginationWindows splits a span of count candles starting at start into
// consecutive, non-overlapping windows of at most PageCap candles each,
// oldest first.
func paginationWindows(start time.Time, count int, step time.Duration) []window {
	if count <= 0 {
		return nil
	}
	chunks := int(math.Ceil(float64(count) / float64(PageCap)))

	windows := make([]window, 0, chunks)
	current := start
	for i := 0; i < chunks; i++ {
		remaining := count - i*PageCap
		size := remaining
		if size > PageCap {
			size = PageCap
		}
		next := current.Add(time.Duration(size) * step)
		windows = append(windows, window{start: current, end: next})
		current = next
	}
	return windows
}

// dedupeRows removes rows sharing a timestamp, keeping the first seen.
// Windows are chronological and non-overlapping by construction, so
// first-seen and last-seen are equivalent here; first-seen matches the
// order rows arrived in.
func dedupeRows(rows []series.Row) []series.Row {
	seen := make(map[int64]bool, len(rows))
	out := make([]series.Row, 0, len(rows))
	for _, row := range rows {
		ts, ok := row["timestamp"].(time.Time)
		if !ok {
			out = append(out, row)
			continue
		}
		if seen[ts.UnixNano()] {
			continue
		}
		seen[ts.UnixNano()] = true
		out = append(out, row)
	}
	return out
}

// sortRows orders rows ascending by timestamp.
func sortRows(rows []series.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rowTime(rows[i]).Before(rowTime(rows[j]))
	})
}

func rowTime(row series.Row) time.Time {
	ts, _ := row["timestamp"].(time.Time)
	return ts
}
