package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/candle-tools/go-candle-ingest/internal/models"
	"github.com/candle-tools/go-candle-ingest/internal/series"
)

const (
	defaultExchangeBaseURL = "https://api.exchange.coinbase.com"

	// Inter-call delay for the public Exchange API. Coinbase allows
	// roughly 10 requests per second; 200ms keeps a wide margin.
	defaultExchangeDelay = 200 * time.Millisecond

	defaultRequestTimeout = 10 * time.Second
)

// CoinbaseOptions configures a CoinbaseClient. The zero value selects
// production defaults.
type CoinbaseOptions struct {
	BaseURL string
	Delay   time.Duration
	Timeout time.Duration
}

// CoinbaseClient fetches candles from the public Coinbase Exchange API.
// It supports the direct-provenance timeframes; 30m goes through the
// AdvancedTradeClient instead.
type CoinbaseClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger

	// now is stubbed in tests so pagination windows are deterministic.
	now func() time.Time
}

// NewCoinbaseClient creates a client for the public Exchange API.
func NewCoinbaseClient(opts CoinbaseOptions, logger *slog.Logger) *CoinbaseClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultExchangeBaseURL
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultExchangeDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CoinbaseClient{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		limiter:    rate.NewLimiter(rate.Every(opts.Delay), 1),
		logger:     logger,
		now:        time.Now,
	}
}

// FetchCandles fetches the requested span window by window, strictly
// sequentially. Each window's rows are reordered oldest-first and malformed
// rows are skipped; a window that fails outright is logged and skipped so
// partial results survive. The merged result is timestamp-deduplicated and
// sorted ascending.
func (c *CoinbaseClient) FetchCandles(ctx context.Context, req FetchRequest) ([]series.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch request: %w", err)
	}
	if req.Timeframe.Provenance() != models.ProvenanceDirect {
		return nil, fmt.Errorf("timeframe %s is not fetchable from the Exchange API", req.Timeframe)
	}

	start, _, count := req.Span(c.now())
	windows := paginationWindows(start, count, req.Timeframe.Duration())
	c.logger.Info("fetching candles",
		"pair", req.Pair,
		"timeframe", req.Timeframe.String(),
		"candles", count,
		"windows", len(windows))

	symbol := models.CanonicalSymbol(req.Pair)
	var rows []series.Row
	for i, w := range windows {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		windowRows, err := c.fetchWindow(ctx, req.Pair, req.Timeframe, w, symbol)
		if err != nil {
			c.logger.Error("window fetch failed, continuing with next window",
				"window", i+1,
				"windows", len(windows),
				"start", w.start,
				"end", w.end,
				"error", err)
			continue
		}
		if len(windowRows) == 0 {
			c.logger.Warn("no data in window", "window", i+1, "windows", len(windows))
			continue
		}

		c.logger.Debug("fetched window", "window", i+1, "windows", len(windows), "rows", len(windowRows))
		rows = append(rows, windowRows...)
	}

	if len(rows) == 0 {
		c.logger.Warn("no data fetched", "pair", req.Pair, "timeframe", req.Timeframe.String())
		return []series.Row{}, nil
	}

	before := len(rows)
	rows = dedupeRows(rows)
	sortRows(rows)
	if removed := before - len(rows); removed > 0 {
		c.logger.Info("removed duplicate candles", "duplicates", removed)
	}

	c.logger.Info("fetch complete", "pair", req.Pair, "timeframe", req.Timeframe.String(), "rows", len(rows))
	return rows, nil
}

// ValidateSymbol probes /products/{pair} with a single unauthenticated
// request. Any failure, including network errors, reads as "does not
// exist".
func (c *CoinbaseClient) ValidateSymbol(ctx context.Context, pair string) bool {
	reqURL := fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(pair))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// fetchWindow issues one candles request. The Exchange API returns rows as
// [time, low, high, open, close, volume] arrays, newest first.
func (c *CoinbaseClient) fetchWindow(ctx context.Context, pair string, tf models.Timeframe, w window, symbol string) ([]series.Row, error) {
	params := url.Values{}
	params.Set("granularity", fmt.Sprintf("%d", tf.Seconds()))
	params.Set("start", w.start.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("end", w.end.UTC().Format("2006-01-02T15:04:05Z"))
	reqURL := fmt.Sprintf("%s/products/%s/candles?%s", c.baseURL, url.PathEscape(pair), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{URL: reqURL, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{URL: reqURL, Message: fmt.Sprintf("reading response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, URL: reqURL, Message: string(body)}
	}

	var raw [][]json.Number
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &APIError{URL: reqURL, Message: fmt.Sprintf("malformed payload: %v", err)}
	}

	// Newest first on the wire; flip to chronological.
	rows := make([]series.Row, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		row, err := exchangeRowToRaw(raw[i], symbol)
		if err != nil {
			c.logger.Warn("skipping malformed candle", "candle", raw[i], "error", err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// exchangeRowToRaw maps one [time, low, high, open, close, volume] array
// into the standardized raw row shape.
func exchangeRowToRaw(values []json.Number, symbol string) (series.Row, error) {
	if len(values) < 6 {
		return nil, fmt.Errorf("expected 6 fields, got %d", len(values))
	}
	epoch, err := values[0].Int64()
	if err != nil {
		return nil, fmt.Errorf("bad timestamp %q: %v", values[0], err)
	}
	return series.Row{
		"timestamp": time.Unix(epoch, 0).UTC(),
		"low":       values[1],
		"high":      values[2],
		"open":      values[3],
		"close":     values[4],
		"volume":    values[5],
		"symbol":    symbol,
	}, nil
}
