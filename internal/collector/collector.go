// Package collector orchestrates a collection run: fetch, normalize,
// derive, persist and optionally sync each requested timeframe.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/candle-tools/go-candle-ingest/internal/exchange"
	"github.com/candle-tools/go-candle-ingest/internal/models"
	"github.com/candle-tools/go-candle-ingest/internal/resample"
	"github.com/candle-tools/go-candle-ingest/internal/series"
	"github.com/candle-tools/go-candle-ingest/internal/storage"
)

// coverageSlack is how far a stored source series may fall short of the
// requested span on either edge before a fresh fetch is forced. Exchanges
// list products at different times, so exact edge coverage is rare.
const coverageSlack = 7 * 24 * time.Hour

// derivedCountBuffer oversizes source fetches for derived timeframes so
// partial windows at the edges still leave enough complete ones.
const derivedCountBuffer = 1.2

// Store is the slice of the storage layer the collector needs.
type Store interface {
	Exists(key storage.Key) bool
	Load(key storage.Key) ([]models.Candle, error)
	Save(candles []models.Candle, key storage.Key, merge bool) (int, error)
}

// Uploader pushes a timeframe's candles to the remote sync target.
type Uploader interface {
	Upload(ctx context.Context, tf models.Timeframe, candles []models.Candle) (int, error)
}

// Request describes one collection run.
type Request struct {
	Pair       string // request form, e.g. "BTC-USD"
	Timeframes []models.Timeframe
	Count      int // candles per timeframe; 0 means one page
	StartYear  int
	EndYear    int
	Upload     bool
}

// Collector runs the fetch-normalize-store pipeline for a set of
// timeframes, strictly sequentially.
type Collector struct {
	direct   exchange.CandleFetcher
	advanced exchange.CandleFetcher // nil without credentials
	symbols  exchange.SymbolValidator
	store    Store
	uploader Uploader // nil disables sync

	normalizer *series.Normalizer
	resampler  *resample.Resampler

	exchangeName string
	logger       *slog.Logger
	now          func() time.Time
}

// Options bundles the collector's dependencies. Direct, Store and
// ExchangeName are required; the rest may be nil.
type Options struct {
	Direct       exchange.CandleFetcher
	Advanced     exchange.CandleFetcher
	Symbols      exchange.SymbolValidator
	Store        Store
	Uploader     Uploader
	ExchangeName string
	Logger       *slog.Logger
}

// New creates a collector.
func New(opts Options) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		direct:       opts.Direct,
		advanced:     opts.Advanced,
		symbols:      opts.Symbols,
		store:        opts.Store,
		uploader:     opts.Uploader,
		normalizer:   series.NewNormalizer(logger),
		resampler:    resample.NewResampler(logger),
		exchangeName: opts.ExchangeName,
		logger:       logger,
		now:          time.Now,
	}
}

// Run executes the pipeline for every requested timeframe and returns a
// per-timeframe report. A timeframe failure is recorded and the run
// continues; only run-level problems (bad request, unknown symbol) are
// returned as errors.
func (c *Collector) Run(ctx context.Context, req Request) (*Report, error) {
	if _, err := models.ParsePair(req.Pair); err != nil {
		return nil, err
	}
	if len(req.Timeframes) == 0 {
		return nil, fmt.Errorf("at least one timeframe is required")
	}

	if c.symbols != nil && !c.symbols.ValidateSymbol(ctx, req.Pair) {
		return nil, fmt.Errorf("pair %s does not exist on %s", req.Pair, c.exchangeName)
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Pair:      req.Pair,
		StartedAt: c.now(),
	}
	c.logger.Info("starting collection run",
		"run_id", report.RunID,
		"pair", req.Pair,
		"timeframes", len(req.Timeframes))

	// Derived timeframes go last so they can resample source data stored
	// moments earlier in the same run.
	timeframes := orderByProvenance(req.Timeframes)

	for _, tf := range timeframes {
		started := c.now()
		result := c.collectTimeframe(ctx, req, tf)
		result.Timeframe = tf
		result.Duration = c.now().Sub(started)
		report.Results = append(report.Results, result)

		switch result.Status {
		case StatusSuccess:
			c.logger.Info("timeframe complete",
				"timeframe", tf.String(),
				"fetched", result.Fetched,
				"stored", result.Stored,
				"uploaded", result.Uploaded)
		case StatusSkipped:
			c.logger.Warn("timeframe skipped", "timeframe", tf.String(), "reason", result.Reason)
		case StatusFailed:
			c.logger.Error("timeframe failed", "timeframe", tf.String(), "error", result.Err)
		}

		if err := ctx.Err(); err != nil {
			return report, err
		}
	}

	report.Duration = c.now().Sub(report.StartedAt)
	c.logger.Info("collection run finished",
		"run_id", report.RunID,
		"succeeded", report.Succeeded(),
		"skipped", report.Skipped(),
		"failed", report.Failed(),
		"duration", report.Duration)
	return report, nil
}

func (c *Collector) collectTimeframe(ctx context.Context, req Request, tf models.Timeframe) TimeframeResult {
	switch tf.Provenance() {
	case models.ProvenanceDirect:
		return c.collectFetched(ctx, req, tf, c.direct)
	case models.ProvenanceAuthenticated:
		if c.advanced == nil {
			return TimeframeResult{
				Status: StatusSkipped,
				Reason: fmt.Sprintf("%s requires API credentials and none are configured", tf),
			}
		}
		return c.collectFetched(ctx, req, tf, c.advanced)
	case models.ProvenanceDerived:
		return c.collectDerived(ctx, req, tf)
	default:
		return TimeframeResult{Status: StatusFailed, Err: fmt.Errorf("unknown provenance for timeframe %s", tf)}
	}
}

// collectFetched handles timeframes that come straight off an API.
func (c *Collector) collectFetched(ctx context.Context, req Request, tf models.Timeframe, fetcher exchange.CandleFetcher) TimeframeResult {
	rows, err := fetcher.FetchCandles(ctx, exchange.FetchRequest{
		Pair:      req.Pair,
		Timeframe: tf,
		Count:     req.Count,
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
	})
	if err != nil {
		return TimeframeResult{Status: StatusFailed, Err: err}
	}

	candles, err := c.normalizer.Normalize(rows)
	if err != nil {
		return TimeframeResult{Status: StatusFailed, Err: err}
	}
	if len(candles) == 0 {
		return TimeframeResult{Status: StatusSkipped, Reason: "no data returned"}
	}

	return c.persist(ctx, req, tf, candles, len(rows))
}

// collectDerived resamples a derived timeframe from its source series.
// The store is the source of truth: when it already covers the requested
// span the network is skipped entirely, otherwise the source is fetched
// and merged in first.
func (c *Collector) collectDerived(ctx context.Context, req Request, tf models.Timeframe) TimeframeResult {
	source, ok := tf.Source()
	if !ok {
		return TimeframeResult{Status: StatusFailed, Err: &resample.UnsupportedTimeframeError{Timeframe: tf}}
	}

	sourceReq := exchange.FetchRequest{
		Pair:      req.Pair,
		Timeframe: source,
		Count:     sourceCount(req.Count, tf, source),
		StartYear: req.StartYear,
		EndYear:   req.EndYear,
	}
	start, end, _ := sourceReq.Span(c.now())

	key := storage.Key{Exchange: c.exchangeName, Pair: req.Pair, Timeframe: source}
	sourceCandles, err := c.loadCovering(key, start, end)
	if err != nil {
		return TimeframeResult{Status: StatusFailed, Err: err}
	}

	if sourceCandles == nil {
		c.logger.Info("stored source does not cover requested span, fetching",
			"timeframe", tf.String(),
			"source", source.String())
		rows, err := c.direct.FetchCandles(ctx, sourceReq)
		if err != nil {
			return TimeframeResult{Status: StatusFailed, Err: err}
		}
		fetched, err := c.normalizer.Normalize(rows)
		if err != nil {
			return TimeframeResult{Status: StatusFailed, Err: err}
		}
		if len(fetched) > 0 {
			if _, err := c.store.Save(fetched, key, true); err != nil {
				return TimeframeResult{Status: StatusFailed, Err: err}
			}
		}
		sourceCandles, err = c.store.Load(key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return TimeframeResult{Status: StatusFailed, Err: err}
		}
	}
	if len(sourceCandles) == 0 {
		return TimeframeResult{Status: StatusSkipped, Reason: fmt.Sprintf("no %s source data available", source)}
	}

	derived, err := c.resampler.Resample(sourceCandles, tf)
	if err != nil {
		return TimeframeResult{Status: StatusFailed, Err: err}
	}
	if len(derived) == 0 {
		return TimeframeResult{Status: StatusSkipped, Reason: fmt.Sprintf("not enough %s data for a complete %s window", source, tf)}
	}

	return c.persist(ctx, req, tf, derived, len(derived))
}

// persist stores the series and optionally syncs it, producing the final
// result for the timeframe.
func (c *Collector) persist(ctx context.Context, req Request, tf models.Timeframe, candles []models.Candle, fetched int) TimeframeResult {
	key := storage.Key{Exchange: c.exchangeName, Pair: req.Pair, Timeframe: tf}
	added, err := c.store.Save(candles, key, true)
	if err != nil {
		return TimeframeResult{Status: StatusFailed, Err: err}
	}

	result := TimeframeResult{
		Status:  StatusSuccess,
		Fetched: fetched,
		Stored:  added,
	}

	if gaps := series.FindGaps(candles, tf.Duration()); len(gaps) > 0 {
		c.logger.Warn("series has interior gaps",
			"timeframe", tf.String(),
			"gaps", len(gaps),
			"missing_bars", series.CountMissing(gaps))
	}

	if req.Upload && c.uploader != nil {
		// The local store is the source of truth for sync: upload the merged
		// series so rows stored by earlier runs reach the remote too.
		merged, err := c.store.Load(key)
		if err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("reloading %s for sync: %w", tf, err)
			return result
		}
		uploaded, err := c.uploader.Upload(ctx, tf, merged)
		if err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("syncing %s: %w", tf, err)
			result.Uploaded = uploaded
			return result
		}
		result.Uploaded = uploaded
	}
	return result
}

// loadCovering returns the stored series when it spans [start, end]
// within the coverage slack, nil when absent or short.
func (c *Collector) loadCovering(key storage.Key, start, end time.Time) ([]models.Candle, error) {
	if !c.store.Exists(key) {
		return nil, nil
	}
	candles, err := c.store.Load(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}

	first := candles[0].Timestamp
	last := candles[len(candles)-1].Timestamp
	if first.After(start.Add(coverageSlack)) || last.Before(end.Add(-coverageSlack)) {
		return nil, nil
	}
	return candles, nil
}

// sourceCount converts a derived-timeframe candle count into the number
// of source bars to fetch, oversized by the derivation buffer.
func sourceCount(count int, target, source models.Timeframe) int {
	if count <= 0 {
		count = exchange.PageCap
	}
	ratio := int(target.Duration() / source.Duration())
	return int(float64(count*ratio) * derivedCountBuffer)
}

// orderByProvenance sorts direct timeframes first and derived ones last,
// preserving the given order within each group.
func orderByProvenance(tfs []models.Timeframe) []models.Timeframe {
	ordered := make([]models.Timeframe, len(tfs))
	copy(ordered, tfs)
	rank := func(tf models.Timeframe) int {
		switch tf.Provenance() {
		case models.ProvenanceDirect:
			return 0
		case models.ProvenanceAuthenticated:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i]) < rank(ordered[j])
	})
	return ordered
}
