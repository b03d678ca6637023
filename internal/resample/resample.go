// Package resample derives coarser-granularity candle series from finer
// ones: 4h bars from 1h bars and weekly bars from daily bars. Aggregation
// windows are calendar-aligned and only fully-covered windows are emitted,
// so a still-forming bar is never recorded as if it were final.
package resample

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

// UnsupportedTimeframeError reports a resample target with no aggregation
// rule (anything that is not a derived timeframe).
type UnsupportedTimeframeError struct {
	Timeframe models.Timeframe
}

func (e *UnsupportedTimeframeError) Error() string {
	return fmt.Sprintf("no aggregation rule for target timeframe %q", e.Timeframe)
}

// Resampler aggregates a canonical series into a coarser timeframe.
//
// Weekly windows start at WeekStart 00:00 UTC and are labeled with the
// window start. The boundary is applied uniformly, so resampling
// overlapping inputs always produces identical window boundaries.
// Sub-daily targets align to 00:00 UTC of the day (a 4h series buckets at
// 00:00, 04:00, 08:00, ...).
type Resampler struct {
	// WeekStart is the weekday a weekly bar opens on. Defaults to Monday,
	// matching the charting convention the sheet consumers expect.
	WeekStart time.Weekday

	logger *slog.Logger
}

// NewResampler creates a Resampler with the Monday week boundary.
func NewResampler(logger *slog.Logger) *Resampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resampler{WeekStart: time.Monday, logger: logger}
}

// Resample aggregates the source series into target bars. The input must be
// a canonical series of the target's source timeframe; output windows whose
// source bars do not span the whole window (the partial window at either
// edge of the input) are dropped. The function is pure: the same input
// always yields the same output, and extending the input with newer bars
// never rewrites previously emitted ones.
func (r *Resampler) Resample(candles []models.Candle, target models.Timeframe) ([]models.Candle, error) {
	source, ok := target.Source()
	if !ok {
		return nil, &UnsupportedTimeframeError{Timeframe: target}
	}
	if len(candles) == 0 {
		r.logger.Warn("empty series provided for resampling", "target", target)
		return []models.Candle{}, nil
	}

	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Group source bars into target windows, preserving chronological order.
	var windowStarts []time.Time
	windows := make(map[time.Time][]models.Candle)
	for _, c := range sorted {
		start := r.windowStart(c.Timestamp, target)
		if _, seen := windows[start]; !seen {
			windowStarts = append(windowStarts, start)
		}
		windows[start] = append(windows[start], c)
	}

	sourceStep := source.Duration()
	out := make([]models.Candle, 0, len(windowStarts))
	for _, start := range windowStarts {
		bars := windows[start]
		end := start.Add(target.Duration())

		// Emit only windows the source bars span end to end. Interior
		// gaps are tolerated; they reflect missing upstream data, not a
		// still-accumulating window.
		first, last := bars[0], bars[len(bars)-1]
		if !first.Timestamp.Equal(start) || !last.Timestamp.Add(sourceStep).Equal(end) {
			continue
		}

		candle, err := aggregate(bars, start)
		if err != nil {
			return nil, fmt.Errorf("aggregating window starting %s: %w", start.Format(time.RFC3339), err)
		}
		out = append(out, candle)
	}

	r.logger.Info("resampled series",
		"target", target,
		"source_bars", len(sorted),
		"windows", len(windowStarts),
		"emitted", len(out))
	return out, nil
}

// windowStart returns the calendar-aligned open time of the target window
// containing ts.
func (r *Resampler) windowStart(ts time.Time, target models.Timeframe) time.Time {
	ts = ts.UTC()
	if target == models.Timeframe1w {
		day := ts.Truncate(24 * time.Hour)
		back := (int(day.Weekday()) - int(r.WeekStart) + 7) % 7
		return day.AddDate(0, 0, -back)
	}
	// Sub-weekly durations divide 24h, so truncating against the UTC epoch
	// lands on top-of-day boundaries.
	return ts.Truncate(target.Duration())
}

// aggregate applies the fixed OHLCV rules over one window's bars: first
// open, max high, min low, last close, summed volume, constant symbol.
func aggregate(bars []models.Candle, start time.Time) (models.Candle, error) {
	high, err := bars[0].HighDecimal()
	if err != nil {
		return models.Candle{}, err
	}
	low, err := bars[0].LowDecimal()
	if err != nil {
		return models.Candle{}, err
	}
	volume := decimal.Zero

	for i := range bars {
		h, err := bars[i].HighDecimal()
		if err != nil {
			return models.Candle{}, err
		}
		l, err := bars[i].LowDecimal()
		if err != nil {
			return models.Candle{}, err
		}
		v, err := bars[i].VolumeDecimal()
		if err != nil {
			return models.Candle{}, err
		}
		high = decimal.Max(high, h)
		low = decimal.Min(low, l)
		volume = volume.Add(v)
	}

	return models.Candle{
		Timestamp: start,
		Open:      bars[0].Open,
		High:      high.String(),
		Low:       low.String(),
		Close:     bars[len(bars)-1].Close,
		Volume:    volume.String(),
		Symbol:    bars[0].Symbol,
	}, nil
}
