// Package series converts raw exchange rows into canonical candle series:
// typed, deduplicated by (timestamp, symbol) with last occurrence winning,
// and sorted ascending by timestamp.
package series

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

// RequiredFields are the columns every canonical series carries, in the
// persisted order.
var RequiredFields = []string{"timestamp", "open", "high", "low", "close", "volume", "symbol"}

// Row is one untyped record as produced by an exchange adapter or read back
// from an external table. Normalization is the only place untyped rows are
// allowed; everything past it is []models.Candle.
type Row map[string]any

// DataShapeError reports input that is not row-shaped at all, as opposed to
// rows with bad values (which are dropped row by row).
type DataShapeError struct {
	Message string
}

func (e *DataShapeError) Error() string {
	return fmt.Sprintf("input is not row-shaped: %s", e.Message)
}

// SchemaError reports required fields that are absent from every input row.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Normalizer converts raw rows into canonical series.
type Normalizer struct {
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer. A nil logger falls back to slog.Default.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts raw rows into a canonical series. Rows with
// non-coercible timestamps or numeric fields, or rows violating the OHLC
// invariant, are dropped and counted; emptiness (empty input, or every row
// dropped) is a valid outcome, not an error. A SchemaError is returned only
// when a required field is missing from every row.
func (n *Normalizer) Normalize(rows []Row) ([]models.Candle, error) {
	if len(rows) == 0 {
		return []models.Candle{}, nil
	}

	for i, row := range rows {
		if row == nil {
			return nil, &DataShapeError{Message: fmt.Sprintf("row %d is nil", i)}
		}
	}

	if missing := missingEverywhere(rows); len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	candles := make([]models.Candle, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		candle, ok := n.coerceRow(row)
		if !ok {
			dropped++
			continue
		}
		candles = append(candles, candle)
	}

	if dropped > 0 {
		n.logger.Warn("dropped rows with invalid data", "dropped", dropped, "total", len(rows))
	}
	if len(candles) == 0 {
		n.logger.Warn("all rows were invalid, returning empty series")
		return []models.Candle{}, nil
	}

	candles = DedupeLastWins(candles)
	SortAscending(candles)

	n.logger.Debug("normalized series", "rows_in", len(rows), "rows_out", len(candles))
	return candles, nil
}

// Validate is the strict post-hoc guard applied before merge or persist: the
// series must be non-empty and every candle must pass full field and OHLC
// invariant validation. Unlike Normalize it never repairs, it only rejects.
func (n *Normalizer) Validate(candles []models.Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("series is empty")
	}
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// coerceRow maps one raw row into a validated candle. Returns false when any
// field is missing, non-coercible, or the assembled candle fails validation.
func (n *Normalizer) coerceRow(row Row) (models.Candle, bool) {
	ts, ok := coerceTime(row["timestamp"])
	if !ok {
		return models.Candle{}, false
	}
	symbol, ok := row["symbol"].(string)
	if !ok || symbol == "" {
		return models.Candle{}, false
	}

	values := make(map[string]string, 5)
	for _, field := range []string{"open", "high", "low", "close", "volume"} {
		d, ok := coerceDecimal(row[field])
		if !ok {
			return models.Candle{}, false
		}
		values[field] = d.String()
	}

	candle := models.Candle{
		Timestamp: ts.UTC(),
		Open:      values["open"],
		High:      values["high"],
		Low:       values["low"],
		Close:     values["close"],
		Volume:    values["volume"],
		Symbol:    symbol,
	}
	if err := candle.Validate(); err != nil {
		return models.Candle{}, false
	}
	return candle, true
}

// DedupeLastWins removes duplicate (timestamp, symbol) entries keeping the
// last occurrence in input order. Input order is otherwise preserved.
func DedupeLastWins(candles []models.Candle) []models.Candle {
	type key struct {
		ts     int64
		symbol string
	}
	last := make(map[key]int, len(candles))
	for i, c := range candles {
		last[key{c.Timestamp.UnixNano(), c.Symbol}] = i
	}
	out := make([]models.Candle, 0, len(last))
	for i, c := range candles {
		if last[key{c.Timestamp.UnixNano(), c.Symbol}] == i {
			out = append(out, c)
		}
	}
	return out
}

// SortAscending sorts the series in place by timestamp.
func SortAscending(candles []models.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}

// missingEverywhere returns the required fields absent from every row.
func missingEverywhere(rows []Row) []string {
	var missing []string
	for _, field := range RequiredFields {
		found := false
		for _, row := range rows {
			if _, ok := row[field]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, field)
		}
	}
	return missing
}

// timestampLayouts are accepted wire spellings, most common first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case int64:
		return time.Unix(t, 0).UTC(), t > 0
	case float64:
		return time.Unix(int64(t), 0).UTC(), t > 0
	default:
		return time.Time{}, false
	}
}

func coerceDecimal(v any) (decimal.Decimal, bool) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, true
	case string:
		parsed, err := decimal.NewFromString(d)
		return parsed, err == nil
	case float64:
		return decimal.NewFromFloat(d), true
	case int:
		return decimal.NewFromInt(int64(d)), true
	case int64:
		return decimal.NewFromInt(d), true
	case json.Number:
		parsed, err := decimal.NewFromString(d.String())
		return parsed, err == nil
	default:
		return decimal.Decimal{}, false
	}
}
