package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/candle-tools/go-candle-ingest/internal/models"
	"github.com/candle-tools/go-candle-ingest/internal/storage"
)

const (
	// appendBatchSize keeps single append payloads small enough that the
	// API never truncates them.
	appendBatchSize = 100

	// interBatchDelay spaces consecutive appends to stay inside the
	// per-minute write quota.
	interBatchDelay = 500 * time.Millisecond

	maxRetryElapsed = 30 * time.Second
)

// header is the first row of every worksheet, matching the local store
// column contract.
var header = []any{"timestamp", "open", "high", "low", "close", "volume", "symbol"}

// Uploader pushes candle series into spreadsheet worksheets, skipping
// rows whose timestamps are already present remotely.
type Uploader struct {
	api           API
	spreadsheetID string
	logger        *slog.Logger

	batchSize int
	delay     time.Duration

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewUploader creates an uploader bound to one spreadsheet.
func NewUploader(api API, spreadsheetID string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		api:           api,
		spreadsheetID: spreadsheetID,
		logger:        logger,
		batchSize:     appendBatchSize,
		delay:         interBatchDelay,
		sleep:         time.Sleep,
	}
}

// Upload appends the candles missing from the timeframe's worksheet and
// returns how many rows were written. The worksheet is created with a
// header row on first use.
func (u *Uploader) Upload(ctx context.Context, tf models.Timeframe, candles []models.Candle) (int, error) {
	title := tf.SheetName()

	if err := u.ensureWorksheet(ctx, title); err != nil {
		return 0, fmt.Errorf("ensuring worksheet %s: %w", title, err)
	}

	existing, err := u.remoteTimestamps(ctx, title)
	if err != nil {
		return 0, fmt.Errorf("reading worksheet %s: %w", title, err)
	}

	var rows [][]any
	for _, c := range candles {
		ts := c.Timestamp.UTC().Format(storage.TimestampLayout)
		if existing[ts] {
			continue
		}
		rows = append(rows, []any{ts, c.Open, c.High, c.Low, c.Close, c.Volume, c.Symbol})
	}
	if len(rows) == 0 {
		u.logger.Info("worksheet already up to date", "worksheet", title)
		return 0, nil
	}

	u.logger.Info("uploading rows", "worksheet", title, "rows", len(rows), "skipped", len(candles)-len(rows))

	written := 0
	for start := 0; start < len(rows); start += u.batchSize {
		end := start + u.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if start > 0 {
			u.sleep(u.delay)
		}

		if err := u.appendBatch(ctx, title, rows[start:end]); err != nil {
			return written, fmt.Errorf("appending to worksheet %s: %w", title, err)
		}
		written += end - start
		u.logger.Debug("appended batch", "worksheet", title, "rows", end-start, "total", written)
	}

	u.logger.Info("upload complete", "worksheet", title, "rows", written)
	return written, nil
}

// appendBatch retries transient API failures with exponential backoff.
func (u *Uploader) appendBatch(ctx context.Context, title string, rows [][]any) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxRetryElapsed

	operation := func() error {
		err := u.api.AppendRows(ctx, u.spreadsheetID, title+"!A1", rows)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		u.logger.Warn("append failed, retrying", "worksheet", title, "error", err)
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func (u *Uploader) ensureWorksheet(ctx context.Context, title string) error {
	titles, err := u.api.WorksheetTitles(ctx, u.spreadsheetID)
	if err != nil {
		return err
	}
	for _, t := range titles {
		if t == title {
			return nil
		}
	}

	u.logger.Info("creating worksheet", "worksheet", title)
	if err := u.api.AddWorksheet(ctx, u.spreadsheetID, title); err != nil {
		return err
	}
	return u.api.AppendRows(ctx, u.spreadsheetID, title+"!A1", [][]any{header})
}

// remoteTimestamps reads column A into a set so already-synced rows can
// be skipped. The header row lands in the set too, which is harmless.
func (u *Uploader) remoteTimestamps(ctx context.Context, title string) (map[string]bool, error) {
	values, err := u.api.ReadColumn(ctx, u.spreadsheetID, title+"!A:A")
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set, nil
}
