// Package storage persists canonical candle series as flat CSV files, one
// file per (exchange, pair, timeframe) key. The file layout is a contract
// shared with external consumers: columns are exactly
// timestamp,open,high,low,close,volume,symbol with timestamps serialized as
// ISO-8601 UTC strings with a trailing Z.
package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/candle-tools/go-candle-ingest/internal/models"
)

// Columns is the persisted column order, shared with the spreadsheet sync.
var Columns = []string{"timestamp", "open", "high", "low", "close", "volume", "symbol"}

// TimestampLayout is the persisted timestamp format: RFC3339 seconds in UTC
// with a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05Z"

// ErrNotFound is returned by Load when no series has been persisted for the
// requested key.
var ErrNotFound = errors.New("no stored series for key")

// Key identifies one stored series.
type Key struct {
	Exchange  string
	Pair      string // request form, e.g. "BTC-USD"
	Timeframe models.Timeframe
}

// Path returns the file location for the key under baseDir:
// {base}/{exchange}/{PAIR}_{timeframe}.csv.
func (k Key) Path(baseDir string) string {
	pair := strings.ToUpper(strings.ReplaceAll(k.Pair, "/", "-"))
	filename := fmt.Sprintf("%s_%s.csv", pair, k.Timeframe)
	return filepath.Join(baseDir, strings.ToLower(k.Exchange), filename)
}

// String returns the key in log-friendly form.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", strings.ToLower(k.Exchange), strings.ToUpper(k.Pair), k.Timeframe)
}

// CorruptStoreError reports a persisted file that structurally violates the
// expected schema: missing columns, malformed header, or unparsable cells.
type CorruptStoreError struct {
	Path    string
	Message string
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store file %s: %s", e.Path, e.Message)
}

// StoreError reports an I/O failure during a store operation. Storage
// failures are fatal for the operation and are never retried.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Stats summarizes local storage contents.
type Stats struct {
	TotalFiles      int
	TotalSizeBytes  int64
	FilesByExchange map[string]int
	BaseDir         string
}
