package storage

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/candle-tools/go-candle-ingest/internal/models"
	"github.com/candle-tools/go-candle-ingest/internal/series"
)

// CSVStore owns the on-disk canonical series. All mutation goes through
// Save; callers never edit the files directly. The store is built on an
// afero filesystem so tests run against an in-memory fs.
type CSVStore struct {
	fs      afero.Fs
	baseDir string
	logger  *slog.Logger
}

// NewCSVStore creates a store rooted at baseDir on the given filesystem.
func NewCSVStore(fs afero.Fs, baseDir string, logger *slog.Logger) *CSVStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVStore{fs: fs, baseDir: baseDir, logger: logger}
}

// Exists reports whether a series has been persisted for the key.
func (s *CSVStore) Exists(key Key) bool {
	ok, err := afero.Exists(s.fs, key.Path(s.baseDir))
	return err == nil && ok
}

// Load reads the persisted series for the key. Returns ErrNotFound when no
// file exists and a CorruptStoreError when the file violates the schema.
func (s *CSVStore) Load(key Key) ([]models.Candle, error) {
	path := key.Path(s.baseDir)

	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, &StoreError{Op: "load", Path: path, Err: err}
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, &CorruptStoreError{Path: path, Message: fmt.Sprintf("unreadable CSV: %v", err)}
	}
	if len(records) == 0 {
		return nil, &CorruptStoreError{Path: path, Message: "missing header row"}
	}

	colIndex, err := headerIndex(records[0], path)
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(records)-1)
	for i, record := range records[1:] {
		candle, err := recordToCandle(record, colIndex)
		if err != nil {
			return nil, &CorruptStoreError{Path: path, Message: fmt.Sprintf("row %d: %v", i+2, err)}
		}
		candles = append(candles, candle)
	}

	s.logger.Debug("loaded series", "key", key.String(), "rows", len(candles))
	return candles, nil
}

// Save persists the series for the key and reports the number of rows
// added. With merge enabled and a prior series present, the new rows are
// combined with the existing ones under the (timestamp, symbol) last-wins
// rule, so fresh data supersedes old data on overlap; the reported delta is
// newTotal - oldTotal and is never negative. Without merge the series
// replaces whatever was stored.
func (s *CSVStore) Save(candles []models.Candle, key Key, merge bool) (int, error) {
	if len(candles) == 0 {
		s.logger.Warn("empty series provided, nothing to save", "key", key.String())
		return 0, nil
	}

	incoming := series.DedupeLastWins(candles)
	series.SortAscending(incoming)

	final := incoming
	added := len(incoming)

	if merge && s.Exists(key) {
		existing, err := s.Load(key)
		if err != nil {
			return 0, err
		}
		if len(existing) > 0 {
			s.logger.Info("merging with existing series", "key", key.String(), "existing_rows", len(existing))

			combined := make([]models.Candle, 0, len(existing)+len(incoming))
			combined = append(combined, existing...)
			combined = append(combined, incoming...)
			combined = series.DedupeLastWins(combined)
			series.SortAscending(combined)

			final = combined
			added = len(combined) - len(existing)
		}
	}

	if err := s.write(key, final); err != nil {
		return 0, err
	}

	s.logger.Info("saved series",
		"key", key.String(),
		"total_rows", len(final),
		"rows_added", added)
	return added, nil
}

// Stats walks the base directory and summarizes stored files per exchange.
func (s *CSVStore) Stats() (Stats, error) {
	stats := Stats{
		FilesByExchange: make(map[string]int),
		BaseDir:         s.baseDir,
	}

	err := afero.Walk(s.fs, s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".csv" {
			return nil
		}
		stats.TotalFiles++
		stats.TotalSizeBytes += info.Size()
		stats.FilesByExchange[filepath.Base(filepath.Dir(path))]++
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return Stats{}, &StoreError{Op: "stats", Path: s.baseDir, Err: err}
	}
	return stats, nil
}

// write serializes the series to the key's CSV file.
func (s *CSVStore) write(key Key, candles []models.Candle) error {
	path := key.Path(s.baseDir)

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &StoreError{Op: "save", Path: path, Err: err}
	}

	f, err := s.fs.Create(path)
	if err != nil {
		return &StoreError{Op: "save", Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return &StoreError{Op: "save", Path: path, Err: err}
	}
	for i := range candles {
		record := []string{
			candles[i].Timestamp.UTC().Format(TimestampLayout),
			candles[i].Open,
			candles[i].High,
			candles[i].Low,
			candles[i].Close,
			candles[i].Volume,
			candles[i].Symbol,
		}
		if err := w.Write(record); err != nil {
			return &StoreError{Op: "save", Path: path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &StoreError{Op: "save", Path: path, Err: err}
	}
	return nil
}

// headerIndex validates the header row and maps column names to positions.
func headerIndex(header []string, path string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, required := range Columns {
		if _, ok := index[required]; !ok {
			return nil, &CorruptStoreError{Path: path, Message: fmt.Sprintf("missing column %q", required)}
		}
	}
	return index, nil
}

func recordToCandle(record []string, colIndex map[string]int) (models.Candle, error) {
	cell := func(name string) (string, error) {
		i := colIndex[name]
		if i >= len(record) {
			return "", fmt.Errorf("short row, missing %q", name)
		}
		return record[i], nil
	}

	tsRaw, err := cell("timestamp")
	if err != nil {
		return models.Candle{}, err
	}
	ts, err := time.Parse(time.RFC3339, tsRaw)
	if err != nil {
		return models.Candle{}, fmt.Errorf("bad timestamp %q: %v", tsRaw, err)
	}

	var c models.Candle
	c.Timestamp = ts.UTC()
	for field, dst := range map[string]*string{
		"open": &c.Open, "high": &c.High, "low": &c.Low,
		"close": &c.Close, "volume": &c.Volume, "symbol": &c.Symbol,
	} {
		v, err := cell(field)
		if err != nil {
			return models.Candle{}, err
		}
		*dst = v
	}
	return c, nil
}
