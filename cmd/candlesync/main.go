// candlesync fetches OHLCV candles from Coinbase, maintains a local CSV
// store with derived timeframes, and optionally syncs the series into a
// Google spreadsheet.
//
// Usage:
//
//	candlesync fetch --pair BTC-USD --timeframes 1h,4h,1d
//	candlesync fetch --pair ETH-USD --start-year 2023 --end-year 2024 --upload
//	candlesync status
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/candle-tools/go-candle-ingest/internal/config"
	"github.com/candle-tools/go-candle-ingest/internal/exchange"
	"github.com/candle-tools/go-candle-ingest/internal/storage"
)

const version = "1.0.0"

// Exit codes following standard conventions.
const (
	exitSuccess       = 0
	exitUsageError    = 1
	exitConfigError   = 2
	exitConnectionErr = 3
	exitDataError     = 4
	exitInterrupt     = 130
)

// configError marks failures that trace back to configuration rather
// than the network or the data itself.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(ctx, err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "candlesync",
		Short:         "Collect Coinbase candles into a local CSV store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newFetchCmd())
	root.AddCommand(newStatusCmd())
	return root
}

// loadConfig wraps config loading so its failures map to the config exit
// code.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, &configError{err: err}
	}
	return cfg, nil
}

func exitCode(ctx context.Context, err error) int {
	if errors.Is(ctx.Err(), context.Canceled) {
		return exitInterrupt
	}

	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}

	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		return exitConnectionErr
	}

	var storeErr *storage.StoreError
	var corruptErr *storage.CorruptStoreError
	if errors.As(err, &storeErr) || errors.As(err, &corruptErr) || errors.Is(err, storage.ErrNotFound) {
		return exitDataError
	}

	return exitUsageError
}
