package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/candle-tools/go-candle-ingest/internal/collector"
	"github.com/candle-tools/go-candle-ingest/internal/config"
	"github.com/candle-tools/go-candle-ingest/internal/exchange"
	"github.com/candle-tools/go-candle-ingest/internal/logging"
	"github.com/candle-tools/go-candle-ingest/internal/models"
	"github.com/candle-tools/go-candle-ingest/internal/sheets"
	"github.com/candle-tools/go-candle-ingest/internal/storage"
)

// Year-range flags are sanity-checked against this window before any
// request is built.
const (
	minYear = 2010
	maxYear = 2030
)

type fetchFlags struct {
	pair       string
	timeframes string
	count      int
	startYear  int
	endYear    int
	upload     bool
	noUpload   bool
}

func newFetchCmd() *cobra.Command {
	flags := &fetchFlags{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch candles and update the local store",
		Long: `Fetch candles for the requested timeframes, merge them into the
local CSV store, and derive any resampled timeframes from their sources.
With --upload the series are also appended to the configured spreadsheet;
without --upload or --no-upload you are asked once per run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.pair, "pair", "", "trading pair, e.g. BTC-USD (default from config)")
	cmd.Flags().StringVar(&flags.timeframes, "timeframes", "", "comma-separated timeframes, e.g. 1h,4h,1d (default from config)")
	cmd.Flags().IntVar(&flags.count, "count", 0, "candles to fetch per timeframe (default one page)")
	cmd.Flags().IntVar(&flags.startYear, "start-year", 0, "first year to fetch, inclusive")
	cmd.Flags().IntVar(&flags.endYear, "end-year", 0, "last year to fetch, inclusive")
	cmd.Flags().BoolVar(&flags.upload, "upload", false, "sync fetched series to the configured spreadsheet")
	cmd.Flags().BoolVar(&flags.noUpload, "no-upload", false, "never sync, and never ask")
	cmd.MarkFlagsMutuallyExclusive("upload", "no-upload")
	return cmd
}

func runFetch(cmd *cobra.Command, flags *fetchFlags) error {
	if err := validateYears(flags.startYear, flags.endYear); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return &configError{err: err}
	}
	slog.SetDefault(logger)

	pair := flags.pair
	if pair == "" {
		pair = cfg.DefaultPair
	}
	if _, err := models.ParsePair(pair); err != nil {
		return err
	}
	tfNames := flags.timeframes
	if tfNames == "" {
		tfNames = cfg.DefaultTimeframes
	}
	timeframes, err := models.ParseTimeframes(tfNames)
	if err != nil {
		return err
	}

	upload := flags.upload
	if !upload && !flags.noUpload && cfg.Sheets.Enabled() {
		upload = confirmUpload(cmd)
	}

	fs := afero.NewOsFs()
	c, err := buildCollector(cmd, cfg, fs, logger, pair, upload)
	if err != nil {
		return err
	}

	report, err := c.Run(cmd.Context(), collector.Request{
		Pair:       pair,
		Timeframes: timeframes,
		Count:      flags.count,
		StartYear:  flags.startYear,
		EndYear:    flags.endYear,
		Upload:     upload,
	})
	if err != nil {
		return err
	}

	printReport(cmd, report)
	return nil
}

func validateYears(start, end int) error {
	for _, year := range []int{start, end} {
		if year != 0 && (year < minYear || year > maxYear) {
			return fmt.Errorf("year %d out of range [%d, %d]", year, minYear, maxYear)
		}
	}
	if start != 0 && end != 0 && start > end {
		return fmt.Errorf("start year %d cannot be after end year %d", start, end)
	}
	return nil
}

// confirmUpload asks once whether this run should sync to the
// spreadsheet. Anything but an explicit yes means no.
func confirmUpload(cmd *cobra.Command) bool {
	fmt.Fprint(cmd.OutOrStdout(), "Upload fetched series to Google Sheets? [y/N]: ")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// buildCollector wires the pipeline from configuration. Missing CDP
// credentials disable the authenticated client rather than failing;
// affected timeframes are reported as skipped.
func buildCollector(cmd *cobra.Command, cfg *config.Config, fs afero.Fs, logger *slog.Logger, pair string, upload bool) (*collector.Collector, error) {
	direct := exchange.NewCoinbaseClient(exchange.CoinbaseOptions{
		BaseURL: cfg.HTTP.ExchangeBaseURL,
		Delay:   cfg.HTTP.ExchangeDelay,
		Timeout: cfg.HTTP.Timeout,
	}, logger)

	var advanced exchange.CandleFetcher
	if ok, _ := afero.Exists(fs, cfg.CDPKeyPath); ok {
		signer, err := exchange.NewCDPSigner(fs, cfg.CDPKeyPath)
		if err != nil {
			return nil, &configError{err: err}
		}
		advanced = exchange.NewAdvancedTradeClient(signer, exchange.AdvancedTradeOptions{
			BaseURL: cfg.HTTP.AdvancedBaseURL,
			Delay:   cfg.HTTP.AdvancedDelay,
			Timeout: cfg.HTTP.Timeout,
		}, logger)
	} else {
		logger.Warn("CDP key file not found, authenticated timeframes will be skipped", "path", cfg.CDPKeyPath)
	}

	var uploader collector.Uploader
	if upload {
		u, err := buildUploader(cmd, cfg, fs, logger, pair)
		if err != nil {
			return nil, err
		}
		uploader = u
	}

	return collector.New(collector.Options{
		Direct:       direct,
		Advanced:     advanced,
		Symbols:      direct,
		Store:        storage.NewCSVStore(fs, cfg.DataDir, logger),
		Uploader:     uploader,
		ExchangeName: cfg.Exchange,
		Logger:       logger,
	}), nil
}

// buildUploader resolves the target spreadsheet. An explicit spreadsheet
// ID wins; otherwise the per-pair spreadsheet is located or created in
// the configured Drive folder.
func buildUploader(cmd *cobra.Command, cfg *config.Config, fs afero.Fs, logger *slog.Logger, pair string) (*sheets.Uploader, error) {
	if !cfg.Sheets.Enabled() {
		return nil, &configError{err: fmt.Errorf("uploading requires SHEETS_SPREADSHEET_ID or SHEETS_FOLDER_ID to be set")}
	}

	spreadsheetID := cfg.Sheets.SpreadsheetID
	if spreadsheetID == "" {
		drive, err := sheets.NewDrive(cmd.Context(), fs, cfg.Sheets.CredentialsPath)
		if err != nil {
			return nil, &configError{err: err}
		}
		spreadsheetID, err = sheets.Locate(cmd.Context(), drive, cfg.Sheets.FolderID, cfg.Exchange, pair, logger)
		if err != nil {
			return nil, err
		}
	}

	api, err := sheets.NewAPI(cmd.Context(), fs, cfg.Sheets.CredentialsPath)
	if err != nil {
		return nil, &configError{err: err}
	}
	return sheets.NewUploader(api, spreadsheetID, logger), nil
}

func printReport(cmd *cobra.Command, report *collector.Report) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "\nRun %s for %s finished in %s\n", report.RunID, report.Pair, report.Duration.Round(time.Millisecond))
	for _, res := range report.Results {
		switch res.Status {
		case collector.StatusSuccess:
			fmt.Fprintf(out, "  %-4s fetched %d, stored %d new", res.Timeframe, res.Fetched, res.Stored)
			if res.Uploaded > 0 {
				fmt.Fprintf(out, ", uploaded %d", res.Uploaded)
			}
			fmt.Fprintln(out)
		case collector.StatusSkipped:
			fmt.Fprintf(out, "  %-4s skipped: %s\n", res.Timeframe, res.Reason)
		case collector.StatusFailed:
			fmt.Fprintf(out, "  %-4s failed: %v\n", res.Timeframe, res.Err)
		}
	}
	fmt.Fprintf(out, "%d succeeded, %d skipped, %d failed, %d rows added\n",
		report.Succeeded(), report.Skipped(), report.Failed(), report.TotalAdded())
}
