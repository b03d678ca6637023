package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/candle-tools/go-candle-ingest/internal/storage"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the local store holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store := storage.NewCSVStore(afero.NewOsFs(), cfg.DataDir, nil)
			stats, err := store.Stats()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if stats.TotalFiles == 0 {
				fmt.Fprintf(out, "Store %s is empty\n", stats.BaseDir)
				return nil
			}

			fmt.Fprintf(out, "Store %s: %d series, %.1f KiB\n",
				stats.BaseDir, stats.TotalFiles, float64(stats.TotalSizeBytes)/1024)
			for exchangeName, files := range stats.FilesByExchange {
				fmt.Fprintf(out, "  %-12s %d series\n", exchangeName, files)
			}
			return nil
		},
	}
}
