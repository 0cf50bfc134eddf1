package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/shelfscanner/internal/config"
	"github.com/lehigh-university-libraries/shelfscanner/internal/history"
	"github.com/spf13/cobra"
)

// openHistoryDB is swapped out in tests
var openHistoryDB = history.OpenDB

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Scan history tools",
	}
	cmd.AddCommand(newHistoryExportCmd())
	return cmd
}

func newHistoryExportCmd() *cobra.Command {
	var (
		deviceID string
		format   string
		output   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a device's scan history",
		Long: `Exports the scans made by one device, newest first, from the Postgres
history store configured with DATABASE_URL.

Parquet output has one row per detected book so it loads directly into
dataframe tools.`,
		Example: `  # Print a device's last 20 scans as YAML
  shelfscanner history export --device 6f1c...

  # Write everything to Parquet
  shelfscanner history export --device 6f1c... --format parquet --limit 100 --output scans.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL environment variable not set")
			}
			format = strings.ToLower(format)
			if !history.ValidFormat(format) {
				return fmt.Errorf("unsupported export format: %s (use yaml, json, or parquet)", format)
			}
			if output == "" && format == history.FormatParquet {
				return fmt.Errorf("--output is required for parquet")
			}

			db, err := openHistoryDB(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			records, err := history.NewPostgresStore(db).List(cmd.Context(), deviceID, history.ClampLimit(limit))
			if err != nil {
				return fmt.Errorf("failed to load scan history: %w", err)
			}
			slog.Info("Loaded scan history", "device_id", deviceID, "scans", len(records))

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := history.Export(w, records, format); err != nil {
				return err
			}
			if output != "" {
				slog.Info("Scan history exported", "path", output, "format", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "", "Device session id to export")
	cmd.Flags().StringVar(&format, "format", history.FormatYAML, "Output format (yaml, json, parquet)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultListLimit, "Maximum number of scans")
	_ = cmd.MarkFlagRequired("device")

	return cmd
}
