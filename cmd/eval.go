package cmd

import (
	"fmt"
	"os"

	"github.com/lehigh-university-libraries/shelfscanner/internal/config"
	"github.com/lehigh-university-libraries/shelfscanner/internal/eval/results"
	"github.com/lehigh-university-libraries/shelfscanner/internal/evalcmd"
	"github.com/spf13/cobra"
)

func newEvalCmd() *cobra.Command {
	var (
		datasetPath string
		sample      int
		concurrency int
		threshold   float64
		outputDir   string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Measure book identification accuracy",
		Long: `Runs the identification pipeline over a labelled shelf dataset and reports
precision and recall of the detected titles.

Datasets are YAML ({shelves: [{id, image_url, books: [{title, author}]}]})
or Parquet with one row per labelled book (shelf_id, image_url, title, author).
Results are written to evals/<vision model>-<timestamp>.yaml.`,
		Example: `  # Evaluate 10 shelves
  shelfscanner eval --dataset shelves.yaml --sample 10

  # Evaluate a Parquet dataset with 8 parallel scans
  shelfscanner eval --dataset shelves.parquet --sample -1 --concurrency 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(datasetPath); os.IsNotExist(err) {
				return fmt.Errorf("dataset file not found: %s", datasetPath)
			}

			cfg := config.Load()
			d := newDeps(cfg)
			defer d.Close()

			pipeline, err := d.pipeline(cmd.Context())
			if err != nil {
				return err
			}

			_, _, err = evalcmd.Run(cmd.Context(), pipeline, evalcmd.Options{
				DatasetPath:  datasetPath,
				Sample:       sample,
				Concurrency:  concurrency,
				Threshold:    threshold,
				OutputDir:    outputDir,
				VisionModel:  cfg.VisionModel,
				CleanupModel: cfg.CleanupModel,
				Out:          cmd.OutOrStdout(),
			})
			return err
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "shelves.yaml", "Path to a labelled shelf dataset (.yaml or .parquet)")
	cmd.Flags().IntVar(&sample, "sample", 10, "Number of shelves to evaluate (-1 for all)")
	cmd.Flags().IntVar(&concurrency, "concurrency", evalcmd.DefaultConcurrency, "Shelves identified in parallel")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.7, "Minimum title similarity counted as a match")
	cmd.Flags().StringVar(&outputDir, "output", results.DefaultDir, "Directory for results")

	return cmd
}
