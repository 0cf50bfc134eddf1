package evalcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/shelfscanner/internal/eval/dataset"
	"github.com/lehigh-university-libraries/shelfscanner/internal/eval/metrics"
	"github.com/lehigh-university-libraries/shelfscanner/internal/eval/results"
	"github.com/lehigh-university-libraries/shelfscanner/internal/identify"
)

const DefaultConcurrency = 4

// Identifier finds the books in a shelf photo
type Identifier interface {
	Identify(ctx context.Context, imageURL string) (*identify.Result, error)
}

type Options struct {
	DatasetPath  string
	Sample       int // negative evaluates every shelf
	Concurrency  int
	Threshold    float64
	OutputDir    string
	VisionModel  string
	CleanupModel string
	Out          io.Writer
}

// Run identifies every sampled shelf, scores the detections against the
// labels and saves the run as YAML. It returns the aggregate and the path
// of the results file.
func Run(ctx context.Context, identifier Identifier, opts Options) (*metrics.AggregateResults, string, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Threshold <= 0 {
		opts.Threshold = metrics.DefaultThreshold
	}
	if opts.OutputDir == "" {
		opts.OutputDir = results.DefaultDir
	}

	slog.Info("Starting evaluation run", "dataset", opts.DatasetPath, "vision_model", opts.VisionModel, "cleanup_model", opts.CleanupModel)

	shelves, err := dataset.NewLoader(opts.DatasetPath).LoadSample(opts.Sample)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load dataset: %w", err)
	}

	slog.Info("Dataset loaded", "shelves", len(shelves))
	slog.Info("Processing shelves", "concurrency", opts.Concurrency)

	evaluated := make([]metrics.EvaluationResult, len(shelves))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, opts.Concurrency)

	for i, shelf := range shelves {
		wg.Add(1)
		go func(idx int, shelf dataset.Shelf) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire
			defer func() { <-semaphore }() // Release

			slog.Info("Processing shelf", "id", shelf.ID, "progress", fmt.Sprintf("%d/%d", idx+1, len(shelves)))
			evaluated[idx] = processShelf(ctx, identifier, shelf, opts.Threshold)
		}(i, shelf)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("evaluation interrupted: %w", err)
	}

	agg := metrics.AggregateEvaluationResults(evaluated, opts.VisionModel, opts.CleanupModel)

	path, err := results.SaveToYAML(opts.OutputDir, results.EvalConfig{
		VisionModel:  opts.VisionModel,
		CleanupModel: opts.CleanupModel,
		DatasetPath:  opts.DatasetPath,
		SampleSize:   len(shelves),
		Concurrency:  opts.Concurrency,
		Threshold:    opts.Threshold,
	}, agg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to save results: %w", err)
	}

	if opts.Out != nil {
		agg.PrintSummary(opts.Out)
		fmt.Fprintf(opts.Out, "\nResults saved to: %s\n", path)
	}

	return agg, path, nil
}

func processShelf(ctx context.Context, identifier Identifier, shelf dataset.Shelf, threshold float64) metrics.EvaluationResult {
	result := metrics.EvaluationResult{
		ShelfID:  shelf.ID,
		ImageURL: shelf.ImageURL,
		Expected: shelf.Books,
	}

	start := time.Now()
	identified, err := identifier.Identify(ctx, shelf.ImageURL)
	result.ProcessingTime = time.Since(start)
	if err != nil {
		slog.Warn("Shelf identification failed", "id", shelf.ID, "err", err)
		result.Error = err.Error()
		return result
	}

	result.Detected = identified.Books
	result.IdentifiedBy = identified.Path
	result.Comparison = metrics.CompareShelf(shelf.Books, identified.Books, threshold)
	return result
}
