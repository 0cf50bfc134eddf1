package metrics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

// EvaluationResult represents the results for a single shelf evaluation
type EvaluationResult struct {
	ShelfID        string
	ImageURL       string
	Expected       []models.Book
	Detected       []models.Book
	IdentifiedBy   string
	Comparison     *ShelfComparison
	ProcessingTime time.Duration
	Error          string // If identification failed
}

// AggregateResults represents aggregated evaluation metrics
type AggregateResults struct {
	TotalShelves int
	SuccessCount int
	FailureCount int

	// Identification path taken
	PrimaryCount  int
	FallbackCount int

	// Micro-averaged over every labelled and detected book
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	Precision      float64
	Recall         float64
	F1             float64

	// Mean of per-shelf F1
	MacroF1 float64

	// Timing
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration

	// Detailed results
	Results []EvaluationResult

	// Metadata
	EvaluationDate time.Time
	VisionModel    string
	CleanupModel   string
	SampleSize     int
}

// AggregateEvaluationResults aggregates multiple evaluation results
func AggregateEvaluationResults(results []EvaluationResult, visionModel, cleanupModel string) *AggregateResults {
	agg := &AggregateResults{
		TotalShelves:   len(results),
		Results:        results,
		EvaluationDate: time.Now(),
		VisionModel:    visionModel,
		CleanupModel:   cleanupModel,
		SampleSize:     len(results),
	}

	var totalDuration, successDuration time.Duration
	var f1Sum float64

	for _, result := range results {
		totalDuration += result.ProcessingTime

		if result.Error != "" {
			agg.FailureCount++
			continue
		}

		agg.SuccessCount++
		successDuration += result.ProcessingTime

		switch result.IdentifiedBy {
		case models.IdentifiedByPrimary:
			agg.PrimaryCount++
		case models.IdentifiedByFallback:
			agg.FallbackCount++
		}

		if result.Comparison == nil {
			continue
		}
		agg.TruePositives += result.Comparison.TruePositives
		agg.FalsePositives += result.Comparison.FalsePositives
		agg.FalseNegatives += result.Comparison.FalseNegatives
		f1Sum += result.Comparison.F1
	}

	if agg.SuccessCount > 0 {
		agg.Precision = ratio(agg.TruePositives, agg.TruePositives+agg.FalsePositives)
		agg.Recall = ratio(agg.TruePositives, agg.TruePositives+agg.FalseNegatives)
		agg.F1 = f1(agg.Precision, agg.Recall)
		agg.MacroF1 = f1Sum / float64(agg.SuccessCount)
		agg.AverageProcessingTime = successDuration / time.Duration(agg.SuccessCount)
	}

	agg.TotalProcessingTime = totalDuration

	return agg
}

// PrintSummary writes a human-readable summary of the evaluation
func (a *AggregateResults) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 70))
	fmt.Fprintln(w, "SHELF SCANNER EVALUATION SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintf(w, "Evaluation Date: %s\n", a.EvaluationDate.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Vision Model: %s\n", a.VisionModel)
	fmt.Fprintf(w, "Cleanup Model: %s\n", a.CleanupModel)
	fmt.Fprintf(w, "Sample Size: %d shelves\n", a.SampleSize)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PROCESSING STATISTICS")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "Total Shelves: %d\n", a.TotalShelves)
	fmt.Fprintf(w, "Successful: %d (%.1f%%)\n", a.SuccessCount, percent(a.SuccessCount, a.TotalShelves))
	fmt.Fprintf(w, "Failed: %d (%.1f%%)\n", a.FailureCount, percent(a.FailureCount, a.TotalShelves))
	fmt.Fprintf(w, "Primary Path: %d\n", a.PrimaryCount)
	fmt.Fprintf(w, "Fallback Path: %d\n", a.FallbackCount)
	fmt.Fprintf(w, "Average Processing Time: %s\n", a.AverageProcessingTime)
	fmt.Fprintf(w, "Total Processing Time: %s\n", a.TotalProcessingTime)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "TITLE DETECTION")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	fmt.Fprintf(w, "Matched: %d\n", a.TruePositives)
	fmt.Fprintf(w, "Spurious: %d\n", a.FalsePositives)
	fmt.Fprintf(w, "Missed: %d\n", a.FalseNegatives)
	fmt.Fprintf(w, "Precision: %.2f%%\n", a.Precision*100)
	fmt.Fprintf(w, "Recall: %.2f%%\n", a.Recall*100)
	fmt.Fprintf(w, "F1: %.3f (macro %.3f)\n", a.F1, a.MacroF1)
	fmt.Fprintln(w, strings.Repeat("=", 70))
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
