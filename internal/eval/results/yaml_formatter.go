package results

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/shelfscanner/internal/eval/metrics"
	"gopkg.in/yaml.v3"
)

// DefaultDir is where evaluation runs are written
const DefaultDir = "evals"

// EvalConfig represents the configuration section of the eval YAML
type EvalConfig struct {
	VisionModel  string  `yaml:"visionmodel"`
	CleanupModel string  `yaml:"cleanupmodel"`
	DatasetPath  string  `yaml:"datasetpath"`
	SampleSize   int     `yaml:"samplesize"`
	Concurrency  int     `yaml:"concurrency"`
	Threshold    float64 `yaml:"threshold"`
	Timestamp    string  `yaml:"timestamp"`
}

// EvalSummary carries the aggregate scores
type EvalSummary struct {
	Shelves   int     `yaml:"shelves"`
	Failed    int     `yaml:"failed"`
	Fallback  int     `yaml:"fallback"`
	Precision float64 `yaml:"precision"`
	Recall    float64 `yaml:"recall"`
	F1        float64 `yaml:"f1"`
	MacroF1   float64 `yaml:"macrof1"`
}

// EvalResult represents a single shelf evaluation result
type EvalResult struct {
	ShelfID      string               `yaml:"shelfid"`
	ImageURL     string               `yaml:"imageurl"`
	IdentifiedBy string               `yaml:"identifiedby,omitempty"`
	Detected     []string             `yaml:"detected"`
	Matches      []metrics.TitleMatch `yaml:"matches,omitempty"`
	Precision    float64              `yaml:"precision"`
	Recall       float64              `yaml:"recall"`
	F1           float64              `yaml:"f1"`
	Error        string               `yaml:"error,omitempty"`
}

// EvalSpec represents the complete evaluation output
type EvalSpec struct {
	Config  EvalConfig   `yaml:"config"`
	Summary EvalSummary  `yaml:"summary"`
	Results []EvalResult `yaml:"results"`
}

// SaveToYAML writes the run to <dir>/<vision model>-<timestamp>.yaml and
// returns the file path
func SaveToYAML(dir string, cfg EvalConfig, agg *metrics.AggregateResults) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create evals directory: %w", err)
	}

	if cfg.Timestamp == "" {
		cfg.Timestamp = agg.EvaluationDate.Format("2006-01-02_15-04-05")
	}

	spec := EvalSpec{
		Config: cfg,
		Summary: EvalSummary{
			Shelves:   agg.TotalShelves,
			Failed:    agg.FailureCount,
			Fallback:  agg.FallbackCount,
			Precision: agg.Precision,
			Recall:    agg.Recall,
			F1:        agg.F1,
			MacroF1:   agg.MacroF1,
		},
		Results: make([]EvalResult, 0, len(agg.Results)),
	}

	for _, r := range agg.Results {
		result := EvalResult{
			ShelfID:      r.ShelfID,
			ImageURL:     r.ImageURL,
			IdentifiedBy: r.IdentifiedBy,
			Detected:     make([]string, 0, len(r.Detected)),
			Error:        r.Error,
		}
		for _, b := range r.Detected {
			result.Detected = append(result.Detected, b.Title)
		}
		if r.Comparison != nil {
			result.Matches = r.Comparison.Matches
			result.Precision = r.Comparison.Precision
			result.Recall = r.Comparison.Recall
			result.F1 = r.Comparison.F1
		}
		spec.Results = append(spec.Results, result)
	}

	data, err := yaml.Marshal(&spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", safeName(cfg.VisionModel), cfg.Timestamp))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}

	return filename, nil
}

// safeName keeps model names like "llama3.2-vision:11b" usable as file names
func safeName(model string) string {
	if model == "" {
		return "model"
	}
	return strings.NewReplacer("/", "_", ":", "_", " ", "_").Replace(model)
}
