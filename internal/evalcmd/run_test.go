package evalcmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/shelfscanner/internal/identify"
	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

const shelvesYAML = `shelves:
  - id: s1
    image_url: https://example.com/s1.jpg
    books:
      - title: Dune
      - title: Emma
  - id: s2
    image_url: https://example.com/s2.jpg
    books:
      - title: Beloved
  - id: s3
    image_url: https://example.com/s3.jpg
    books:
      - title: Ulysses
`

type fakeIdentifier struct {
	mu       sync.Mutex
	byURL    map[string][]models.Book
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeIdentifier) Identify(ctx context.Context, imageURL string) (*identify.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	books, ok := f.byURL[imageURL]
	if !ok {
		return nil, errors.New("vision service unavailable")
	}
	return &identify.Result{Books: books, Path: models.IdentifiedByPrimary}, nil
}

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shelves.yaml")
	if err := os.WriteFile(path, []byte(shelvesYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	identifier := &fakeIdentifier{byURL: map[string][]models.Book{
		"https://example.com/s1.jpg": {{Title: "Dune"}, {Title: "Emma"}},
		"https://example.com/s2.jpg": {{Title: "Beloved"}, {Title: "Cookbook"}},
	}}
	outDir := filepath.Join(t.TempDir(), "evals")
	var out bytes.Buffer

	agg, path, err := Run(context.Background(), identifier, Options{
		DatasetPath: writeDataset(t),
		Sample:      -1,
		Concurrency: 2,
		OutputDir:   outDir,
		VisionModel: "gpt-4o",
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if agg.TotalShelves != 3 || agg.SuccessCount != 2 || agg.FailureCount != 1 {
		t.Errorf("counts = %d/%d/%d", agg.TotalShelves, agg.SuccessCount, agg.FailureCount)
	}
	if agg.Results[0].ShelfID != "s1" || agg.Results[2].ShelfID != "s3" {
		t.Errorf("results should keep dataset order")
	}
	if agg.TruePositives != 3 || agg.FalsePositives != 1 {
		t.Errorf("TP/FP = %d/%d, want 3/1", agg.TruePositives, agg.FalsePositives)
	}
	if peak := identifier.maxSeen.Load(); peak > 2 {
		t.Errorf("saw %d concurrent identifications, limit is 2", peak)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("results file not written: %v", err)
	}
	if !strings.HasPrefix(path, outDir) {
		t.Errorf("results written to %s, want under %s", path, outDir)
	}
	if !strings.Contains(out.String(), "Results saved to") {
		t.Errorf("summary not printed: %s", out.String())
	}
}

func TestRunSample(t *testing.T) {
	identifier := &fakeIdentifier{byURL: map[string][]models.Book{}}

	agg, _, err := Run(context.Background(), identifier, Options{
		DatasetPath: writeDataset(t),
		Sample:      1,
		OutputDir:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if agg.TotalShelves != 1 {
		t.Errorf("TotalShelves = %d, want 1", agg.TotalShelves)
	}
}

func TestRunMissingDataset(t *testing.T) {
	_, _, err := Run(context.Background(), &fakeIdentifier{}, Options{
		DatasetPath: filepath.Join(t.TempDir(), "missing.yaml"),
		OutputDir:   t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected an error for a missing dataset")
	}
}
