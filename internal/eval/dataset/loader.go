package dataset

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Loader handles loading of labelled shelf datasets
type Loader struct {
	datasetPath string
}

// NewLoader creates a new dataset loader
func NewLoader(datasetPath string) *Loader {
	return &Loader{
		datasetPath: datasetPath,
	}
}

// Load loads every shelf from a dataset file (YAML or Parquet)
func (l *Loader) Load() ([]Shelf, error) {
	return l.LoadSample(-1)
}

// LoadSample loads at most limit shelves; a negative limit loads them all
func (l *Loader) LoadSample(limit int) ([]Shelf, error) {
	var (
		shelves []Shelf
		err     error
	)

	ext := strings.ToLower(filepath.Ext(l.datasetPath))
	switch ext {
	case ".parquet":
		shelves, err = l.loadParquet()
	case ".yaml", ".yml":
		shelves, err = l.loadYAML()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .yaml)", ext)
	}
	if err != nil {
		return nil, err
	}

	for i, s := range shelves {
		if s.ID == "" || s.ImageURL == "" {
			return nil, fmt.Errorf("shelf %d: id and image_url are required", i+1)
		}
	}

	if limit >= 0 && len(shelves) > limit {
		shelves = shelves[:limit]
	}
	slog.Debug("Loaded shelf dataset", "path", l.datasetPath, "shelves", len(shelves))
	return shelves, nil
}

func (l *Loader) loadYAML() ([]Shelf, error) {
	data, err := os.ReadFile(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse dataset YAML: %w", err)
	}
	return file.Shelves, nil
}

// loadParquet reads flat rows and groups them by shelf, keeping the order
// shelves first appear in
func (l *Loader) loadParquet() ([]Shelf, error) {
	slog.Debug("Opening Parquet file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened successfully", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[ShelfRow](pf)
	defer reader.Close()

	var shelves []Shelf
	index := make(map[string]int)
	rows := make([]ShelfRow, 128)

	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			i, ok := index[row.ShelfID]
			if !ok {
				i = len(shelves)
				index[row.ShelfID] = i
				shelves = append(shelves, Shelf{ID: row.ShelfID, ImageURL: row.ImageURL, Books: []models.Book{}})
			}
			if title := strings.TrimSpace(row.Title); title != "" {
				shelves[i].Books = append(shelves[i].Books, models.Book{
					Title:  title,
					Author: strings.TrimSpace(row.Author),
				})
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	return shelves, nil
}
