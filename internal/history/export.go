package history

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Export formats
const (
	FormatYAML    = "yaml"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// ExportRow is the flat Parquet layout, one row per detected book. A scan
// with no books is written as a single row with an empty title.
type ExportRow struct {
	ScanID       string `parquet:"scan_id"`
	DeviceID     string `parquet:"device_id"`
	ImageURL     string `parquet:"image_url"`
	IdentifiedBy string `parquet:"identified_by"`
	Augmented    bool   `parquet:"augmented"`
	CreatedAt    string `parquet:"created_at"`
	Position     int32  `parquet:"position"`
	Title        string `parquet:"title,optional"`
	Author       string `parquet:"author,optional"`
	Reason       string `parquet:"reason,optional"`
	Score        *int32 `parquet:"score,optional"`
}

type exportBook struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	Reason string `yaml:"reason,omitempty"`
	Score  *int   `yaml:"score,omitempty"`
}

type exportRecord struct {
	ID           string       `yaml:"id"`
	ImageURL     string       `yaml:"image_url"`
	IdentifiedBy string       `yaml:"identified_by"`
	Augmented    bool         `yaml:"augmented"`
	CreatedAt    string       `yaml:"created_at"`
	Books        []exportBook `yaml:"books"`
}

// ValidFormat reports whether Export understands format
func ValidFormat(format string) bool {
	switch format {
	case FormatYAML, FormatJSON, FormatParquet:
		return true
	}
	return false
}

// Export writes records to w in the given format
func Export(w io.Writer, records []models.ScanRecord, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []models.ScanRecord{}
		}
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		return exportYAML(w, records)
	case FormatParquet:
		return exportParquet(w, records)
	default:
		return fmt.Errorf("unsupported export format: %s (use yaml, json, or parquet)", format)
	}
}

func exportYAML(w io.Writer, records []models.ScanRecord) error {
	out := make([]exportRecord, 0, len(records))
	for _, r := range records {
		rec := exportRecord{
			ID:           r.ID,
			ImageURL:     r.ImageURL,
			IdentifiedBy: r.IdentifiedBy,
			Augmented:    r.Augmented,
			CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
			Books:        make([]exportBook, 0, len(r.Books)),
		}
		for _, b := range r.Books {
			rec.Books = append(rec.Books, exportBook(b))
		}
		out = append(out, rec)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"scans": out}); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func exportParquet(w io.Writer, records []models.ScanRecord) error {
	writer := parquet.NewGenericWriter[ExportRow](w)
	if _, err := writer.Write(Rows(records)); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// Rows flattens records into one row per book
func Rows(records []models.ScanRecord) []ExportRow {
	var rows []ExportRow
	for _, r := range records {
		base := ExportRow{
			ScanID:       r.ID,
			DeviceID:     r.DeviceID,
			ImageURL:     r.ImageURL,
			IdentifiedBy: r.IdentifiedBy,
			Augmented:    r.Augmented,
			CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if len(r.Books) == 0 {
			rows = append(rows, base)
			continue
		}
		for i, b := range r.Books {
			row := base
			row.Position = int32(i)
			row.Title = b.Title
			row.Author = b.Author
			row.Reason = b.Reason
			if b.Score != nil {
				score := int32(*b.Score)
				row.Score = &score
			}
			rows = append(rows, row)
		}
	}
	return rows
}
