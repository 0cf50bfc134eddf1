package dataset

import "github.com/lehigh-university-libraries/shelfscanner/internal/models"

// Shelf is one labelled shelf photo: the image and the books a person
// confirmed are on it
type Shelf struct {
	ID       string        `yaml:"id"`
	ImageURL string        `yaml:"image_url"`
	Books    []models.Book `yaml:"books"`
}

// File is the YAML dataset layout
type File struct {
	Shelves []Shelf `yaml:"shelves"`
}

// ShelfRow is the flat Parquet layout, one row per labelled book. A row
// with an empty title declares a shelf with no books.
type ShelfRow struct {
	ShelfID  string `parquet:"shelf_id"`
	ImageURL string `parquet:"image_url"`
	Title    string `parquet:"title,optional"`
	Author   string `parquet:"author,optional"`
}

// Titles returns the labelled titles in order
func (s Shelf) Titles() []string {
	titles := make([]string, 0, len(s.Books))
	for _, b := range s.Books {
		titles = append(titles, b.Title)
	}
	return titles
}
