package models

import "time"

// IdentifiedBy values record which identification path produced a result.
const (
	IdentifiedByPrimary  = "primary"
	IdentifiedByFallback = "fallback"
)

// Book is a book found on a shelf. Reason and Score are only set once the
// recommendation stage has scored it.
type Book struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Reason string `json:"reason,omitempty"`
	Score  *int   `json:"score,omitempty"`
}

// Recommended reports whether the book carries a recommendation score
func (b Book) Recommended() bool {
	return b.Score != nil
}

// DeviceSession identifies an anonymous browser
type DeviceSession struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ScanRecord is one persisted scan of a shelf photo
type ScanRecord struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"device_id"`
	ImageURL     string    `json:"image_url"`
	Books        []Book    `json:"books"`
	IdentifiedBy string    `json:"identified_by"`
	Augmented    bool      `json:"augmented"`
	CreatedAt    time.Time `json:"created_at"`
}
