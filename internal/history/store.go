// Package history persists device sessions and the scans made from them.
package history

import (
	"context"
	"errors"

	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ErrNotFound is returned when a scan does not exist for the device
var ErrNotFound = errors.New("scan not found")

// Store is the device session and scan history store
type Store interface {
	CreateDevice(ctx context.Context) (*models.DeviceSession, error)
	DeviceExists(ctx context.Context, deviceID string) (bool, error)
	Append(ctx context.Context, record models.ScanRecord) error
	// List returns the device's scans newest first
	List(ctx context.Context, deviceID string, limit int) ([]models.ScanRecord, error)
	Get(ctx context.Context, deviceID, scanID string) (*models.ScanRecord, error)
}

// ClampLimit applies the default and maximum page size
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
