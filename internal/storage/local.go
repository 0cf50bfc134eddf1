package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps uploads on disk and serves them from /static/uploads
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the uploads directory if needed
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Dir is the directory uploads are written to
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put writes data under key and returns its public URL
func (s *LocalStore) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	url := s.baseURL + "/static/uploads/" + escapeKey(key)
	slog.Debug("Stored upload", "key", key, "content_type", contentType, "bytes", len(data))
	return url, nil
}
