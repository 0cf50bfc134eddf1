package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStore uploads objects to a Google Cloud Storage bucket with a public ACL
type GCSStore struct {
	svc    *gcs.Service
	bucket string
}

// NewGCSStore creates a GCS client for bucket
func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS_BUCKET environment variable not set")
	}
	svc, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{svc: svc, bucket: bucket}, nil
}

// Put uploads data as a publicly readable object
func (s *GCSStore) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	obj := &gcs.Object{
		Name:        key,
		ContentType: contentType,
	}
	_, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		PredefinedAcl("publicRead").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	url := fmt.Sprintf("%s/%s/%s", gcsPublicHost, s.bucket, escapeKey(key))
	slog.Debug("Uploaded object", "bucket", s.bucket, "key", key, "bytes", len(data))
	return url, nil
}
