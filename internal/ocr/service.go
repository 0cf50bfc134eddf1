package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// Detector finds text in an image reachable by URL. The first annotation,
// when present, is the full text of the image.
type Detector interface {
	DetectText(ctx context.Context, imageURL string) ([]string, error)
}

// Service runs TEXT_DETECTION against the Google Cloud Vision API
type Service struct {
	vision *vision.Service
}

// NewService creates a Cloud Vision client. Without options it uses
// application default credentials.
func NewService(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &Service{vision: svc}, nil
}

// DetectText returns the text annotations for the image, full text first
func (s *Service) DetectText(ctx context.Context, imageURL string) ([]string, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{
			{
				Image: &vision.Image{
					Source: &vision.ImageSource{ImageUri: imageURL},
				},
				Features: []*vision.Feature{
					{Type: "TEXT_DETECTION"},
				},
			},
		},
	}

	resp, err := s.vision.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to annotate image: %w", err)
	}

	if len(resp.Responses) == 0 {
		return nil, nil
	}

	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return nil, fmt.Errorf("vision API error %d: %s", r.Error.Code, r.Error.Message)
	}

	texts := make([]string, 0, len(r.TextAnnotations))
	for _, a := range r.TextAnnotations {
		texts = append(texts, a.Description)
	}

	slog.Debug("Detected text", "image_url", imageURL, "annotations", len(texts))
	return texts, nil
}
