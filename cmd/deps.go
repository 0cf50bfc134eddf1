package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/shelfscanner/internal/config"
	"github.com/lehigh-university-libraries/shelfscanner/internal/gemini"
	"github.com/lehigh-university-libraries/shelfscanner/internal/identify"
	"github.com/lehigh-university-libraries/shelfscanner/internal/images"
	"github.com/lehigh-university-libraries/shelfscanner/internal/ocr"
	"github.com/lehigh-university-libraries/shelfscanner/internal/ollama"
	"github.com/lehigh-university-libraries/shelfscanner/internal/openai"
	"github.com/lehigh-university-libraries/shelfscanner/internal/providers"
	"github.com/lehigh-university-libraries/shelfscanner/internal/recommend"
	"google.golang.org/api/option"
)

// deps holds the process-wide clients shared by every scan
type deps struct {
	cfg       config.Config
	http      *http.Client
	images    *images.Fetcher
	providers map[string]providers.Provider
	closers   []func() error
}

func newDeps(cfg config.Config) *deps {
	return &deps{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.HTTPTimeout},
		images:    images.NewFetcher(cfg.HTTPTimeout),
		providers: make(map[string]providers.Provider),
	}
}

// googleOptions authenticates Google API clients with the inline service
// account JSON when set, otherwise application default credentials
func (d *deps) googleOptions() []option.ClientOption {
	if d.cfg.GoogleCredsJSON == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsJSON([]byte(d.cfg.GoogleCredsJSON))}
}

// provider returns the named provider, creating it once
func (d *deps) provider(ctx context.Context, name string) (providers.Provider, error) {
	if p, ok := d.providers[name]; ok {
		return p, nil
	}

	var p providers.Provider
	switch name {
	case "openai":
		if d.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		p = openai.New(d.cfg.OpenAIAPIKey, d.cfg.OpenAIBaseURL, d.http)
	case "ollama":
		p = ollama.New(d.cfg.OllamaURL, d.images, d.http)
	case "gemini":
		g, err := gemini.New(ctx, d.cfg.GeminiAPIKey, d.images)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, g.Close)
		p = g
	default:
		return nil, fmt.Errorf("unsupported provider: %s (use openai, ollama, or gemini)", name)
	}

	d.providers[name] = p
	return p, nil
}

// detector returns the OCR detector behind a bounded worker pool. Without
// Cloud Vision credentials the fallback path reports an error.
func (d *deps) detector(ctx context.Context) ocr.Detector {
	svc, err := ocr.NewService(ctx, d.googleOptions()...)
	if err != nil {
		slog.Warn("OCR fallback disabled", "err", err)
		return ocr.NewPool(unavailableDetector{err: err}, d.cfg.OCRWorkers)
	}
	return ocr.NewPool(svc, d.cfg.OCRWorkers).Throttle(d.cfg.OCRRequestsPerSecond)
}

func (d *deps) pipeline(ctx context.Context) (*identify.Pipeline, error) {
	vision, err := d.provider(ctx, d.cfg.VisionProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to configure vision provider: %w", err)
	}
	cleanup, err := d.provider(ctx, d.cfg.CleanupProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cleanup provider: %w", err)
	}

	return identify.New(vision, d.detector(ctx), cleanup, identify.Config{
		VisionModel:  d.cfg.VisionModel,
		CleanupModel: d.cfg.CleanupModel,
	}), nil
}

func (d *deps) augmenter(ctx context.Context) (*recommend.Augmenter, error) {
	p, err := d.provider(ctx, d.cfg.RecommendProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to configure recommend provider: %w", err)
	}
	return recommend.New(p, d.cfg.RecommendModel), nil
}

func (d *deps) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

type unavailableDetector struct {
	err error
}

func (u unavailableDetector) DetectText(ctx context.Context, imageURL string) ([]string, error) {
	return nil, fmt.Errorf("ocr not configured: %w", u.err)
}
