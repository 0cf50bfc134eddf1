package identify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lehigh-university-libraries/shelfscanner/internal/llmjson"
	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
	"github.com/lehigh-university-libraries/shelfscanner/internal/ocr"
	"github.com/lehigh-university-libraries/shelfscanner/internal/providers"
	"github.com/sony/gobreaker/v2"
)

const (
	primarySystemPrompt = `Return JSON only. Identify every book whose spine or cover is visible in the image. ` +
		`Format: {"books": [{"title": "...", "author": "..."}]}. ` +
		`Use an empty string when the title or author cannot be read.`
	primaryUserPrompt = "Identify these books."

	cleanupSystemPrompt = `Extract book titles and authors from this OCR text taken from a photo of a bookshelf. ` +
		`Return JSON: {"books": [{"title": "...", "author": "..."}]}`
)

// Result is the outcome of identifying the books in one photo
type Result struct {
	Books []models.Book
	// Path is models.IdentifiedByPrimary or models.IdentifiedByFallback
	Path string
}

// Config selects the models and the circuit breaker behaviour
type Config struct {
	VisionModel  string
	CleanupModel string
	// BreakerFailures is the number of consecutive primary failures that
	// opens the breaker. Zero uses the default.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open
	BreakerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.VisionModel == "" {
		c.VisionModel = "gpt-4o"
	}
	if c.CleanupModel == "" {
		c.CleanupModel = "gpt-3.5-turbo"
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Pipeline identifies books with a multimodal model and falls back to OCR
// plus a text model when the primary call fails
type Pipeline struct {
	vision   providers.Provider
	detector ocr.Detector
	cleanup  providers.Provider
	cfg      Config
	breaker  *gobreaker.CircuitBreaker[string]
}

// New builds a pipeline
func New(vision providers.Provider, detector ocr.Detector, cleanup providers.Provider, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()

	settings := gobreaker.Settings{
		Name:    "vision-primary",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Pipeline{
		vision:   vision,
		detector: detector,
		cleanup:  cleanup,
		cfg:      cfg,
		breaker:  gobreaker.NewCircuitBreaker[string](settings),
	}
}

// Identify returns the books visible in the image. A primary failure of any
// kind moves to the fallback exactly once; fallback failures are returned.
func (p *Pipeline) Identify(ctx context.Context, imageURL string) (*Result, error) {
	books, err := p.primary(ctx, imageURL)
	if err == nil {
		slog.Info("Identified books", "image_url", imageURL, "path", models.IdentifiedByPrimary, "count", len(books))
		return &Result{Books: books, Path: models.IdentifiedByPrimary}, nil
	}

	slog.Warn("Primary identification failed, falling back to OCR", "image_url", imageURL, "err", err)

	books, err = p.fallback(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	slog.Info("Identified books", "image_url", imageURL, "path", models.IdentifiedByFallback, "count", len(books))
	return &Result{Books: books, Path: models.IdentifiedByFallback}, nil
}

func (p *Pipeline) primary(ctx context.Context, imageURL string) ([]models.Book, error) {
	response, err := p.breaker.Execute(func() (string, error) {
		return p.vision.Complete(ctx, providers.Config{
			Model:       p.cfg.VisionModel,
			Temperature: 0,
			System:      primarySystemPrompt,
			Prompt:      primaryUserPrompt,
			ImageURL:    imageURL,
			JSON:        true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call vision model: %w", err)
	}

	books, err := llmjson.DecodeBooks(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}
	return books, nil
}

func (p *Pipeline) fallback(ctx context.Context, imageURL string) ([]models.Book, error) {
	texts, err := p.detector.DetectText(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to detect text: %w", err)
	}
	if len(texts) == 0 {
		slog.Info("OCR found no text", "image_url", imageURL)
		return []models.Book{}, nil
	}

	response, err := p.cleanup.Complete(ctx, providers.Config{
		Model:       p.cfg.CleanupModel,
		Temperature: 0,
		System:      cleanupSystemPrompt,
		Prompt:      texts[0],
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call cleanup model: %w", err)
	}

	books, err := llmjson.DecodeBooks(response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cleanup response: %w", err)
	}
	return books, nil
}
