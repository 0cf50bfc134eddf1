package providers

import (
	"context"
	"fmt"
)

// Config represents a single completion request to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	// System is sent as the system message where the provider supports one
	System string
	Prompt string
	// ImageURL attaches an image to the prompt when set
	ImageURL string
	// JSON asks the provider to constrain output to a JSON object
	JSON bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Complete(ctx context.Context, config Config) (string, error)
}

// StatusError is returned when a provider answers with a non-200 status
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: received non-200 status code: %d - %s", e.Provider, e.StatusCode, e.Body)
}
