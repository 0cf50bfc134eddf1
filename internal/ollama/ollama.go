package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/shelfscanner/internal/providers"
)

const DefaultURL = "http://localhost:11434"

// ImageFetcher downloads an image so it can be inlined in the request
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Ollama is a provider for Ollama
type Ollama struct {
	baseURL string
	images  ImageFetcher
	client  *http.Client
}

// New returns a new Ollama provider
func New(baseURL string, images ImageFetcher, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		images:  images,
		client:  client,
	}
}

// Complete runs a non-streaming /api/generate call
func (o *Ollama) Complete(ctx context.Context, config providers.Config) (string, error) {
	body := map[string]any{
		"model":  config.Model,
		"prompt": config.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": config.Temperature,
		},
	}
	if config.System != "" {
		body["system"] = config.System
	}
	if config.JSON {
		body["format"] = "json"
	}
	if config.ImageURL != "" {
		if o.images == nil {
			return "", fmt.Errorf("ollama provider has no image fetcher")
		}
		data, _, err := o.images.Fetch(ctx, config.ImageURL)
		if err != nil {
			return "", fmt.Errorf("failed to fetch image for ollama: %w", err)
		}
		body["images"] = []string{base64.StdEncoding.EncodeToString(data)}
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &providers.StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(b)}
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return response.Response, nil
}
