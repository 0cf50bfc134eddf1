package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc
}

func TestDetectText(t *testing.T) {
	var body map[string]any
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images:annotate" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responses":[{"textAnnotations":[{"description":"DUNE\nFRANK HERBERT"},{"description":"DUNE"}]}]}`))
	})

	texts, err := svc.DetectText(context.Background(), "https://example.com/shelf.jpg")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(texts) != 2 || texts[0] != "DUNE\nFRANK HERBERT" {
		t.Errorf("Unexpected texts: %v", texts)
	}

	reqs := body["requests"].([]any)
	req := reqs[0].(map[string]any)
	source := req["image"].(map[string]any)["source"].(map[string]any)
	if source["imageUri"] != "https://example.com/shelf.jpg" {
		t.Errorf("Expected imageUri to be sent, got %v", source)
	}
	feature := req["features"].([]any)[0].(map[string]any)
	if feature["type"] != "TEXT_DETECTION" {
		t.Errorf("Expected TEXT_DETECTION, got %v", feature["type"])
	}
}

func TestDetectTextEmpty(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responses":[{}]}`))
	})

	texts, err := svc.DetectText(context.Background(), "https://example.com/blank.jpg")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("Expected no annotations, got %v", texts)
	}
}

func TestDetectTextErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusForbidden, body: `{"error":{"code":403,"message":"denied"}}`},
		{name: "per-image error", status: http.StatusOK, body: `{"responses":[{"error":{"code":7,"message":"cannot fetch image"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			if _, err := svc.DetectText(context.Background(), "https://example.com/x.jpg"); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
