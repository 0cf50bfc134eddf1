package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordScan("ok", time.Second)
	m.RecordIdentify("primary", 3)
	m.RecordAugment(true)
	m.RecordHistoryFailure()

	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("Expected nil middleware to pass through")
	}
}

func TestHandlerExposesRecordedMetrics(t *testing.T) {
	m := New()
	m.RecordScan("ok", 2*time.Second)
	m.RecordIdentify("fallback", 2)
	m.RecordAugment(false)
	m.RecordHistoryFailure()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/history/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/history/abc", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`shelfscanner_scan_total{outcome="ok"} 1`,
		`shelfscanner_identify_total{path="fallback"} 1`,
		`shelfscanner_recommend_total{result="fallback"} 1`,
		`shelfscanner_history_append_failures_total 1`,
		`shelfscanner_http_requests_total{method="GET",route="/api/history/{id}",status="404"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected metrics output to contain %s", want)
		}
	}
}
