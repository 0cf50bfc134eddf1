package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/shelfscanner/internal/metrics"
)

const DefaultIPRateLimit = 120

type RouterOptions struct {
	Metrics *metrics.Metrics
	// IPRateLimit is requests per minute per client IP; zero uses the default
	IPRateLimit        int
	CORSAllowedOrigins []string
	// UploadsDir is served under /static/uploads/ when set
	UploadsDir string
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	if opts.IPRateLimit <= 0 {
		opts.IPRateLimit = DefaultIPRateLimit
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(opts.Metrics.Middleware)
	r.Use(httprate.LimitByIP(opts.IPRateLimit, time.Minute))
	if len(opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthcheck", HandleHealthcheck)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	if opts.UploadsDir != "" {
		r.Handle("/static/uploads/*", UploadsServer(opts.UploadsDir))
	}

	r.Group(func(r chi.Router) {
		r.Use(h.DeviceSession)
		r.Get("/", h.HandleIndex)
		r.Post("/scan", h.HandleScan)
		r.Post("/scan-ui", h.HandleScanUI)
		r.Get("/api/history", h.HandleHistory)
		r.Get("/api/history/{id}", h.HandleHistoryDetail)
	})

	return r
}

// requestID keeps an incoming X-Request-ID or assigns a new one
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(chimiddleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(chimiddleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		slog.Info("Request handled",
			"request_id", chimiddleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
