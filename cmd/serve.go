package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/shelfscanner/internal/config"
	"github.com/lehigh-university-libraries/shelfscanner/internal/handlers"
	"github.com/lehigh-university-libraries/shelfscanner/internal/history"
	"github.com/lehigh-university-libraries/shelfscanner/internal/metrics"
	"github.com/lehigh-university-libraries/shelfscanner/internal/ratelimit"
	"github.com/lehigh-university-libraries/shelfscanner/internal/scan"
	"github.com/lehigh-university-libraries/shelfscanner/internal/storage"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the shelf scanner",
		Long: `Starts the Shelf Scanner web interface on the specified port.

The web interface lets a phone upload a photo of a bookshelf and lists the
books found on it, scored by how strongly a librarian would recommend them.
Scans are limited per device and kept in a per-device history.`,
		Example: `  # Start server on default port 8888
  shelfscanner serve

  # Start server on custom port
  shelfscanner serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on (overrides PORT)")

	return cmd
}

func runServer(ctx context.Context, cfg config.Config) error {
	d := newDeps(cfg)
	defer func() {
		if err := d.Close(); err != nil {
			slog.Error("Failed to close clients", "err", err)
		}
	}()

	pipeline, err := d.pipeline(ctx)
	if err != nil {
		return err
	}
	augmenter, err := d.augmenter(ctx)
	if err != nil {
		return err
	}

	store, uploadsDir, err := buildObjectStore(ctx, d)
	if err != nil {
		return err
	}

	var (
		historyStore history.Store
		limiter      ratelimit.Limiter
	)
	if cfg.DatabaseURL != "" {
		db, err := history.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		historyStore, limiter, err = postgresStores(ctx, db, cfg.ScanWindow)
		if err != nil {
			return err
		}
		slog.Info("Using Postgres for scan history and rate limits")
	} else {
		historyStore = history.NewMemoryStore()
		limiter = ratelimit.NewMemory()
		slog.Warn("DATABASE_URL not set, scan history and rate limits are kept in memory")
	}

	m := metrics.New()
	scanner := scan.New(store, pipeline, augmenter, historyStore, limiter, scan.Options{
		Limit:   cfg.ScanLimit,
		Window:  cfg.ScanWindow,
		Metrics: m,
	})

	handler, err := handlers.New(scanner, historyStore)
	if err != nil {
		return err
	}
	router := handlers.NewRouter(handler, handlers.RouterOptions{
		Metrics:            m,
		IPRateLimit:        cfg.IPRateLimit,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		UploadsDir:         uploadsDir,
	})

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Shelf Scanner interface available", "addr", addr, "url", cfg.PublicBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for context cancellation (Ctrl+C) or server error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
		// Give server 5 seconds to shut down gracefully
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "err", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}

// buildObjectStore returns the configured store and, for the local backend,
// the directory to serve under /static/uploads/
func buildObjectStore(ctx context.Context, d *deps) (storage.ObjectStore, string, error) {
	switch d.cfg.StorageBackend {
	case "gcs":
		store, err := storage.NewGCSStore(ctx, d.cfg.GCSBucket, d.googleOptions()...)
		if err != nil {
			return nil, "", err
		}
		slog.Info("Storing photos in Google Cloud Storage", "bucket", d.cfg.GCSBucket)
		return store, "", nil
	case "local", "":
		store, err := storage.NewLocalStore(d.cfg.UploadsDir, d.cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		slog.Info("Storing photos on local disk", "dir", store.Dir())
		return store, store.Dir(), nil
	default:
		return nil, "", fmt.Errorf("unsupported storage backend: %s (use local or gcs)", d.cfg.StorageBackend)
	}
}

func postgresStores(ctx context.Context, db *sql.DB, window time.Duration) (*history.PostgresStore, *ratelimit.Postgres, error) {
	historyStore := history.NewPostgresStore(db)
	if err := historyStore.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare history schema: %w", err)
	}

	limiter := ratelimit.NewPostgres(db)
	if err := limiter.EnsureSchema(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to prepare rate limit schema: %w", err)
	}
	go pruneRateLimits(ctx, limiter, window)

	return historyStore, limiter, nil
}

// pruneRateLimits drops expired rate limit windows until ctx is done
func pruneRateLimits(ctx context.Context, limiter *ratelimit.Postgres, window time.Duration) {
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := limiter.Prune(ctx, time.Now().Add(-2*window))
			if err != nil {
				slog.Warn("Failed to prune rate limit windows", "err", err)
				continue
			}
			slog.Debug("Pruned rate limit windows", "removed", removed)
		}
	}
}
