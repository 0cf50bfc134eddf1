package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/shelfscanner/internal/history"
	"github.com/lehigh-university-libraries/shelfscanner/internal/scan"
)

//go:embed templates/*.html
var templateFS embed.FS

// Scanner runs a scan for an uploaded photo
type Scanner interface {
	Scan(ctx context.Context, up scan.Upload) (*scan.Result, error)
	Window() time.Duration
}

type Handler struct {
	scanner   Scanner
	history   history.Store
	templates *template.Template
}

func New(scanner Scanner, store history.Store) (*Handler, error) {
	tmpl, err := template.New("shelfscanner").Funcs(template.FuncMap{
		"deref": func(i *int) int {
			if i == nil {
				return 0
			}
			return *i
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Handler{
		scanner:   scanner,
		history:   store,
		templates: tmpl,
	}, nil
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message, "status", code)
	} else {
		slog.Debug(message, "status", code)
	}
	h.writeJSON(w, code, map[string]string{"error": message})
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Unable to render template", "template", name, "err", err)
	}
}
