package handlers

import (
	"log/slog"
	"net/http"
	"strings"
)

// HandleIndex serves the camera/upload page
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index.html", nil)
}

// UploadsServer serves the local object store under /static/uploads/
func UploadsServer(dir string) http.Handler {
	files := http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent directory listings and traversal
		if strings.HasSuffix(r.URL.Path, "/") || strings.Contains(r.URL.Path, "..") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}
