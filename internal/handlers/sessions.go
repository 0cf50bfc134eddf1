package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/shelfscanner/internal/history"
	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

// HandleHistory lists the calling device's scans, newest first
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.history.List(r.Context(), DeviceID(r.Context()), history.ClampLimit(limit))
	if err != nil {
		h.writeError(w, "Failed to load scan history", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.ScanRecord{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

// HandleHistoryDetail returns one scan owned by the calling device
func (h *Handler) HandleHistoryDetail(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "id")

	record, err := h.history.Get(r.Context(), DeviceID(r.Context()), scanID)
	if errors.Is(err, history.ErrNotFound) {
		h.writeError(w, "Scan not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to load scan", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}
