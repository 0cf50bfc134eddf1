package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/lehigh-university-libraries/shelfscanner/internal/scan"
)

// multipart overhead allowed on top of the photo itself
const formOverhead = 1 << 20

// HandleScan accepts a multipart photo and returns the scan as JSON
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	result, ok := h.runScan(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleScanUI accepts a multipart photo and returns an HTML fragment
func (h *Handler) HandleScanUI(w http.ResponseWriter, r *http.Request) {
	result, ok := h.runScan(w, r)
	if !ok {
		return
	}
	if len(result.Books) == 0 {
		h.render(w, "empty_state", result)
		return
	}
	h.render(w, "book_list", result)
}

func (h *Handler) runScan(w http.ResponseWriter, r *http.Request) (*scan.Result, bool) {
	up, err := readUpload(w, r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	up.DeviceID = DeviceID(r.Context())

	result, err := h.scanner.Scan(r.Context(), up)
	if err != nil {
		h.writeScanError(w, err)
		return nil, false
	}
	return result, true
}

func readUpload(w http.ResponseWriter, r *http.Request) (scan.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, scan.MaxUploadBytes+formOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		file, header, err = r.FormFile("files")
		if err != nil {
			return scan.Upload{}, fmt.Errorf("failed to read file: %w", err)
		}
	}
	defer file.Close()

	// one byte past the limit so the scanner can reject oversize photos
	data, err := io.ReadAll(io.LimitReader(file, scan.MaxUploadBytes+1))
	if err != nil {
		return scan.Upload{}, fmt.Errorf("failed to read file contents: %w", err)
	}

	return scan.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scan.ErrValidation):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scan.ErrRateLimited):
		retry := int(math.Ceil(h.scanner.Window().Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		h.writeError(w, "Scan limit reached, try again later", http.StatusTooManyRequests)
	case errors.Is(err, scan.ErrStorage):
		h.writeError(w, "Failed to store photo", http.StatusBadGateway)
	case errors.Is(err, scan.ErrIdentification):
		h.writeError(w, "Failed to identify books", http.StatusBadGateway)
	default:
		h.writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
