package scan

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/shelfscanner/internal/identify"
	"github.com/lehigh-university-libraries/shelfscanner/internal/metrics"
	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
	"github.com/lehigh-university-libraries/shelfscanner/internal/ratelimit"
	"github.com/lehigh-university-libraries/shelfscanner/internal/storage"
)

const (
	// MaxUploadBytes is the largest photo accepted
	MaxUploadBytes = 10 << 20
	// DefaultLimit is the number of scans a device gets per window
	DefaultLimit = 5
	// DefaultWindow is the rate limit window
	DefaultWindow = time.Hour
)

// Identifier finds the books in a stored image
type Identifier interface {
	Identify(ctx context.Context, imageURL string) (*identify.Result, error)
}

// Augmenter scores identified books; it never fails
type Augmenter interface {
	Augment(ctx context.Context, books []models.Book) ([]models.Book, bool)
}

// HistoryAppender persists a finished scan
type HistoryAppender interface {
	Append(ctx context.Context, record models.ScanRecord) error
}

// Upload is a photo submitted by a device
type Upload struct {
	DeviceID    string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is what a device sees after a scan
type Result struct {
	ScanID       string        `json:"scan_id"`
	ImageURL     string        `json:"image_url"`
	Books        []models.Book `json:"books"`
	IdentifiedBy string        `json:"identified_by"`
	Augmented    bool          `json:"augmented"`
}

// Options tune the scanner's quota
type Options struct {
	Limit   int
	Window  time.Duration
	Metrics *metrics.Metrics
}

// Scanner runs one scan: validate, rate limit, store, identify, augment,
// persist. Stages run strictly in that order.
type Scanner struct {
	store    storage.ObjectStore
	identify Identifier
	augment  Augmenter
	history  HistoryAppender
	limiter  ratelimit.Limiter
	limit    int
	window   time.Duration
	metrics  *metrics.Metrics
	newID    func() string
	now      func() time.Time
}

// New builds a Scanner; zero Options fall back to 5 scans per hour
func New(store storage.ObjectStore, identifier Identifier, augmenter Augmenter, history HistoryAppender, limiter ratelimit.Limiter, opts Options) *Scanner {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Scanner{
		store:    store,
		identify: identifier,
		augment:  augmenter,
		history:  history,
		limiter:  limiter,
		limit:    opts.Limit,
		window:   opts.Window,
		metrics:  opts.Metrics,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Window is the rate limit window, used for Retry-After
func (s *Scanner) Window() time.Duration {
	return s.window
}

// Scan processes an upload. Once the photo is accepted the remaining stages
// ignore cancellation of ctx so a disconnecting client does not abort them.
func (s *Scanner) Scan(ctx context.Context, up Upload) (*Result, error) {
	start := s.now()
	result, err := s.scan(ctx, up)
	s.metrics.RecordScan(Outcome(err), s.now().Sub(start))
	if err != nil {
		slog.Warn("Scan failed", "device_id", up.DeviceID, "outcome", Outcome(err), "err", err)
	}
	return result, err
}

func (s *Scanner) scan(ctx context.Context, up Upload) (*Result, error) {
	contentType, err := validate(up)
	if err != nil {
		return nil, err
	}

	allowed, err := s.limiter.Allow(ctx, "scan:"+up.DeviceID, s.limit, s.window)
	if err != nil {
		return nil, wrapError(ErrRateLimited, "check rate limit", err)
	}
	if !allowed {
		return nil, wrapError(ErrRateLimited, "check rate limit", nil)
	}

	ctx = context.WithoutCancel(ctx)
	scanID := s.newID()

	key := storage.ObjectKey(up.DeviceID, scanID, contentType)
	imageURL, err := s.store.Put(ctx, up.Data, key, contentType)
	if err != nil {
		return nil, wrapError(ErrStorage, "store image", err)
	}
	slog.Info("Stored shelf photo", "device_id", up.DeviceID, "scan_id", scanID, "image_url", imageURL)

	identified, err := s.identify.Identify(ctx, imageURL)
	if err != nil {
		return nil, wrapError(ErrIdentification, "identify books", err)
	}
	s.metrics.RecordIdentify(identified.Path, len(identified.Books))

	books := identified.Books
	if books == nil {
		books = []models.Book{}
	}
	augmented := false
	if len(books) > 0 {
		books, augmented = s.augment.Augment(ctx, books)
		s.metrics.RecordAugment(augmented)
	}

	record := models.ScanRecord{
		ID:           scanID,
		DeviceID:     up.DeviceID,
		ImageURL:     imageURL,
		Books:        books,
		IdentifiedBy: identified.Path,
		Augmented:    augmented,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.history.Append(ctx, record); err != nil {
		s.metrics.RecordHistoryFailure()
		slog.Error("Failed to save scan history", "device_id", up.DeviceID, "scan_id", scanID, "err", err)
	}

	return &Result{
		ScanID:       scanID,
		ImageURL:     imageURL,
		Books:        books,
		IdentifiedBy: identified.Path,
		Augmented:    augmented,
	}, nil
}

func validate(up Upload) (string, error) {
	if up.DeviceID == "" {
		return "", wrapError(ErrValidation, "validate upload", fmt.Errorf("missing device id"))
	}

	contentType, _, err := mime.ParseMediaType(up.ContentType)
	if err != nil {
		contentType = strings.TrimSpace(up.ContentType)
	}
	contentType = strings.ToLower(contentType)
	if !strings.HasPrefix(contentType, "image/") {
		return "", wrapError(ErrValidation, "validate upload", fmt.Errorf("content type %q is not an image", up.ContentType))
	}

	if len(up.Data) == 0 {
		return "", wrapError(ErrValidation, "validate upload", fmt.Errorf("file is empty"))
	}
	if len(up.Data) > MaxUploadBytes {
		return "", wrapError(ErrValidation, "validate upload", fmt.Errorf("file exceeds %d bytes", MaxUploadBytes))
	}

	return contentType, nil
}
