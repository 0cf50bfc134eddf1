package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/shelfscanner/internal/models"
)

// MemoryStore keeps sessions and scans in process memory
type MemoryStore struct {
	devices map[string]models.DeviceSession
	scans   map[string][]models.ScanRecord
	mu      sync.RWMutex
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]models.DeviceSession),
		scans:   make(map[string][]models.ScanRecord),
		now:     time.Now,
	}
}

func (s *MemoryStore) CreateDevice(ctx context.Context) (*models.DeviceSession, error) {
	session := models.DeviceSession{
		ID:        uuid.NewString(),
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[session.ID] = session
	return &session, nil
}

func (s *MemoryStore) DeviceExists(ctx context.Context, deviceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.devices[deviceID]
	return exists, nil
}

func (s *MemoryStore) Append(ctx context.Context, record models.ScanRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	record.Books = cloneBooks(record.Books)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[record.DeviceID] = append(s.scans[record.DeviceID], record)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, deviceID string, limit int) ([]models.ScanRecord, error) {
	limit = ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	scans := s.scans[deviceID]
	result := make([]models.ScanRecord, 0, min(limit, len(scans)))
	for i := len(scans) - 1; i >= 0 && len(result) < limit; i-- {
		record := scans[i]
		record.Books = cloneBooks(record.Books)
		result = append(result, record)
	}
	return result, nil
}

func (s *MemoryStore) Get(ctx context.Context, deviceID, scanID string) (*models.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.scans[deviceID] {
		if record.ID == scanID {
			record.Books = cloneBooks(record.Books)
			return &record, nil
		}
	}
	return nil, ErrNotFound
}

func cloneBooks(books []models.Book) []models.Book {
	out := make([]models.Book, len(books))
	for i, b := range books {
		if b.Score != nil {
			score := *b.Score
			b.Score = &score
		}
		out[i] = b
	}
	return out
}
