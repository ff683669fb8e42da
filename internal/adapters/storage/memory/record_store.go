package memory

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

// RecordStore is an in-memory domain.RecordBackend. Tokens are required but
// not verified.
type RecordStore struct {
	mu      sync.RWMutex
	records map[domain.UserID][]domain.Record
	now     func() time.Time
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[domain.UserID][]domain.Record),
		now:     time.Now,
	}
}

func (s *RecordStore) CreateRecord(_ context.Context, token string, rec domain.Record) (domain.Record, error) {
	if token == "" {
		return domain.Record{}, domain.ErrUnauthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = domain.NewRecordID(rec.Kind)
	rec.CreatedAt = s.now()
	s.records[rec.UserID] = append(s.records[rec.UserID], rec)
	return rec, nil
}

func (s *RecordStore) ListRecords(_ context.Context, token string, userID domain.UserID, kind domain.RecordKind) ([]domain.Record, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Record
	for _, r := range s.records[userID] {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}
