package memory

import (
	"Minerva/internal/models"
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore is a Persistence implementation backed by a plain map.
// It is used by tests and by deployments that run without backing
// services. It deliberately does not implement NearestNeighborSearcher,
// so search against it exercises the brute-force cosine path.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.MemoryRecord
}

// NewInMemoryStore creates an empty in-process store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*models.MemoryRecord)}
}

// Put stores a copy of the record.
func (s *InMemoryStore) Put(_ context.Context, rec *models.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// Get fetches a record by id.
func (s *InMemoryStore) Get(_ context.Context, id string) (*models.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("memory record %s not found", id)
	}
	cp := *rec
	return &cp, nil
}

// QueryByOwner returns the owner's records, applying the filter.
func (s *InMemoryStore) QueryByOwner(_ context.Context, ownerID string, filter RecordFilter) ([]*models.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MemoryRecord
	for _, rec := range s.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if filter.ActiveOnly && (!rec.Active || rec.Expired(filter.Now)) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// Delete removes a record by id. Deleting a missing id is not an error.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// QuerySweepable returns records eligible for physical removal: inactive
// records, and records whose expiry predates the cutoff.
func (s *InMemoryStore) QuerySweepable(_ context.Context, cutoff time.Time) ([]*models.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.MemoryRecord
	for _, rec := range s.records {
		if !rec.Active || rec.Expired(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
