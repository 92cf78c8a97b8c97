package quota

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is the in-process Store used in development and tests.
// Each quota record carries its own mutex so reservations for distinct
// users never contend; the store-level mutex only guards map access.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memRecord

	attemptsMu sync.Mutex
	attempts   map[string]int
}

type memRecord struct {
	mu   sync.Mutex
	used int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*memRecord),
		attempts: make(map[string]int),
	}
}

func recordKey(userID, day string) string {
	return userID + ":" + day
}

func (s *MemoryStore) record(userID, day string) *memRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(userID, day)
	rec, ok := s.records[key]
	if !ok {
		rec = &memRecord{}
		s.records[key] = rec
	}
	return rec
}

func (s *MemoryStore) Used(_ context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	rec, ok := s.records[recordKey(userID, day)]
	s.mu.Unlock()
	if !ok {
		return 0, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.used, nil
}

func (s *MemoryStore) IncrementBelow(_ context.Context, userID, day string, limit int) (bool, int, error) {
	rec := s.record(userID, day)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.used >= limit {
		return false, rec.used, nil
	}
	rec.used++
	return true, rec.used, nil
}

func (s *MemoryStore) Increment(_ context.Context, userID, day string) (int, error) {
	rec := s.record(userID, day)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.used++
	return rec.used, nil
}

func (s *MemoryStore) Decrement(_ context.Context, userID, day string) error {
	rec := s.record(userID, day)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.used > 0 {
		rec.used--
	}
	return nil
}

func (s *MemoryStore) PurgeDay(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key := range s.records {
		if strings.HasSuffix(key, ":"+day) {
			delete(s.records, key)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) TakeAttempt(_ context.Context, userID, requestID string, maxAttempts int) (bool, int, error) {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	key := userID + ":" + requestID
	count := s.attempts[key]
	if count >= maxAttempts {
		return false, count, nil
	}
	s.attempts[key] = count + 1
	return true, count + 1, nil
}

func (s *MemoryStore) ClearAttempts(_ context.Context) (int, error) {
	s.attemptsMu.Lock()
	defer s.attemptsMu.Unlock()
	cleared := len(s.attempts)
	s.attempts = make(map[string]int)
	return cleared, nil
}
