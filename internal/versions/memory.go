package versions

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used in development and tests.
// Histories for distinct users live behind separate mutexes so they
// never contend; only GetByID takes the store-wide view.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userHistory
}

type userHistory struct {
	mu       sync.Mutex
	versions []Version // newest first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*userHistory)}
}

func (s *MemoryStore) history(userID string) *userHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.users[userID]
	if !ok {
		h = &userHistory{}
		s.users[userID] = h
	}
	return h
}

func (s *MemoryStore) Insert(_ context.Context, v Version, maxVersions int) (int, error) {
	h := s.history(v.UserID)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.versions = append([]Version{v}, h.versions...)
	evicted := 0
	if len(h.versions) > maxVersions {
		evicted = len(h.versions) - maxVersions
		h.versions = h.versions[:maxVersions]
	}
	return evicted, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]Version, error) {
	s.mu.RLock()
	h, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return []Version{}, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.versions)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Version, n)
	copy(out, h.versions[:n])
	return out, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*Version, error) {
	s.mu.RLock()
	histories := make([]*userHistory, 0, len(s.users))
	for _, h := range s.users {
		histories = append(histories, h)
	}
	s.mu.RUnlock()

	for _, h := range histories {
		h.mu.Lock()
		for i := range h.versions {
			if h.versions[i].ID == id {
				v := h.versions[i]
				h.mu.Unlock()
				return &v, nil
			}
		}
		h.mu.Unlock()
	}
	return nil, nil
}

func (s *MemoryStore) Delete(_ context.Context, userID, id string) (bool, error) {
	s.mu.RLock()
	h, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.versions {
		if h.versions[i].ID == id {
			h.versions = append(h.versions[:i], h.versions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	h, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.versions), nil
}
