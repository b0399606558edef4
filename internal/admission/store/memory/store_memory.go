package memory

import (
	"context"
	"sync"
	"time"

	"whitelist/internal/admission/models"
	id "whitelist/pkg/domain"
	"whitelist/pkg/platform/sentinel"
)

// InMemoryStore keeps the registry in process memory. A single mutex makes
// every Admit atomic.
type InMemoryStore struct {
	mu       sync.RWMutex
	registry *models.Registry
	members  map[id.Identity]models.Member
}

func New() *InMemoryStore {
	return &InMemoryStore{members: make(map[id.Identity]models.Member)}
}

func (s *InMemoryStore) Init(_ context.Context, capacity int, now time.Time) (models.Registry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry != nil {
		if s.registry.Capacity != capacity {
			return *s.registry, false, sentinel.ErrConflict
		}
		return *s.registry, false, nil
	}
	s.registry = &models.Registry{Capacity: capacity, CreatedAt: now}
	return *s.registry, true, nil
}

func (s *InMemoryStore) Registry(_ context.Context) (models.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.registry == nil {
		return models.Registry{}, sentinel.ErrNotFound
	}
	return *s.registry, nil
}

func (s *InMemoryStore) Admit(_ context.Context, identity id.Identity, now time.Time) (models.Admission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry == nil {
		return models.Admission{}, sentinel.ErrNotFound
	}
	if m, ok := s.members[identity]; ok {
		return models.Admission{Member: m, Created: false, Count: s.registry.Count}, nil
	}
	if s.registry.Full() {
		return models.Admission{}, sentinel.ErrCapacityReached
	}

	s.registry.Count++
	m := models.Member{Identity: identity, Seq: s.registry.Count, AdmittedAt: now}
	s.members[identity] = m
	return models.Admission{Member: m, Created: true, Count: s.registry.Count}, nil
}

func (s *InMemoryStore) IsMember(_ context.Context, identity id.Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.members[identity]
	return ok, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.registry == nil {
		return 0, sentinel.ErrNotFound
	}
	return s.registry.Count, nil
}

func (s *InMemoryStore) Members(_ context.Context, identities []id.Identity) (map[id.Identity]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[id.Identity]bool, len(identities))
	for _, identity := range identities {
		_, out[identity] = s.members[identity]
	}
	return out, nil
}
