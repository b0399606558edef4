package memory

import (
	"context"
	"sync"

	audit "whitelist/pkg/platform/audit"
)

// DefaultCapacity is how many events the store keeps before overwriting the oldest.
const DefaultCapacity = 10000

// InMemoryStore keeps the most recent audit events in process, as a ring
// buffer. Used when no external sink is configured and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	head   int // index of the oldest event once the buffer is full
	limit  int
}

type Option func(*InMemoryStore)

// WithCapacity bounds how many events are retained. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.limit = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{limit: DefaultCapacity}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) < s.limit {
		s.events = append(s.events, event)
		return nil
	}
	s.events[s.head] = event
	s.head = (s.head + 1) % s.limit
	return nil
}

// ordered returns the retained events oldest first. Callers hold the lock.
func (s *InMemoryStore) ordered() []audit.Event {
	out := make([]audit.Event, 0, len(s.events))
	out = append(out, s.events[s.head:]...)
	return append(out, s.events[:s.head]...)
}

// ListBySubject returns the retained events for one identity, oldest first.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.ordered() {
		if e.Subject == subject {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListRecent returns at most limit of the newest events, oldest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.ordered()
	start := max(len(all)-limit, 0)
	return all[start:], nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.head = 0
}
