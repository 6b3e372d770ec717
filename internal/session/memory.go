package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore keeps sessions in a size-bounded, expiring LRU. It is safe
// for concurrent use.
type MemoryStore struct {
	cache *expirable.LRU[string, Session]
	now   func() time.Time
}

// NewMemoryStore creates an in-process store holding at most maxItems
// sessions (0 means unbounded) for up to ttl each.
func NewMemoryStore(maxItems int, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, Session](maxItems, nil, ttl),
		now:   time.Now,
	}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.cache.Add(s.ID, *s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Expired(m.now()) {
		m.cache.Remove(id)
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.cache.Remove(id)
	return nil
}

// Len returns the number of stored sessions, expired ones included until
// they are evicted.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}

func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
