package session

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-lookup-widget/internal/models"
)

// Store persists widget session state by session id.
// Load returns (state, true, nil) when present and not expired, (zero, false, nil) on miss.
type Store interface {
	Load(ctx context.Context, id string) (models.SessionState, bool, error)
	Save(ctx context.Context, id string, st models.SessionState, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// InMemoryStore implements Store with a map and TTL-based expiration.
// Expired entries are removed on access.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string]storeEntry
	now  func() time.Time
}

type storeEntry struct {
	state     models.SessionState
	expiresAt time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]storeEntry),
		now:  time.Now,
	}
}

// Load implements Store.Load.
func (s *InMemoryStore) Load(ctx context.Context, id string) (models.SessionState, bool, error) {
	if ctx.Err() != nil {
		return models.SessionState{}, false, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[id]
	if !ok {
		return models.SessionState{}, false, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.data, id)
		return models.SessionState{}, false, nil
	}
	return cloneState(entry.state), true, nil
}

// Save implements Store.Save.
func (s *InMemoryStore) Save(ctx context.Context, id string, st models.SessionState, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = storeEntry{
		state:     cloneState(st),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func cloneState(st models.SessionState) models.SessionState {
	out := st
	if st.Location != nil {
		loc := *st.Location
		out.Location = &loc
	}
	return out
}
