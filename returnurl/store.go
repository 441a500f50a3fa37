// Package returnurl persists the route a user was trying to reach before
// being sent to login. The value survives the redirect round trip and is
// consumed exactly once on successful return.
package returnurl

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a saved return URL stays consumable. Login
// round trips complete in minutes; anything older is abandoned.
const DefaultTTL = 10 * time.Minute

// Store saves and consumes return URLs keyed by the login attempt's state
// value, which is the only identifier that survives the redirect.
type Store interface {
	// Save records the URL for the given key.
	Save(ctx context.Context, key, url string) error
	// Pop returns the saved URL and deletes it. A missing or expired key
	// yields "" with no error; callers fall back to their home route.
	Pop(ctx context.Context, key string) (string, error)
}

type memEntry struct {
	url     string
	expires time.Time
}

// MemStore is an in-process Store for single-instance deployments and the
// native shell.
type MemStore struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]memEntry
}

func NewMemStore() *MemStore {
	return &MemStore{ttl: DefaultTTL, m: make(map[string]memEntry)}
}

func (s *MemStore) Save(_ context.Context, key, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = memEntry{url: url, expires: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemStore) Pop(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return "", nil
	}
	delete(s.m, key)
	if time.Now().After(e.expires) {
		return "", nil
	}
	return e.url, nil
}
