// Package redistest provides an in-process stand-in for the Redis-backed stores.
package redistest

import (
	"context"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

type entry struct {
	value   string
	expires time.Time
}

type counter struct {
	n       int64
	expires time.Time
}

// Store implements pkgredis.IdempotencyStore and pkgredis.RateLimitStore.
// Setting Err makes every call fail with it.
type Store struct {
	mu       sync.Mutex
	entries  map[string]entry
	counters map[string]*counter
	Err      error
	Now      func() time.Time
}

var (
	_ pkgredis.IdempotencyStore = (*Store)(nil)
	_ pkgredis.RateLimitStore   = (*Store)(nil)
)

func New() *Store {
	return &Store{entries: map[string]entry{}, counters: map[string]*counter{}, Now: time.Now}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	e, ok := s.live(key)
	if !ok {
		return "", goredis.Nil
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.put(key, value, ttl)
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.put(key, value, ttl)
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *Store) IdempotencyKey(scope, id string) string {
	return strings.Join([]string{"sf", "idempotency", scope, id}, ":")
}

func (s *Store) LockKey(name string) string {
	return "sf:lock:" + name
}

func (s *Store) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (pkgredis.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return pkgredis.Window{}, s.Err
	}
	now := s.Now()
	c, ok := s.counters[scope]
	if !ok || !now.Before(c.expires) {
		c = &counter{expires: now.Add(window)}
		s.counters[scope] = c
	}
	c.n++
	return pkgredis.Window{Allowed: c.n <= limit, Count: c.n, ResetIn: c.expires.Sub(now)}, nil
}

// Has reports whether key is currently stored.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok
}

func (s *Store) live(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !s.Now().Before(e.expires) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) put(key string, value any, ttl time.Duration) {
	e := entry{value: toString(value)}
	if ttl > 0 {
		e.expires = s.Now().Add(ttl)
	}
	s.entries[key] = e
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
