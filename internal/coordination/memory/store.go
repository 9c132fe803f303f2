// Package memory provides an in-process coordination store for tests and
// single-worker development runs.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/trendscout/crawler/internal/crawl"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store implements crawl.CoordStore with a mutex-guarded map.
type Store struct {
	mu    sync.Mutex
	data  map[string]entry
	clock func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		data:  make(map[string]entry),
		clock: time.Now,
	}
}

// SetClock overrides the time source for expiry tests.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Get returns the value at key or crawl.ErrKeyNotFound.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return "", crawl.ErrKeyNotFound
	}
	return e.value, nil
}

// Set writes key with an optional TTL.
func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.clock().Add(ttl)
	}
	s.data[key] = e
	return nil
}

// Del removes key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Incr increments the integer at key, treating absent keys as zero.
func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if e, ok := s.live(key); ok {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err == nil {
			n = parsed
		}
	}
	n++
	s.data[key] = entry{value: strconv.FormatInt(n, 10)}
	return n, nil
}

// live returns the entry at key if present and unexpired, evicting lazily.
// Caller holds s.mu.
func (s *Store) live(key string) (entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && s.clock().After(e.expiresAt) {
		delete(s.data, key)
		return entry{}, false
	}
	return e, true
}
