package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int64
	expiresAt time.Time
}

// RateLimitStore is an in-memory fixed-window counter store.
type RateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimitStore creates an in-memory rate-limit store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{windows: make(map[string]*window), now: time.Now}
}

// Incr counts one hit in the window starting at windowStart.
func (s *RateLimitStore) Incr(_ context.Context, identity string, windowStart time.Time, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, w := range s.windows {
		if now.After(w.expiresAt) {
			delete(s.windows, k)
		}
	}

	key := identity + ":" + windowStart.UTC().Format(time.RFC3339)
	w, ok := s.windows[key]
	if !ok {
		w = &window{expiresAt: now.Add(ttl)}
		s.windows[key] = w
	}
	w.count++
	return w.count, nil
}
