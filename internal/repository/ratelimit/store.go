// Package ratelimit stores fixed-window request counters.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain"
)

// store is the consumer interface for rate-limit counters (ISP).
type store interface {
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store implements window counters on top of DB (INCRBY + EXPIRE NX).
type Store struct {
	store store
}

// New creates a rate-limit store.
func New(s store) *Store {
	return &Store{store: s}
}

// Incr counts one hit in the window starting at windowStart and returns the
// window's count. Keys expire after ttl, which should exceed the window.
func (s *Store) Incr(ctx context.Context, identity string, windowStart time.Time, ttl time.Duration) (int64, error) {
	key := windowKey(identity, windowStart)
	n, err := s.store.IncrBy(ctx, key, 1)
	if err != nil {
		return 0, fmt.Errorf("%w: ratelimit INCRBY %s: %w", domain.ErrStoreUnavailable, key, err)
	}

	// Set TTL only if the key has no expiry yet (NX, not reset on repeat).
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return 0, fmt.Errorf("%w: ratelimit EXPIRE %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return n, nil
}

func windowKey(identity string, windowStart time.Time) string {
	return domain.KeyPrefix + "ratelimit:" + identity + ":" + strconv.FormatInt(windowStart.Unix(), 10)
}
