// Package ratelimit bounds per-identity search throughput with fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/metrics"
)

// Defaults for the limiter.
const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

// Store counts hits per identity and window.
type Store interface {
	Incr(ctx context.Context, identity string, windowStart time.Time, ttl time.Duration) (int64, error)
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// ExceededError signals a rejected call. It unwraps to domain.ErrRateLimited.
type ExceededError struct {
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: retry after %s", domain.ErrRateLimited, e.RetryAfter)
}

func (e *ExceededError) Unwrap() error { return domain.ErrRateLimited }

// Limiter is a fixed-window counter limiter backed by the shared store, so
// that all service instances see the same counts.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New creates a limiter allowing limit calls per window for each identity.
func New(store Store, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, limit: limit, window: window, logger: logger, now: time.Now}
}

// Allow counts one call for identity. When the store is unreachable the call
// is allowed and the failure logged.
func (l *Limiter) Allow(ctx context.Context, identity string) Decision {
	now := l.now()
	windowStart := now.Truncate(l.window)
	retryAfter := windowStart.Add(l.window).Sub(now)

	n, err := l.store.Incr(ctx, identity, windowStart, 2*l.window)
	if err != nil {
		metrics.RateLimitStoreErrorsTotal.Inc()
		l.logger.Warn("Rate limit check failed, allowing request",
			zap.String("identity", identity),
			zap.Error(err),
		)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	if n > int64(l.limit) {
		metrics.RateLimitRejectionsTotal.Inc()
		return Decision{Allowed: false, Limit: l.limit, RetryAfter: retryAfter}
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - int(n), RetryAfter: retryAfter}
}
