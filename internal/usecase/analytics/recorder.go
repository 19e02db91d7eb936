// Package analytics records executed queries off the search path and
// reports the most popular ones.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/entsearch/internal/domain"
	domanalytics "github.com/kailas-cloud/entsearch/internal/domain/analytics"
	"github.com/kailas-cloud/entsearch/internal/metrics"
)

// Popular query limits.
const (
	DefaultPopularLimit = 10
	MaxPopularLimit     = 100
)

// Store persists the query log.
type Store interface {
	Record(ctx context.Context, tenantID, query string) error
	Popular(ctx context.Context, tenantID string, limit int) ([]domanalytics.PopularQuery, error)
}

// Config tunes the recorder.
type Config struct {
	Buffer       int
	WriteTimeout time.Duration
}

type event struct {
	tenantID string
	query    string
}

// Recorder buffers query events and writes them from a background goroutine.
type Recorder struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	events chan event
	done   chan struct{}
}

// New creates a recorder and starts its drainer.
func New(store Store, cfg Config, logger *zap.Logger) *Recorder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = time.Second
	}
	r := &Recorder{
		store:   store,
		logger:  logger,
		timeout: cfg.WriteTimeout,
		events:  make(chan event, cfg.Buffer),
		done:    make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues a normalized query. It never blocks: when the buffer is
// full or the recorder is closed the event is dropped.
func (r *Recorder) Record(tenantID, query string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		metrics.AnalyticsEventsTotal.WithLabelValues("dropped").Inc()
		return
	}
	select {
	case r.events <- event{tenantID: tenantID, query: query}:
	default:
		metrics.AnalyticsEventsTotal.WithLabelValues("dropped").Inc()
	}
}

// PopularQueries returns the tenant's most frequent recent queries.
// A zero limit takes the default.
func (r *Recorder) PopularQueries(ctx context.Context, tenantID string, limit int) ([]domanalytics.PopularQuery, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return nil, err
	}
	switch {
	case limit == 0:
		limit = DefaultPopularLimit
	case limit < 0 || limit > MaxPopularLimit:
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidQuery, MaxPopularLimit)
	}

	out, err := r.store.Popular(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("popular queries: %w", err)
	}
	return out, nil
}

// Close stops accepting events and waits for buffered ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("analytics drain: %w", ctx.Err())
	}
}

func (r *Recorder) drain() {
	defer close(r.done)
	for ev := range r.events {
		r.write(ev)
	}
}

func (r *Recorder) write(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Record(ctx, ev.tenantID, ev.query); err != nil {
		metrics.AnalyticsEventsTotal.WithLabelValues("error").Inc()
		r.logger.Warn("Failed to record query",
			zap.String("tenant", ev.tenantID),
			zap.Error(err),
		)
		return
	}
	metrics.AnalyticsEventsTotal.WithLabelValues("recorded").Inc()
}
