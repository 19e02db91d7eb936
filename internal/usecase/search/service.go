// Package search executes ranked, paginated, multi-type searches over the index.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/domain/search/query"
	"github.com/kailas-cloud/entsearch/internal/domain/search/result"
	"github.com/kailas-cloud/entsearch/internal/metrics"
	"github.com/kailas-cloud/entsearch/internal/usecase/ratelimit"
)

// scanChunk is how many members one membership read returns.
const scanChunk = 1000

// Config tunes the engine.
type Config struct {
	// MaxScanPerType caps the members inspected per type. Zero scans every
	// member; when the cap cuts a scan short the page is marked Truncated.
	MaxScanPerType int
	HalfLife       time.Duration
}

type candidate struct {
	ref       entity.Ref
	indexedAt time.Time
	score     float64
}

// Service is the query engine.
type Service struct {
	index    IndexReader
	limiter  RateLimiter
	recorder QueryRecorder
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a search service. limiter and recorder can be nil.
func New(index IndexReader, limiter RateLimiter, recorder QueryRecorder, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxScanPerType < 0 {
		cfg.MaxScanPerType = 0
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = DefaultHalfLife
	}
	return &Service{
		index:    index,
		limiter:  limiter,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Search rate-limits identity, runs q and records it on success.
// A rejected call returns *ratelimit.ExceededError.
func (s *Service) Search(ctx context.Context, identity string, q query.Query) (result.Page, error) {
	if s.limiter != nil {
		if d := s.limiter.Allow(ctx, identity); !d.Allowed {
			return result.Page{}, &ratelimit.ExceededError{RetryAfter: d.RetryAfter}
		}
	}

	start := time.Now()
	page, err := s.execute(ctx, q)
	elapsed := time.Since(start)
	if err != nil {
		metrics.SearchDuration.WithLabelValues("error").Observe(elapsed.Seconds())
		return result.Page{}, err
	}
	metrics.SearchDuration.WithLabelValues("ok").Observe(elapsed.Seconds())
	metrics.SearchCandidates.Observe(float64(page.Total))
	page.ExecutionTime = elapsed

	if s.recorder != nil {
		s.recorder.Record(q.TenantID(), q.Text())
	}
	return page, nil
}

// execute collects candidates from every requested type before ranking so that
// a type with many hits cannot crowd out another type's fewer relevant ones.
func (s *Service) execute(ctx context.Context, q query.Query) (result.Page, error) {
	now := s.now()

	var (
		candidates []candidate
		truncated  bool
	)
	for _, t := range q.Types() {
		found, cut, err := s.scanType(ctx, q, t, now)
		if err != nil {
			return result.Page{}, err
		}
		candidates = append(candidates, found...)
		truncated = truncated || cut
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.indexedAt.Equal(b.indexedAt) {
			return a.indexedAt.After(b.indexedAt)
		}
		if a.ref.Type != b.ref.Type {
			return a.ref.Type < b.ref.Type
		}
		return a.ref.ID < b.ref.ID
	})

	total := len(candidates)
	page := result.Page{
		Total:     total,
		Limit:     q.Limit(),
		Offset:    q.Offset(),
		HasMore:   q.Offset()+q.Limit() < total,
		Truncated: truncated,
	}
	if q.Offset() >= total {
		page.Results = []result.Result{}
		return page, nil
	}

	window := candidates[q.Offset():min(q.Offset()+q.Limit(), total)]
	refs := make([]entity.Ref, len(window))
	for i, c := range window {
		refs[i] = c.ref
	}

	docs, err := s.index.Docs(ctx, q.TenantID(), refs)
	if err != nil {
		return result.Page{}, fmt.Errorf("load results: %w", err)
	}

	page.Results = make([]result.Result, 0, len(window))
	for i, c := range window {
		if i >= len(docs) || docs[i] == nil {
			// Removed between scan and load.
			continue
		}
		page.Results = append(page.Results, result.New(c.ref.Type, c.ref.ID, c.score, c.indexedAt, docs[i].Metadata()))
	}
	return page, nil
}

// scanType walks the type's membership newest first in chunks and matches
// every member. It reports truncated when MaxScanPerType stopped the walk
// before the last member.
func (s *Service) scanType(ctx context.Context, q query.Query, t entity.Type, now time.Time) ([]candidate, bool, error) {
	var (
		out  []candidate
		seen = make(map[string]struct{})
	)
	for offset := 0; ; {
		n := scanChunk
		if s.cfg.MaxScanPerType > 0 {
			if offset >= s.cfg.MaxScanPerType {
				more, err := s.index.Members(ctx, q.TenantID(), t, offset, 1)
				if err != nil {
					return nil, false, fmt.Errorf("scan %s: %w", t, err)
				}
				if len(more) == 0 {
					return out, false, nil
				}
				s.logger.Warn("Search scan stopped at per-type cap",
					zap.String("tenant", q.TenantID()),
					zap.String("type", string(t)),
					zap.Int("max_scan", s.cfg.MaxScanPerType),
				)
				return out, true, nil
			}
			n = min(n, s.cfg.MaxScanPerType-offset)
		}

		members, err := s.index.Members(ctx, q.TenantID(), t, offset, n)
		if err != nil {
			return nil, false, fmt.Errorf("scan %s: %w", t, err)
		}
		found, err := s.matchChunk(ctx, q, t, members, seen, now)
		if err != nil {
			return nil, false, err
		}
		out = append(out, found...)

		if len(members) < n {
			return out, false, nil
		}
		offset += len(members)
	}
}

// matchChunk scores one chunk of members. Members already seen in an earlier
// chunk are skipped: concurrent inserts shift ranks between reads.
func (s *Service) matchChunk(
	ctx context.Context, q query.Query, t entity.Type, members []entity.Member,
	seen map[string]struct{}, now time.Time,
) ([]candidate, error) {
	fresh := make([]entity.Member, 0, len(members))
	for _, m := range members {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	ids := make([]string, len(fresh))
	for i, m := range fresh {
		ids[i] = m.ID
	}
	texts, err := s.index.Texts(ctx, q.TenantID(), t, ids)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t, err)
	}

	var out []candidate
	for i, m := range fresh {
		if i >= len(texts) || texts[i] == "" {
			continue
		}
		quality, ok := matchQuality(texts[i], q.Text(), q.Tokens())
		if !ok {
			continue
		}
		out = append(out, candidate{
			ref:       entity.Ref{Type: t, ID: m.ID},
			indexedAt: m.IndexedAt,
			score:     quality * recencyFactor(m.IndexedAt, now, s.cfg.HalfLife),
		})
	}
	return out, nil
}
