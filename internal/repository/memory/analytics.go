package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kailas-cloud/entsearch/internal/domain/analytics"
)

type queryLog struct {
	entries []string // newest last
	freq    map[string]int64
}

// AnalyticsStore is an in-memory analytics log.
type AnalyticsStore struct {
	mu     sync.Mutex
	logCap int
	logs   map[string]*queryLog
}

// NewAnalyticsStore creates an in-memory analytics log keeping logCap queries per tenant.
func NewAnalyticsStore(logCap int) *AnalyticsStore {
	if logCap <= 0 {
		logCap = analytics.DefaultLogCap
	}
	return &AnalyticsStore{logCap: logCap, logs: make(map[string]*queryLog)}
}

// Record appends a query and evicts the oldest entries past the cap.
func (s *AnalyticsStore) Record(_ context.Context, tenantID, query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[tenantID]
	if !ok {
		l = &queryLog{freq: make(map[string]int64)}
		s.logs[tenantID] = l
	}
	l.entries = append(l.entries, query)
	l.freq[query]++
	for len(l.entries) > s.logCap {
		old := l.entries[0]
		l.entries = l.entries[1:]
		l.freq[old]--
		if l.freq[old] <= 0 {
			delete(l.freq, old)
		}
	}
	return nil
}

// Popular returns the most frequent queries, highest count first.
func (s *AnalyticsStore) Popular(_ context.Context, tenantID string, limit int) ([]analytics.PopularQuery, error) {
	s.mu.Lock()
	l, ok := s.logs[tenantID]
	var out []analytics.PopularQuery
	if ok {
		out = make([]analytics.PopularQuery, 0, len(l.freq))
		for q, n := range l.freq {
			out = append(out, analytics.PopularQuery{Query: q, Count: n})
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query > out[j].Query
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
