// Package memory provides in-process implementations of the repositories.
// State is lost on restart and not shared between instances, so it serves
// tests and single-node development only.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/domain/stats"
)

type typeKey struct {
	tenant string
	typ    entity.Type
}

type tenantStats struct {
	total     int64
	byType    map[entity.Type]int64
	updatedAt time.Time
}

// IndexStore is an in-memory index store.
type IndexStore struct {
	mu    sync.RWMutex
	docs  map[typeKey]map[string]entity.IndexedEntity
	stats map[string]*tenantStats
	now   func() time.Time
}

// NewIndexStore creates an empty in-memory index store.
func NewIndexStore() *IndexStore {
	return &IndexStore{
		docs:  make(map[typeKey]map[string]entity.IndexedEntity),
		stats: make(map[string]*tenantStats),
		now:   time.Now,
	}
}

// Put writes or overwrites an entity. Returns true if it was not indexed before.
func (s *IndexStore) Put(_ context.Context, e *entity.IndexedEntity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := typeKey{e.TenantID(), e.Type()}
	m, ok := s.docs[k]
	if !ok {
		m = make(map[string]entity.IndexedEntity)
		s.docs[k] = m
	}
	_, existed := m[e.ID()]
	m[e.ID()] = *e

	st := s.tenantStats(e.TenantID())
	if !existed {
		st.total++
		st.byType[e.Type()]++
	}
	st.updatedAt = e.IndexedAt()
	return !existed, nil
}

// Delete removes an entity. Returns true if it was indexed.
func (s *IndexStore) Delete(_ context.Context, tenantID string, t entity.Type, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(tenantID, t, id), nil
}

func (s *IndexStore) deleteLocked(tenantID string, t entity.Type, id string) bool {
	m := s.docs[typeKey{tenantID, t}]
	if _, ok := m[id]; !ok {
		return false
	}
	delete(m, id)
	st := s.tenantStats(tenantID)
	st.total--
	st.byType[t]--
	st.updatedAt = s.now()
	return true
}

// PruneBefore removes every entity of a type indexed before cutoff.
func (s *IndexStore) PruneBefore(_ context.Context, tenantID string, t entity.Type, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for id, e := range s.docs[typeKey{tenantID, t}] {
		if e.IndexedAt().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		s.deleteLocked(tenantID, t, id)
	}
	return len(stale), nil
}

// Members returns up to limit members of a type starting at rank offset,
// most recently indexed first.
func (s *IndexStore) Members(_ context.Context, tenantID string, t entity.Type, offset, limit int) ([]entity.Member, error) {
	s.mu.RLock()
	m := s.docs[typeKey{tenantID, t}]
	out := make([]entity.Member, 0, len(m))
	for id, e := range m {
		out = append(out, entity.Member{ID: id, IndexedAt: e.IndexedAt()})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].IndexedAt.Equal(out[j].IndexedAt) {
			return out[i].IndexedAt.After(out[j].IndexedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset < 0 || offset >= len(out) || limit <= 0 {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

// Texts returns the searchable text for each id, aligned with ids.
func (s *IndexStore) Texts(_ context.Context, tenantID string, t entity.Type, ids []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.docs[typeKey{tenantID, t}]
	out := make([]string, len(ids))
	for i, id := range ids {
		if e, ok := m[id]; ok {
			out[i] = e.SearchableText()
		}
	}
	return out, nil
}

// Docs loads full entities for refs, aligned with refs. Missing entities are nil.
func (s *IndexStore) Docs(_ context.Context, tenantID string, refs []entity.Ref) ([]*entity.IndexedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.IndexedEntity, len(refs))
	for i, ref := range refs {
		if e, ok := s.docs[typeKey{tenantID, ref.Type}][ref.ID]; ok {
			out[i] = &e
		}
	}
	return out, nil
}

// Stats returns the tenant's counters.
func (s *IndexStore) Stats(_ context.Context, tenantID string) (stats.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := stats.Empty()
	st, ok := s.stats[tenantID]
	if !ok {
		return out, nil
	}
	out.Total = st.total
	out.LastUpdatedAt = st.updatedAt
	for t, n := range st.byType {
		out.ByType[t] = n
	}
	return out, nil
}

func (s *IndexStore) tenantStats(tenantID string) *tenantStats {
	st, ok := s.stats[tenantID]
	if !ok {
		st = &tenantStats{byType: make(map[entity.Type]int64)}
		s.stats[tenantID] = st
	}
	return st
}
