package stats

import (
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// IndexStats is the per-tenant aggregate derived from store counters.
type IndexStats struct {
	Total         int64
	ByType        map[entity.Type]int64
	LastUpdatedAt time.Time
}

// Empty returns zeroed stats with every registered type present.
func Empty() IndexStats {
	s := IndexStats{ByType: make(map[entity.Type]int64, len(entity.Types()))}
	for _, t := range entity.Types() {
		s.ByType[t] = 0
	}
	return s
}
