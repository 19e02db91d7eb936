package indexer

import (
	"context"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/domain/stats"
)

// Repository is the index store as seen by the indexer.
type Repository interface {
	Put(ctx context.Context, e *entity.IndexedEntity) (created bool, err error)
	Delete(ctx context.Context, tenantID string, t entity.Type, id string) (removed bool, err error)
	PruneBefore(ctx context.Context, tenantID string, t entity.Type, cutoff time.Time) (int, error)
	Stats(ctx context.Context, tenantID string) (stats.IndexStats, error)
}
