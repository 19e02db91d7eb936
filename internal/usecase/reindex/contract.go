package reindex

import (
	"context"
	"time"

	dombatch "github.com/kailas-cloud/entsearch/internal/domain/batch"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	domreindex "github.com/kailas-cloud/entsearch/internal/domain/reindex"
	"github.com/kailas-cloud/entsearch/internal/source"
)

// Indexer writes reindexed pages and prunes what the job did not touch.
type Indexer interface {
	ReindexBatch(ctx context.Context, tenantID string, t entity.Type, records []source.Record) dombatch.Outcome
	PruneBefore(ctx context.Context, tenantID string, t entity.Type, cutoff time.Time) (int, error)
}

// JobRepository persists job records and the per-tenant active-job lock.
type JobRepository interface {
	Save(ctx context.Context, j *domreindex.Job) error
	Get(ctx context.Context, tenantID, jobID string) (*domreindex.Job, error)
	AcquireLock(ctx context.Context, tenantID, jobID string, ttl time.Duration) (bool, error)
	ActiveJobID(ctx context.Context, tenantID string) (string, error)
	RefreshLock(ctx context.Context, tenantID, jobID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, tenantID, jobID string) error
}
