package search

import (
	"context"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/usecase/ratelimit"
)

// IndexReader defines the read side of the index store.
type IndexReader interface {
	// Members returns up to limit members starting at rank offset, most recently indexed first.
	Members(ctx context.Context, tenantID string, t entity.Type, offset, limit int) ([]entity.Member, error)
	Texts(ctx context.Context, tenantID string, t entity.Type, ids []string) ([]string, error)
	Docs(ctx context.Context, tenantID string, refs []entity.Ref) ([]*entity.IndexedEntity, error)
}

// RateLimiter bounds per-identity search calls.
type RateLimiter interface {
	Allow(ctx context.Context, identity string) ratelimit.Decision
}

// QueryRecorder receives executed queries. It must not block.
type QueryRecorder interface {
	Record(tenantID, query string)
}
