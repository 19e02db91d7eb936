// Package indexer owns writes to the index: it projects raw entities into
// searchable text and metadata and keeps the per-tenant stats in step.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/entsearch/internal/domain"
	dombatch "github.com/kailas-cloud/entsearch/internal/domain/batch"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/domain/stats"
	"github.com/kailas-cloud/entsearch/internal/metrics"
	"github.com/kailas-cloud/entsearch/internal/projection"
	"github.com/kailas-cloud/entsearch/internal/source"
)

// Service indexes and removes entities.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// New creates an indexer service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Index projects raw and writes it, overwriting any prior version.
// Storage errors propagate so the lifecycle caller can retry.
func (s *Service) Index(ctx context.Context, tenantID string, t entity.Type, id string, raw entity.Raw) error {
	if err := validateRef(tenantID, t, id); err != nil {
		return err
	}

	p, err := projection.Project(t, id, raw)
	if err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("index", string(t), "error").Inc()
		return err
	}

	e, err := entity.New(tenantID, t, id, p.Text, p.Metadata, s.now())
	if err != nil {
		return err
	}

	created, err := s.repo.Put(ctx, &e)
	if err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("index", string(t), "error").Inc()
		return fmt.Errorf("index %s/%s: %w", t, id, err)
	}

	outcome := "updated"
	if created {
		outcome = "created"
	}
	metrics.IndexOperationsTotal.WithLabelValues("index", string(t), outcome).Inc()
	return nil
}

// Remove deletes an entity from the index. Removing an unknown entity is a no-op.
func (s *Service) Remove(ctx context.Context, tenantID string, t entity.Type, id string) error {
	if err := validateRef(tenantID, t, id); err != nil {
		return err
	}

	removed, err := s.repo.Delete(ctx, tenantID, t, id)
	if err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("remove", string(t), "error").Inc()
		return fmt.Errorf("remove %s/%s: %w", t, id, err)
	}

	outcome := "noop"
	if removed {
		outcome = "removed"
	}
	metrics.IndexOperationsTotal.WithLabelValues("remove", string(t), outcome).Inc()
	return nil
}

// ReindexBatch indexes records independently. A malformed record never aborts
// the batch; every failure is reported in the outcome.
func (s *Service) ReindexBatch(
	ctx context.Context, tenantID string, t entity.Type, records []source.Record,
) dombatch.Outcome {
	results := make([]dombatch.Result, len(records))
	for i, rec := range records {
		if rec.Err != nil {
			results[i] = dombatch.NewError(rec.ID, rec.Err)
			continue
		}
		if err := s.Index(ctx, tenantID, t, rec.ID, rec.Raw); err != nil {
			results[i] = dombatch.NewError(rec.ID, err)
			continue
		}
		results[i] = dombatch.NewOK(rec.ID)
	}

	out := dombatch.NewOutcome(results)
	if out.Failed > 0 {
		s.logger.Debug("Reindex batch had failures",
			zap.String("tenant", tenantID),
			zap.String("type", string(t)),
			zap.Int("indexed", out.Indexed),
			zap.Int("failed", out.Failed),
		)
	}
	return out
}

// PruneBefore removes entities of a type indexed before cutoff.
func (s *Service) PruneBefore(ctx context.Context, tenantID string, t entity.Type, cutoff time.Time) (int, error) {
	n, err := s.repo.PruneBefore(ctx, tenantID, t, cutoff)
	if err != nil {
		return n, fmt.Errorf("prune %s: %w", t, err)
	}
	return n, nil
}

// Stats returns the tenant's index counters.
func (s *Service) Stats(ctx context.Context, tenantID string) (stats.IndexStats, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return stats.IndexStats{}, err
	}
	st, err := s.repo.Stats(ctx, tenantID)
	if err != nil {
		return stats.IndexStats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// IsStoreFailure reports whether a batch failure came from the store rather than the entity.
func IsStoreFailure(err error) bool {
	return errors.Is(err, domain.ErrStoreUnavailable)
}

func validateRef(tenantID string, t entity.Type, id string) error {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return err
	}
	if !t.IsValid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidEntityType, t)
	}
	return entity.ValidateID(id)
}
