// Package job persists reindex job records and the per-tenant active-job lock.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/entsearch/internal/db"
	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/reindex"
)

// RecordTTL is how long finished job records stay readable.
const RecordTTL = 7 * 24 * time.Hour

// KEYS: lock. ARGV: jobID. Deletes the lock only if jobID holds it.
var releaseScript = db.NewScript("job_lock_release", `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// KEYS: lock. ARGV: jobID, ttlMs. Extends the lock only if jobID holds it.
var refreshScript = db.NewScript("job_lock_refresh", `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// store is the consumer interface for job records (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	RunScript(ctx context.Context, script *db.Script, keys, args []string) (int64, error)
}

// Repo implements reindex job persistence.
type Repo struct {
	store store
}

// New creates a job repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save writes the job record.
func (r *Repo) Save(ctx context.Context, j *reindex.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	key := jobKey(j.TenantID, j.ID)
	if err := r.store.SetWithTTL(ctx, key, data, RecordTTL); err != nil {
		return fmt.Errorf("%w: save job %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Get loads a job of the tenant.
func (r *Repo) Get(ctx context.Context, tenantID, jobID string) (*reindex.Job, error) {
	key := jobKey(tenantID, jobID)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("%w: get job %s: %w", domain.ErrStoreUnavailable, key, err)
	}

	var j reindex.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", key, err)
	}
	return &j, nil
}

// AcquireLock claims the tenant's active-job slot for jobID.
// Returns false if another job holds it.
func (r *Repo) AcquireLock(ctx context.Context, tenantID, jobID string, ttl time.Duration) (bool, error) {
	key := lockKey(tenantID)
	ok, err := r.store.SetNX(ctx, key, []byte(jobID), ttl)
	if err != nil {
		return false, fmt.Errorf("%w: lock %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return ok, nil
}

// ActiveJobID returns the job holding the tenant's lock, or "" if none.
func (r *Repo) ActiveJobID(ctx context.Context, tenantID string) (string, error) {
	key := lockKey(tenantID)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: read lock %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return string(data), nil
}

// RefreshLock extends the lock if jobID still holds it.
func (r *Repo) RefreshLock(ctx context.Context, tenantID, jobID string, ttl time.Duration) (bool, error) {
	key := lockKey(tenantID)
	n, err := r.store.RunScript(ctx, refreshScript, []string{key}, []string{jobID, fmt.Sprint(ttl.Milliseconds())})
	if err != nil {
		return false, fmt.Errorf("%w: refresh lock %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return n == 1, nil
}

// ReleaseLock frees the lock if jobID holds it.
func (r *Repo) ReleaseLock(ctx context.Context, tenantID, jobID string) error {
	key := lockKey(tenantID)
	if _, err := r.store.RunScript(ctx, releaseScript, []string{key}, []string{jobID}); err != nil {
		return fmt.Errorf("%w: release lock %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

func jobKey(tenantID, jobID string) string {
	return domain.TenantKey(tenantID, "reindex", "job", jobID)
}

func lockKey(tenantID string) string {
	return domain.TenantKey(tenantID, "reindex", "active")
}
