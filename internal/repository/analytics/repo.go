// Package analytics keeps a bounded per-tenant log of executed queries and a
// frequency aggregate over the log's current contents.
package analytics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/entsearch/internal/db"
	"github.com/kailas-cloud/entsearch/internal/domain"
	domanalytics "github.com/kailas-cloud/entsearch/internal/domain/analytics"
)

// KEYS: log, freq. ARGV: query, cap. Returns the number of evicted entries.
var recordScript = db.NewScript("analytics_record", `
redis.call('LPUSH', KEYS[1], ARGV[1])
redis.call('ZINCRBY', KEYS[2], 1, ARGV[1])
local cap = tonumber(ARGV[2])
local evicted = 0
while redis.call('LLEN', KEYS[1]) > cap do
  local old = redis.call('RPOP', KEYS[1])
  if not old then break end
  local n = tonumber(redis.call('ZINCRBY', KEYS[2], -1, old))
  if n <= 0 then
    redis.call('ZREM', KEYS[2], old)
  end
  evicted = evicted + 1
end
return evicted
`)

// store is the consumer interface for analytics (ISP).
type store interface {
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]db.ZMember, error)
	RunScript(ctx context.Context, script *db.Script, keys, args []string) (int64, error)
}

// Repo implements the analytics log.
type Repo struct {
	store  store
	logCap int
}

// New creates an analytics repository keeping at most logCap queries per tenant.
func New(s store, logCap int) *Repo {
	if logCap <= 0 {
		logCap = domanalytics.DefaultLogCap
	}
	return &Repo{store: s, logCap: logCap}
}

// Record appends a normalized query to the tenant's log.
func (r *Repo) Record(ctx context.Context, tenantID, query string) error {
	keys := []string{logKey(tenantID), freqKey(tenantID)}
	if _, err := r.store.RunScript(ctx, recordScript, keys, []string{query, strconv.Itoa(r.logCap)}); err != nil {
		return fmt.Errorf("%w: record query: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Popular returns the most frequent queries in the log, highest count first.
func (r *Repo) Popular(ctx context.Context, tenantID string, limit int) ([]domanalytics.PopularQuery, error) {
	if limit <= 0 {
		return nil, nil
	}
	key := freqKey(tenantID)
	zs, err := r.store.ZRevRangeWithScores(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, fmt.Errorf("%w: popular %s: %w", domain.ErrStoreUnavailable, key, err)
	}

	out := make([]domanalytics.PopularQuery, 0, len(zs))
	for _, z := range zs {
		if z.Score <= 0 {
			continue
		}
		out = append(out, domanalytics.PopularQuery{Query: z.Member, Count: int64(z.Score)})
	}
	return out, nil
}

func logKey(tenantID string) string {
	return domain.TenantKey(tenantID, "analytics", "log")
}

func freqKey(tenantID string) string {
	return domain.TenantKey(tenantID, "analytics", "freq")
}
