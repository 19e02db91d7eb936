// Package index stores indexed entities in Redis: one recency-ordered
// membership sorted set per tenant and type, one hash per entity, and one
// stats hash per tenant. Writes run as Lua scripts so that membership, field
// data and counters change together.
package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/entsearch/internal/db"
	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	"github.com/kailas-cloud/entsearch/internal/domain/stats"
)

// fetchChunk bounds the number of hashes read per pipelined round-trip.
const fetchChunk = 500

// pruneBatch bounds the number of stale members fetched per prune round.
const pruneBatch = 500

// store is the consumer interface for the index (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HMGetMulti(ctx context.Context, keys []string, fields ...string) ([]map[string]string, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]db.ZMember, error)
	ZRangeByScore(ctx context.Context, key, minScore, maxScore string, count int64) ([]string, error)
	RunScript(ctx context.Context, script *db.Script, keys, args []string) (int64, error)
}

// Repo implements the index store used by the indexer and the query engine.
type Repo struct {
	store store
	now   func() time.Time
}

// New creates an index repository.
func New(s store) *Repo {
	return &Repo{store: s, now: time.Now}
}

// Put writes or overwrites an entity. Returns true if it was not indexed before.
func (r *Repo) Put(ctx context.Context, e *entity.IndexedEntity) (bool, error) {
	args, err := entityToArgs(e)
	if err != nil {
		return false, err
	}

	keys := entityKeys(e.TenantID(), e.Type(), e.ID())
	scriptArgs := append([]string{
		e.ID(),
		strconv.FormatInt(e.IndexedAt().UnixMilli(), 10),
		string(e.Type()),
	}, args...)

	added, err := r.store.RunScript(ctx, putScript, keys, scriptArgs)
	if err != nil {
		return false, fmt.Errorf("%w: put %s: %w", domain.ErrStoreUnavailable, keys[1], err)
	}
	return added == 1, nil
}

// Delete removes an entity. Returns true if it was indexed.
func (r *Repo) Delete(ctx context.Context, tenantID string, t entity.Type, id string) (bool, error) {
	keys := entityKeys(tenantID, t, id)
	args := []string{id, string(t), r.nowMillis()}

	removed, err := r.store.RunScript(ctx, removeScript, keys, args)
	if err != nil {
		return false, fmt.Errorf("%w: remove %s: %w", domain.ErrStoreUnavailable, keys[1], err)
	}
	return removed == 1, nil
}

// PruneBefore removes every member of a type indexed before cutoff.
// Returns the number of removed entities.
func (r *Repo) PruneBefore(ctx context.Context, tenantID string, t entity.Type, cutoff time.Time) (int, error) {
	members := membersKey(tenantID, t)
	maxScore := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	cutoffArg := strconv.FormatInt(cutoff.UnixMilli(), 10)

	pruned := 0
	for {
		ids, err := r.store.ZRangeByScore(ctx, members, "-inf", maxScore, pruneBatch)
		if err != nil {
			return pruned, fmt.Errorf("%w: prune scan %s: %w", domain.ErrStoreUnavailable, members, err)
		}
		if len(ids) == 0 {
			return pruned, nil
		}

		progressed := false
		for _, id := range ids {
			keys := entityKeys(tenantID, t, id)
			n, err := r.store.RunScript(ctx, pruneScript, keys, []string{id, string(t), r.nowMillis(), cutoffArg})
			if err != nil {
				return pruned, fmt.Errorf("%w: prune %s: %w", domain.ErrStoreUnavailable, keys[1], err)
			}
			if n == 1 {
				pruned++
				progressed = true
			}
		}
		if !progressed {
			return pruned, nil
		}
	}
}

// Members returns up to limit members of a type starting at rank offset,
// most recently indexed first.
func (r *Repo) Members(ctx context.Context, tenantID string, t entity.Type, offset, limit int) ([]entity.Member, error) {
	if limit <= 0 || offset < 0 {
		return nil, nil
	}
	key := membersKey(tenantID, t)
	zs, err := r.store.ZRevRangeWithScores(ctx, key, int64(offset), int64(offset+limit-1))
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", domain.ErrStoreUnavailable, key, err)
	}

	out := make([]entity.Member, len(zs))
	for i, z := range zs {
		out[i] = entity.Member{ID: z.Member, IndexedAt: time.UnixMilli(int64(z.Score))}
	}
	return out, nil
}

// Texts returns the searchable text for each id, aligned with ids.
// An entity removed since the membership scan yields an empty string.
func (r *Repo) Texts(ctx context.Context, tenantID string, t entity.Type, ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for start := 0; start < len(ids); start += fetchChunk {
		end := min(start+fetchChunk, len(ids))

		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, docKey(tenantID, t, id))
		}

		rows, err := r.store.HMGetMulti(ctx, keys, fieldText)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch texts %s: %w", domain.ErrStoreUnavailable, t, err)
		}
		for i := range keys {
			var text string
			if i < len(rows) && rows[i] != nil {
				text = rows[i][fieldText]
			}
			out = append(out, text)
		}
	}
	return out, nil
}

// Docs loads full entities for refs, aligned with refs. Entities that vanished
// since the scan are returned as nil.
func (r *Repo) Docs(ctx context.Context, tenantID string, refs []entity.Ref) ([]*entity.IndexedEntity, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = docKey(tenantID, ref.Type, ref.ID)
	}

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch docs: %w", domain.ErrStoreUnavailable, err)
	}

	out := make([]*entity.IndexedEntity, len(refs))
	for i, ref := range refs {
		if i >= len(rows) {
			break
		}
		e, ok := entityFromHash(tenantID, ref.Type, ref.ID, rows[i])
		if ok {
			out[i] = &e
		}
	}
	return out, nil
}

// Stats reads the tenant's counters.
func (r *Repo) Stats(ctx context.Context, tenantID string) (stats.IndexStats, error) {
	key := statsKey(tenantID)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return stats.IndexStats{}, fmt.Errorf("%w: stats %s: %w", domain.ErrStoreUnavailable, key, err)
	}

	s := stats.Empty()
	for field, value := range m {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == "total":
			s.Total = n
		case field == "updated_at":
			s.LastUpdatedAt = time.UnixMilli(n)
		case strings.HasPrefix(field, "count:"):
			s.ByType[entity.Type(strings.TrimPrefix(field, "count:"))] = n
		}
	}
	return s, nil
}

func (r *Repo) nowMillis() string {
	return strconv.FormatInt(r.now().UnixMilli(), 10)
}

func membersKey(tenantID string, t entity.Type) string {
	return domain.TenantKey(tenantID, string(t), "members")
}

func docKey(tenantID string, t entity.Type, id string) string {
	return domain.TenantKey(tenantID, string(t), "doc", id)
}

func statsKey(tenantID string) string {
	return domain.TenantKey(tenantID, "stats")
}

func entityKeys(tenantID string, t entity.Type, id string) []string {
	return []string{membersKey(tenantID, t), docKey(tenantID, t, id), statsKey(tenantID)}
}
