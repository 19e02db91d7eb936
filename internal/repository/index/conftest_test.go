package index

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/entsearch/internal/db"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hgetAllFn      func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	hmgetMultiFn   func(ctx context.Context, keys []string, fields ...string) ([]map[string]string, error)
	zrevRangeFn    func(ctx context.Context, key string, start, stop int64) ([]db.ZMember, error)
	zrangeByFn     func(ctx context.Context, key, minScore, maxScore string, count int64) ([]string, error)
	runScriptFn    func(ctx context.Context, script *db.Script, keys, args []string) (int64, error)
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) HMGetMulti(ctx context.Context, keys []string, fields ...string) ([]map[string]string, error) {
	if m.hmgetMultiFn != nil {
		return m.hmgetMultiFn(ctx, keys, fields...)
	}
	return make([]map[string]string, len(keys)), nil
}

func (m *mockStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]db.ZMember, error) {
	if m.zrevRangeFn != nil {
		return m.zrevRangeFn(ctx, key, start, stop)
	}
	return nil, nil
}

func (m *mockStore) ZRangeByScore(ctx context.Context, key, minScore, maxScore string, count int64) ([]string, error) {
	if m.zrangeByFn != nil {
		return m.zrangeByFn(ctx, key, minScore, maxScore, count)
	}
	return nil, nil
}

func (m *mockStore) RunScript(ctx context.Context, script *db.Script, keys, args []string) (int64, error) {
	if m.runScriptFn != nil {
		return m.runScriptFn(ctx, script, keys, args)
	}
	return 0, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms)
	repo.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return repo, ms
}

func testEntity(t *testing.T) entity.IndexedEntity {
	t.Helper()
	amount := 1250.0
	e, err := entity.New("T1", entity.Invoice, "INV-100", "invoice acme corp 1250 eur",
		entity.Metadata{
			Title:    "Invoice INV-100",
			Subtitle: "Acme Corp",
			URL:      "/invoices/INV-100",
			Amount:   &amount,
			Currency: "EUR",
			Fields:   map[string]string{"number": "INV-100"},
		},
		time.UnixMilli(1700000000000),
	)
	if err != nil {
		t.Fatalf("entity.New: %v", err)
	}
	return e
}
