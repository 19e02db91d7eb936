package reindex

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	domreindex "github.com/kailas-cloud/entsearch/internal/domain/reindex"
	"github.com/kailas-cloud/entsearch/internal/repository/memory"
	"github.com/kailas-cloud/entsearch/internal/source"
	"github.com/kailas-cloud/entsearch/internal/usecase/indexer"
)

// fakeSource serves records per type with keyset paging.
type fakeSource struct {
	mu          sync.Mutex
	records     map[entity.Type][]source.Record
	failing     map[entity.Type]error
	transient   map[entity.Type]int
	unsupported map[entity.Type]bool
	pingErr     error
	reads       map[entity.Type]int

	// block, when set, holds every read until closed or cancelled.
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		records:     make(map[entity.Type][]source.Record),
		failing:     make(map[entity.Type]error),
		transient:   make(map[entity.Type]int),
		unsupported: make(map[entity.Type]bool),
		reads:       make(map[entity.Type]int),
	}
}

func (f *fakeSource) add(t entity.Type, ids ...string) {
	for _, id := range ids {
		f.records[t] = append(f.records[t], source.Record{ID: id, Raw: rawFor(id)})
	}
	sort.Slice(f.records[t], func(i, j int) bool { return f.records[t][i].ID < f.records[t][j].ID })
}

func (f *fakeSource) ReadPage(
	ctx context.Context, _ string, t entity.Type, cursor string, limit int,
) (source.Page, error) {
	if f.block != nil {
		f.once.Do(func() { close(f.entered) })
		select {
		case <-f.block:
		case <-ctx.Done():
			return source.Page{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[t]++
	if f.unsupported[t] {
		return source.Page{}, source.ErrUnsupportedType
	}
	if err := f.failing[t]; err != nil {
		return source.Page{}, err
	}
	if f.transient[t] > 0 {
		f.transient[t]--
		return source.Page{}, errors.New("connection reset")
	}

	var page source.Page
	for _, r := range f.records[t] {
		if r.ID <= cursor {
			continue
		}
		page.Records = append(page.Records, r)
		if len(page.Records) == limit {
			page.NextCursor = r.ID
			break
		}
	}
	return page, nil
}

func (f *fakeSource) Ping(context.Context) error { return f.pingErr }

func (f *fakeSource) readCount(t entity.Type) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[t]
}

func rawFor(id string) entity.Raw {
	return entity.Raw{"name": "record " + id, "title": "record " + id, "description": "record " + id}
}

type fixture struct {
	svc   *Service
	index *memory.IndexStore
	jobs  *memory.JobStore
}

func newFixture(t *testing.T, src source.Reader, cfg Config) fixture {
	t.Helper()
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	idx := memory.NewIndexStore()
	jobs := memory.NewJobStore()
	svc := New(jobs, indexer.New(idx, zap.NewNop()), src, cfg, zap.NewNop())
	svc.Start()
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return fixture{svc: svc, index: idx, jobs: jobs}
}

func (f fixture) waitFinished(t *testing.T, tenant, jobID string) *domreindex.Job {
	t.Helper()
	var job *domreindex.Job
	require.Eventually(t, func() bool {
		j, err := f.svc.JobStatus(context.Background(), tenant, jobID)
		if err != nil {
			return false
		}
		job = j
		return !j.Active()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func (f fixture) seedStale(t *testing.T, tenant string, typ entity.Type, id string) {
	t.Helper()
	e, err := entity.New(tenant, typ, id, string(typ)+" stale "+id, entity.Metadata{}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = f.index.Put(context.Background(), &e)
	require.NoError(t, err)
}

func (f fixture) ids(t *testing.T, tenant string, typ entity.Type) []string {
	t.Helper()
	members, err := f.index.Members(context.Background(), tenant, typ, 0, 1000)
	require.NoError(t, err)
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.ID)
	}
	sort.Strings(out)
	return out
}

func TestStartReindex_CompletesAndPrunes(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Invoice, "INV-1", "INV-2", "INV-3")
	src.add(entity.Client, "C-1")
	f := newFixture(t, src, Config{PageSize: 2})
	f.seedStale(t, "T1", entity.Invoice, "INV-DELETED")
	f.seedStale(t, "T1", entity.Client, "C-1")

	jobID, started, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	assert.True(t, started)
	require.NotEmpty(t, jobID)

	job := f.waitFinished(t, "T1", jobID)
	assert.Equal(t, domreindex.StatusCompleted, job.Status)
	assert.Empty(t, job.Errors)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.FinishedAt)

	inv := job.Progress[entity.Invoice]
	assert.Equal(t, 2, inv.Pages)
	assert.Equal(t, 3, inv.Indexed)
	assert.Equal(t, 1, inv.Pruned)
	assert.True(t, inv.Done)
	assert.Equal(t, 0, job.Progress[entity.Client].Pruned, "re-read client is fresh")

	assert.Equal(t, []string{"INV-1", "INV-2", "INV-3"}, f.ids(t, "T1", entity.Invoice))
	assert.Equal(t, []string{"C-1"}, f.ids(t, "T1", entity.Client))

	active, err := f.jobs.ActiveJobID(context.Background(), "T1")
	require.NoError(t, err)
	assert.Empty(t, active, "lock released")
}

func TestStartReindex_PruneKeepsEntitiesWithinSkew(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Invoice, "INV-1")
	f := newFixture(t, src, Config{PruneSkew: time.Minute})
	f.seedStale(t, "T1", entity.Invoice, "INV-OLD")

	// Written by a replica whose clock runs behind the one starting the job.
	e, err := entity.New("T1", entity.Invoice, "INV-SKEWED", "invoice skewed", entity.Metadata{}, time.Now().Add(-10*time.Second))
	require.NoError(t, err)
	_, err = f.index.Put(context.Background(), &e)
	require.NoError(t, err)

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Equal(t, domreindex.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Progress[entity.Invoice].Pruned)
	assert.Equal(t, []string{"INV-1", "INV-SKEWED"}, f.ids(t, "T1", entity.Invoice))
}

func TestStartReindex_CoalescesActiveJob(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Invoice, "INV-1")
	src.block = make(chan struct{})
	src.entered = make(chan struct{})
	f := newFixture(t, src, Config{})
	ctx := context.Background()

	first, started, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	require.True(t, started)
	<-src.entered

	second, started, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, first, second)

	other, started, err := f.svc.StartReindex(ctx, "T2")
	require.NoError(t, err)
	assert.True(t, started, "tenants do not share the lock")
	assert.NotEqual(t, first, other)

	close(src.block)
	assert.Equal(t, domreindex.StatusCompleted, f.waitFinished(t, "T1", first).Status)
	assert.Equal(t, domreindex.StatusCompleted, f.waitFinished(t, "T2", other).Status)
}

func TestStartReindex_NewJobAfterCompletion(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Client, "C-1")
	f := newFixture(t, src, Config{})
	ctx := context.Background()

	first, _, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	f.waitFinished(t, "T1", first)

	second, started, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.NotEqual(t, first, second)
	f.waitFinished(t, "T1", second)
}

func TestStartReindex_ReleasesStaleLock(t *testing.T) {
	f := newFixture(t, newFakeSource(), Config{})
	ctx := context.Background()

	done := domreindex.New("old-job", "T1", 0, time.Now())
	require.NoError(t, done.Start(time.Now()))
	require.NoError(t, done.Complete(time.Now()))
	require.NoError(t, f.jobs.Save(ctx, done))
	ok, err := f.jobs.AcquireLock(ctx, "T1", "old-job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	jobID, started, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, started)
	assert.NotEqual(t, "old-job", jobID)
	f.waitFinished(t, "T1", jobID)
}

func TestJobStatus_FailsJobWithoutWorker(t *testing.T) {
	f := newFixture(t, newFakeSource(), Config{})
	ctx := context.Background()

	crashed := domreindex.New("crashed-job", "T1", 0, time.Now().Add(-time.Hour))
	require.NoError(t, crashed.Start(time.Now().Add(-time.Hour)))
	require.NoError(t, f.jobs.Save(ctx, crashed))

	jobID, started, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, started)
	f.waitFinished(t, "T1", jobID)

	job, err := f.svc.JobStatus(ctx, "T1", "crashed-job")
	require.NoError(t, err)
	assert.Equal(t, domreindex.StatusFailed, job.Status)
	assert.Equal(t, reasonAbandoned, job.FailureReason)
	assert.NotNil(t, job.FinishedAt)

	stored, err := f.jobs.Get(ctx, "T1", "crashed-job")
	require.NoError(t, err)
	assert.Equal(t, domreindex.StatusFailed, stored.Status)
}

func TestJobStatus_KeepsJobHoldingLock(t *testing.T) {
	f := newFixture(t, newFakeSource(), Config{})
	ctx := context.Background()

	remote := domreindex.New("remote-job", "T1", 0, time.Now())
	require.NoError(t, remote.Start(time.Now()))
	require.NoError(t, f.jobs.Save(ctx, remote))
	ok, err := f.jobs.AcquireLock(ctx, "T1", "remote-job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	job, err := f.svc.JobStatus(ctx, "T1", "remote-job")
	require.NoError(t, err)
	assert.Equal(t, domreindex.StatusRunning, job.Status)
}

func TestReindex_TypeReadFailureIsRecorded(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Client, "C-1")
	src.failing[entity.Invoice] = errors.New("relation does not exist")
	f := newFixture(t, src, Config{MaxPageRetries: 2})
	f.seedStale(t, "T1", entity.Invoice, "INV-OLD")

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Equal(t, domreindex.StatusCompleted, job.Status)
	assert.Contains(t, job.Progress[entity.Invoice].Error, "relation does not exist")
	assert.False(t, job.Progress[entity.Invoice].Done)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, 3, src.readCount(entity.Invoice), "initial read plus retries")
	assert.Equal(t, []string{"INV-OLD"}, f.ids(t, "T1", entity.Invoice), "failed type is not pruned")
	assert.Equal(t, []string{"C-1"}, f.ids(t, "T1", entity.Client))
}

func TestReindex_AllTypesFail(t *testing.T) {
	src := newFakeSource()
	for _, typ := range entity.Types() {
		src.failing[typ] = errors.New("timeout")
	}
	f := newFixture(t, src, Config{MaxPageRetries: 0})

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Equal(t, domreindex.StatusFailed, job.Status)
	assert.Equal(t, reasonAllFailed, job.FailureReason)
	assert.Len(t, job.Errors, len(entity.Types()))
}

func TestReindex_PingFailure(t *testing.T) {
	src := newFakeSource()
	src.pingErr = errors.New("dial tcp: connection refused")
	f := newFixture(t, src, Config{})

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Equal(t, domreindex.StatusFailed, job.Status)
	assert.Equal(t, reasonSourceDown, job.FailureReason)
	assert.Equal(t, 0, src.readCount(entity.Invoice))
}

func TestReindex_TransientReadRetried(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Expense, "E-1", "E-2")
	src.transient[entity.Expense] = 2
	f := newFixture(t, src, Config{MaxPageRetries: 3})

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Equal(t, domreindex.StatusCompleted, job.Status)
	assert.Empty(t, job.Errors)
	assert.Equal(t, 2, job.Progress[entity.Expense].Indexed)
	assert.Equal(t, 3, src.readCount(entity.Expense))
}

func TestReindex_UnsupportedTypeSkipped(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Client, "C-1")
	src.unsupported[entity.Report] = true
	f := newFixture(t, src, Config{MaxPageRetries: 3})
	f.seedStale(t, "T1", entity.Report, "R-OLD")

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Equal(t, domreindex.StatusCompleted, job.Status)
	assert.True(t, job.Progress[entity.Report].Skipped)
	assert.Equal(t, 1, src.readCount(entity.Report), "unsupported type is not retried")
	assert.Equal(t, []string{"R-OLD"}, f.ids(t, "T1", entity.Report), "skipped type is not pruned")
}

func TestReindex_MalformedRecordsCounted(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Employee, "EMP-1")
	src.records[entity.Employee] = append(src.records[entity.Employee],
		source.Record{ID: "EMP-2", Err: errors.New("invalid json")},
		source.Record{ID: "EMP-3", Raw: entity.Raw{}},
	)
	f := newFixture(t, src, Config{})

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Equal(t, domreindex.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.Progress[entity.Employee].Indexed)
	assert.Equal(t, 2, job.Progress[entity.Employee].Failed)
	require.Len(t, job.Errors, 2)
	assert.Contains(t, job.Errors[0], "employee/EMP-2")
}

func TestReindex_ErrorListCapped(t *testing.T) {
	src := newFakeSource()
	for _, id := range []string{"A", "B", "C", "D"} {
		src.records[entity.Client] = append(src.records[entity.Client], source.Record{ID: id, Err: errors.New("bad")})
	}
	f := newFixture(t, src, Config{MaxErrors: 2})

	jobID, _, err := f.svc.StartReindex(context.Background(), "T1")
	require.NoError(t, err)
	job := f.waitFinished(t, "T1", jobID)

	assert.Len(t, job.Errors, 2)
	assert.Equal(t, 2, job.DroppedErrors)
}

func TestShutdown_CancelsRunningJob(t *testing.T) {
	src := newFakeSource()
	src.add(entity.Invoice, "INV-1")
	src.block = make(chan struct{})
	src.entered = make(chan struct{})
	f := newFixture(t, src, Config{})
	ctx := context.Background()

	jobID, _, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	<-src.entered

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(shutdownCtx))

	job, err := f.svc.JobStatus(ctx, "T1", jobID)
	require.NoError(t, err)
	assert.Equal(t, domreindex.StatusFailed, job.Status)
	assert.Equal(t, reasonCancelled, job.FailureReason)

	active, err := f.jobs.ActiveJobID(ctx, "T1")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, _, err = f.svc.StartReindex(ctx, "T1")
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
}

func TestShutdown_AbandonsQueuedJobs(t *testing.T) {
	jobs := memory.NewJobStore()
	src := newFakeSource()
	svc := New(jobs, indexer.New(memory.NewIndexStore(), zap.NewNop()), src, Config{}, zap.NewNop())
	ctx := context.Background()

	jobID, started, err := svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	require.True(t, started)

	require.NoError(t, svc.Shutdown(ctx))

	job, err := svc.JobStatus(ctx, "T1", jobID)
	require.NoError(t, err)
	assert.Equal(t, domreindex.StatusFailed, job.Status)
	active, err := jobs.ActiveJobID(ctx, "T1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStartReindex_QueueFull(t *testing.T) {
	jobs := memory.NewJobStore()
	svc := New(jobs, indexer.New(memory.NewIndexStore(), zap.NewNop()), newFakeSource(), Config{QueueSize: 1}, zap.NewNop())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	ctx := context.Background()

	_, _, err := svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	_, _, err = svc.StartReindex(ctx, "T2")
	require.ErrorIs(t, err, domain.ErrReindexBusy)

	active, err := jobs.ActiveJobID(ctx, "T2")
	require.NoError(t, err)
	assert.Empty(t, active, "rejected job releases its lock")
}

func TestJobStatus_TenantScoped(t *testing.T) {
	src := newFakeSource()
	f := newFixture(t, src, Config{})
	ctx := context.Background()

	jobID, _, err := f.svc.StartReindex(ctx, "T1")
	require.NoError(t, err)
	f.waitFinished(t, "T1", jobID)

	_, err = f.svc.JobStatus(ctx, "T2", jobID)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = f.svc.JobStatus(ctx, "T1", "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
	_, err = f.svc.JobStatus(ctx, "", jobID)
	assert.ErrorIs(t, err, domain.ErrTenantRequired)
}

func TestStartReindex_Validation(t *testing.T) {
	ctx := context.Background()

	noSource := New(memory.NewJobStore(), indexer.New(memory.NewIndexStore(), zap.NewNop()), nil, Config{}, zap.NewNop())
	_, _, err := noSource.StartReindex(ctx, "T1")
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)

	f := newFixture(t, newFakeSource(), Config{})
	_, _, err = f.svc.StartReindex(ctx, "")
	assert.ErrorIs(t, err, domain.ErrTenantRequired)
}
