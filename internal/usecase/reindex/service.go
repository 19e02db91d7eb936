// Package reindex rebuilds a tenant's index from the system of record.
//
// Jobs run on an in-process worker pool. A per-tenant lock in the store keeps
// at most one active job per tenant across replicas; a second request while a
// job is QUEUED or RUNNING returns the existing job id.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/entity"
	domreindex "github.com/kailas-cloud/entsearch/internal/domain/reindex"
	"github.com/kailas-cloud/entsearch/internal/metrics"
	"github.com/kailas-cloud/entsearch/internal/source"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultWorkers        = 2
	DefaultPageSize       = 200
	DefaultMaxPageRetries = 3
	DefaultRetryBaseDelay = 200 * time.Millisecond
	DefaultReadsPerSecond = 20.0
	DefaultLockTTL        = 2 * time.Minute
	DefaultQueueSize      = 64
	DefaultPruneSkew      = 5 * time.Second
)

// Failure reasons stored on FAILED jobs.
const (
	reasonCancelled   = "cancelled"
	reasonLockLost    = "active job lock lost"
	reasonAllFailed   = "every entity type failed to read"
	reasonSourceDown  = "system of record unavailable"
	reasonStoreFailed = "index store unavailable"
	reasonAbandoned   = "abandoned: worker stopped without finishing"
)

var errLockLost = errors.New("lock lost")

// Config tunes the worker pool and the source read path.
type Config struct {
	Workers        int
	PageSize       int
	MaxPageRetries int
	RetryBaseDelay time.Duration
	// ReadsPerSecond throttles page reads across all workers. Zero disables throttling.
	ReadsPerSecond float64
	LockTTL        time.Duration
	MaxErrors      int
	QueueSize      int
	// PruneSkew is subtracted from the job start before pruning, covering clock
	// drift between replicas that stamp index times.
	PruneSkew time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPageRetries < 0 {
		c.MaxPageRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = domreindex.DefaultMaxErrors
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.PruneSkew <= 0 {
		c.PruneSkew = DefaultPruneSkew
	}
	return c
}

type task struct {
	tenantID string
	jobID    string
}

// Service schedules and runs reindex jobs.
type Service struct {
	jobs    JobRepository
	indexer Indexer
	src     source.Reader
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	queue  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	local   map[string]struct{} // job ids queued or running in this process
}

// New creates a reindex service. src may be nil when no system of record is
// configured; StartReindex then fails with ErrSourceUnavailable.
func New(jobs JobRepository, idx Indexer, src source.Reader, cfg Config, logger *zap.Logger) *Service {
	cfg = cfg.withDefaults()
	limit := rate.Inf
	if cfg.ReadsPerSecond > 0 {
		limit = rate.Limit(cfg.ReadsPerSecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		jobs:    jobs,
		indexer: idx,
		src:     src,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		now:     time.Now,
		queue:   make(chan task, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		local:   make(map[string]struct{}),
	}
}

// Start launches the worker pool. Calling it twice is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("Reindex workers started", zap.Int("workers", s.cfg.Workers))
}

// StartReindex schedules a reindex for the tenant. When the tenant already has
// an active job, its id is returned with started=false.
func (s *Service) StartReindex(ctx context.Context, tenantID string) (string, bool, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return "", false, err
	}
	if s.src == nil {
		return "", false, fmt.Errorf("%w: no source configured", domain.ErrSourceUnavailable)
	}
	if s.isClosed() {
		return "", false, domain.ErrShuttingDown
	}

	if id, ok, err := s.activeJob(ctx, tenantID); err != nil || ok {
		return id, false, err
	}

	job := domreindex.New(uuid.NewString(), tenantID, s.cfg.MaxErrors, s.now())
	if err := s.jobs.Save(ctx, job); err != nil {
		return "", false, fmt.Errorf("save job: %w", err)
	}

	acquired, err := s.jobs.AcquireLock(ctx, tenantID, job.ID, s.cfg.LockTTL)
	if err != nil {
		s.discard(job, "lock acquire failed")
		return "", false, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		// Another request won the race; coalesce onto its job.
		s.discard(job, "superseded by concurrent request")
		id, ok, err := s.activeJob(ctx, tenantID)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "", false, fmt.Errorf("%w: active job lock contended", domain.ErrReindexBusy)
		}
		return id, false, nil
	}

	if err := s.enqueue(task{tenantID: tenantID, jobID: job.ID}); err != nil {
		s.discard(job, err.Error())
		bg := context.WithoutCancel(ctx)
		if rerr := s.jobs.ReleaseLock(bg, tenantID, job.ID); rerr != nil {
			s.logger.Warn("Release reindex lock failed", zap.String("job_id", job.ID), zap.Error(rerr))
		}
		return "", false, err
	}

	s.logger.Info("Reindex job queued",
		zap.String("tenant", tenantID),
		zap.String("job_id", job.ID),
	)
	return job.ID, true, nil
}

// JobStatus returns the tenant's job record.
func (s *Service) JobStatus(ctx context.Context, tenantID, jobID string) (*domreindex.Job, error) {
	if err := domain.ValidateTenant(tenantID); err != nil {
		return nil, err
	}
	if jobID == "" {
		return nil, domain.ErrJobNotFound
	}
	j, err := s.jobs.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if err := s.reconcile(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// reconcile fails an active job that no worker owns any more: it is not queued
// or running here and the tenant lock no longer names it. Such a job belonged
// to a process that died; a new request starts over from the first page.
func (s *Service) reconcile(ctx context.Context, j *domreindex.Job) error {
	if !j.Active() || s.isLocal(j.ID) {
		return nil
	}
	holder, err := s.jobs.ActiveJobID(ctx, j.TenantID)
	if err != nil {
		return fmt.Errorf("active job: %w", err)
	}
	if holder == j.ID {
		return nil
	}
	_ = j.Fail(reasonAbandoned, s.now())
	if err := s.jobs.Save(context.WithoutCancel(ctx), j); err != nil {
		return fmt.Errorf("save abandoned job: %w", err)
	}
	metrics.ReindexJobsTotal.WithLabelValues(string(domreindex.StatusFailed)).Inc()
	s.logger.Warn("Reindex job abandoned by its worker",
		zap.String("tenant", j.TenantID),
		zap.String("job_id", j.ID),
	)
	return nil
}

// Shutdown stops accepting jobs, cancels running ones between pages and waits
// for the workers. Queued jobs are marked FAILED and their locks released.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	close(s.queue)
	s.mu.Unlock()

	s.cancel()
	if !started {
		// Nothing drains the queue; abandon what is left here.
		for t := range s.queue {
			s.abandon(t)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reindex shutdown: %w", ctx.Err())
	}
}

func (s *Service) isLocal(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.local[jobID]
	return ok
}

func (s *Service) forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.local, jobID)
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) enqueue(t task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrShuttingDown
	}
	select {
	case s.queue <- t:
		s.local[t.jobID] = struct{}{}
		return nil
	default:
		return domain.ErrReindexBusy
	}
}

// activeJob returns the id held by the tenant's lock when its job is still
// active. A lock pointing at a finished or missing record is released.
func (s *Service) activeJob(ctx context.Context, tenantID string) (string, bool, error) {
	id, err := s.jobs.ActiveJobID(ctx, tenantID)
	if err != nil {
		return "", false, fmt.Errorf("active job: %w", err)
	}
	if id == "" {
		return "", false, nil
	}
	j, err := s.jobs.Get(ctx, tenantID, id)
	switch {
	case err == nil && j.Active():
		return id, true, nil
	case err != nil && !errors.Is(err, domain.ErrJobNotFound):
		return "", false, fmt.Errorf("get active job: %w", err)
	}
	if err := s.jobs.ReleaseLock(ctx, tenantID, id); err != nil {
		return "", false, fmt.Errorf("release stale lock: %w", err)
	}
	s.logger.Warn("Released stale reindex lock",
		zap.String("tenant", tenantID),
		zap.String("job_id", id),
	)
	return "", false, nil
}

// discard fails a job that never reached the queue.
func (s *Service) discard(j *domreindex.Job, reason string) {
	if err := j.Fail(reason, s.now()); err != nil {
		return
	}
	if err := s.jobs.Save(context.Background(), j); err != nil {
		s.logger.Warn("Save discarded reindex job failed", zap.String("job_id", j.ID), zap.Error(err))
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for t := range s.queue {
		if s.ctx.Err() != nil {
			s.abandon(t)
			continue
		}
		s.run(t)
	}
}

// abandon fails a queued job that will never run.
func (s *Service) abandon(t task) {
	defer s.forget(t.jobID)
	bg := context.Background()
	j, err := s.jobs.Get(bg, t.tenantID, t.jobID)
	if err == nil && j.Fail(reasonCancelled, s.now()) == nil {
		if err := s.jobs.Save(bg, j); err != nil {
			s.logger.Warn("Save abandoned reindex job failed", zap.String("job_id", t.jobID), zap.Error(err))
		}
		metrics.ReindexJobsTotal.WithLabelValues(string(domreindex.StatusFailed)).Inc()
	}
	if err := s.jobs.ReleaseLock(bg, t.tenantID, t.jobID); err != nil {
		s.logger.Warn("Release reindex lock failed", zap.String("job_id", t.jobID), zap.Error(err))
	}
}

func (s *Service) run(t task) {
	defer s.forget(t.jobID)
	ctx := s.ctx
	bg := context.WithoutCancel(ctx)
	log := s.logger.With(zap.String("tenant", t.tenantID), zap.String("job_id", t.jobID))

	job, err := s.jobs.Get(bg, t.tenantID, t.jobID)
	if err != nil {
		log.Error("Load reindex job failed", zap.Error(err))
		if rerr := s.jobs.ReleaseLock(bg, t.tenantID, t.jobID); rerr != nil {
			log.Warn("Release reindex lock failed", zap.Error(rerr))
		}
		return
	}

	if err := s.holdLock(bg, job); err != nil {
		_ = job.Fail(reasonLockLost, s.now())
		s.finalize(bg, job, log)
		return
	}

	if err := job.Start(s.now()); err != nil {
		log.Error("Start reindex job failed", zap.Error(err))
		s.finalize(bg, job, log)
		return
	}
	if err := s.jobs.Save(bg, job); err != nil {
		log.Warn("Save reindex progress failed", zap.Error(err))
	}
	log.Info("Reindex job started")

	metrics.ReindexActiveJobs.Inc()
	s.execute(ctx, job, log)
	metrics.ReindexActiveJobs.Dec()

	s.finalize(bg, job, log)
}

// holdLock refreshes the job's lock, taking it again if it expired while queued.
func (s *Service) holdLock(ctx context.Context, j *domreindex.Job) error {
	ok, err := s.jobs.RefreshLock(ctx, j.TenantID, j.ID, s.cfg.LockTTL)
	if err == nil && ok {
		return nil
	}
	ok, err = s.jobs.AcquireLock(ctx, j.TenantID, j.ID, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errLockLost
	}
	return nil
}

// execute reads every entity type and leaves the job in a terminal state.
func (s *Service) execute(ctx context.Context, j *domreindex.Job, log *zap.Logger) {
	if err := s.src.Ping(ctx); err != nil {
		log.Warn("System of record unreachable", zap.Error(err))
		j.AddError(fmt.Sprintf("ping: %v", err))
		_ = j.Fail(reasonSourceDown, s.now())
		return
	}

	cutoff := j.StartedAt.Add(-s.cfg.PruneSkew)
	for _, t := range entity.Types() {
		if ctx.Err() != nil {
			_ = j.Fail(reasonCancelled, s.now())
			return
		}
		if err := s.reindexType(ctx, j, t, cutoff, log); err != nil {
			_ = j.Fail(failureReason(ctx, err), s.now())
			return
		}
	}

	if j.AllTypesFailed() {
		_ = j.Fail(reasonAllFailed, s.now())
		return
	}
	_ = j.Complete(s.now())
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return reasonCancelled
	case errors.Is(err, errLockLost):
		return reasonLockLost
	case errors.Is(err, domain.ErrStoreUnavailable):
		return reasonStoreFailed
	default:
		return err.Error()
	}
}

// reindexType pages through one entity type. A read failure after retries is
// recorded on the type and returns nil; a returned error fails the job.
func (s *Service) reindexType(
	ctx context.Context, j *domreindex.Job, t entity.Type, cutoff time.Time, log *zap.Logger,
) error {
	write := context.WithoutCancel(ctx)
	cursor := ""
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}

		page, err := s.readPage(ctx, j.TenantID, t, cursor)
		if errors.Is(err, source.ErrUnsupportedType) {
			j.SkipType(t)
			log.Debug("Source does not provide entity type", zap.String("type", string(t)))
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.ReindexPagesTotal.WithLabelValues(string(t), "error").Inc()
			log.Warn("Reindex page read failed",
				zap.String("type", string(t)),
				zap.String("cursor", cursor),
				zap.Error(err),
			)
			j.FailType(t, err)
			return s.checkpoint(write, j)
		}
		metrics.ReindexPagesTotal.WithLabelValues(string(t), "ok").Inc()

		out := s.indexer.ReindexBatch(write, j.TenantID, t, page.Records)
		j.RecordPage(t, out.Indexed, out.Failed)
		metrics.ReindexEntitiesTotal.WithLabelValues(string(t), "indexed").Add(float64(out.Indexed))
		metrics.ReindexEntitiesTotal.WithLabelValues(string(t), "failed").Add(float64(out.Failed))

		storeFailures := 0
		for _, r := range out.Failures() {
			j.AddError(fmt.Sprintf("%s/%s: %v", t, r.ID(), r.Err()))
			if errors.Is(r.Err(), domain.ErrStoreUnavailable) {
				storeFailures++
			}
		}
		if len(page.Records) > 0 && storeFailures == len(page.Records) {
			return fmt.Errorf("%w: every write of a %s page failed", domain.ErrStoreUnavailable, t)
		}

		if err := s.checkpoint(write, j); err != nil {
			return err
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	pruned, err := s.indexer.PruneBefore(write, j.TenantID, t, cutoff)
	if err != nil {
		return fmt.Errorf("prune %s: %w", t, err)
	}
	metrics.ReindexEntitiesTotal.WithLabelValues(string(t), "pruned").Add(float64(pruned))
	j.FinishType(t, pruned)
	return s.checkpoint(write, j)
}

// readPage reads one page, retrying transient failures with exponential backoff.
func (s *Service) readPage(ctx context.Context, tenantID string, t entity.Type, cursor string) (source.Page, error) {
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxPageRetries), retry.NewExponential(s.cfg.RetryBaseDelay))

	var page source.Page
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := s.src.ReadPage(ctx, tenantID, t, cursor, s.cfg.PageSize)
		if err != nil {
			if errors.Is(err, source.ErrUnsupportedType) {
				return err
			}
			return retry.RetryableError(err)
		}
		page = p
		return nil
	})
	return page, err
}

// checkpoint persists progress and extends the lock.
func (s *Service) checkpoint(ctx context.Context, j *domreindex.Job) error {
	if err := s.jobs.Save(ctx, j); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	ok, err := s.jobs.RefreshLock(ctx, j.TenantID, j.ID, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	if !ok {
		return errLockLost
	}
	return nil
}

// finalize persists the terminal record and releases the lock.
func (s *Service) finalize(ctx context.Context, j *domreindex.Job, log *zap.Logger) {
	if err := s.jobs.Save(ctx, j); err != nil {
		log.Error("Save reindex job failed", zap.Error(err))
	}
	if err := s.jobs.ReleaseLock(ctx, j.TenantID, j.ID); err != nil {
		log.Warn("Release reindex lock failed", zap.Error(err))
	}
	metrics.ReindexJobsTotal.WithLabelValues(string(j.Status)).Inc()

	indexed, failed := j.Totals()
	log.Info("Reindex job finished",
		zap.String("status", string(j.Status)),
		zap.Int("indexed", indexed),
		zap.Int("failed", failed),
		zap.String("reason", j.FailureReason),
	)
}
