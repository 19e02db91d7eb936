package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain"
	"github.com/kailas-cloud/entsearch/internal/domain/reindex"
)

type lock struct {
	jobID     string
	expiresAt time.Time
}

// JobStore is an in-memory reindex job store.
type JobStore struct {
	mu    sync.Mutex
	jobs  map[string][]byte
	locks map[string]lock
	now   func() time.Time
}

// NewJobStore creates an in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:  make(map[string][]byte),
		locks: make(map[string]lock),
		now:   time.Now,
	}
}

// Save stores a snapshot of the job.
func (s *JobStore) Save(_ context.Context, j *reindex.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", j.ID, err)
	}
	s.mu.Lock()
	s.jobs[j.TenantID+"/"+j.ID] = data
	s.mu.Unlock()
	return nil
}

// Get loads a job of the tenant.
func (s *JobStore) Get(_ context.Context, tenantID, jobID string) (*reindex.Job, error) {
	s.mu.Lock()
	data, ok := s.jobs[tenantID+"/"+jobID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	var j reindex.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &j, nil
}

// AcquireLock claims the tenant's active-job slot.
func (s *JobStore) AcquireLock(_ context.Context, tenantID, jobID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[tenantID]; ok && s.now().Before(l.expiresAt) {
		return false, nil
	}
	s.locks[tenantID] = lock{jobID: jobID, expiresAt: s.now().Add(ttl)}
	return true, nil
}

// ActiveJobID returns the job holding the tenant's lock, or "".
func (s *JobStore) ActiveJobID(_ context.Context, tenantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tenantID]
	if !ok || !s.now().Before(l.expiresAt) {
		return "", nil
	}
	return l.jobID, nil
}

// RefreshLock extends the lock if jobID holds it.
func (s *JobStore) RefreshLock(_ context.Context, tenantID, jobID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[tenantID]
	if !ok || l.jobID != jobID || !s.now().Before(l.expiresAt) {
		return false, nil
	}
	l.expiresAt = s.now().Add(ttl)
	s.locks[tenantID] = l
	return true, nil
}

// ReleaseLock frees the lock if jobID holds it.
func (s *JobStore) ReleaseLock(_ context.Context, tenantID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[tenantID]; ok && l.jobID == jobID {
		delete(s.locks, tenantID)
	}
	return nil
}
