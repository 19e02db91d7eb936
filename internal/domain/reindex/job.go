// Package reindex models a full index rebuild for one tenant.
package reindex

import (
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/entsearch/internal/domain/entity"
)

// Status is a job lifecycle state.
type Status string

// Job states. QUEUED -> RUNNING -> COMPLETED | FAILED.
const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ErrInvalidTransition is returned for a state change the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid job state transition")

// DefaultMaxErrors caps the recorded error list.
const DefaultMaxErrors = 100

// TypeProgress tracks one entity type within a job.
type TypeProgress struct {
	Pages   int    `json:"pages"`
	Indexed int    `json:"indexed"`
	Failed  int    `json:"failed"`
	Pruned  int    `json:"pruned"`
	Done    bool   `json:"done"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Job is a reindex job record. It is persisted as JSON.
type Job struct {
	ID            string                        `json:"id"`
	TenantID      string                        `json:"tenant_id"`
	Status        Status                        `json:"status"`
	Progress      map[entity.Type]*TypeProgress `json:"progress"`
	Errors        []string                      `json:"errors"`
	DroppedErrors int                           `json:"dropped_errors"`
	FailureReason string                        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time                     `json:"created_at"`
	StartedAt     *time.Time                    `json:"started_at,omitempty"`
	FinishedAt    *time.Time                    `json:"finished_at,omitempty"`
	MaxErrors     int                           `json:"max_errors"`
}

// New creates a QUEUED job with a progress slot per registered type.
func New(id, tenantID string, maxErrors int, now time.Time) *Job {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	j := &Job{
		ID:        id,
		TenantID:  tenantID,
		Status:    StatusQueued,
		Progress:  make(map[entity.Type]*TypeProgress, len(entity.Types())),
		Errors:    []string{},
		CreatedAt: now,
		MaxErrors: maxErrors,
	}
	for _, t := range entity.Types() {
		j.Progress[t] = &TypeProgress{}
	}
	return j
}

// Active reports whether the job still holds the tenant slot.
func (j *Job) Active() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}

// Start moves a queued job to RUNNING.
func (j *Job) Start(now time.Time) error {
	if j.Status != StatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusRunning)
	}
	j.Status = StatusRunning
	// Store scores carry millisecond precision.
	started := now.Truncate(time.Millisecond)
	j.StartedAt = &started
	return nil
}

// RecordPage adds the outcome of one processed page.
func (j *Job) RecordPage(t entity.Type, indexed, failed int) {
	p := j.progress(t)
	p.Pages++
	p.Indexed += indexed
	p.Failed += failed
}

// FinishType marks a type as fully read.
func (j *Job) FinishType(t entity.Type, pruned int) {
	p := j.progress(t)
	p.Done = true
	p.Pruned = pruned
}

// SkipType marks a type the source does not provide.
func (j *Job) SkipType(t entity.Type) {
	p := j.progress(t)
	p.Done = true
	p.Skipped = true
}

// FailType records that a type's read path failed.
func (j *Job) FailType(t entity.Type, err error) {
	p := j.progress(t)
	p.Error = err.Error()
	j.AddError(fmt.Sprintf("%s: %v", t, err))
}

// AddError appends to the error list, counting entries past the cap.
func (j *Job) AddError(msg string) {
	if len(j.Errors) >= j.MaxErrors {
		j.DroppedErrors++
		return
	}
	j.Errors = append(j.Errors, msg)
}

// Complete moves a running job to COMPLETED.
func (j *Job) Complete(now time.Time) error {
	if j.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusCompleted)
	}
	j.Status = StatusCompleted
	j.FinishedAt = &now
	return nil
}

// Fail moves an active job to FAILED.
func (j *Job) Fail(reason string, now time.Time) error {
	if !j.Active() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, StatusFailed)
	}
	j.Status = StatusFailed
	j.FailureReason = reason
	j.FinishedAt = &now
	return nil
}

// AllTypesFailed reports whether every type the source provides failed to read.
func (j *Job) AllTypesFailed() bool {
	failed := 0
	for _, p := range j.Progress {
		if p.Skipped {
			continue
		}
		if p.Error == "" {
			return false
		}
		failed++
	}
	return failed > 0
}

// Totals sums indexed and failed counts across types.
func (j *Job) Totals() (indexed, failed int) {
	for _, p := range j.Progress {
		indexed += p.Indexed
		failed += p.Failed
	}
	return indexed, failed
}

func (j *Job) progress(t entity.Type) *TypeProgress {
	p, ok := j.Progress[t]
	if !ok {
		p = &TypeProgress{}
		j.Progress[t] = p
	}
	return p
}
