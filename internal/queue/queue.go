// Package queue wraps the durable processing_queue table behind the
// contract the Processor and Worker depend on (spec §2 component B,
// §4.4). Postgres is the source of truth; an optional Index accelerator
// (internal/queue/redisindex) only ever hints, never gates, correctness.
package queue

import (
	"context"
	"time"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/logger"
)

// DefaultLeaseDuration is the lease window granted by leaseBatch absent
// an override (spec §4.4 "Lease default 300 s").
const DefaultLeaseDuration = 300 * time.Second

// Store is the persistence contract Queue wraps; satisfied by
// internal/store/postgres.Store.
type Store interface {
	EnqueueJob(ctx context.Context, eventID, platformID int64, delay time.Duration, maxRetries int) (*domain.QueueJob, error)
	LeaseBatch(ctx context.Context, workerID string, batchSize int, leaseDuration time.Duration) ([]*domain.QueueJob, error)
	GetJob(ctx context.Context, id int64) (*domain.QueueJob, error)
	Release(ctx context.Context, jobID int64) error
	Complete(ctx context.Context, job *domain.QueueJob, code int, body string) error
	Fail(ctx context.Context, job *domain.QueueJob, errMsg string) error
	Skip(ctx context.Context, job *domain.QueueJob, reason string) error
	Retry(ctx context.Context, job *domain.QueueJob) (bool, error)
	CancelSiblings(ctx context.Context, eventID, keepJobID int64, reason string) (int64, error)
	ReapStuck(ctx context.Context, grace time.Duration) (int64, error)
	RetryFailed(ctx context.Context, window time.Duration, platformCode string, limit int) (int64, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
	CountPending(ctx context.Context) (int64, error)
	FailureRateSince(ctx context.Context, since time.Time) (float64, error)
}

// Index is the optional readiness accelerator; a Redis sorted set in
// production (internal/queue/redisindex), absent in tests and
// single-process deployments. Every method is best-effort: a failure is
// logged, never propagated, since Store alone determines correctness
// (spec §4.14).
type Index interface {
	Add(ctx context.Context, jobID int64, processAfter time.Time) error
	Remove(ctx context.Context, jobID int64) error
}

// Queue is the thin orchestration layer over Store plus an optional
// Index hint.
type Queue struct {
	store Store
	index Index
}

// New constructs a Queue. index may be nil, in which case Index
// maintenance is skipped entirely.
func New(store Store, index Index) *Queue {
	return &Queue{store: store, index: index}
}

// Enqueue inserts a pending job for (eventID, platformID) ready after
// delay, and hints the Index if configured (spec §4.4 enqueue).
func (q *Queue) Enqueue(ctx context.Context, eventID, platformID int64, delay time.Duration, maxRetries int) (*domain.QueueJob, error) {
	job, err := q.store.EnqueueJob(ctx, eventID, platformID, delay, maxRetries)
	if err != nil {
		return nil, err
	}
	q.hintAdd(ctx, job)
	return job, nil
}

// LeaseBatch atomically claims up to batchSize ready jobs for workerID
// (spec §4.4 leaseBatch). leaseDuration defaults to DefaultLeaseDuration
// when zero.
func (q *Queue) LeaseBatch(ctx context.Context, workerID string, batchSize int, leaseDuration time.Duration) ([]*domain.QueueJob, error) {
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}
	jobs, err := q.store.LeaseBatch(ctx, workerID, batchSize, leaseDuration)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		q.hintRemove(ctx, j.ID)
	}
	return jobs, nil
}

// GetJob loads a job by id.
func (q *Queue) GetJob(ctx context.Context, id int64) (*domain.QueueJob, error) {
	return q.store.GetJob(ctx, id)
}

// Release returns a leased job to pending, re-adding the Index hint
// (spec §4.4 release).
func (q *Queue) Release(ctx context.Context, job *domain.QueueJob) error {
	if err := q.store.Release(ctx, job.ID); err != nil {
		return err
	}
	q.hintAdd(ctx, job)
	return nil
}

// Complete marks job terminal-completed (spec §4.4 complete).
func (q *Queue) Complete(ctx context.Context, job *domain.QueueJob, code int, body string) error {
	return q.store.Complete(ctx, job, code, body)
}

// Fail marks job terminal-failed (spec §4.4 fail).
func (q *Queue) Fail(ctx context.Context, job *domain.QueueJob, errMsg string) error {
	return q.store.Fail(ctx, job, errMsg)
}

// Skip marks job terminal-skipped with reason (spec §4.4 skip).
func (q *Queue) Skip(ctx context.Context, job *domain.QueueJob, reason string) error {
	return q.store.Skip(ctx, job, reason)
}

// Retry re-queues job with exponential backoff if it still has retry
// budget, re-adding the Index hint on success (spec §4.4 retry).
func (q *Queue) Retry(ctx context.Context, job *domain.QueueJob) (bool, error) {
	ok, err := q.store.Retry(ctx, job)
	if err != nil || !ok {
		return ok, err
	}
	q.hintAdd(ctx, job)
	return true, nil
}

// CancelSiblings skips every other pending job for eventID, returning
// the affected count (spec §4.4 cancelSiblings, §9).
func (q *Queue) CancelSiblings(ctx context.Context, eventID, keepJobID int64, reason string) (int64, error) {
	return q.store.CancelSiblings(ctx, eventID, keepJobID, reason)
}

// ReapStuck reclaims expired-lease jobs back to pending (spec §4.4 reapStuck).
func (q *Queue) ReapStuck(ctx context.Context, grace time.Duration) (int64, error) {
	return q.store.ReapStuck(ctx, grace)
}

// RetryFailed re-queues terminal-failed jobs within window that still
// have retry budget, operator-triggered (spec §4.4 retryFailed).
func (q *Queue) RetryFailed(ctx context.Context, window time.Duration, platformCode string, limit int) (int64, error) {
	return q.store.RetryFailed(ctx, window, platformCode, limit)
}

// Cleanup deletes terminal jobs older than olderThan.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return q.store.Cleanup(ctx, olderThan)
}

// CountPending returns the current backlog size (spec §7).
func (q *Queue) CountPending(ctx context.Context) (int64, error) {
	return q.store.CountPending(ctx)
}

// FailureRateSince returns the fraction of jobs that finished failed
// within the window (spec §7).
func (q *Queue) FailureRateSince(ctx context.Context, since time.Time) (float64, error) {
	return q.store.FailureRateSince(ctx, since)
}

func (q *Queue) hintAdd(ctx context.Context, job *domain.QueueJob) {
	if q.index == nil {
		return
	}
	if err := q.index.Add(ctx, job.ID, job.ProcessAfter); err != nil {
		logger.Warn("queue: index add hint failed", "error", err, "job_id", job.ID)
	}
}

func (q *Queue) hintRemove(ctx context.Context, jobID int64) {
	if q.index == nil {
		return
	}
	if err := q.index.Remove(ctx, jobID); err != nil {
		logger.Warn("queue: index remove hint failed", "error", err, "job_id", jobID)
	}
}
