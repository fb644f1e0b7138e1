// Package worker runs the lease/execute loop that drains the processing
// queue (spec §4.8), plus a periodic reaper pass that reclaims
// expired-lease jobs (spec §4.4 reapStuck).
package worker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/distlock"
	"github.com/ignite/eventflow/internal/pkg/logger"
	"github.com/ignite/eventflow/internal/processor"
)

// DefaultSleep is how long a worker idles after an empty batch, absent
// an override (spec §4.8 step 2 "5s default").
const DefaultSleep = 5 * time.Second

// DefaultBatchSize is how many jobs a single leaseBatch call claims,
// absent an override (spec §6 "QUEUE_BATCH_SIZE default 100").
const DefaultBatchSize = 100

// interBatchYield is the brief pause between batches that keeps a
// worker from spinning tightly against an unresponsive store (spec
// §4.8 step 4).
const interBatchYield = 100 * time.Millisecond

// DefaultReapInterval is how often the reaper pass runs when driven
// in-process by Run.
const DefaultReapInterval = 2 * time.Minute

// DefaultReapGrace is how long past locked_until a job is considered
// stuck (spec §4.4 reapStuck).
const DefaultReapGrace = 5 * time.Minute

// JobQueue is the subset of Queue the worker loop needs.
type JobQueue interface {
	LeaseBatch(ctx context.Context, workerID string, batchSize int, leaseDuration time.Duration) ([]*domain.QueueJob, error)
	Release(ctx context.Context, job *domain.QueueJob) error
	ReapStuck(ctx context.Context, grace time.Duration) (int64, error)
}

// JobExecutor runs one leased job to completion; satisfied by
// *processor.Executor. The returned Outcome is used only for logging —
// per spec §4.7 it never changes the worker loop's control flow.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, job *domain.QueueJob) (processor.Outcome, error)
}

// Config tunes one Worker's behavior; zero values take the package
// defaults.
type Config struct {
	BatchSize     int
	LeaseDuration time.Duration
	Sleep         time.Duration
	Once          bool
	MaxRuntime    time.Duration // 0 = unbounded
	ReapInterval  time.Duration // 0 = DefaultReapInterval
	ReapGrace     time.Duration // 0 = DefaultReapGrace
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Sleep <= 0 {
		c.Sleep = DefaultSleep
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.ReapGrace <= 0 {
		c.ReapGrace = DefaultReapGrace
	}
	return c
}

// Worker runs leaseBatch/execute iterations against one Queue until
// signalled, its runtime budget expires, or (with Once) its first
// lease has been handled, whether or not it returned jobs (spec §4.8).
type Worker struct {
	id       string
	queue    JobQueue
	executor JobExecutor
	reaper   distlock.DistLock // optional; nil disables the in-process reaper pass
	cfg      Config
}

// New constructs a Worker with a freshly derived worker_id
// (host+pid+random, spec §4.8 step 1). reaper may be nil to skip the
// periodic stuck-lease reclaim pass entirely (e.g. when it runs as a
// separate scheduled task instead).
func New(queue JobQueue, executor JobExecutor, reaper distlock.DistLock, cfg Config) *Worker {
	return &Worker{
		id:       newWorkerID(),
		queue:    queue,
		executor: executor,
		reaper:   reaper,
		cfg:      cfg.withDefaults(),
	}
}

// ID returns this worker's derived identity.
func (w *Worker) ID() string { return w.id }

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), hex.EncodeToString(b))
}

// Run drives the worker loop until ctx is cancelled, MaxRuntime
// elapses, or (with Once set) one lease has been made and its batch,
// if any, executed. On
// exit — by any of those paths — any jobs leased but not yet executed
// in the in-flight batch are released back to pending (spec §4.8
// "release remaining unprocessed leased jobs and exit").
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("worker: starting", "worker_id", w.id, "batch_size", w.cfg.BatchSize, "once", w.cfg.Once)

	var deadline time.Time
	if w.cfg.MaxRuntime > 0 {
		deadline = time.Now().Add(w.cfg.MaxRuntime)
	}

	var reapTicker *time.Ticker
	if w.reaper != nil {
		reapTicker = time.NewTicker(w.cfg.ReapInterval)
		defer reapTicker.Stop()
	}

	for {
		if ctx.Err() != nil {
			logger.Info("worker: stopping on signal", "worker_id", w.id)
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			logger.Info("worker: runtime budget exhausted", "worker_id", w.id)
			return nil
		}

		if reapTicker != nil {
			select {
			case <-reapTicker.C:
				w.reapOnce(ctx)
			default:
			}
		}

		jobs, err := w.queue.LeaseBatch(ctx, w.id, w.cfg.BatchSize, w.cfg.LeaseDuration)
		if err != nil {
			logger.Error("worker: lease batch failed", "error", err, "worker_id", w.id)
			if !sleepOrDone(ctx, w.cfg.Sleep) {
				return nil
			}
			continue
		}

		if len(jobs) == 0 {
			if w.cfg.Once {
				return nil
			}
			if !sleepOrDone(ctx, w.cfg.Sleep) {
				return nil
			}
			continue
		}

		w.runBatch(ctx, jobs)

		if w.cfg.Once {
			return nil
		}
		if !sleepOrDone(ctx, interBatchYield) {
			return nil
		}
	}
}

// runBatch executes each leased job in turn. If ctx is cancelled
// mid-batch, the remaining unprocessed jobs in this batch are released
// rather than executed.
func (w *Worker) runBatch(ctx context.Context, jobs []*domain.QueueJob) {
	for i, job := range jobs {
		if ctx.Err() != nil {
			w.releaseRemaining(context.Background(), jobs[i:])
			return
		}
		outcome, err := w.executor.ExecuteJob(ctx, job)
		if err != nil {
			logger.Error("worker: job execution error", "error", err, "worker_id", w.id, "job_id", job.ID)
			continue
		}
		logger.Debug("worker: job processed", "worker_id", w.id, "job_id", job.ID, "outcome", outcome)
	}
}

func (w *Worker) releaseRemaining(ctx context.Context, jobs []*domain.QueueJob) {
	for _, job := range jobs {
		if err := w.queue.Release(ctx, job); err != nil {
			logger.Warn("worker: release on shutdown failed", "error", err, "worker_id", w.id, "job_id", job.ID)
		}
	}
}

// reapOnce runs one reaper pass, guarded by the distributed lock so
// that only one worker process in the fleet executes it at a time
// (spec §4.8 "a separate reaper pass ... runs periodically").
func (w *Worker) reapOnce(ctx context.Context) {
	acquired, err := w.reaper.Acquire(ctx)
	if err != nil {
		logger.Warn("worker: reaper lock acquire failed", "error", err, "worker_id", w.id)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := w.reaper.Release(ctx); err != nil {
			logger.Warn("worker: reaper lock release failed", "error", err, "worker_id", w.id)
		}
	}()

	n, err := w.queue.ReapStuck(ctx, w.cfg.ReapGrace)
	if err != nil {
		logger.Error("worker: reap stuck failed", "error", err, "worker_id", w.id)
		return
	}
	if n > 0 {
		logger.Info("worker: reaped stuck jobs", "worker_id", w.id, "count", n)
	}
}

// sleepOrDone sleeps for d, returning false early (without completing
// the sleep) if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
