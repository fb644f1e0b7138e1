package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/eventflow/internal/domain"
)

type fakeStore struct {
	jobs          map[int64]*domain.QueueJob
	nextID        int64
	cancelCount   int64
	retryFailedN  int64
	retryOK       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[int64]*domain.QueueJob{}}
}

func (f *fakeStore) EnqueueJob(_ context.Context, eventID, platformID int64, delay time.Duration, maxRetries int) (*domain.QueueJob, error) {
	f.nextID++
	job := &domain.QueueJob{ID: f.nextID, EventID: eventID, PlatformID: platformID, Status: domain.JobPending,
		MaxRetries: maxRetries, ProcessAfter: time.Now().Add(delay)}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeStore) LeaseBatch(_ context.Context, workerID string, batchSize int, leaseDuration time.Duration) ([]*domain.QueueJob, error) {
	var out []*domain.QueueJob
	for _, j := range f.jobs {
		if j.Status != domain.JobPending || len(out) >= batchSize {
			continue
		}
		j.Status = domain.JobProcessing
		j.LockedBy = workerID
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeStore) GetJob(_ context.Context, id int64) (*domain.QueueJob, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeStore) Release(_ context.Context, jobID int64) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return errors.New("not found")
	}
	j.Status = domain.JobPending
	j.LockedBy = ""
	return nil
}

func (f *fakeStore) Complete(_ context.Context, job *domain.QueueJob, code int, body string) error {
	f.jobs[job.ID].Status = domain.JobCompleted
	return nil
}

func (f *fakeStore) Fail(_ context.Context, job *domain.QueueJob, errMsg string) error {
	f.jobs[job.ID].Status = domain.JobFailed
	return nil
}

func (f *fakeStore) Skip(_ context.Context, job *domain.QueueJob, reason string) error {
	f.jobs[job.ID].Status = domain.JobSkipped
	return nil
}

func (f *fakeStore) Retry(_ context.Context, job *domain.QueueJob) (bool, error) {
	if !f.retryOK {
		return false, nil
	}
	f.jobs[job.ID].Status = domain.JobPending
	f.jobs[job.ID].Attempts++
	return true, nil
}

func (f *fakeStore) CancelSiblings(context.Context, int64, int64, string) (int64, error) {
	return f.cancelCount, nil
}

func (f *fakeStore) ReapStuck(context.Context, time.Duration) (int64, error) { return 0, nil }

func (f *fakeStore) RetryFailed(context.Context, time.Duration, string, int) (int64, error) {
	return f.retryFailedN, nil
}

func (f *fakeStore) Cleanup(context.Context, time.Duration) (int64, error) { return 0, nil }

func (f *fakeStore) CountPending(context.Context) (int64, error) {
	var n int64
	for _, j := range f.jobs {
		if j.Status == domain.JobPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) FailureRateSince(context.Context, time.Time) (float64, error) { return 0, nil }

type fakeIndex struct {
	added   []int64
	removed []int64
}

func (f *fakeIndex) Add(_ context.Context, jobID int64, _ time.Time) error {
	f.added = append(f.added, jobID)
	return nil
}

func (f *fakeIndex) Remove(_ context.Context, jobID int64) error {
	f.removed = append(f.removed, jobID)
	return nil
}

func TestEnqueueHintsIndex(t *testing.T) {
	store := newFakeStore()
	idx := &fakeIndex{}
	q := New(store, idx)

	job, err := q.Enqueue(context.Background(), 1, 2, time.Minute, 3)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(idx.added) != 1 || idx.added[0] != job.ID {
		t.Errorf("expected index Add hint for %d, got %v", job.ID, idx.added)
	}
}

func TestLeaseBatchRemovesIndexHint(t *testing.T) {
	store := newFakeStore()
	idx := &fakeIndex{}
	q := New(store, idx)

	job, _ := q.Enqueue(context.Background(), 1, 2, 0, 3)
	idx.added = nil

	leased, err := q.LeaseBatch(context.Background(), "worker-1", 10, 0)
	if err != nil {
		t.Fatalf("LeaseBatch: %v", err)
	}
	if len(leased) != 1 || leased[0].ID != job.ID {
		t.Fatalf("expected to lease job %d, got %v", job.ID, leased)
	}
	if len(idx.removed) != 1 || idx.removed[0] != job.ID {
		t.Errorf("expected index Remove hint for %d, got %v", job.ID, idx.removed)
	}
}

func TestLeaseBatchDefaultsLeaseDuration(t *testing.T) {
	store := newFakeStore()
	q := New(store, nil)
	q.Enqueue(context.Background(), 1, 2, 0, 3)

	leased, err := q.LeaseBatch(context.Background(), "worker-1", 10, 0)
	if err != nil {
		t.Fatalf("LeaseBatch: %v", err)
	}
	if len(leased) != 1 {
		t.Fatalf("expected one leased job, got %d", len(leased))
	}
}

func TestQueueWorksWithoutIndex(t *testing.T) {
	store := newFakeStore()
	q := New(store, nil)

	job, err := q.Enqueue(context.Background(), 1, 2, 0, 3)
	if err != nil {
		t.Fatalf("Enqueue without index: %v", err)
	}
	if err := q.Complete(context.Background(), job, 200, "ok"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestRetrySuccessReAddsIndexHint(t *testing.T) {
	store := newFakeStore()
	store.retryOK = true
	idx := &fakeIndex{}
	q := New(store, idx)

	job, _ := q.Enqueue(context.Background(), 1, 2, 0, 3)
	idx.added = nil

	ok, err := q.Retry(context.Background(), job)
	if err != nil || !ok {
		t.Fatalf("Retry = %v, %v; want true, nil", ok, err)
	}
	if len(idx.added) != 1 {
		t.Errorf("expected a re-add hint after successful retry, got %v", idx.added)
	}
}

func TestRetryExhaustedDoesNotHintIndex(t *testing.T) {
	store := newFakeStore()
	store.retryOK = false
	idx := &fakeIndex{}
	q := New(store, idx)

	job, _ := q.Enqueue(context.Background(), 1, 2, 0, 3)
	idx.added = nil

	ok, err := q.Retry(context.Background(), job)
	if err != nil || ok {
		t.Fatalf("Retry = %v, %v; want false, nil", ok, err)
	}
	if len(idx.added) != 0 {
		t.Errorf("expected no index hint on exhausted retry, got %v", idx.added)
	}
}

func TestCancelSiblingsReturnsAffectedCount(t *testing.T) {
	store := newFakeStore()
	store.cancelCount = 3
	q := New(store, nil)

	n, err := q.CancelSiblings(context.Background(), 1, 2, "relationship_found")
	if err != nil {
		t.Fatalf("CancelSiblings: %v", err)
	}
	if n != 3 {
		t.Errorf("CancelSiblings = %d, want 3", n)
	}
}
