package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/ignite/eventflow/internal/adapter"
	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/registry"
)

type fakeEvents struct {
	events  map[int64]*domain.Event
	updated []*domain.Event
}

func newFakeEvents(events ...*domain.Event) *fakeEvents {
	m := map[int64]*domain.Event{}
	for _, e := range events {
		m[e.ID] = e
	}
	return &fakeEvents{events: m}
}

func (f *fakeEvents) GetEvent(_ context.Context, id int64) (*domain.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvents) UpdateEvent(_ context.Context, e *domain.Event) error {
	f.updated = append(f.updated, e)
	f.events[e.ID] = e
	return nil
}

type fakePlatforms struct {
	byID map[int64]*domain.PlatformDefinition
}

func (f *fakePlatforms) GetPlatformByID(id int64) *domain.PlatformDefinition { return f.byID[id] }

type stubAdapter struct {
	result adapter.Result
	err    error
}

func (s stubAdapter) Send(context.Context, *domain.Event) (adapter.Result, error) { return s.result, s.err }
func (s stubAdapter) MapFields(*domain.Event) map[string]any                     { return nil }
func (s stubAdapter) ValidateConfig() error                                      { return nil }
func (s stubAdapter) TestConnection(context.Context) bool                        { return true }

type fakeAdapters struct {
	adapter adapter.Adapter
	err     error
}

func (f *fakeAdapters) Build(*domain.PlatformDefinition) (adapter.Adapter, error) { return f.adapter, f.err }

type fakeJobQueue struct {
	completed, failed, skipped []int64
	retried                    []int64
	retryOK                    bool
	cancelSiblingsCalls        int
}

func (f *fakeJobQueue) Complete(_ context.Context, job *domain.QueueJob, _ int, _ string) error {
	f.completed = append(f.completed, job.ID)
	return nil
}
func (f *fakeJobQueue) Fail(_ context.Context, job *domain.QueueJob, _ string) error {
	f.failed = append(f.failed, job.ID)
	return nil
}
func (f *fakeJobQueue) Skip(_ context.Context, job *domain.QueueJob, _ string) error {
	f.skipped = append(f.skipped, job.ID)
	return nil
}
func (f *fakeJobQueue) Retry(_ context.Context, job *domain.QueueJob) (bool, error) {
	f.retried = append(f.retried, job.ID)
	return f.retryOK, nil
}
func (f *fakeJobQueue) CancelSiblings(context.Context, int64, int64, string) (int64, error) {
	f.cancelSiblingsCalls++
	return 1, nil
}

type fakeDeliveryLog struct{ calls int }

func (f *fakeDeliveryLog) LogDelivery(context.Context, int64, int64, int64, bool, int, string) error {
	f.calls++
	return nil
}

type fakeRevenue struct{ recorded []float64 }

func (f *fakeRevenue) RecordRevenue(_ context.Context, _, _ int64, gross float64) (*domain.RevenueRecord, error) {
	f.recorded = append(f.recorded, gross)
	return &domain.RevenueRecord{Gross: gross}, nil
}

type fakeEmailValidationRepo struct{ upserted []*domain.EmailValidationEntry }

func (f *fakeEmailValidationRepo) FindEmailValidation(context.Context, string) (*domain.EmailValidationEntry, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeEmailValidationRepo) UpsertEmailValidation(_ context.Context, e *domain.EmailValidationEntry) error {
	f.upserted = append(f.upserted, e)
	return nil
}

func TestExecuteJobCompletesOnSuccess(t *testing.T) {
	event := &domain.Event{ID: 1}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformCRM, RequiresValidEmail: true}
	events := newFakeEvents(event)
	queue := &fakeJobQueue{}
	revenue := &fakeRevenue{}
	dlog := &fakeDeliveryLog{}
	repo := &fakeEmailValidationRepo{}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{Success: true, ResponseCode: 200, ContactID: "c-1"}}},
		queue, dlog, registry.NewEmailValidationRegistry(repo, 0), revenue)

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, MaxRetries: 3}
	outcome, err := x.ExecuteJob(context.Background(), job)
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %v, want OutcomeOK", outcome)
	}
	if len(queue.completed) != 1 {
		t.Errorf("expected Complete to be called once, got %v", queue.completed)
	}
	if dlog.calls != 1 {
		t.Errorf("expected one delivery log write, got %d", dlog.calls)
	}
	if got := event.EventData["crm_contact_id"]; got != "c-1" {
		t.Errorf("expected applyPostResponseUpdates to stash contact id, got %v", got)
	}
}

func TestExecuteJobSkipsSMSWithoutPhone(t *testing.T) {
	event := &domain.Event{ID: 1, Phone: ""}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformSMS}
	events := newFakeEvents(event)
	queue := &fakeJobQueue{}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{Success: true}}},
		queue, &fakeDeliveryLog{}, registry.NewEmailValidationRegistry(&fakeEmailValidationRepo{}, 0), &fakeRevenue{})

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, MaxRetries: 3}
	outcome, err := x.ExecuteJob(context.Background(), job)
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %v, want OutcomeOK", outcome)
	}
	if len(queue.skipped) != 1 {
		t.Errorf("expected Skip to be called once, got %v", queue.skipped)
	}
}

func TestExecuteJobSkipsWhenEmailInvalidAndRequired(t *testing.T) {
	event := &domain.Event{ID: 1, EmailValidationStatus: domain.EmailValidationInvalid}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformCRM, RequiresValidEmail: true}
	events := newFakeEvents(event)
	queue := &fakeJobQueue{}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{Success: true}}},
		queue, &fakeDeliveryLog{}, registry.NewEmailValidationRegistry(&fakeEmailValidationRepo{}, 0), &fakeRevenue{})

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, MaxRetries: 3}
	if _, err := x.ExecuteJob(context.Background(), job); err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if len(queue.skipped) != 1 {
		t.Errorf("expected Skip to be called once for an invalid-email-requiring platform, got %v", queue.skipped)
	}
}

func TestExecuteJobRetriesOnFailureWithBudget(t *testing.T) {
	event := &domain.Event{ID: 1}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformCRM}
	events := newFakeEvents(event)
	queue := &fakeJobQueue{retryOK: true}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{Success: false, Error: "boom"}}},
		queue, &fakeDeliveryLog{}, registry.NewEmailValidationRegistry(&fakeEmailValidationRepo{}, 0), &fakeRevenue{})

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, Attempts: 0, MaxRetries: 3}
	outcome, err := x.ExecuteJob(context.Background(), job)
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want OutcomeFailed", outcome)
	}
	if len(queue.retried) != 1 || len(queue.failed) != 0 {
		t.Errorf("expected a Retry, not a Fail: retried=%v failed=%v", queue.retried, queue.failed)
	}
}

func TestExecuteJobFailsWhenRetryBudgetExhausted(t *testing.T) {
	event := &domain.Event{ID: 1}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformCRM}
	events := newFakeEvents(event)
	queue := &fakeJobQueue{}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{Success: false, Error: "boom"}}},
		queue, &fakeDeliveryLog{}, registry.NewEmailValidationRegistry(&fakeEmailValidationRepo{}, 0), &fakeRevenue{})

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, Attempts: 3, MaxRetries: 3}
	if _, err := x.ExecuteJob(context.Background(), job); err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if len(queue.failed) != 1 {
		t.Errorf("expected Fail to be called once at retry-budget exhaustion, got %v", queue.failed)
	}
}

func TestExecuteJobRecordsRevenueOnPositiveResult(t *testing.T) {
	event := &domain.Event{ID: 1}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformMonetization}
	events := newFakeEvents(event)
	revenue := &fakeRevenue{}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{Success: true, Revenue: 2.00}}},
		&fakeJobQueue{}, &fakeDeliveryLog{}, registry.NewEmailValidationRegistry(&fakeEmailValidationRepo{}, 0), revenue)

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, MaxRetries: 3}
	if _, err := x.ExecuteJob(context.Background(), job); err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if len(revenue.recorded) != 1 || revenue.recorded[0] != 2.00 {
		t.Errorf("expected revenue of 2.00 to be recorded, got %v", revenue.recorded)
	}
}

func TestExecuteJobValidationPathInvalidCancelsSiblings(t *testing.T) {
	event := &domain.Event{ID: 1, Email: "a@example.com"}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformValidation, Code: "zerobounce"}
	events := newFakeEvents(event)
	queue := &fakeJobQueue{}
	repo := &fakeEmailValidationRepo{}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{
			Success: true, ValidationData: &adapter.ValidationData{Status: "invalid", ActiveInDays: 3},
		}}},
		queue, &fakeDeliveryLog{}, registry.NewEmailValidationRegistry(repo, 0), &fakeRevenue{})

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, MaxRetries: 3}
	outcome, err := x.ExecuteJob(context.Background(), job)
	if err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if outcome != OutcomeOK {
		t.Fatalf("outcome = %v, want OutcomeOK", outcome)
	}
	if event.EmailValidationStatus != domain.EmailValidationInvalid {
		t.Errorf("expected event validation status=invalid, got %q", event.EmailValidationStatus)
	}
	if queue.cancelSiblingsCalls != 1 {
		t.Errorf("expected CancelSiblings to be called once, got %d", queue.cancelSiblingsCalls)
	}
	if len(queue.completed) != 1 {
		t.Errorf("expected the validation job itself to complete, got %v", queue.completed)
	}
	if len(repo.upserted) != 1 {
		t.Errorf("expected the email validation cache to be upserted, got %d", len(repo.upserted))
	}
}

func TestExecuteJobValidationPathValidDoesNotCancelSiblings(t *testing.T) {
	event := &domain.Event{ID: 1, Email: "a@example.com"}
	platform := &domain.PlatformDefinition{ID: 10, Type: domain.PlatformValidation, Code: "zerobounce"}
	events := newFakeEvents(event)
	queue := &fakeJobQueue{}

	x := NewExecutor(events, &fakePlatforms{byID: map[int64]*domain.PlatformDefinition{10: platform}},
		&fakeAdapters{adapter: stubAdapter{result: adapter.Result{
			Success: true, ValidationData: &adapter.ValidationData{Status: "valid", ActiveInDays: 90},
		}}},
		queue, &fakeDeliveryLog{}, registry.NewEmailValidationRegistry(&fakeEmailValidationRepo{}, 0), &fakeRevenue{})

	job := &domain.QueueJob{ID: 100, EventID: 1, PlatformID: 10, MaxRetries: 3}
	if _, err := x.ExecuteJob(context.Background(), job); err != nil {
		t.Fatalf("ExecuteJob: %v", err)
	}
	if queue.cancelSiblingsCalls != 0 {
		t.Errorf("expected no sibling cancellation for a valid verdict, got %d calls", queue.cancelSiblingsCalls)
	}
	if event.EmailValidationStatus != domain.EmailValidationValid {
		t.Errorf("expected event validation status=valid, got %q", event.EmailValidationStatus)
	}
}

func TestExecuteJobFatalWhenEventMissing(t *testing.T) {
	events := newFakeEvents()
	x := NewExecutor(events, &fakePlatforms{}, &fakeAdapters{}, &fakeJobQueue{}, &fakeDeliveryLog{},
		registry.NewEmailValidationRegistry(&fakeEmailValidationRepo{}, 0), &fakeRevenue{})

	job := &domain.QueueJob{ID: 1, EventID: 999, PlatformID: 1}
	_, err := x.ExecuteJob(context.Background(), job)
	if err == nil {
		t.Fatal("expected an error when the event does not exist")
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected error to wrap domain.ErrNotFound, got %v", err)
	}
}
