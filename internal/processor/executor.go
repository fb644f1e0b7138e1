package processor

import (
	"context"
	"fmt"

	"github.com/ignite/eventflow/internal/adapter"
	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/logger"
	"github.com/ignite/eventflow/internal/registry"
)

// EventRepository is the subset of event persistence the job executor
// needs.
type EventRepository interface {
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	UpdateEvent(ctx context.Context, e *domain.Event) error
}

// PlatformLookup resolves a platform by id; satisfied by *router.Router.
type PlatformLookup interface {
	GetPlatformByID(id int64) *domain.PlatformDefinition
}

// AdapterBuilder constructs an Adapter for a platform; satisfied by
// *adapter.Factory.
type AdapterBuilder interface {
	Build(platform *domain.PlatformDefinition) (adapter.Adapter, error)
}

// JobQueue is the subset of Queue the job executor needs.
type JobQueue interface {
	Complete(ctx context.Context, job *domain.QueueJob, code int, body string) error
	Fail(ctx context.Context, job *domain.QueueJob, errMsg string) error
	Skip(ctx context.Context, job *domain.QueueJob, reason string) error
	Retry(ctx context.Context, job *domain.QueueJob) (bool, error)
	CancelSiblings(ctx context.Context, eventID, keepJobID int64, reason string) (int64, error)
}

// DeliveryLog records one adapter send attempt for auditability.
type DeliveryLog interface {
	LogDelivery(ctx context.Context, eventID, platformID, jobID int64, success bool, responseCode int, errMsg string) error
}

// RevenueRecorder persists confirmed revenue attributions.
type RevenueRecorder interface {
	RecordRevenue(ctx context.Context, eventID, platformID int64, gross float64) (*domain.RevenueRecord, error)
}

// Outcome is executeJob's result, used by the Worker only for logging;
// it never changes the Worker's control flow (spec §4.7).
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Executor drives one Job through the adapter-send/state-transition
// pipeline described in spec §4.7.
type Executor struct {
	events     EventRepository
	platforms  PlatformLookup
	adapters   AdapterBuilder
	queue      JobQueue
	log        DeliveryLog
	validation *registry.EmailValidationRegistry
	revenue    RevenueRecorder
}

// NewExecutor wires the job-execution path's dependencies.
func NewExecutor(events EventRepository, platforms PlatformLookup, adapters AdapterBuilder, queue JobQueue, log DeliveryLog, validation *registry.EmailValidationRegistry, revenue RevenueRecorder) *Executor {
	return &Executor{events: events, platforms: platforms, adapters: adapters, queue: queue, log: log, validation: validation, revenue: revenue}
}

// ExecuteJob runs one leased Job to completion or a retry/fail/skip
// transition (spec §4.7 executeJob).
func (x *Executor) ExecuteJob(ctx context.Context, job *domain.QueueJob) (Outcome, error) {
	event, err := x.events.GetEvent(ctx, job.EventID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("event %d not found: %w", job.EventID, err)
	}
	platform := x.platforms.GetPlatformByID(job.PlatformID)
	if platform == nil {
		return OutcomeFailed, fmt.Errorf("platform %d not found", job.PlatformID)
	}

	a, err := x.adapters.Build(platform)
	if err != nil {
		if failErr := x.queue.Fail(ctx, job, "adapter config invalid: "+err.Error()); failErr != nil {
			return OutcomeFailed, failErr
		}
		return OutcomeFailed, nil
	}

	if platform.IsValidationPlatform() {
		return x.validationPath(ctx, event, a, job)
	}

	if reason := shouldSkip(event, platform); reason != "" {
		if err := x.queue.Skip(ctx, job, reason); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeOK, nil
	}

	result, sendErr := a.Send(ctx, event)
	if sendErr != nil {
		x.logDelivery(ctx, event, platform, job, false, 0, sendErr.Error())
		return x.handleFailure(ctx, job, sendErr.Error())
	}
	x.logDelivery(ctx, event, platform, job, result.Success, result.ResponseCode, result.Error)

	if !result.Success {
		return x.handleFailure(ctx, job, result.Error)
	}

	if err := x.queue.Complete(ctx, job, result.ResponseCode, result.PlatformResponse); err != nil {
		return OutcomeFailed, err
	}
	if result.Revenue > 0 {
		if _, err := x.revenue.RecordRevenue(ctx, event.ID, platform.ID, result.Revenue); err != nil {
			logger.Warn("processor: revenue recording failed", "error", err, "event_id", event.EventID)
		}
	}
	x.applyPostResponseUpdates(ctx, event, string(platform.Type), result)
	return OutcomeOK, nil
}

// shouldSkip implements spec §4.7.a.
func shouldSkip(event *domain.Event, platform *domain.PlatformDefinition) string {
	if event.EmailValidationStatus == domain.EmailValidationInvalid && platform.RequiresValidEmail {
		return "Platform conditions not met"
	}
	if platform.Type == domain.PlatformSMS && event.Phone == "" {
		return "Platform conditions not met"
	}
	return ""
}

// validationPath implements spec §4.7.b: the validation platform's
// verdict gates sibling jobs.
func (x *Executor) validationPath(ctx context.Context, event *domain.Event, a adapter.Adapter, job *domain.QueueJob) (Outcome, error) {
	result, err := a.Send(ctx, event)
	if err != nil {
		x.logDelivery(ctx, event, nil, job, false, 0, err.Error())
		return x.handleFailure(ctx, job, err.Error())
	}
	x.logDelivery(ctx, event, nil, job, result.Success, result.ResponseCode, result.Error)

	if !result.Success {
		return x.handleFailure(ctx, job, result.Error)
	}

	vd := result.ValidationData
	status := domain.EmailValidationUnknown
	rawStatus, rawSubstatus := "", ""
	activeInDays := 0
	if vd != nil {
		status = registry.MapVerdict(vd.Status)
		rawStatus, rawSubstatus = vd.Status, vd.SubStatus
		activeInDays = vd.ActiveInDays
	}
	isValid := status.GoodForDownstream()

	event.EmailValidationStatus = domain.EmailValidationValid
	if !isValid {
		event.EmailValidationStatus = domain.EmailValidationInvalid
	}
	event.ZBLastActive = activeInDays
	if err := x.events.UpdateEvent(ctx, event); err != nil {
		return OutcomeFailed, fmt.Errorf("persist validation verdict: %w", err)
	}

	if err := x.validation.RecordVerdict(ctx, event.Email, status, "", rawStatus, rawSubstatus, activeInDays); err != nil {
		logger.Warn("processor: email validation cache upsert failed", "error", err, "email", event.Email)
	}

	if !isValid {
		if _, err := x.queue.CancelSiblings(ctx, event.ID, job.ID, "email_invalid"); err != nil {
			logger.Warn("processor: cancel siblings failed", "error", err, "event_id", event.EventID)
		}
	}

	if err := x.queue.Complete(ctx, job, result.ResponseCode, result.PlatformResponse); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeOK, nil
}

// applyPostResponseUpdates implements spec §4.7.c: auditability-only
// extensions to event_data, keyed by platform capability.
func (x *Executor) applyPostResponseUpdates(ctx context.Context, event *domain.Event, platformType string, result adapter.Result) {
	if result.ContactID == "" {
		return
	}
	if event.EventData == nil {
		event.EventData = map[string]any{}
	}
	event.EventData[platformType+"_contact_id"] = result.ContactID
	if err := x.events.UpdateEvent(ctx, event); err != nil {
		logger.Warn("processor: post-response event_data update failed", "error", err, "event_id", event.EventID)
	}
}

func (x *Executor) handleFailure(ctx context.Context, job *domain.QueueJob, errMsg string) (Outcome, error) {
	if !job.CanRetry() {
		if err := x.queue.Fail(ctx, job, errMsg); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeFailed, nil
	}
	if _, err := x.queue.Retry(ctx, job); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeFailed, nil
}

func (x *Executor) logDelivery(ctx context.Context, event *domain.Event, platform *domain.PlatformDefinition, job *domain.QueueJob, success bool, code int, errMsg string) {
	platformID := job.PlatformID
	if platform != nil {
		platformID = platform.ID
	}
	if err := x.log.LogDelivery(ctx, event.ID, platformID, job.ID, success, code, errMsg); err != nil {
		logger.Warn("processor: delivery log write failed", "error", err, "event_id", event.EventID)
	}
}
