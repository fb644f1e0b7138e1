// Package processor orchestrates the two halves of the pipeline: intake
// (validate, persist, link, route, enqueue) and job execution (adapter
// send, state transition, post-effects) — spec §4.2, §4.7.
package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/linker"
	"github.com/ignite/eventflow/internal/pkg/logger"
	"github.com/ignite/eventflow/internal/validator"
)

// acquisitionKeys/currentKeys/purchaseKeys are the raw submission fields
// copied into their respective Event blocks; everything else not also
// matched by a top-level field lands in event_data (spec §4.2 step 1).
var (
	acquisitionKeys = []string{"acq_source", "acq_campaign", "acq_term", "acq_date", "acq_form_title"}
	currentKeys     = []string{"cur_source", "cur_medium", "cur_campaign", "cur_content", "cur_term", "gclid", "ga_client_id"}
	purchaseKeys    = []string{"purchase_offer", "purchase_publisher", "purchase_amount", "purchase_traffic_source"}
	topLevelKeys    = []string{"email", "phone", "name", "first_name", "last_name", "ip"}
)

// EventStore is the persistence contract the intake path needs.
type EventStore interface {
	CreateEvent(ctx context.Context, e *domain.Event) error
}

// Routes is the subset of Router the intake path needs.
type Routes interface {
	GetRoutesForEvent(event *domain.Event) []*domain.PlatformDefinition
	GetValidationPlatform() *domain.PlatformDefinition
}

// Enqueuer is the subset of Queue the intake path needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, eventID, platformID int64, delay time.Duration, maxRetries int) (*domain.QueueJob, error)
}

// ValidationBudget tracks the ZeroBounce-style daily call budget per
// platform (spec §9: the daily-limit counter must actually gate calls,
// not just persist unused).
type ValidationBudget interface {
	ValidationBudgetUsed(ctx context.Context, platformCode string, day time.Time) (int, error)
	IncrementValidationBudget(ctx context.Context, platformCode string, day time.Time) (int, error)
}

// IntakeResult is the outcome reported to the HTTP layer (spec §4.2 step
// 8, §6).
type IntakeResult struct {
	Success         bool
	Blocked         bool
	EventID         string
	QueuedPlatforms int
}

// Intake runs the full ingest orchestration described in spec §4.2.
type Intake struct {
	store     EventStore
	validator *validator.Validator
	linker    *linker.Linker
	router    Routes
	queue     Enqueuer
	budget    ValidationBudget
	dailyCap  int
}

// NewIntake wires the ingest path's dependencies. dailyCap is the
// configured ZeroBounce-style daily validation-call budget
// (config.ValidationConfig.DailyLimitOrDefault()); once a validation
// platform's usage for today reaches it, priority revalidation enqueues
// are skipped rather than silently exceeding the configured cap.
func NewIntake(store EventStore, v *validator.Validator, l *linker.Linker, r Routes, q Enqueuer, budget ValidationBudget, dailyCap int) *Intake {
	return &Intake{store: store, validator: v, linker: l, router: r, queue: q, budget: budget, dailyCap: dailyCap}
}

// Submit accepts one raw submission of the given type (spec §4.2).
func (in *Intake) Submit(ctx context.Context, eventType domain.EventType, raw map[string]any, ip string) (IntakeResult, error) {
	event := buildEvent(eventType, raw, ip)

	verdict := in.validator.Validate(ctx, validator.Input{Email: event.Email, Phone: event.Phone, IP: ip, RawFields: raw})
	if verdict.CanonicalPhone != "" {
		event.Phone = verdict.CanonicalPhone
	}

	if !verdict.Valid {
		event.Status = domain.EventBlocked
		event.BlockedReason = blockedReason(verdict)
		if err := in.store.CreateEvent(ctx, event); err != nil {
			return IntakeResult{}, fmt.Errorf("persist blocked event: %w", err)
		}
		return IntakeResult{Success: true, Blocked: true, EventID: event.EventID}, nil
	}

	event.Status = domain.EventPending
	if err := in.store.CreateEvent(ctx, event); err != nil {
		return IntakeResult{}, fmt.Errorf("persist event: %w", err)
	}

	if event.IsPurchase() {
		in.linker.LinkPurchase(ctx, event)
	}

	queued := 0
	for _, platform := range in.router.GetRoutesForEvent(event) {
		if _, err := in.queue.Enqueue(ctx, event.ID, platform.ID, 0, platform.DefaultMaxRetries); err != nil {
			logger.Warn("intake: enqueue failed", "error", err, "event_id", event.EventID, "platform_id", platform.ID)
			continue
		}
		queued++
	}

	if verdict.NeedsRevalidation && event.Email != "" {
		if vp := in.router.GetValidationPlatform(); vp != nil {
			if in.withinValidationBudget(ctx, vp.Code) {
				if _, err := in.queue.Enqueue(ctx, event.ID, vp.ID, 0, vp.DefaultMaxRetries); err != nil {
					logger.Warn("intake: priority validation enqueue failed", "error", err, "event_id", event.EventID)
				} else {
					queued++
				}
			} else {
				logger.Warn("intake: validation daily budget exhausted, skipping priority revalidation", "event_id", event.EventID, "platform_code", vp.Code)
			}
		}
	}

	return IntakeResult{Success: true, EventID: event.EventID, QueuedPlatforms: queued}, nil
}

// withinValidationBudget reports whether platformCode still has daily
// validation-call budget remaining, incrementing its counter when it
// does. A nil budget or non-positive cap leaves validation unbounded.
func (in *Intake) withinValidationBudget(ctx context.Context, platformCode string) bool {
	if in.budget == nil || in.dailyCap <= 0 {
		return true
	}
	today := time.Now()
	used, err := in.budget.ValidationBudgetUsed(ctx, platformCode, today)
	if err != nil {
		logger.Warn("intake: validation budget lookup failed, allowing call", "error", err, "platform_code", platformCode)
		return true
	}
	if used >= in.dailyCap {
		return false
	}
	if _, err := in.budget.IncrementValidationBudget(ctx, platformCode, today); err != nil {
		logger.Warn("intake: validation budget increment failed", "error", err, "platform_code", platformCode)
	}
	return true
}

// blockedReason composes the event's blocked_reason per spec §4.2 step 2.
func blockedReason(v validator.Result) string {
	if v.IsBot {
		return "bot_detected:" + v.BotReason
	}
	return "validation_failed:" + strings.Join(v.Errors, ",")
}

// buildEvent constructs an Event from a raw submission map (spec §4.2
// step 1): UUID assignment, email fingerprinting, name splitting,
// attribution-block copying, and residual-field stashing.
func buildEvent(eventType domain.EventType, raw map[string]any, ip string) *domain.Event {
	e := &domain.Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		IP:        ip,
		EventData: map[string]any{},
	}

	e.Email = strings.TrimSpace(stringField(raw, "email"))
	if e.Email != "" {
		e.EmailMD5 = fingerprintEmail(e.Email)
	}
	e.Phone = stringField(raw, "phone")

	e.FirstName, e.LastName = splitName(raw)

	e.Acquisition = domain.Acquisition{
		Source:    stringField(raw, "acq_source"),
		Campaign:  stringField(raw, "acq_campaign"),
		Term:      stringField(raw, "acq_term"),
		Date:      stringField(raw, "acq_date"),
		FormTitle: stringField(raw, "acq_form_title"),
	}
	e.Current = domain.CurrentTouch{
		Source:     stringField(raw, "cur_source"),
		Medium:     stringField(raw, "cur_medium"),
		Campaign:   stringField(raw, "cur_campaign"),
		Content:    stringField(raw, "cur_content"),
		Term:       stringField(raw, "cur_term"),
		GCLID:      stringField(raw, "gclid"),
		GAClientID: stringField(raw, "ga_client_id"),
	}

	if eventType == domain.EventTypePurchase {
		e.PurchaseInfo = domain.Purchase{
			Offer:         stringField(raw, "purchase_offer"),
			Publisher:     stringField(raw, "purchase_publisher"),
			Amount:        floatField(raw, "purchase_amount"),
			TrafficSource: stringField(raw, "purchase_traffic_source"),
		}
	}

	for k, v := range raw {
		if isKnownKey(k) {
			continue
		}
		e.EventData[k] = v
	}

	return e
}

func splitName(raw map[string]any) (first, last string) {
	if f := stringField(raw, "first_name"); f != "" {
		return f, stringField(raw, "last_name")
	}
	full := strings.TrimSpace(stringField(raw, "name"))
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func fingerprintEmail(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func floatField(raw map[string]any, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func isKnownKey(key string) bool {
	for _, set := range [][]string{topLevelKeys, acquisitionKeys, currentKeys, purchaseKeys} {
		for _, k := range set {
			if k == key {
				return true
			}
		}
	}
	return false
}
