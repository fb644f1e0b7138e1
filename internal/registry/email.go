package registry

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/eventflow/internal/domain"
)

// EmailValidationRepository is the persistence contract the
// EmailValidationRegistry needs; satisfied by internal/store/postgres.Store.
type EmailValidationRepository interface {
	FindEmailValidation(ctx context.Context, email string) (*domain.EmailValidationEntry, error)
	UpsertEmailValidation(ctx context.Context, e *domain.EmailValidationEntry) error
}

// EmailValidationRegistry is the email-verdict cache consulted during
// intake and updated by the validation-platform delivery path (spec §3
// EmailValidationEntry, §4.1 step 3, §4.7.b).
type EmailValidationRegistry struct {
	repo EmailValidationRepository
	ttl  time.Duration
}

// NewEmailValidationRegistry constructs a registry with the given cache TTL.
func NewEmailValidationRegistry(repo EmailValidationRepository, ttl time.Duration) *EmailValidationRegistry {
	return &EmailValidationRegistry{repo: repo, ttl: ttl}
}

// Lookup result for the Validator's cached-email-validity check (spec §4.1 step 3).
type LookupResult struct {
	Found             bool
	EmailValid        bool
	NeedsRevalidation bool
	Status            domain.EmailValidationStatus
}

// Lookup checks the cache for email and reports whether it is valid for
// downstream use and whether it needs revalidation against the TTL.
func (r *EmailValidationRegistry) Lookup(ctx context.Context, email string) (LookupResult, error) {
	entry, err := r.repo.FindEmailValidation(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return LookupResult{}, nil
	}
	if err != nil {
		return LookupResult{}, err
	}
	return LookupResult{
		Found:             true,
		EmailValid:        entry.IsGoodForDownstream(),
		NeedsRevalidation: entry.NeedsRevalidation(r.ttl, time.Now().UTC()),
		Status:            entry.Status,
	}, nil
}

// RecordVerdict upserts the cache entry for email with a freshly
// computed verdict (spec §4.7.b step 4).
func (r *EmailValidationRegistry) RecordVerdict(ctx context.Context, email string, status domain.EmailValidationStatus, substatus domain.EmailValidationSubstatus, rawStatus, rawSubstatus string, activeInDays int) error {
	entry := &domain.EmailValidationEntry{
		Email:        email,
		Status:       status,
		Substatus:    substatus,
		RawStatus:    rawStatus,
		RawSubstatus: rawSubstatus,
		ActiveInDays: activeInDays,
	}
	return r.repo.UpsertEmailValidation(ctx, entry)
}

// MapVerdict translates a validation platform's raw status string to the
// canonical EmailValidationStatus (spec §6 "Validation-platform verdict
// mapping").
func MapVerdict(rawStatus string) domain.EmailValidationStatus {
	switch rawStatus {
	case "valid":
		return domain.EmailValidationValid
	case "invalid", "spamtrap", "abuse", "do_not_mail", "toxic":
		return domain.EmailValidationInvalid
	case "catch-all":
		return domain.EmailValidationCatchAll
	case "role":
		return domain.EmailValidationRole
	case "disposable":
		return domain.EmailValidationDisposable
	default:
		return domain.EmailValidationUnknown
	}
}
