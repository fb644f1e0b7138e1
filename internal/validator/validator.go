// Package validator runs the pre-persistence checks that gate intake:
// honeypot detection, known-bot lookup, cached email validity, format
// checks, and phone canonicalization (spec §2 component D, §4.1).
package validator

import (
	"context"
	"time"

	"github.com/ignite/eventflow/internal/pkg/logger"
	"github.com/ignite/eventflow/internal/registry"
)

// DefaultHoneypotFields is the fixed, configurable field set checked on
// every submission (spec §4.1 step 1).
var DefaultHoneypotFields = []string{"zipcode", "phonenumber"}

// Result is the Validator's verdict for one submission (spec §4.1).
type Result struct {
	Valid                 bool
	IsBot                 bool
	BotReason             string
	EmailValid            *bool
	EmailValidationSource string // "cache" or ""
	NeedsRevalidation     bool
	CanonicalPhone        string
	Errors                []string
}

// Input is the subset of an in-progress Event plus the raw submitted
// map the Validator needs.
type Input struct {
	Email     string
	Phone     string
	IP        string
	RawFields map[string]any
}

// Validator runs the intake gate described in spec §4.1.
type Validator struct {
	botRegistry   *registry.BotRegistry
	emailRegistry *registry.EmailValidationRegistry
	honeypotFields []string
}

// New constructs a Validator against the given registries. honeypotFields
// overrides DefaultHoneypotFields when non-empty.
func New(botRegistry *registry.BotRegistry, emailRegistry *registry.EmailValidationRegistry, honeypotFields []string) *Validator {
	if len(honeypotFields) == 0 {
		honeypotFields = DefaultHoneypotFields
	}
	return &Validator{botRegistry: botRegistry, emailRegistry: emailRegistry, honeypotFields: honeypotFields}
}

// Validate runs the full sequence, short-circuiting on bot detection
// (spec §4.1).
func (v *Validator) Validate(ctx context.Context, in Input) Result {
	sub := registry.Submission{Email: in.Email, Phone: in.Phone, IP: in.IP}

	// Step 1: honeypot.
	if triggered := triggeredHoneypotFields(in.RawFields, v.honeypotFields); len(triggered) > 0 {
		v.botRegistry.RecordHoneypot(ctx, sub, triggered)
		return Result{Valid: false, IsBot: true, BotReason: "honeypot_triggered"}
	}

	// Step 2: known-bot.
	isBot, err := v.botRegistry.IsBot(ctx, sub)
	if err != nil {
		logger.Warn("validator: bot lookup failed", "error", err)
	}
	if isBot {
		return Result{Valid: false, IsBot: true, BotReason: "known_bot"}
	}

	result := Result{Valid: true}

	// Step 3: cached email validity.
	if in.Email != "" {
		lookup, err := v.emailRegistry.Lookup(ctx, in.Email)
		if err != nil {
			logger.Warn("validator: email cache lookup failed", "error", err, "email", in.Email)
		} else if lookup.Found {
			emailValid := lookup.EmailValid
			result.EmailValid = &emailValid
			result.EmailValidationSource = "cache"
			result.NeedsRevalidation = lookup.NeedsRevalidation
			if !emailValid {
				result.Valid = false
				result.Errors = append(result.Errors, "Email address is invalid")
			}
		} else {
			result.NeedsRevalidation = true
		}
	}

	// Step 4: format validation.
	if in.Email != "" && !IsValidEmailFormat(in.Email) {
		result.Valid = false
		emailValid := false
		result.EmailValid = &emailValid
		result.Errors = append(result.Errors, "Email address format is invalid")
	}

	// Step 5: phone canonicalization.
	if in.Phone != "" {
		canonical, ok := CanonicalizePhone(in.Phone)
		if !ok {
			result.Errors = append(result.Errors, "Phone number format is invalid")
		} else {
			result.CanonicalPhone = canonical
		}
	}

	return result
}

// triggeredHoneypotFields returns which of the configured honeypot field
// names are present and non-empty in the raw submission.
func triggeredHoneypotFields(raw map[string]any, fields []string) []string {
	var triggered []string
	for _, f := range fields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if ok && s == "" {
			continue
		}
		triggered = append(triggered, f)
	}
	return triggered
}

// CacheTTLDefault is used by callers that construct a Validator without
// going through config, kept here so the default lives next to its user.
const CacheTTLDefault = 30 * 24 * time.Hour
