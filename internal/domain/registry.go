package domain

import "time"

// IdentifierType enumerates the kinds of identifier a BotEntry can be
// keyed by (spec §3).
type IdentifierType string

const (
	IdentifierEmail IdentifierType = "email"
	IdentifierPhone IdentifierType = "phone"
	IdentifierIP    IdentifierType = "ip"
)

// BotSeverity enumerates a BotEntry's escalation level, promoted purely
// by attempt count (spec §3: >=5 medium, >=10 high).
type BotSeverity string

const (
	SeverityLow    BotSeverity = "low"
	SeverityMedium BotSeverity = "medium"
	SeverityHigh   BotSeverity = "high"
)

// SeverityForAttempts derives the BotSeverity implied by an attempt count.
func SeverityForAttempts(attempts int) BotSeverity {
	switch {
	case attempts >= 10:
		return SeverityHigh
	case attempts >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// BotEntry records a detected bot identifier along with every identifier
// observed co-occurring with it across submissions (spec §3, §4.1).
type BotEntry struct {
	ID int64 `json:"id" db:"id"`

	IdentifierType  IdentifierType `json:"identifier_type" db:"identifier_type"`
	IdentifierValue string         `json:"identifier_value" db:"identifier_value"`

	DetectionMethod string   `json:"detection_method" db:"detection_method"`
	HoneypotFields  []string `json:"honeypot_fields,omitempty" db:"honeypot_fields"`

	AttemptCount int         `json:"attempt_count" db:"attempt_count"`
	Severity     BotSeverity `json:"severity" db:"severity"`

	AssociatedEmails []string `json:"associated_emails,omitempty" db:"associated_emails"`
	AssociatedPhones []string `json:"associated_phones,omitempty" db:"associated_phones"`
	AssociatedIPs    []string `json:"associated_ips,omitempty" db:"associated_ips"`

	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
}

// Associates reports whether value is either this entry's primary key or
// one of its associated identifiers of the given kind (spec §4.1 "Known-bot").
func (b *BotEntry) Associates(kind IdentifierType, value string) bool {
	if value == "" {
		return false
	}
	if b.IdentifierType == kind && b.IdentifierValue == value {
		return true
	}
	var set []string
	switch kind {
	case IdentifierEmail:
		set = b.AssociatedEmails
	case IdentifierPhone:
		set = b.AssociatedPhones
	case IdentifierIP:
		set = b.AssociatedIPs
	}
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// EmailValidationSubstatus carries the raw ZeroBounce-style substatus,
// used to recognize the permanent-invalid set that bypasses revalidation.
type EmailValidationSubstatus string

const (
	SubstatusMailboxNotFound EmailValidationSubstatus = "mailbox_not_found"
	SubstatusMailboxInvalid  EmailValidationSubstatus = "mailbox_invalid"
	SubstatusNoDNSEntries    EmailValidationSubstatus = "no_dns_entries"
)

// IsPermanentInvalid reports whether this substatus is one of the
// permanent-invalid set that must never be revalidated (spec §3).
func (s EmailValidationSubstatus) IsPermanentInvalid() bool {
	switch s {
	case SubstatusMailboxNotFound, SubstatusMailboxInvalid, SubstatusNoDNSEntries:
		return true
	default:
		return false
	}
}

// EmailValidationEntry is the email-validation cache keyed by email
// (spec §3, §4.1). Entries track validation history so the Processor can
// decide whether a cached verdict needs revalidation.
type EmailValidationEntry struct {
	ID    int64  `json:"id" db:"id"`
	Email string `json:"email" db:"email"`

	Status    EmailValidationStatus   `json:"status" db:"status"`
	Substatus EmailValidationSubstatus `json:"substatus,omitempty" db:"substatus"`

	RawStatus    string `json:"raw_status,omitempty" db:"raw_status"`
	RawSubstatus string `json:"raw_substatus,omitempty" db:"raw_substatus"`
	ActiveInDays int    `json:"active_in_days,omitempty" db:"active_in_days"`

	DidYouMean string `json:"did_you_mean,omitempty" db:"did_you_mean"`
	Domain     string `json:"domain,omitempty" db:"domain"`
	MXFound    bool   `json:"mx_found" db:"mx_found"`
	MXRecord   string `json:"mx_record,omitempty" db:"mx_record"`

	ValidationCount int `json:"validation_count" db:"validation_count"`

	FirstSeenValidAt   *time.Time `json:"first_seen_valid_at,omitempty" db:"first_seen_valid_at"`
	FirstSeenInvalidAt *time.Time `json:"first_seen_invalid_at,omitempty" db:"first_seen_invalid_at"`

	StatusHistory []EmailValidationStatusChange `json:"status_history,omitempty" db:"status_history"`

	LastValidatedAt time.Time `json:"last_validated_at" db:"last_validated_at"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// EmailValidationStatusChange is one entry of an EmailValidationEntry's
// audit trail.
type EmailValidationStatusChange struct {
	From      EmailValidationStatus `json:"from"`
	To        EmailValidationStatus `json:"to"`
	ChangedAt time.Time             `json:"changed_at"`
}

// NeedsRevalidation reports whether this entry's cached verdict is stale
// (spec §4.1): older than ttl and not permanently invalid.
func (e *EmailValidationEntry) NeedsRevalidation(ttl time.Duration, now time.Time) bool {
	if e.Substatus.IsPermanentInvalid() {
		return false
	}
	return now.Sub(e.LastValidatedAt) > ttl
}

// IsGoodForDownstream reports whether the cached entry counts as a valid
// email at intake: valid, catch-all, unknown or role. Unlike
// EmailValidationStatus.GoodForDownstream it accepts role (spec §4.1 step 3).
func (e *EmailValidationEntry) IsGoodForDownstream() bool {
	switch e.Status {
	case EmailValidationValid, EmailValidationCatchAll, EmailValidationUnknown, EmailValidationRole:
		return true
	default:
		return false
	}
}
