package domain

// PlatformType tags a platform's delivery capability, used by the
// Processor's shouldSkip and the Router's validation-platform lookup.
type PlatformType string

const (
	PlatformCRM          PlatformType = "crm"
	PlatformAnalytics    PlatformType = "analytics"
	PlatformSMS          PlatformType = "sms"
	PlatformValidation   PlatformType = "validation"
	PlatformMonetization PlatformType = "monetization"
	PlatformEmail        PlatformType = "email"
)

// PlatformDefinition describes a downstream platform that events can be
// fanned out to. Reloadable, immutable for the duration of a worker's
// in-memory lifetime.
type PlatformDefinition struct {
	ID           int64        `json:"id" db:"id"`
	Code         string       `json:"platform_code" db:"platform_code"`
	DisplayName  string       `json:"display_name" db:"display_name"`
	Type         PlatformType `json:"platform_type" db:"platform_type"`
	IsActive     bool         `json:"is_active" db:"is_active"`

	APIConfig map[string]any `json:"api_config,omitempty" db:"api_config"`

	DefaultMaxRetries int `json:"default_max_retries" db:"default_max_retries"`
	DefaultTimeoutSec int `json:"default_timeout_seconds" db:"default_timeout_seconds"`

	RequiresValidEmail bool `json:"requires_valid_email" db:"requires_valid_email"`
	Priority           int  `json:"priority" db:"priority"`
}

// IsValidationPlatform reports whether this platform is the privileged
// validation-first target (spec §4.3, §4.7.b).
func (p *PlatformDefinition) IsValidationPlatform() bool {
	return p.Type == PlatformValidation
}
