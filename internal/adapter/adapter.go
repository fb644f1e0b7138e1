// Package adapter implements the per-platform delivery contract (spec
// §2 component F, §4.5): one Adapter per platform_type, constructed
// through a code-keyed factory from a platform's merged api_config.
package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/httpretry"
)

// Result is what Adapter.Send returns (spec §4.5 send).
type Result struct {
	Success         bool
	ResponseCode    int
	PlatformResponse string
	Error           string
	Revenue         float64
	ValidationData  *ValidationData
	ContactID       string
}

// ValidationData is the validation-adapter's verdict payload (spec §4.7.b).
type ValidationData struct {
	Status       string
	SubStatus    string
	ActiveInDays int
}

// Adapter is the capability set every platform-specific sender exposes
// (spec §4.5, §9 "Polymorphism over platform adapters").
type Adapter interface {
	Send(ctx context.Context, event *domain.Event) (Result, error)
	MapFields(event *domain.Event) map[string]any
	ValidateConfig() error
	TestConnection(ctx context.Context) bool
}

// Config is the flattened construction input for an adapter: a
// platform's top-level fields plus its nested api_config merged in
// (spec §4.5 "Adapter construction merges...").
type Config struct {
	PlatformCode string
	Timeout      time.Duration
	MaxRetries   int
	Values       map[string]any
}

// String returns Values[key] as a string, or "" if absent/non-string.
func (c Config) String(key string) string {
	v, ok := c.Values[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Float64 returns Values[key] as a float64, falling back to def.
func (c Config) Float64(key string, def float64) float64 {
	switch v := c.Values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

// MergeConfig flattens a platform definition into a Config, merging its
// nested api_config map over the platform's own defaults (spec §4.5
// "Adapter construction merges any nested api_config map...").
func MergeConfig(platform *domain.PlatformDefinition) Config {
	cfg := Config{
		PlatformCode: platform.Code,
		Timeout:      time.Duration(platform.DefaultTimeoutSec) * time.Second,
		MaxRetries:   platform.DefaultMaxRetries,
		Values:       map[string]any{},
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	for k, v := range platform.APIConfig {
		cfg.Values[k] = v
	}
	return cfg
}

// newHTTPClient builds the retry-wrapped client every adapter's network
// I/O goes through (spec §4.5 "retry-with-exponential-backoff wrapper").
func newHTTPClient(cfg Config) *httpretry.RetryClient {
	base := &http.Client{Timeout: cfg.Timeout}
	return httpretry.NewRetryClient(base, cfg.MaxRetries)
}

// errConfig reports a non-retryable configuration problem (spec §7
// "Adapter: ConfigInvalid").
func errConfig(platform, msg string) error {
	return fmt.Errorf("adapter %s: config invalid: %s", platform, msg)
}
