package adapter

import (
	"fmt"
	"sync"

	"github.com/ignite/eventflow/internal/domain"
)

// Constructor builds an Adapter from its merged Config, validating
// config at construction (spec §4.5 validateConfig "at construction").
type Constructor func(cfg Config) (Adapter, error)

// Factory is the code → constructor registry (spec §9 "a registry map
// code → constructor(config)").
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory returns a Factory pre-registered with every adapter this
// deployment ships: the platform_type default implementations.
func NewFactory() *Factory {
	f := &Factory{constructors: map[string]Constructor{}}
	f.Register("zerobounce", NewZeroBounceAdapter)
	f.Register("crm", NewCRMAdapter)
	f.Register("analytics", NewAnalyticsAdapter)
	f.Register("sms", NewSMSAdapter)
	f.Register("monetization", NewMonetizationAdapter)
	f.Register("email_list", NewEmailListAdapter)
	return f
}

// Register installs or overrides the constructor for a platform code.
func (f *Factory) Register(code string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[code] = ctor
}

// Build constructs the Adapter for platform, merging its api_config
// into the flat Config before calling the registered constructor (spec
// §4.5 "construction merges... api_config", §4.7 `AdapterFactory`).
func (f *Factory) Build(platform *domain.PlatformDefinition) (Adapter, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[platform.Code]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adapter factory: no constructor registered for platform code %q", platform.Code)
	}
	return ctor(MergeConfig(platform))
}
