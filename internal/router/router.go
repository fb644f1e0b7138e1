// Package router resolves an Event to its ordered list of platform
// targets using cached platforms and routing rules (spec §2 component E,
// §4.3).
package router

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ignite/eventflow/internal/domain"
)

// Repository is the persistence contract the Router needs to populate
// and reload its caches; satisfied by internal/store/postgres.Store.
type Repository interface {
	ListActivePlatforms(ctx context.Context) ([]*domain.PlatformDefinition, error)
	ListActiveRoutingRules(ctx context.Context) ([]*domain.RoutingRule, error)
}

// Router holds the platform and rule caches, guarded by mu. Reload is
// the only mutator: it builds fresh maps and swaps them in under the
// write lock, so it may run concurrently with GetRoutesForEvent (spec §9
// "Router caches").
type Router struct {
	repo Repository

	mu               sync.RWMutex
	platformsByID    map[int64]*domain.PlatformDefinition
	platformsByCode  map[string]*domain.PlatformDefinition
	rulesByEventType map[domain.EventType][]*domain.RoutingRule
}

// New constructs a Router and populates its caches from repo.
func New(ctx context.Context, repo Repository) (*Router, error) {
	r := &Router{repo: repo}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload repopulates every cache from the repository. Intended for
// offline/admin use, not called under load from workers (spec §9).
func (r *Router) Reload(ctx context.Context) error {
	platforms, err := r.repo.ListActivePlatforms(ctx)
	if err != nil {
		return fmt.Errorf("router: reload platforms: %w", err)
	}
	rules, err := r.repo.ListActiveRoutingRules(ctx)
	if err != nil {
		return fmt.Errorf("router: reload rules: %w", err)
	}

	byID := make(map[int64]*domain.PlatformDefinition, len(platforms))
	byCode := make(map[string]*domain.PlatformDefinition, len(platforms))
	for _, p := range platforms {
		byID[p.ID] = p
		byCode[p.Code] = p
	}

	byEventType := make(map[domain.EventType][]*domain.RoutingRule)
	for _, rule := range rules {
		byEventType[rule.EventType] = append(byEventType[rule.EventType], rule)
	}
	for _, bucket := range byEventType {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].Priority < bucket[j].Priority })
	}

	r.mu.Lock()
	r.platformsByID = byID
	r.platformsByCode = byCode
	r.rulesByEventType = byEventType
	r.mu.Unlock()
	return nil
}

// PlatformCount reports how many active platforms are currently
// cached, used by the health check's platforms component.
func (r *Router) PlatformCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.platformsByID)
}

// GetPlatformByID returns the active platform cached under id, or nil.
func (r *Router) GetPlatformByID(id int64) *domain.PlatformDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.platformsByID[id]
}

// GetPlatformByCode returns the active platform cached under code, or nil.
func (r *Router) GetPlatformByCode(code string) *domain.PlatformDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.platformsByCode[code]
}

// GetValidationPlatform returns the active platform tagged as the
// email-validation platform (spec §4.3 getValidationPlatform), or nil.
func (r *Router) GetValidationPlatform() *domain.PlatformDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.platformsByID {
		if p.IsValidationPlatform() {
			return p
		}
	}
	return nil
}

// GetRoutesForEvent evaluates every rule for event.EventType against the
// event and returns the deduped, priority-ordered list of target
// platforms (spec §4.3 getRoutesForEvent).
func (r *Router) GetRoutesForEvent(event *domain.Event) []*domain.PlatformDefinition {
	r.mu.RLock()
	rules := r.rulesByEventType[event.EventType]
	platformsByID := r.platformsByID
	r.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	seen := make(map[int64]bool)
	var out []*domain.PlatformDefinition
	for _, rule := range rules {
		if !matchesAll(rule.Conditions, event) {
			continue
		}
		platform, ok := platformsByID[rule.PlatformID]
		if !ok || seen[platform.ID] {
			continue
		}
		seen[platform.ID] = true
		out = append(out, platform)
	}

	sort.SliceStable(out, func(i, j int) bool { return priorityFor(rules, out[i].ID) < priorityFor(rules, out[j].ID) })
	return out
}

// priorityFor returns the lowest rule priority that routes to platformID,
// used to keep the final output ordered by the rule priority that
// selected each platform rather than platform id.
func priorityFor(rules []*domain.RoutingRule, platformID int64) int {
	best := int(^uint(0) >> 1) // max int
	for _, rule := range rules {
		if rule.PlatformID == platformID && rule.Priority < best {
			best = rule.Priority
		}
	}
	return best
}

// matchesAll reports whether every condition in the conjunction holds
// against event (spec §4.3 "Condition predicates").
func matchesAll(conditions []domain.Condition, event *domain.Event) bool {
	for _, c := range conditions {
		if !matches(c, event) {
			return false
		}
	}
	return true
}

func matches(c domain.Condition, event *domain.Event) bool {
	actual, ok := fieldValue(c.Field, event)
	if !ok {
		return false
	}
	switch c.Op {
	case domain.OpEq:
		return equalLoose(actual, c.Value)
	case domain.OpNotEq:
		return !equalLoose(actual, c.Value)
	case domain.OpContains:
		return strings.Contains(strings.ToLower(toString(actual)), strings.ToLower(toString(c.Value)))
	case domain.OpNotContains:
		return !strings.Contains(strings.ToLower(toString(actual)), strings.ToLower(toString(c.Value)))
	case domain.OpIn:
		return containsLoose(c.Values, actual)
	case domain.OpNotIn:
		return !containsLoose(c.Values, actual)
	case domain.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(c.Value)
		return aok && bok && a > b
	case domain.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(c.Value)
		return aok && bok && a < b
	case domain.OpRegex:
		re, err := compiledRegexCache.get(toString(c.Value))
		return err == nil && re.MatchString(toString(actual))
	default:
		return false
	}
}

// fieldValue resolves a condition's field against event, including the
// virtual fields computed from it (spec §4.3 "Virtual fields").
func fieldValue(field string, event *domain.Event) (any, bool) {
	switch field {
	case "email_domain":
		return event.EmailDomain(), true
	case "has_phone":
		return event.Phone != "", true
	case "revenue_amount":
		if event.PurchaseInfo.Amount != 0 {
			return event.PurchaseInfo.Amount, true
		}
		return float64(0), true
	case "is_gmail":
		return strings.HasSuffix(strings.ToLower(event.Email), "@gmail.com"), true
	case "is_mobile":
		return event.Phone != "" && countDigits(event.Phone) >= 10, true
	case "email":
		return event.Email, true
	case "phone":
		return event.Phone, true
	case "event_type":
		return string(event.EventType), true
	case "email_validation_status":
		return string(event.EmailValidationStatus), true
	default:
		if v, ok := event.EventData[field]; ok {
			return v, true
		}
		return nil, false
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func equalLoose(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func containsLoose(values []any, actual any) bool {
	for _, v := range values {
		if equalLoose(actual, v) {
			return true
		}
	}
	return false
}
