package router

import (
	"context"
	"testing"

	"github.com/ignite/eventflow/internal/domain"
)

type fakeRepo struct {
	platforms []*domain.PlatformDefinition
	rules     []*domain.RoutingRule
}

func (f *fakeRepo) ListActivePlatforms(context.Context) ([]*domain.PlatformDefinition, error) {
	return f.platforms, nil
}

func (f *fakeRepo) ListActiveRoutingRules(context.Context) ([]*domain.RoutingRule, error) {
	return f.rules, nil
}

func testRouter(t *testing.T, platforms []*domain.PlatformDefinition, rules []*domain.RoutingRule) *Router {
	t.Helper()
	r, err := New(context.Background(), &fakeRepo{platforms: platforms, rules: rules})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestGetRoutesForEventNoRulesForType(t *testing.T) {
	r := testRouter(t, nil, nil)
	got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead})
	if len(got) != 0 {
		t.Fatalf("expected no routes, got %v", got)
	}
}

func TestGetRoutesForEventScalarEquality(t *testing.T) {
	platforms := []*domain.PlatformDefinition{{ID: 1, Code: "crm", IsActive: true, Priority: 1}}
	rules := []*domain.RoutingRule{
		{ID: 1, EventType: domain.EventTypeLead, PlatformID: 1, IsActive: true, Priority: 1,
			Conditions: []domain.Condition{{Field: "email_domain", Op: domain.OpEq, Value: "example.com"}}},
	}
	r := testRouter(t, platforms, rules)

	matched := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead, Email: "a@example.com"})
	if len(matched) != 1 || matched[0].Code != "crm" {
		t.Fatalf("expected crm route to match, got %v", matched)
	}

	unmatched := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead, Email: "a@other.com"})
	if len(unmatched) != 0 {
		t.Fatalf("expected no match for different domain, got %v", unmatched)
	}
}

func TestGetRoutesForEventDedupesAndOrdersByPriority(t *testing.T) {
	platforms := []*domain.PlatformDefinition{
		{ID: 1, Code: "crm", IsActive: true},
		{ID: 2, Code: "analytics", IsActive: true},
	}
	rules := []*domain.RoutingRule{
		{ID: 1, EventType: domain.EventTypeLead, PlatformID: 2, IsActive: true, Priority: 5},
		{ID: 2, EventType: domain.EventTypeLead, PlatformID: 1, IsActive: true, Priority: 1},
		{ID: 3, EventType: domain.EventTypeLead, PlatformID: 1, IsActive: true, Priority: 1},
	}
	r := testRouter(t, platforms, rules)

	got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead})
	if len(got) != 2 {
		t.Fatalf("expected 2 deduped platforms, got %d: %v", len(got), got)
	}
	if got[0].Code != "crm" || got[1].Code != "analytics" {
		t.Fatalf("expected crm before analytics by priority, got %v, %v", got[0].Code, got[1].Code)
	}
}

func TestGetRoutesForEventSkipsInactivePlatform(t *testing.T) {
	rules := []*domain.RoutingRule{
		{ID: 1, EventType: domain.EventTypeLead, PlatformID: 99, IsActive: true, Priority: 1},
	}
	r := testRouter(t, nil, rules)
	got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead})
	if len(got) != 0 {
		t.Fatalf("expected no routes for an inactive/missing platform, got %v", got)
	}
}

func TestVirtualFieldIsGmail(t *testing.T) {
	platforms := []*domain.PlatformDefinition{{ID: 1, Code: "crm", IsActive: true}}
	rules := []*domain.RoutingRule{
		{ID: 1, EventType: domain.EventTypeLead, PlatformID: 1, IsActive: true,
			Conditions: []domain.Condition{{Field: "is_gmail", Op: domain.OpEq, Value: true}}},
	}
	r := testRouter(t, platforms, rules)

	if got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead, Email: "x@GMAIL.com"}); len(got) != 1 {
		t.Errorf("expected gmail address to match is_gmail condition, got %v", got)
	}
	if got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead, Email: "x@yahoo.com"}); len(got) != 0 {
		t.Errorf("expected non-gmail address to not match, got %v", got)
	}
}

func TestVirtualFieldIsMobile(t *testing.T) {
	platforms := []*domain.PlatformDefinition{{ID: 1, Code: "sms", IsActive: true}}
	rules := []*domain.RoutingRule{
		{ID: 1, EventType: domain.EventTypeLead, PlatformID: 1, IsActive: true,
			Conditions: []domain.Condition{{Field: "is_mobile", Op: domain.OpEq, Value: true}}},
	}
	r := testRouter(t, platforms, rules)

	if got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead, Phone: "18005550100"}); len(got) != 1 {
		t.Errorf("expected 11-digit phone to match is_mobile, got %v", got)
	}
	if got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead, Phone: "12345"}); len(got) != 0 {
		t.Errorf("expected short phone to not match is_mobile, got %v", got)
	}
}

func TestVirtualFieldRevenueAmountGreaterThan(t *testing.T) {
	platforms := []*domain.PlatformDefinition{{ID: 1, Code: "monetization", IsActive: true}}
	rules := []*domain.RoutingRule{
		{ID: 1, EventType: domain.EventTypePurchase, PlatformID: 1, IsActive: true,
			Conditions: []domain.Condition{{Field: "revenue_amount", Op: domain.OpGreaterThan, Value: 10.0}}},
	}
	r := testRouter(t, platforms, rules)

	big := &domain.Event{EventType: domain.EventTypePurchase, PurchaseInfo: domain.Purchase{Amount: 25}}
	if got := r.GetRoutesForEvent(big); len(got) != 1 {
		t.Errorf("expected amount above threshold to match, got %v", got)
	}

	small := &domain.Event{EventType: domain.EventTypePurchase, PurchaseInfo: domain.Purchase{Amount: 1}}
	if got := r.GetRoutesForEvent(small); len(got) != 0 {
		t.Errorf("expected amount below threshold to not match, got %v", got)
	}
}

func TestConditionsAreConjunctive(t *testing.T) {
	platforms := []*domain.PlatformDefinition{{ID: 1, Code: "crm", IsActive: true}}
	rules := []*domain.RoutingRule{
		{ID: 1, EventType: domain.EventTypeLead, PlatformID: 1, IsActive: true, Conditions: []domain.Condition{
			{Field: "has_phone", Op: domain.OpEq, Value: true},
			{Field: "is_gmail", Op: domain.OpEq, Value: true},
		}},
	}
	r := testRouter(t, platforms, rules)

	both := &domain.Event{EventType: domain.EventTypeLead, Email: "a@gmail.com", Phone: "18005550100"}
	if got := r.GetRoutesForEvent(both); len(got) != 1 {
		t.Errorf("expected event satisfying both conditions to match, got %v", got)
	}

	onlyOne := &domain.Event{EventType: domain.EventTypeLead, Email: "a@gmail.com"}
	if got := r.GetRoutesForEvent(onlyOne); len(got) != 0 {
		t.Errorf("expected event satisfying only one condition to not match, got %v", got)
	}
}

func TestGetValidationPlatform(t *testing.T) {
	platforms := []*domain.PlatformDefinition{
		{ID: 1, Code: "crm", Type: domain.PlatformCRM, IsActive: true},
		{ID: 2, Code: "zerobounce", Type: domain.PlatformValidation, IsActive: true},
	}
	r := testRouter(t, platforms, nil)

	p := r.GetValidationPlatform()
	if p == nil || p.Code != "zerobounce" {
		t.Fatalf("expected zerobounce to be returned as the validation platform, got %v", p)
	}
}

func TestReloadReplacesCaches(t *testing.T) {
	repo := &fakeRepo{
		platforms: []*domain.PlatformDefinition{{ID: 1, Code: "crm", IsActive: true}},
		rules: []*domain.RoutingRule{
			{ID: 1, EventType: domain.EventTypeLead, PlatformID: 1, IsActive: true},
		},
	}
	r, err := New(context.Background(), repo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead}); len(got) != 1 {
		t.Fatalf("expected initial route, got %v", got)
	}

	repo.rules = nil
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := r.GetRoutesForEvent(&domain.Event{EventType: domain.EventTypeLead}); len(got) != 0 {
		t.Fatalf("expected no routes after reload with no rules, got %v", got)
	}
}
