package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ignite/eventflow/internal/domain"
)

func testConfig(baseURL string, extra map[string]any) Config {
	cfg := Config{Values: map[string]any{"base_url": baseURL}}
	for k, v := range extra {
		cfg.Values[k] = v
	}
	return cfg
}

func TestZeroBounceAdapterSendParsesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "valid", "sub_status": "", "activeindays": "45"})
	}))
	defer srv.Close()

	a, err := NewZeroBounceAdapter(testConfig(srv.URL, map[string]any{"api_key": "k"}))
	if err != nil {
		t.Fatalf("NewZeroBounceAdapter: %v", err)
	}

	result, err := a.Send(context.Background(), &domain.Event{Email: "lead@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success || result.ValidationData == nil {
		t.Fatalf("expected successful validation result, got %+v", result)
	}
	if result.ValidationData.Status != "valid" || result.ValidationData.ActiveInDays != 45 {
		t.Errorf("unexpected validation data: %+v", result.ValidationData)
	}
}

func TestZeroBounceAdapterRequiresAPIKey(t *testing.T) {
	if _, err := NewZeroBounceAdapter(testConfig("http://example.invalid", nil)); err == nil {
		t.Fatal("expected ValidateConfig to reject a missing api_key")
	}
}

func TestCRMAdapterStampsExistingContact(t *testing.T) {
	var secondCallMade bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			secondCallMade = true
			w.WriteHeader(http.StatusOK)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"contact_id": "c-1", "existing": true})
	}))
	defer srv.Close()

	a, err := NewCRMAdapter(testConfig(srv.URL, map[string]any{"api_key": "k"}))
	if err != nil {
		t.Fatalf("NewCRMAdapter: %v", err)
	}

	result, err := a.Send(context.Background(), &domain.Event{Email: "lead@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success || result.ContactID != "c-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !secondCallMade {
		t.Error("expected a second call to stamp last_submission_at for an existing contact")
	}
}

func TestCRMAdapterSkipsSecondCallForNewContact(t *testing.T) {
	var patchCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			patchCalls++
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"contact_id": "c-2", "existing": false})
	}))
	defer srv.Close()

	a, _ := NewCRMAdapter(testConfig(srv.URL, map[string]any{"api_key": "k"}))
	if _, err := a.Send(context.Background(), &domain.Event{Email: "new@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if patchCalls != 0 {
		t.Errorf("expected no stamp call for a brand-new contact, got %d", patchCalls)
	}
}

func TestSMSAdapterRejectsShortPhone(t *testing.T) {
	a, err := NewSMSAdapter(testConfig("http://example.invalid", map[string]any{"api_key": "k", "from_number": "18005550100"}))
	if err != nil {
		t.Fatalf("NewSMSAdapter: %v", err)
	}
	result, err := a.Send(context.Background(), &domain.Event{Phone: "12345"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Success || result.Error != "Invalid or missing phone number" {
		t.Fatalf("expected short phone to be rejected, got %+v", result)
	}
}

func TestSMSAdapterSendsWithValidPhone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("queued"))
	}))
	defer srv.Close()

	a, _ := NewSMSAdapter(testConfig(srv.URL, map[string]any{"api_key": "k", "from_number": "18005550100"}))
	result, err := a.Send(context.Background(), &domain.Event{Phone: "18005551234"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success for an 11-digit phone, got %+v", result)
	}
}

func TestMonetizationAdapterCreditsRevenueOnSuccessString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Success"))
	}))
	defer srv.Close()

	a, _ := NewMonetizationAdapter(testConfig(srv.URL, map[string]any{"api_key": "k"}))
	result, err := a.Send(context.Background(), &domain.Event{Email: "lead@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Revenue != DefaultRevenuePerLead {
		t.Errorf("Revenue = %v, want %v", result.Revenue, DefaultRevenuePerLead)
	}
}

func TestMonetizationAdapterNoRevenueOnOtherResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Duplicate"))
	}))
	defer srv.Close()

	a, _ := NewMonetizationAdapter(testConfig(srv.URL, map[string]any{"api_key": "k"}))
	result, err := a.Send(context.Background(), &domain.Event{Email: "lead@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Revenue != 0 {
		t.Errorf("expected zero revenue for a non-Success response, got %v", result.Revenue)
	}
}

func TestMonetizationAdapterCustomRevenuePerLead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Success"))
	}))
	defer srv.Close()

	a, _ := NewMonetizationAdapter(testConfig(srv.URL, map[string]any{"api_key": "k", "revenue_per_lead": 5.5}))
	result, err := a.Send(context.Background(), &domain.Event{Email: "lead@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Revenue != 5.5 {
		t.Errorf("Revenue = %v, want 5.5", result.Revenue)
	}
}

func TestEmailListAdapterRequiresListID(t *testing.T) {
	if _, err := NewEmailListAdapter(testConfig("http://example.invalid", map[string]any{"api_key": "k"})); err == nil {
		t.Fatal("expected ValidateConfig to reject a missing list_id")
	}
}

func TestAnalyticsAdapterFailsOnIdentifyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, err := NewAnalyticsAdapter(testConfig(srv.URL, map[string]any{"write_key": "k"}))
	if err != nil {
		t.Fatalf("NewAnalyticsAdapter: %v", err)
	}
	result, err := a.Send(context.Background(), &domain.Event{Email: "lead@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Success {
		t.Fatal("expected a failing identify call to fail the overall send")
	}
}

func TestAnalyticsAdapterSucceedsOnMandatoryCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, _ := NewAnalyticsAdapter(testConfig(srv.URL, map[string]any{"write_key": "k"}))
	result, err := a.Send(context.Background(), &domain.Event{Email: "lead@example.com", Phone: "18005550100"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success when identify and primary event both succeed, got %+v", result)
	}
}

func TestMergeConfigFlattensAPIConfig(t *testing.T) {
	platform := &domain.PlatformDefinition{
		Code:              "crm",
		DefaultMaxRetries: 2,
		DefaultTimeoutSec: 10,
		APIConfig:         map[string]any{"api_key": "k", "base_url": "http://example.com"},
	}
	cfg := MergeConfig(platform)
	if cfg.String("api_key") != "k" || cfg.String("base_url") != "http://example.com" {
		t.Fatalf("expected api_config to be merged into Config.Values, got %+v", cfg.Values)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.MaxRetries)
	}
}

func TestFactoryBuildUnknownCode(t *testing.T) {
	f := NewFactory()
	_, err := f.Build(&domain.PlatformDefinition{Code: "nonexistent"})
	if err == nil {
		t.Fatal("expected an error for an unregistered platform code")
	}
}

func TestFactoryBuildKnownCode(t *testing.T) {
	f := NewFactory()
	a, err := f.Build(&domain.PlatformDefinition{
		Code:      "crm",
		APIConfig: map[string]any{"api_key": "k", "base_url": "http://example.com"},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a == nil {
		t.Fatal("expected a non-nil adapter")
	}
}
