package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/httpretry"
)

// analyticsAdapter fires an identify call, a primary event call, and
// best-effort optional sub-events (SMS-event, co-branding-event). The
// send succeeds iff the two mandatory calls succeed (spec §4.5
// "Analytics adapter").
type analyticsAdapter struct {
	writeKey string
	baseURL  string
	client   *httpretry.RetryClient
}

// NewAnalyticsAdapter constructs an analytics adapter.
func NewAnalyticsAdapter(cfg Config) (Adapter, error) {
	a := &analyticsAdapter{
		writeKey: cfg.String("write_key"),
		baseURL:  cfg.String("base_url"),
		client:   newHTTPClient(cfg),
	}
	if a.baseURL == "" {
		a.baseURL = "https://api.segment.io/v1"
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *analyticsAdapter) ValidateConfig() error {
	if a.writeKey == "" {
		return errConfig("analytics", "write_key is required")
	}
	return nil
}

func (a *analyticsAdapter) MapFields(event *domain.Event) map[string]any {
	return map[string]any{
		"email":      event.Email,
		"event_type": string(event.EventType),
		"campaign":   event.Acquisition.Campaign,
	}
}

func (a *analyticsAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func (a *analyticsAdapter) Send(ctx context.Context, event *domain.Event) (Result, error) {
	if err := a.post(ctx, "identify", map[string]any{"userId": event.Email}); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("identify failed: %v", err)}, nil
	}

	eventName := "Lead Submitted"
	if event.IsPurchase() {
		eventName = "Purchase Completed"
	}
	if err := a.post(ctx, "track", map[string]any{
		"userId":     event.Email,
		"event":      eventName,
		"properties": a.MapFields(event),
	}); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("primary event failed: %v", err)}, nil
	}

	if event.Phone != "" {
		a.postBestEffort(ctx, "track", map[string]any{"userId": event.Email, "event": "SMS Eligible"})
	}
	if event.Acquisition.Campaign != "" {
		a.postBestEffort(ctx, "track", map[string]any{"userId": event.Email, "event": "Co-Branding Touch"})
	}

	return Result{Success: true, ResponseCode: http.StatusOK}, nil
}

func (a *analyticsAdapter) post(ctx context.Context, path string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(a.writeKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("analytics %s returned %d: %s", path, resp.StatusCode, respBody)
	}
	return nil
}

// postBestEffort fires an optional sub-event; failures are swallowed
// (spec §4.5 "optional sub-events are best-effort").
func (a *analyticsAdapter) postBestEffort(ctx context.Context, path string, payload map[string]any) {
	_ = a.post(ctx, path, payload)
}
