package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/httpretry"
)

// zeroBounceAdapter is the validation adapter (platform_type=validation,
// spec §4.5 "Validation adapter").
type zeroBounceAdapter struct {
	apiKey  string
	baseURL string
	client  *httpretry.RetryClient
}

// NewZeroBounceAdapter constructs the validation platform's adapter.
func NewZeroBounceAdapter(cfg Config) (Adapter, error) {
	a := &zeroBounceAdapter{
		apiKey:  cfg.String("api_key"),
		baseURL: cfg.String("base_url"),
		client:  newHTTPClient(cfg),
	}
	if a.baseURL == "" {
		a.baseURL = "https://api.zerobounce.net/v2"
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *zeroBounceAdapter) ValidateConfig() error {
	if a.apiKey == "" {
		return errConfig("zerobounce", "api_key is required")
	}
	return nil
}

func (a *zeroBounceAdapter) MapFields(event *domain.Event) map[string]any {
	return map[string]any{"email": event.Email, "ip_address": event.IP}
}

func (a *zeroBounceAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/getcredits?api_key="+url.QueryEscape(a.apiKey), nil)
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

// Send validates event.Email and returns the canonical verdict as
// ValidationData for the Processor's validation path (spec §4.7.b).
func (a *zeroBounceAdapter) Send(ctx context.Context, event *domain.Event) (Result, error) {
	if event.Email == "" {
		return Result{Success: false, Error: "email is required"}, nil
	}

	params := url.Values{
		"api_key":    {a.apiKey},
		"email":      {event.Email},
		"ip_address": {event.IP},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/validate?"+params.Encode(), nil)
	if err != nil {
		return Result{}, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("zerobounce: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode >= 400 {
		return Result{Success: false, ResponseCode: resp.StatusCode, Error: string(body)}, nil
	}

	var payload struct {
		Status       string `json:"status"`
		SubStatus    string `json:"sub_status"`
		ActiveInDays string `json:"activeindays"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("zerobounce: decode response: %w", err)
	}

	return Result{
		Success:          true,
		ResponseCode:     resp.StatusCode,
		PlatformResponse: string(body),
		ValidationData: &ValidationData{
			Status:       payload.Status,
			SubStatus:    payload.SubStatus,
			ActiveInDays: parseActiveInDays(payload.ActiveInDays),
		},
	}, nil
}

func parseActiveInDays(raw string) int {
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0
	}
	return n
}
