package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/httpretry"
)

// DefaultRevenuePerLead is the payout credited on a server-side
// "Success" response absent a configured override (spec §4.5
// "Monetization adapter").
const DefaultRevenuePerLead = 2.00

// monetizationAdapter credits revenue when the platform's response body
// is the literal string "Success".
type monetizationAdapter struct {
	apiKey         string
	baseURL        string
	revenuePerLead float64
	client         *httpretry.RetryClient
}

// NewMonetizationAdapter constructs a monetization adapter.
func NewMonetizationAdapter(cfg Config) (Adapter, error) {
	a := &monetizationAdapter{
		apiKey:         cfg.String("api_key"),
		baseURL:        cfg.String("base_url"),
		revenuePerLead: cfg.Float64("revenue_per_lead", DefaultRevenuePerLead),
		client:         newHTTPClient(cfg),
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *monetizationAdapter) ValidateConfig() error {
	if a.apiKey == "" {
		return errConfig("monetization", "api_key is required")
	}
	return nil
}

func (a *monetizationAdapter) MapFields(event *domain.Event) map[string]any {
	return map[string]any{"email": event.Email, "campaign": event.Acquisition.Campaign}
}

func (a *monetizationAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/ping", nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-Api-Key", a.apiKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func (a *monetizationAdapter) Send(ctx context.Context, event *domain.Event) (Result, error) {
	payload, err := json.Marshal(a.MapFields(event))
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/leads", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("X-Api-Key", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("monetization: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode >= 400 {
		return Result{Success: false, ResponseCode: resp.StatusCode, Error: string(body)}, nil
	}

	revenue := 0.0
	if strings.TrimSpace(string(body)) == "Success" {
		revenue = a.revenuePerLead
	}

	return Result{Success: true, ResponseCode: resp.StatusCode, PlatformResponse: string(body), Revenue: revenue}, nil
}
