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

// smsAdapter requires a phone with at least 11 digits; anything shorter
// fails the send rather than reaching the network (spec §4.5 "SMS
// adapter").
type smsAdapter struct {
	apiKey  string
	baseURL string
	fromNum string
	client  *httpretry.RetryClient
}

// NewSMSAdapter constructs an SMS adapter.
func NewSMSAdapter(cfg Config) (Adapter, error) {
	a := &smsAdapter{
		apiKey:  cfg.String("api_key"),
		baseURL: cfg.String("base_url"),
		fromNum: cfg.String("from_number"),
		client:  newHTTPClient(cfg),
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *smsAdapter) ValidateConfig() error {
	if a.apiKey == "" {
		return errConfig("sms", "api_key is required")
	}
	if a.fromNum == "" {
		return errConfig("sms", "from_number is required")
	}
	return nil
}

func (a *smsAdapter) MapFields(event *domain.Event) map[string]any {
	return map[string]any{"phone": event.Phone}
}

func (a *smsAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/account", nil)
	if err != nil {
		return false
	}
	req.SetBasicAuth(a.apiKey, "")
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func (a *smsAdapter) Send(ctx context.Context, event *domain.Event) (Result, error) {
	if countDigits(event.Phone) < 11 {
		return Result{Success: false, Error: "Invalid or missing phone number"}, nil
	}

	payload, err := json.Marshal(map[string]any{
		"to":   event.Phone,
		"from": a.fromNum,
		"body": "Thanks for your submission.",
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.SetBasicAuth(a.apiKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("sms: transport error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode >= 400 {
		return Result{Success: false, ResponseCode: resp.StatusCode, Error: string(body)}, nil
	}
	return Result{Success: true, ResponseCode: resp.StatusCode, PlatformResponse: string(body)}, nil
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
