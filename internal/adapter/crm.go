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

// crmAdapter implements the CRM platform contract: returns a contact_id,
// and performs a second call to stamp the last-submission timestamp when
// the contact already existed (spec §4.5 "CRM adapter").
type crmAdapter struct {
	apiKey  string
	baseURL string
	client  *httpretry.RetryClient
}

// NewCRMAdapter constructs a CRM adapter.
func NewCRMAdapter(cfg Config) (Adapter, error) {
	a := &crmAdapter{
		apiKey:  cfg.String("api_key"),
		baseURL: cfg.String("base_url"),
		client:  newHTTPClient(cfg),
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *crmAdapter) ValidateConfig() error {
	if a.apiKey == "" {
		return errConfig("crm", "api_key is required")
	}
	if a.baseURL == "" {
		return errConfig("crm", "base_url is required")
	}
	return nil
}

func (a *crmAdapter) MapFields(event *domain.Event) map[string]any {
	return map[string]any{
		"email":      event.Email,
		"first_name": event.FirstName,
		"last_name":  event.LastName,
		"phone":      event.Phone,
	}
}

func (a *crmAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/ping", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// Send upserts a contact. When the upsert reports an existing contact,
// a second call stamps the last-submission timestamp; both calls are
// reported to the caller as one logical send (spec §4.5).
func (a *crmAdapter) Send(ctx context.Context, event *domain.Event) (Result, error) {
	upsertBody, err := json.Marshal(a.MapFields(event))
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/contacts", bytes.NewReader(upsertBody))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("crm: transport error: %w", err)
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
		ContactID string `json:"contact_id"`
		Existing  bool   `json:"existing"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("crm: decode response: %w", err)
	}

	if payload.Existing && payload.ContactID != "" {
		a.stampLastSubmission(ctx, payload.ContactID)
	}

	return Result{
		Success:          true,
		ResponseCode:     resp.StatusCode,
		PlatformResponse: string(body),
		ContactID:        payload.ContactID,
	}, nil
}

// stampLastSubmission is the second, best-effort call for an existing
// contact; its failure never fails the overall send.
func (a *crmAdapter) stampLastSubmission(ctx context.Context, contactID string) {
	payload, _ := json.Marshal(map[string]any{"last_submission_at": "now"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, a.baseURL+"/contacts/"+contactID, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
