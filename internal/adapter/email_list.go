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

// emailListAdapter plainly syncs a contact into a mailing list; no
// special behavior beyond the shared send contract (spec §4.5
// "Email-list adapter").
type emailListAdapter struct {
	apiKey  string
	baseURL string
	listID  string
	client  *httpretry.RetryClient
}

// NewEmailListAdapter constructs an email-list adapter.
func NewEmailListAdapter(cfg Config) (Adapter, error) {
	a := &emailListAdapter{
		apiKey:  cfg.String("api_key"),
		baseURL: cfg.String("base_url"),
		listID:  cfg.String("list_id"),
		client:  newHTTPClient(cfg),
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *emailListAdapter) ValidateConfig() error {
	if a.apiKey == "" {
		return errConfig("email_list", "api_key is required")
	}
	if a.listID == "" {
		return errConfig("email_list", "list_id is required")
	}
	return nil
}

func (a *emailListAdapter) MapFields(event *domain.Event) map[string]any {
	return map[string]any{"email": event.Email, "first_name": event.FirstName, "last_name": event.LastName}
}

func (a *emailListAdapter) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/lists/"+a.listID, nil)
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

func (a *emailListAdapter) Send(ctx context.Context, event *domain.Event) (Result, error) {
	payload, err := json.Marshal(a.MapFields(event))
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/lists/"+a.listID+"/subscribers", bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("email_list: transport error: %w", err)
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
