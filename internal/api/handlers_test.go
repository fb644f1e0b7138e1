package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/processor"
)

type fakeSubmitter struct {
	result processor.IntakeResult
	err    error
	gotRaw map[string]any
	gotIP  string
	gotTyp domain.EventType
}

func (f *fakeSubmitter) Submit(_ context.Context, eventType domain.EventType, raw map[string]any, ip string) (processor.IntakeResult, error) {
	f.gotTyp, f.gotRaw, f.gotIP = eventType, raw, ip
	return f.result, f.err
}

type fakeHealthChecker struct{ health Health }

func (f *fakeHealthChecker) Check(context.Context) Health { return f.health }

type fakeStatsProvider struct {
	stats Stats
	err   error
}

func (f *fakeStatsProvider) Stats(context.Context, time.Time) (Stats, error) { return f.stats, f.err }

func doRequest(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleLeadAcceptsAndReturnsEventID(t *testing.T) {
	sub := &fakeSubmitter{result: processor.IntakeResult{Success: true, EventID: "abc-123", QueuedPlatforms: 2}}
	h := NewHandlers(sub, nil, nil)

	rec := doRequest(h.Routes(), http.MethodPost, "/events/lead", []byte(`{"email":"a@example.com"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp leadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "abc-123", resp.EventID)
	assert.Equal(t, domain.EventTypeLead, sub.gotTyp)
}

func TestHandleLeadRedirectsWhenRedirectURLGiven(t *testing.T) {
	sub := &fakeSubmitter{result: processor.IntakeResult{Success: true, EventID: "abc-123"}}
	h := NewHandlers(sub, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/events/lead?redirect_url=https://thanks.example.com", bytes.NewReader([]byte(`{"email":"a@example.com"}`)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://thanks.example.com", rec.Header().Get("Location"))
}

func TestHandleLeadRedirectsEvenWhenBlocked(t *testing.T) {
	sub := &fakeSubmitter{result: processor.IntakeResult{Success: true, Blocked: true, EventID: "abc-123"}}
	h := NewHandlers(sub, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/events/lead?redirect_url=https://thanks.example.com", bytes.NewReader([]byte(`{"email":"bad"}`)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://thanks.example.com", rec.Header().Get("Location"))
}

func TestHandleLeadWithoutRedirectURLReturnsSuccessForBlockedLead(t *testing.T) {
	sub := &fakeSubmitter{result: processor.IntakeResult{Success: true, Blocked: true, EventID: "abc-123"}}
	h := NewHandlers(sub, nil, nil)

	rec := doRequest(h.Routes(), http.MethodPost, "/events/lead", []byte(`{"email":"bad"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp leadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestHandleLeadInvalidJSONReturnsBadRequest(t *testing.T) {
	sub := &fakeSubmitter{}
	h := NewHandlers(sub, nil, nil)

	rec := doRequest(h.Routes(), http.MethodPost, "/events/lead", []byte(`not json`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLeadInternalErrorReturns500(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("db down")}
	h := NewHandlers(sub, nil, nil)

	rec := doRequest(h.Routes(), http.MethodPost, "/events/lead", []byte(`{"email":"a@example.com"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleLeadRedirectsOnInternalErrorWhenRedirectURLGiven(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("db down")}
	h := NewHandlers(sub, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/events/lead?redirect_url=https://thanks.example.com", bytes.NewReader([]byte(`{"email":"a@example.com"}`)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://thanks.example.com", rec.Header().Get("Location"))
}

func TestHandlePurchaseReportsBlockedStatus(t *testing.T) {
	sub := &fakeSubmitter{result: processor.IntakeResult{Success: true, Blocked: true, EventID: "p-1"}}
	h := NewHandlers(sub, nil, nil)

	rec := doRequest(h.Routes(), http.MethodPost, "/events/purchase", []byte(`{"email":"a@example.com","purchase_amount":9.99}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "blocked", resp.Status)
	assert.Equal(t, domain.EventTypePurchase, sub.gotTyp)
}

func TestHandleHealthReturns503WhenUnhealthy(t *testing.T) {
	hc := &fakeHealthChecker{health: Health{Status: HealthUnhealthy, Checks: map[string]Check{"database": {Status: "down"}}}}
	h := NewHandlers(&fakeSubmitter{}, hc, nil)

	rec := doRequest(h.Routes(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleHealthReturns200WhenHealthy(t *testing.T) {
	hc := &fakeHealthChecker{health: Health{Status: HealthOK}}
	h := NewHandlers(&fakeSubmitter{}, hc, nil)

	rec := doRequest(h.Routes(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStatsReturnsPayload(t *testing.T) {
	sp := &fakeStatsProvider{stats: Stats{EventsReceived: 42, RevenueGross: 12.5}}
	h := NewHandlers(&fakeSubmitter{}, nil, sp)

	rec := doRequest(h.Routes(), http.MethodGet, "/stats?period=24h", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.EventsReceived)
	assert.Equal(t, 12.5, resp.RevenueGross)
}

func TestHandleStatsUnavailableWhenNotConfigured(t *testing.T) {
	h := NewHandlers(&fakeSubmitter{}, nil, nil)

	rec := doRequest(h.Routes(), http.MethodGet, "/stats", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
