// Package api exposes the HTTP intake surface described in spec §6:
// lead/purchase submission, liveness, and summary stats. Handlers are
// thin — decode, call a component, encode — per SPEC_FULL §4.11.
// Rate-limiting and API-key auth are external collaborators (spec §1
// Non-goals); this package documents that boundary rather than
// implementing it.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/httputil"
	"github.com/ignite/eventflow/internal/pkg/logger"
	"github.com/ignite/eventflow/internal/processor"
)

// Submitter is the subset of Intake the HTTP layer needs.
type Submitter interface {
	Submit(ctx context.Context, eventType domain.EventType, raw map[string]any, ip string) (processor.IntakeResult, error)
}

// HealthChecker reports the liveness of the pipeline's dependencies
// (spec §6 "GET /health").
type HealthChecker interface {
	Check(ctx context.Context) Health
}

// StatsProvider serves the summary counters behind GET /stats.
type StatsProvider interface {
	Stats(ctx context.Context, since time.Time) (Stats, error)
}

// Stats mirrors postgres.Stats without binding this package to the
// postgres package directly.
type Stats struct {
	EventsReceived int64   `json:"events_received"`
	EventsBlocked  int64   `json:"events_blocked"`
	JobsCompleted  int64   `json:"jobs_completed"`
	JobsFailed     int64   `json:"jobs_failed"`
	JobsPending    int64   `json:"jobs_pending"`
	RevenueGross   float64 `json:"revenue_gross"`
}

// Handlers wires the intake, health, and stats endpoints to their
// backing components.
type Handlers struct {
	intake  Submitter
	health  HealthChecker
	stats   StatsProvider
	started time.Time
}

// NewHandlers constructs a Handlers. health and stats may be nil: with no
// health checker the health endpoint reports a bare healthy status with
// no component checks, and with no stats provider the stats endpoint
// answers 503 "stats not configured".
func NewHandlers(intake Submitter, health HealthChecker, stats StatsProvider) *Handlers {
	return &Handlers{intake: intake, health: health, stats: stats, started: time.Now()}
}

type leadResponse struct {
	Success        bool   `json:"success"`
	EventID        string `json:"event_id"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	ProcessingTime string `json:"processing_time"`
}

type purchaseResponse struct {
	Success        bool   `json:"success"`
	EventID        string `json:"event_id"`
	Status         string `json:"status"`
	ProcessingTime string `json:"processing_time"`
}

// HandleLead handles POST /events/lead (spec §6). A redirect_url query
// parameter marks the request as a browser form navigation rather than
// a JSON API call; per spec §7, that case always redirects to preserve
// the user's journey, even when the submission was blocked or intake
// failed outright.
func (h *Handlers) HandleLead(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirect_url")
	h.handleSubmit(w, r, domain.EventTypeLead, redirect, func(result processor.IntakeResult, elapsed time.Duration) any {
		return leadResponse{Success: result.Success, EventID: result.EventID, ProcessingTime: elapsed.String()}
	})
}

// HandlePurchase handles POST /events/purchase (spec §6). Purchase
// clients are always JSON API callers per spec §7, so there is no
// browser-navigation redirect here.
func (h *Handlers) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	h.handleSubmit(w, r, domain.EventTypePurchase, "", func(result processor.IntakeResult, elapsed time.Duration) any {
		status := "accepted"
		if result.Blocked {
			status = "blocked"
		}
		return purchaseResponse{Success: result.Success, EventID: result.EventID, Status: status, ProcessingTime: elapsed.String()}
	})
}

// handleSubmit is the shared decode/submit/encode path for both intake
// endpoints; only the response shape differs (spec §6). When
// redirectURL is non-empty the caller is a browser navigation, so it
// always wins over the JSON response — on success, on a blocked
// submission, and on an internal error alike (spec §7).
func (h *Handlers) handleSubmit(w http.ResponseWriter, r *http.Request, eventType domain.EventType, redirectURL string, respond func(processor.IntakeResult, time.Duration) any) {
	var raw map[string]any
	if !httputil.Decode(w, r, &raw) {
		return
	}

	start := time.Now()
	result, err := h.intake.Submit(r.Context(), eventType, raw, clientIP(r))
	if err != nil {
		logger.Error("api: intake submit failed", "error", err, "event_type", eventType)
		if redirectURL != "" {
			http.Redirect(w, r, redirectURL, http.StatusFound)
			return
		}
		httputil.InternalError(w, err)
		return
	}

	if redirectURL != "" {
		http.Redirect(w, r, redirectURL, http.StatusFound)
		return
	}

	if body := respond(result, time.Since(start)); body != nil {
		httputil.OK(w, body)
	}
}

// HandleHealth handles GET /health (spec §6).
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		httputil.OK(w, Health{Status: HealthOK})
		return
	}
	status := h.health.Check(r.Context())
	code := http.StatusOK
	if status.Status == HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, status)
}

// HandleStats handles GET /stats?period=1h|24h|7d|30d (spec §6). The
// caller is assumed already authenticated (see package doc).
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		httputil.Unavailable(w, "stats not configured")
		return
	}
	since := time.Now().Add(-periodDuration(r.URL.Query().Get("period")))
	stats, err := h.stats.Stats(r.Context(), since)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

func periodDuration(period string) time.Duration {
	switch period {
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// clientIP prefers X-Forwarded-For (set by the load balancer in front
// of the intake server) and falls back to RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
