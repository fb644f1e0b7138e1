package api

import (
	"context"
	"fmt"
	"syscall"
	"time"
)

// HealthStatus enumerates the overall liveness verdict (spec §6 "GET
// /health").
type HealthStatus string

const (
	HealthOK        HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the /health response body (spec §6 "{status,
// checks{database,queue,platforms,disk,error_rate}, metrics}").
type Health struct {
	Status  HealthStatus     `json:"status"`
	Checks  map[string]Check `json:"checks"`
	Metrics map[string]any   `json:"metrics,omitempty"`
}

// Check is one component's liveness verdict.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// QueueHealth is the subset of Queue the health check needs.
type QueueHealth interface {
	CountPending(ctx context.Context) (int64, error)
	FailureRateSince(ctx context.Context, since time.Time) (float64, error)
}

// Pinger is satisfied by *postgres.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DefaultHealthChecker checks Postgres reachability, queue backlog
// depth, recent failure rate, and free disk space — grounded on the
// teacher's internal/api/health_handler.go component-check shape, with
// platform liveness simplified to "does the router have any active
// platforms" via hasPlatforms.
type DefaultHealthChecker struct {
	db           Pinger
	queue        QueueHealth
	hasPlatforms func() bool
	diskPath     string

	// BacklogDegraded is the pending-job count above which the queue
	// check reports degraded rather than up.
	BacklogDegraded int64
	// FailureRateDegraded is the failure fraction (0..1) over the last
	// five minutes at or above which the error_rate check reports degraded
	// (spec §7: "failure rate in last 5 minutes >= 10%").
	FailureRateDegraded float64
	// DiskDegraded is the used-fraction (0..1) of diskPath's filesystem
	// above which the disk check reports degraded (spec §7: "disk >
	// 90%").
	DiskDegraded float64
}

// NewHealthChecker wires a DefaultHealthChecker. hasPlatforms reports
// whether at least one platform route is currently active.
func NewHealthChecker(db Pinger, q QueueHealth, hasPlatforms func() bool) *DefaultHealthChecker {
	return &DefaultHealthChecker{
		db: db, queue: q, hasPlatforms: hasPlatforms, diskPath: "/",
		BacklogDegraded: 10000, FailureRateDegraded: 0.10, DiskDegraded: 0.90,
	}
}

// Check runs every component check and rolls them up into an overall
// status (spec §6).
func (c *DefaultHealthChecker) Check(ctx context.Context) Health {
	checks := map[string]Check{
		"database":   c.checkDatabase(ctx),
		"queue":      c.checkQueue(ctx),
		"platforms":  c.checkPlatforms(),
		"disk":       c.checkDisk(),
		"error_rate": c.checkErrorRate(ctx),
	}
	return Health{Status: overallStatus(checks), Checks: checks}
}

func (c *DefaultHealthChecker) checkDatabase(ctx context.Context) Check {
	if c.db == nil {
		return Check{Status: "down", Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.db.Ping(ctx); err != nil {
		return Check{Status: "down", Message: err.Error()}
	}
	return Check{Status: "up"}
}

func (c *DefaultHealthChecker) checkQueue(ctx context.Context) Check {
	if c.queue == nil {
		return Check{Status: "down", Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	n, err := c.queue.CountPending(ctx)
	if err != nil {
		return Check{Status: "degraded", Message: err.Error()}
	}
	if n > c.BacklogDegraded {
		return Check{Status: "degraded", Message: fmt.Sprintf("%d jobs pending", n)}
	}
	return Check{Status: "up", Message: fmt.Sprintf("%d jobs pending", n)}
}

func (c *DefaultHealthChecker) checkPlatforms() Check {
	if c.hasPlatforms == nil || !c.hasPlatforms() {
		return Check{Status: "down", Message: "no active platforms configured"}
	}
	return Check{Status: "up"}
}

func (c *DefaultHealthChecker) checkErrorRate(ctx context.Context) Check {
	if c.queue == nil {
		return Check{Status: "down", Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rate, err := c.queue.FailureRateSince(ctx, time.Now().Add(-5*time.Minute))
	if err != nil {
		return Check{Status: "degraded", Message: err.Error()}
	}
	if rate >= c.FailureRateDegraded {
		return Check{Status: "degraded", Message: fmt.Sprintf("%.0f%% failure rate in last 5m", rate*100)}
	}
	return Check{Status: "up", Message: fmt.Sprintf("%.1f%% failure rate in last 5m", rate*100)}
}

func (c *DefaultHealthChecker) checkDisk() Check {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(c.diskPath, &stat); err != nil {
		return Check{Status: "degraded", Message: err.Error()}
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	if total == 0 {
		return Check{Status: "degraded", Message: "unable to determine filesystem size"}
	}
	used := float64(total-free) / float64(total)
	if used > c.DiskDegraded {
		return Check{Status: "degraded", Message: fmt.Sprintf("%.1f%% disk used", used*100)}
	}
	return Check{Status: "up", Message: fmt.Sprintf("%.1f%% disk used", used*100)}
}

func overallStatus(checks map[string]Check) HealthStatus {
	if db, ok := checks["database"]; ok && db.Status == "down" {
		return HealthUnhealthy
	}
	for _, c := range checks {
		if c.Status == "degraded" || c.Status == "down" {
			return HealthDegraded
		}
	}
	return HealthOK
}
