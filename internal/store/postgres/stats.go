package postgres

import (
	"context"
	"time"
)

// Stats is the summary counters payload for the /stats endpoint
// (spec §6 "Summary counters").
type Stats struct {
	EventsReceived int64   `json:"events_received"`
	EventsBlocked  int64   `json:"events_blocked"`
	JobsCompleted  int64   `json:"jobs_completed"`
	JobsFailed     int64   `json:"jobs_failed"`
	JobsPending    int64   `json:"jobs_pending"`
	RevenueGross   float64 `json:"revenue_gross"`
}

// Stats aggregates counters for events and jobs created since the
// given time, plus current backlog and gross revenue recorded since
// that same time.
func (s *Store) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var out Stats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= $1),
			COUNT(*) FILTER (WHERE created_at >= $1 AND status = 'blocked')
		FROM events
	`, since).Scan(&out.EventsReceived, &out.EventsBlocked)
	if err != nil {
		return Stats{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= $1 AND status = 'completed'),
			COUNT(*) FILTER (WHERE created_at >= $1 AND status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM processing_queue
	`, since).Scan(&out.JobsCompleted, &out.JobsFailed, &out.JobsPending)
	if err != nil {
		return Stats{}, err
	}

	var gross *float64
	if err := s.db.QueryRowContext(ctx, `
		SELECT SUM(gross) FROM revenue_tracking WHERE created_at >= $1
	`, since).Scan(&gross); err != nil {
		return Stats{}, err
	}
	if gross != nil {
		out.RevenueGross = *gross
	}

	return out, nil
}
