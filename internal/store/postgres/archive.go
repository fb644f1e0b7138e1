package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/eventflow/internal/domain"
)

// ArchivableEvents returns terminal (completed/blocked/failed) events
// older than before, oldest first, for the cleanup CLI's --task=archive
// target (SPEC_FULL §4.12).
func (s *Store) ArchivableEvents(ctx context.Context, before time.Time, limit int) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, event_type, email, ip, status, blocked_reason, created_at
		FROM events
		WHERE created_at < $1 AND status IN ('completed', 'blocked', 'failed')
		ORDER BY created_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query archivable events: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e := &domain.Event{}
		var blockedReason sql.NullString
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.Email, &e.IP, &e.Status, &blockedReason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archivable event: %w", err)
		}
		e.BlockedReason = blockedReason.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ArchivableJobs returns terminal jobs older than before, for the same
// archive target.
func (s *Store) ArchivableJobs(ctx context.Context, before time.Time, limit int) ([]*domain.QueueJob, error) {
	rows, err := s.db.QueryContext(ctx, queueSelectCols+`
		WHERE created_at < $1 AND status IN ('completed', 'failed', 'skipped')
		ORDER BY created_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("query archivable jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.QueueJob
	for rows.Next() {
		j, err := scanQueueJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// DeleteArchivedEvents removes events by id after they've been written
// to durable archive storage.
func (s *Store) DeleteArchivedEvents(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// DeleteArchivedJobs removes processing_queue rows by id after archival.
func (s *Store) DeleteArchivedJobs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM processing_queue WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// DailyRollup is one day's aggregate counters for the cleanup CLI's
// --task=analytics target (SPEC_FULL §4.12).
type DailyRollup struct {
	Date           time.Time
	EventsByType   map[string]int64
	EventsByStatus map[string]int64
	JobsByStatus   map[string]int64
	RevenueGross   float64
}

// Rollup computes the daily aggregate counters for the given date
// (truncated to day granularity).
func (s *Store) Rollup(ctx context.Context, date time.Time) (DailyRollup, error) {
	day := date.Truncate(24 * time.Hour)
	next := day.Add(24 * time.Hour)
	out := DailyRollup{
		Date:           day,
		EventsByType:   map[string]int64{},
		EventsByStatus: map[string]int64{},
		JobsByStatus:   map[string]int64{},
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, status, COUNT(*) FROM events
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY event_type, status
	`, day, next)
	if err != nil {
		return out, fmt.Errorf("rollup events: %w", err)
	}
	for rows.Next() {
		var eventType, status string
		var n int64
		if err := rows.Scan(&eventType, &status, &n); err != nil {
			rows.Close()
			return out, fmt.Errorf("scan event rollup row: %w", err)
		}
		out.EventsByType[eventType] += n
		out.EventsByStatus[status] += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	jobRows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM processing_queue
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status
	`, day, next)
	if err != nil {
		return out, fmt.Errorf("rollup jobs: %w", err)
	}
	for jobRows.Next() {
		var status string
		var n int64
		if err := jobRows.Scan(&status, &n); err != nil {
			jobRows.Close()
			return out, fmt.Errorf("scan job rollup row: %w", err)
		}
		out.JobsByStatus[status] += n
	}
	jobRows.Close()
	if err := jobRows.Err(); err != nil {
		return out, err
	}

	var gross *float64
	if err := s.db.QueryRowContext(ctx, `
		SELECT SUM(gross) FROM revenue_tracking WHERE created_at >= $1 AND created_at < $2
	`, day, next).Scan(&gross); err != nil {
		return out, fmt.Errorf("rollup revenue: %w", err)
	}
	if gross != nil {
		out.RevenueGross = *gross
	}

	return out, nil
}
