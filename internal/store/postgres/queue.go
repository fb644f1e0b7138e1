package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/eventflow/internal/domain"
)

const queueSelectCols = `
	SELECT id, event_id, platform_id, status, attempts, max_retries,
	       process_after, locked_until, COALESCE(locked_by,''),
	       COALESCE(response_code,0), COALESCE(response_body,''),
	       COALESCE(revenue_amount,0), COALESCE(revenue_status,''), COALESCE(skip_reason,''),
	       created_at, updated_at, processed_at
	FROM processing_queue`

// EnqueueJob inserts a pending QueueJob for (eventID, platformID), ready
// after delay (spec §4.4 enqueue).
func (s *Store) EnqueueJob(ctx context.Context, eventID, platformID int64, delay time.Duration, maxRetries int) (*domain.QueueJob, error) {
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	job := &domain.QueueJob{}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO processing_queue (event_id, platform_id, status, attempts, max_retries, process_after, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, $3, NOW() + $4::interval, NOW(), NOW())
		RETURNING id, event_id, platform_id, status, attempts, max_retries, process_after, locked_until, COALESCE(locked_by,''),
		          COALESCE(response_code,0), COALESCE(response_body,''), COALESCE(revenue_amount,0), COALESCE(revenue_status,''),
		          COALESCE(skip_reason,''), created_at, updated_at, processed_at
	`, eventID, platformID, maxRetries, delay.String()).Scan(
		&job.ID, &job.EventID, &job.PlatformID, &job.Status, &job.Attempts, &job.MaxRetries,
		&job.ProcessAfter, &job.LockedUntil, &job.LockedBy,
		&job.ResponseCode, &job.ResponseBody, &job.RevenueAmount, &job.RevenueStatus, &job.SkipReason,
		&job.CreatedAt, &job.UpdatedAt, &job.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// LeaseBatch atomically claims up to batchSize ready jobs for workerID,
// ordered (process_after asc, id asc), setting them processing with a
// lease of leaseDuration (spec §4.4 leaseBatch). Safe against concurrent
// leasing across N workers via FOR UPDATE SKIP LOCKED.
func (s *Store) LeaseBatch(ctx context.Context, workerID string, batchSize int, leaseDuration time.Duration) ([]*domain.QueueJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE processing_queue
			SET status = 'processing',
			    locked_by = $1,
			    locked_until = NOW() + $2::interval,
			    updated_at = NOW()
			WHERE id IN (
				SELECT id FROM processing_queue
				WHERE status = 'pending'
				  AND process_after <= NOW()
				  AND (locked_until IS NULL OR locked_until < NOW())
				ORDER BY process_after ASC, id ASC
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, event_id, platform_id, status, attempts, max_retries, process_after, locked_until, locked_by,
			          response_code, response_body, revenue_amount, revenue_status, skip_reason,
			          created_at, updated_at, processed_at
		)
		SELECT id, event_id, platform_id, status, attempts, max_retries, process_after, locked_until, COALESCE(locked_by,''),
		       COALESCE(response_code,0), COALESCE(response_body,''), COALESCE(revenue_amount,0), COALESCE(revenue_status,''),
		       COALESCE(skip_reason,''), created_at, updated_at, processed_at
		FROM claimed
		ORDER BY process_after ASC, id ASC
	`, workerID, leaseDuration.String(), batchSize)
	if err != nil {
		return nil, fmt.Errorf("lease batch: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.QueueJob
	for rows.Next() {
		j, err := scanQueueJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// GetJob loads a QueueJob by id.
func (s *Store) GetJob(ctx context.Context, id int64) (*domain.QueueJob, error) {
	j, err := scanQueueJob(s.db.QueryRowContext(ctx, queueSelectCols+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return j, err
}

// Release returns a leased job to pending and clears its lock (spec §4.4
// release; also used by the Worker on shutdown for unprocessed jobs).
func (s *Store) Release(ctx context.Context, jobID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue
		SET status = 'pending', locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, jobID)
	return err
}

// Complete marks a job terminal-completed, scoped to the current
// lessee so a holder of an expired lease can never overwrite a later
// holder's state (spec §5 "Leasing discipline").
func (s *Store) Complete(ctx context.Context, job *domain.QueueJob, code int, body string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue
		SET status = 'completed', response_code = $1, response_body = $2,
		    processed_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND locked_by = $4
	`, code, body, job.ID, job.LockedBy)
	return err
}

// Fail marks a job terminal-failed, scoped to the current lessee.
func (s *Store) Fail(ctx context.Context, job *domain.QueueJob, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue
		SET status = 'failed', response_body = $1, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND locked_by = $3
	`, errMsg, job.ID, job.LockedBy)
	return err
}

// Skip marks a job terminal-skipped with reason, scoped to the current lessee.
func (s *Store) Skip(ctx context.Context, job *domain.QueueJob, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue
		SET status = 'skipped', skip_reason = $1, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND locked_by = $3
	`, reason, job.ID, job.LockedBy)
	return err
}

// Retry re-queues a job with exponential backoff, incrementing attempts
// (spec §4.4 retry). Returns false without mutating if attempts are
// already at cap.
func (s *Store) Retry(ctx context.Context, job *domain.QueueJob) (bool, error) {
	if !job.CanRetry() {
		return false, nil
	}
	backoff := domain.BackoffFor(job.Attempts)
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue
		SET status = 'pending', attempts = attempts + 1,
		    locked_by = NULL, locked_until = NULL,
		    process_after = NOW() + $1::interval, updated_at = NOW()
		WHERE id = $2 AND locked_by = $3
	`, backoff.String(), job.ID, job.LockedBy)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CancelSiblings transitions every pending job for eventID (other than
// keepJobID) to skipped with reason, atomically, returning the affected
// count from the same statement to avoid the source's follow-up-count
// race (spec §9 last bullet).
func (s *Store) CancelSiblings(ctx context.Context, eventID, keepJobID int64, reason string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue
		SET status = 'skipped', skip_reason = $1, processed_at = NOW(), updated_at = NOW()
		WHERE event_id = $2 AND id != $3 AND status = 'pending'
	`, reason, eventID, keepJobID)
	if err != nil {
		return 0, fmt.Errorf("cancel siblings: %w", err)
	}
	return res.RowsAffected()
}

// ReapStuck reclaims jobs whose lease expired more than grace ago,
// returning them to pending (spec §4.4 reapStuck).
func (s *Store) ReapStuck(ctx context.Context, grace time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processing_queue
		SET status = 'pending', locked_by = NULL, locked_until = NULL, updated_at = NOW()
		WHERE status = 'processing' AND locked_until < NOW() - $1::interval
	`, grace.String())
	if err != nil {
		return 0, fmt.Errorf("reap stuck: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed re-invokes retry semantics for terminal-failed jobs within
// window that still have retry budget (spec §4.4 retryFailed,
// operator-triggered). process_after is computed from domain.BackoffFor
// per candidate, the same curve Retry uses, rather than a second inline
// SQL formula that would diverge once attempts exceeds a hardcoded cap.
func (s *Store) RetryFailed(ctx context.Context, window time.Duration, platformCode string, limit int) (int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q2.id, q2.attempts FROM processing_queue q2
		JOIN platforms p ON p.id = q2.platform_id
		WHERE q2.status = 'failed'
		  AND q2.attempts < q2.max_retries
		  AND q2.updated_at >= NOW() - $1::interval
		  AND ($2 = '' OR p.platform_code = $2)
		ORDER BY q2.updated_at ASC
		LIMIT $3
	`, window.String(), platformCode, limit)
	if err != nil {
		return 0, fmt.Errorf("retry failed: select candidates: %w", err)
	}

	type candidate struct {
		id       int64
		attempts int
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.attempts); err != nil {
			rows.Close()
			return 0, fmt.Errorf("retry failed: scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	rows.Close()

	var n int64
	for _, c := range candidates {
		backoff := domain.BackoffFor(c.attempts)
		res, err := s.db.ExecContext(ctx, `
			UPDATE processing_queue
			SET status = 'pending', attempts = attempts + 1,
			    process_after = NOW() + $1::interval,
			    locked_by = NULL, locked_until = NULL, updated_at = NOW()
			WHERE id = $2 AND status = 'failed'
		`, backoff.String(), c.id)
		if err != nil {
			return n, fmt.Errorf("retry failed: update %d: %w", c.id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return n, err
		}
		n += affected
	}
	return n, nil
}

// Cleanup deletes terminal jobs older than olderThan.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM processing_queue
		WHERE status IN ('completed', 'failed', 'skipped')
		  AND updated_at < NOW() - $1::interval
	`, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return res.RowsAffected()
}

// CountPending returns the current queue backlog size, used by the
// health endpoint's degraded threshold (spec §7 "User-visible behavior").
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_queue WHERE status = 'pending'`).Scan(&n)
	return n, err
}

// FailureRateSince returns the fraction of jobs that completed as
// failed in the given window, used by the health endpoint.
func (s *Store) FailureRateSince(ctx context.Context, since time.Time) (float64, error) {
	var total, failed int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'failed')
		FROM processing_queue
		WHERE processed_at >= $1
	`, since).Scan(&total, &failed)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(failed) / float64(total), nil
}

func scanQueueJob(row rowScanner) (*domain.QueueJob, error) {
	var j domain.QueueJob
	err := row.Scan(
		&j.ID, &j.EventID, &j.PlatformID, &j.Status, &j.Attempts, &j.MaxRetries,
		&j.ProcessAfter, &j.LockedUntil, &j.LockedBy,
		&j.ResponseCode, &j.ResponseBody, &j.RevenueAmount, &j.RevenueStatus, &j.SkipReason,
		&j.CreatedAt, &j.UpdatedAt, &j.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
