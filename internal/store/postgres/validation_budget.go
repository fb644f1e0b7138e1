package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IncrementValidationBudget atomically bumps today's validation-platform
// call counter and returns the post-increment count.
//
// The source kept this as an in-process integer that reset on restart
// (spec §9 Open Questions flags this as "likely a bug"). Persisting it
// per-day in the Store instead of in a process-local variable means the
// daily cap survives worker restarts and is shared correctly across a
// multi-worker deployment.
func (s *Store) IncrementValidationBudget(ctx context.Context, platformCode string, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO validation_budget (platform_code, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (platform_code, day) DO UPDATE SET count = validation_budget.count + 1
		RETURNING count
	`, platformCode, day.UTC().Format("2006-01-02")).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment validation budget: %w", err)
	}
	return count, nil
}

// ValidationBudgetUsed returns today's call count for platformCode
// without incrementing it.
func (s *Store) ValidationBudgetUsed(ctx context.Context, platformCode string, day time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM validation_budget WHERE platform_code = $1 AND day = $2
	`, platformCode, day.UTC().Format("2006-01-02")).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// CleanupValidationBudget deletes daily counter rows older than
// olderThan, for the cleanup CLI's --task=ratelimit target (spec.md
// §6) — this is the ZeroBounce-style daily call budget, not the
// HTTP-layer rate limiting that SPEC_FULL §4.11 leaves unimplemented.
func (s *Store) CleanupValidationBudget(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM validation_budget WHERE day < (NOW() - $1::interval)::date
	`, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup validation budget: %w", err)
	}
	return res.RowsAffected()
}
