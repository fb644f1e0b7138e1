package postgres

import (
	"context"
	"time"
)

// LogDelivery records one adapter send attempt to processing_log for
// auditability (spec §4.7 executeJob: "log(event, platform, job, result)").
func (s *Store) LogDelivery(ctx context.Context, eventID, platformID, jobID int64, success bool, responseCode int, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_log (event_id, platform_id, job_id, success, response_code, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, eventID, platformID, jobID, success, responseCode, nullString(errMsg))
	return err
}

// CleanupProcessingLog deletes delivery-attempt log rows older than
// olderThan, for the cleanup CLI's --task=logs target (spec.md §6).
func (s *Store) CleanupProcessingLog(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processing_log WHERE created_at < NOW() - $1::interval`, olderThan.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
