package postgres

import (
	"context"
	"fmt"

	"github.com/ignite/eventflow/internal/domain"
)

// RecordRevenue inserts a RevenueRecord for (event, platform) with the
// given gross amount, defaulting net=gross and currency=USD (spec §3,
// §4.7 "if result.revenue > 0").
func (s *Store) RecordRevenue(ctx context.Context, eventID, platformID int64, gross float64) (*domain.RevenueRecord, error) {
	r := &domain.RevenueRecord{
		EventID: eventID, PlatformID: platformID,
		Gross: gross, Net: gross, Currency: "USD", Status: domain.RevenuePending,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO revenue_tracking (event_id, platform_id, gross, net, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, r.EventID, r.PlatformID, r.Gross, r.Net, r.Currency, r.Status).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("record revenue: %w", err)
	}
	return r, nil
}
