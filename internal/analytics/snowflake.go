// Package analytics pushes daily rollup counters to Snowflake for the
// cleanup CLI's --task=analytics target (SPEC_FULL §4.12, grounded on
// the teacher's internal/snowflake/client.go). The core pipeline never
// queries this package; it is the "separate cleanup job" spec.md §1
// assigns long-term analytics rollups to.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver
)

// Config holds the connection parameters for a Snowflake warehouse.
type Config struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
}

// Enabled reports whether enough configuration was supplied to connect.
func (c Config) Enabled() bool { return c.Account != "" }

// Exporter pushes DailyRollup rows to a Snowflake table.
type Exporter struct {
	db *sql.DB
}

// NewExporter opens a Snowflake connection. Returns (nil, nil) when cfg
// is not Enabled, so callers can treat a disabled exporter as a no-op.
func NewExporter(cfg Config) (*Exporter, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", cfg.User, cfg.Password, cfg.Account, cfg.Database, cfg.Schema)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Exporter{db: db}, nil
}

// Close releases the underlying connection.
func (e *Exporter) Close() error {
	if e == nil || e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Rollup is the subset of postgres.DailyRollup this package exports,
// kept independent of the postgres package's concrete type.
type Rollup struct {
	Date           time.Time
	EventsByType   map[string]int64
	EventsByStatus map[string]int64
	JobsByStatus   map[string]int64
	RevenueGross   float64
}

// PushDailyRollup upserts one day's counters into EVENT_DAILY_ROLLUP.
func (e *Exporter) PushDailyRollup(ctx context.Context, r Rollup) error {
	if e == nil {
		return nil
	}

	for eventType, count := range r.EventsByType {
		if _, err := e.db.ExecContext(ctx, `
			MERGE INTO EVENT_DAILY_ROLLUP t
			USING (SELECT ? AS ROLLUP_DATE, ? AS DIMENSION, ? AS DIMENSION_KEY, ? AS COUNT) s
			ON t.ROLLUP_DATE = s.ROLLUP_DATE AND t.DIMENSION = s.DIMENSION AND t.DIMENSION_KEY = s.DIMENSION_KEY
			WHEN MATCHED THEN UPDATE SET COUNT = s.COUNT
			WHEN NOT MATCHED THEN INSERT (ROLLUP_DATE, DIMENSION, DIMENSION_KEY, COUNT) VALUES (s.ROLLUP_DATE, s.DIMENSION, s.DIMENSION_KEY, s.COUNT)
		`, r.Date.Format("2006-01-02"), "event_type", eventType, count); err != nil {
			return fmt.Errorf("pushing event_type rollup: %w", err)
		}
	}
	for status, count := range r.EventsByStatus {
		if _, err := e.db.ExecContext(ctx, `
			MERGE INTO EVENT_DAILY_ROLLUP t
			USING (SELECT ? AS ROLLUP_DATE, ? AS DIMENSION, ? AS DIMENSION_KEY, ? AS COUNT) s
			ON t.ROLLUP_DATE = s.ROLLUP_DATE AND t.DIMENSION = s.DIMENSION AND t.DIMENSION_KEY = s.DIMENSION_KEY
			WHEN MATCHED THEN UPDATE SET COUNT = s.COUNT
			WHEN NOT MATCHED THEN INSERT (ROLLUP_DATE, DIMENSION, DIMENSION_KEY, COUNT) VALUES (s.ROLLUP_DATE, s.DIMENSION, s.DIMENSION_KEY, s.COUNT)
		`, r.Date.Format("2006-01-02"), "event_status", status, count); err != nil {
			return fmt.Errorf("pushing event_status rollup: %w", err)
		}
	}
	for status, count := range r.JobsByStatus {
		if _, err := e.db.ExecContext(ctx, `
			MERGE INTO EVENT_DAILY_ROLLUP t
			USING (SELECT ? AS ROLLUP_DATE, ? AS DIMENSION, ? AS DIMENSION_KEY, ? AS COUNT) s
			ON t.ROLLUP_DATE = s.ROLLUP_DATE AND t.DIMENSION = s.DIMENSION AND t.DIMENSION_KEY = s.DIMENSION_KEY
			WHEN MATCHED THEN UPDATE SET COUNT = s.COUNT
			WHEN NOT MATCHED THEN INSERT (ROLLUP_DATE, DIMENSION, DIMENSION_KEY, COUNT) VALUES (s.ROLLUP_DATE, s.DIMENSION, s.DIMENSION_KEY, s.COUNT)
		`, r.Date.Format("2006-01-02"), "job_status", status, count); err != nil {
			return fmt.Errorf("pushing job_status rollup: %w", err)
		}
	}

	_, err := e.db.ExecContext(ctx, `
		MERGE INTO REVENUE_DAILY_ROLLUP t
		USING (SELECT ? AS ROLLUP_DATE, ? AS GROSS) s
		ON t.ROLLUP_DATE = s.ROLLUP_DATE
		WHEN MATCHED THEN UPDATE SET GROSS = s.GROSS
		WHEN NOT MATCHED THEN INSERT (ROLLUP_DATE, GROSS) VALUES (s.ROLLUP_DATE, s.GROSS)
	`, r.Date.Format("2006-01-02"), r.RevenueGross)
	if err != nil {
		return fmt.Errorf("pushing revenue rollup: %w", err)
	}
	return nil
}
