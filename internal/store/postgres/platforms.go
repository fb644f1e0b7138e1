package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/eventflow/internal/domain"
)

const platformSelectCols = `
	SELECT id, platform_code, display_name, platform_type, is_active, api_config,
	       default_max_retries, default_timeout_seconds, requires_valid_email, priority
	FROM platforms`

// ListActivePlatforms returns every is_active platform, used by the
// Router to populate its platformsById/platformsByCode caches (spec §4.3).
func (s *Store) ListActivePlatforms(ctx context.Context) ([]*domain.PlatformDefinition, error) {
	rows, err := s.db.QueryContext(ctx, platformSelectCols+` WHERE is_active = true ORDER BY priority ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active platforms: %w", err)
	}
	defer rows.Close()

	var out []*domain.PlatformDefinition
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlatform loads a platform by id regardless of active state, used
// during job execution (spec §4.7 executeJob: "fatal if missing").
func (s *Store) GetPlatform(ctx context.Context, id int64) (*domain.PlatformDefinition, error) {
	p, err := scanPlatform(s.db.QueryRowContext(ctx, platformSelectCols+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func scanPlatform(row rowScanner) (*domain.PlatformDefinition, error) {
	var p domain.PlatformDefinition
	var apiConfig []byte
	err := row.Scan(
		&p.ID, &p.Code, &p.DisplayName, &p.Type, &p.IsActive, &apiConfig,
		&p.DefaultMaxRetries, &p.DefaultTimeoutSec, &p.RequiresValidEmail, &p.Priority,
	)
	if err != nil {
		return nil, err
	}
	if len(apiConfig) > 0 {
		if err := json.Unmarshal(apiConfig, &p.APIConfig); err != nil {
			return nil, fmt.Errorf("unmarshal api_config: %w", err)
		}
	}
	return &p, nil
}
