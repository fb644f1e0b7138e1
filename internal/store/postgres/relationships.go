package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/eventflow/internal/domain"
)

// CreateRelationship inserts a directed EventRelationship edge (spec §3, §4.6).
func (s *Store) CreateRelationship(ctx context.Context, rel *domain.EventRelationship) error {
	criteria, err := json.Marshal(rel.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO event_relationships (parent_event_id, child_event_id, relationship_type, criteria, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, rel.ParentID, rel.ChildID, rel.Type, criteria).Scan(&rel.ID, &rel.CreatedAt)
}

// HasRelationship reports whether a relationship of typ already links
// parentID to childID, used to enforce the Linker's "only the first
// matching lead is linked" rule and the DAG guard (spec §4.6, §9).
func (s *Store) HasRelationship(ctx context.Context, parentID, childID int64, typ domain.RelationshipType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM event_relationships
			WHERE parent_event_id = $1 AND child_event_id = $2 AND relationship_type = $3
		)
	`, parentID, childID, typ).Scan(&exists)
	return exists, err
}
