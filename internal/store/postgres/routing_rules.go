package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/eventflow/internal/domain"
)

// ListActiveRoutingRules returns every is_active routing rule ordered by
// ascending priority, used by the Router to populate rulesByEventType
// (spec §4.3).
func (s *Store) ListActiveRoutingRules(ctx context.Context) ([]*domain.RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, platform_id, conditions, priority, is_active
		FROM routing_rules
		WHERE is_active = true
		ORDER BY priority ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active routing rules: %w", err)
	}
	defer rows.Close()

	var out []*domain.RoutingRule
	for rows.Next() {
		var r domain.RoutingRule
		var conditions []byte
		if err := rows.Scan(&r.ID, &r.EventType, &r.PlatformID, &conditions, &r.Priority, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scan routing rule: %w", err)
		}
		if len(conditions) > 0 {
			parsed, err := parseConditions(conditions)
			if err != nil {
				return nil, fmt.Errorf("parse conditions: %w", err)
			}
			r.Conditions = parsed
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// rawCondition is the on-disk shape of one field's predicate: either a
// bare scalar (implicit equals) or an explicit {op, value, values} object.
type rawCondition struct {
	Op     domain.ConditionOp `json:"op"`
	Value  any                `json:"value"`
	Values []any              `json:"values"`
}

// parseConditions decodes the key→predicate JSON object used on disk
// (spec §4.3, §9 "Dynamic conditions map") into the typed Condition
// variant the Router evaluates in memory.
func parseConditions(raw []byte) ([]domain.Condition, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	out := make([]domain.Condition, 0, len(fields))
	for field, rawValue := range fields {
		var obj rawCondition
		if err := json.Unmarshal(rawValue, &obj); err == nil && obj.Op != "" {
			out = append(out, domain.Condition{Field: field, Op: obj.Op, Value: obj.Value, Values: obj.Values})
			continue
		}
		// Not a {op,...} object, or op absent — bare scalar means equals.
		var scalar any
		if err := json.Unmarshal(rawValue, &scalar); err != nil {
			return nil, fmt.Errorf("condition field %q: %w", field, err)
		}
		out = append(out, domain.Condition{Field: field, Op: domain.OpEq, Value: scalar})
	}
	return out, nil
}
