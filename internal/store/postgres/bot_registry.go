package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/lib/pq"
)

const botEntrySelectCols = `
	SELECT id, identifier_type, identifier_value, detection_method, honeypot_fields,
	       attempt_count, severity, associated_emails, associated_phones, associated_ips,
	       first_seen, last_seen
	FROM bot_registry`

// FindBotEntry looks up a BotEntry by its primary key.
func (s *Store) FindBotEntry(ctx context.Context, kind domain.IdentifierType, value string) (*domain.BotEntry, error) {
	b, err := scanBotEntry(s.db.QueryRowContext(ctx, botEntrySelectCols+` WHERE identifier_type = $1 AND identifier_value = $2`, kind, value))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// FindBotEntryByAssociated searches for any BotEntry whose associated
// set of the given kind contains value (spec §4.1 "Known-bot": "or
// inside its associated sets").
func (s *Store) FindBotEntryByAssociated(ctx context.Context, kind domain.IdentifierType, value string) (*domain.BotEntry, error) {
	var col string
	switch kind {
	case domain.IdentifierEmail:
		col = "associated_emails"
	case domain.IdentifierPhone:
		col = "associated_phones"
	default:
		col = "associated_ips"
	}
	b, err := scanBotEntry(s.db.QueryRowContext(ctx, botEntrySelectCols+fmt.Sprintf(` WHERE $1 = ANY(%s) LIMIT 1`, col), value))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return b, err
}

// UpsertBotEntry records or updates a BotEntry: on first sight inserts a
// new row; on repeat, merges honeypot fields and associated identifiers,
// bumps attempt_count, and recomputes severity (spec §4.1 step 1).
func (s *Store) UpsertBotEntry(ctx context.Context, kind domain.IdentifierType, value, detectionMethod string, honeypotFields, emails, phones, ips []string) error {
	existing, err := s.FindBotEntry(ctx, kind, value)
	if err == ErrNotFound {
		attempts := 1
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO bot_registry (
				identifier_type, identifier_value, detection_method, honeypot_fields,
				attempt_count, severity, associated_emails, associated_phones, associated_ips,
				first_seen, last_seen
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		`, kind, value, detectionMethod, pq.Array(honeypotFields), attempts, domain.SeverityForAttempts(attempts),
			pq.Array(dedupeMerge(nil, emails)), pq.Array(dedupeMerge(nil, phones)), pq.Array(dedupeMerge(nil, ips)))
		return err
	}
	if err != nil {
		return err
	}

	attempts := existing.AttemptCount + 1
	_, err = s.db.ExecContext(ctx, `
		UPDATE bot_registry SET
			honeypot_fields = $1, attempt_count = $2, severity = $3,
			associated_emails = $4, associated_phones = $5, associated_ips = $6,
			last_seen = NOW()
		WHERE id = $7
	`,
		pq.Array(dedupeMerge(existing.HoneypotFields, honeypotFields)),
		attempts, domain.SeverityForAttempts(attempts),
		pq.Array(dedupeMerge(existing.AssociatedEmails, emails)),
		pq.Array(dedupeMerge(existing.AssociatedPhones, phones)),
		pq.Array(dedupeMerge(existing.AssociatedIPs, ips)),
		existing.ID,
	)
	return err
}

func dedupeMerge(existing []string, additions []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(additions))
	for _, v := range existing {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	for _, v := range additions {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func scanBotEntry(row rowScanner) (*domain.BotEntry, error) {
	var b domain.BotEntry
	err := row.Scan(
		&b.ID, &b.IdentifierType, &b.IdentifierValue, &b.DetectionMethod, pq.Array(&b.HoneypotFields),
		&b.AttemptCount, &b.Severity, pq.Array(&b.AssociatedEmails), pq.Array(&b.AssociatedPhones), pq.Array(&b.AssociatedIPs),
		&b.FirstSeen, &b.LastSeen,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
