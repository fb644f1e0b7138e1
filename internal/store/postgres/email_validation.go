package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/eventflow/internal/domain"
)

const emailValidationSelectCols = `
	SELECT id, email, status, COALESCE(substatus,''), COALESCE(raw_status,''), COALESCE(raw_substatus,''),
	       COALESCE(active_in_days,0), COALESCE(did_you_mean,''), COALESCE(domain,''), COALESCE(mx_found,false),
	       COALESCE(mx_record,''), validation_count, first_seen_valid_at, first_seen_invalid_at,
	       status_history, last_validated_at, created_at
	FROM email_validation_registry`

// FindEmailValidation looks up the validation cache entry for email.
func (s *Store) FindEmailValidation(ctx context.Context, email string) (*domain.EmailValidationEntry, error) {
	e, err := scanEmailValidationEntry(s.db.QueryRowContext(ctx, emailValidationSelectCols+` WHERE email = $1`, email))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

// UpsertEmailValidation records a new validation verdict for email,
// appending to the status-change history and bumping validation_count
// (spec §3, §4.7.b).
func (s *Store) UpsertEmailValidation(ctx context.Context, e *domain.EmailValidationEntry) error {
	existing, err := s.FindEmailValidation(ctx, e.Email)
	now := time.Now().UTC()

	history := e.StatusHistory
	if err == nil && existing.Status != e.Status {
		history = append(existing.StatusHistory, domain.EmailValidationStatusChange{
			From: existing.Status, To: e.Status, ChangedAt: now,
		})
	} else if err == nil {
		history = existing.StatusHistory
	}
	historyJSON, merr := json.Marshal(history)
	if merr != nil {
		return fmt.Errorf("marshal status history: %w", merr)
	}

	firstValid := e.FirstSeenValidAt
	firstInvalid := e.FirstSeenInvalidAt
	count := 1
	if err == nil {
		count = existing.ValidationCount + 1
		if firstValid == nil {
			firstValid = existing.FirstSeenValidAt
		}
		if firstInvalid == nil {
			firstInvalid = existing.FirstSeenInvalidAt
		}
	}
	if e.Status == domain.EmailValidationValid && firstValid == nil {
		firstValid = &now
	}
	if e.Status == domain.EmailValidationInvalid && firstInvalid == nil {
		firstInvalid = &now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO email_validation_registry (
			email, status, substatus, raw_status, raw_substatus, active_in_days,
			did_you_mean, domain, mx_found, mx_record, validation_count,
			first_seen_valid_at, first_seen_invalid_at, status_history,
			last_validated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (email) DO UPDATE SET
			status = EXCLUDED.status, substatus = EXCLUDED.substatus,
			raw_status = EXCLUDED.raw_status, raw_substatus = EXCLUDED.raw_substatus,
			active_in_days = EXCLUDED.active_in_days, did_you_mean = EXCLUDED.did_you_mean,
			domain = EXCLUDED.domain, mx_found = EXCLUDED.mx_found, mx_record = EXCLUDED.mx_record,
			validation_count = EXCLUDED.validation_count,
			first_seen_valid_at = EXCLUDED.first_seen_valid_at,
			first_seen_invalid_at = EXCLUDED.first_seen_invalid_at,
			status_history = EXCLUDED.status_history,
			last_validated_at = NOW()
	`,
		e.Email, e.Status, nullString(string(e.Substatus)), nullString(e.RawStatus), nullString(e.RawSubstatus), e.ActiveInDays,
		nullString(e.DidYouMean), nullString(e.Domain), e.MXFound, nullString(e.MXRecord), count,
		firstValid, firstInvalid, historyJSON,
	)
	return err
}

func scanEmailValidationEntry(row rowScanner) (*domain.EmailValidationEntry, error) {
	var e domain.EmailValidationEntry
	var status, substatus string
	var history []byte

	err := row.Scan(
		&e.ID, &e.Email, &status, &substatus, &e.RawStatus, &e.RawSubstatus,
		&e.ActiveInDays, &e.DidYouMean, &e.Domain, &e.MXFound, &e.MXRecord,
		&e.ValidationCount, &e.FirstSeenValidAt, &e.FirstSeenInvalidAt,
		&history, &e.LastValidatedAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.EmailValidationStatus(status)
	e.Substatus = domain.EmailValidationSubstatus(substatus)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &e.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshal status_history: %w", err)
		}
	}
	return &e, nil
}
