package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/eventflow/internal/domain"
)

// CreateEvent inserts a new Event and assigns its numeric ID.
func (s *Store) CreateEvent(ctx context.Context, e *domain.Event) error {
	eventData, err := json.Marshal(e.EventData)
	if err != nil {
		return fmt.Errorf("marshal event_data: %w", err)
	}

	return s.db.QueryRowContext(ctx, `
		INSERT INTO events (
			event_id, event_type, email, email_md5, phone, first_name, last_name, ip,
			acq_source, acq_campaign, acq_term, acq_date, acq_form_title,
			cur_source, cur_medium, cur_campaign, cur_content, cur_term, gclid, ga_client_id,
			purchase_offer, purchase_publisher, purchase_amount, purchase_traffic_source,
			email_validation_status, zb_last_active, event_data, status, blocked_reason,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24,
			$25, $26, $27, $28, $29,
			NOW(), NOW()
		) RETURNING id, created_at, updated_at
	`,
		e.EventID, e.EventType, nullString(e.Email), nullString(e.EmailMD5), nullString(e.Phone), nullString(e.FirstName), nullString(e.LastName), nullString(e.IP),
		nullString(e.Acquisition.Source), nullString(e.Acquisition.Campaign), nullString(e.Acquisition.Term), nullString(e.Acquisition.Date), nullString(e.Acquisition.FormTitle),
		nullString(e.Current.Source), nullString(e.Current.Medium), nullString(e.Current.Campaign), nullString(e.Current.Content), nullString(e.Current.Term), nullString(e.Current.GCLID), nullString(e.Current.GAClientID),
		nullString(e.PurchaseInfo.Offer), nullString(e.PurchaseInfo.Publisher), e.PurchaseInfo.Amount, nullString(e.PurchaseInfo.TrafficSource),
		nullString(string(e.EmailValidationStatus)), e.ZBLastActive, eventData, e.Status, nullString(e.BlockedReason),
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// UpdateEvent persists mutable Event fields. Only the Processor mutates
// events after creation (spec §3).
func (s *Store) UpdateEvent(ctx context.Context, e *domain.Event) error {
	eventData, err := json.Marshal(e.EventData)
	if err != nil {
		return fmt.Errorf("marshal event_data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE events SET
			status = $1, blocked_reason = $2,
			acq_source = $3, acq_campaign = $4, acq_term = $5, acq_date = $6, acq_form_title = $7,
			email_validation_status = $8, zb_last_active = $9, event_data = $10,
			updated_at = NOW()
		WHERE id = $11
	`,
		e.Status, nullString(e.BlockedReason),
		nullString(e.Acquisition.Source), nullString(e.Acquisition.Campaign), nullString(e.Acquisition.Term), nullString(e.Acquisition.Date), nullString(e.Acquisition.FormTitle),
		nullString(string(e.EmailValidationStatus)), e.ZBLastActive, eventData,
		e.ID,
	)
	return err
}

// GetEvent loads an Event by its numeric ID. Fatal-for-job-execution if
// missing (spec §4.7 executeJob).
func (s *Store) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	return s.scanEventRow(s.db.QueryRowContext(ctx, eventSelectCols+` WHERE id = $1`, id))
}

// GetEventByEventID loads an Event by its external UUID.
func (s *Store) GetEventByEventID(ctx context.Context, eventID string) (*domain.Event, error) {
	return s.scanEventRow(s.db.QueryRowContext(ctx, eventSelectCols+` WHERE event_id = $1`, eventID))
}

// ListEventsByEmail returns every Event for an email, newest first, used
// by the Linker (spec §4.6 step 1).
func (s *Store) ListEventsByEmail(ctx context.Context, email string) ([]*domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, eventSelectCols+` WHERE email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list events by email: %w", err)
	}
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const eventSelectCols = `
	SELECT id, event_id, event_type, COALESCE(email,''), COALESCE(email_md5,''), COALESCE(phone,''),
	       COALESCE(first_name,''), COALESCE(last_name,''), COALESCE(ip,''),
	       COALESCE(acq_source,''), COALESCE(acq_campaign,''), COALESCE(acq_term,''), COALESCE(acq_date,''), COALESCE(acq_form_title,''),
	       COALESCE(cur_source,''), COALESCE(cur_medium,''), COALESCE(cur_campaign,''), COALESCE(cur_content,''), COALESCE(cur_term,''), COALESCE(gclid,''), COALESCE(ga_client_id,''),
	       COALESCE(purchase_offer,''), COALESCE(purchase_publisher,''), COALESCE(purchase_amount,0), COALESCE(purchase_traffic_source,''),
	       COALESCE(email_validation_status,''), COALESCE(zb_last_active,0), event_data, status, COALESCE(blocked_reason,''),
	       created_at, updated_at
	FROM events`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEventRow(row *sql.Row) (*domain.Event, error) {
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var e domain.Event
	var eventData []byte
	var emailValidationStatus string

	err := row.Scan(
		&e.ID, &e.EventID, &e.EventType, &e.Email, &e.EmailMD5, &e.Phone,
		&e.FirstName, &e.LastName, &e.IP,
		&e.Acquisition.Source, &e.Acquisition.Campaign, &e.Acquisition.Term, &e.Acquisition.Date, &e.Acquisition.FormTitle,
		&e.Current.Source, &e.Current.Medium, &e.Current.Campaign, &e.Current.Content, &e.Current.Term, &e.Current.GCLID, &e.Current.GAClientID,
		&e.PurchaseInfo.Offer, &e.PurchaseInfo.Publisher, &e.PurchaseInfo.Amount, &e.PurchaseInfo.TrafficSource,
		&emailValidationStatus, &e.ZBLastActive, &eventData, &e.Status, &e.BlockedReason,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.EmailValidationStatus = domain.EmailValidationStatus(emailValidationStatus)

	if len(eventData) > 0 {
		if err := json.Unmarshal(eventData, &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal event_data: %w", err)
		}
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
