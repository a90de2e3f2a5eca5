package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cardora-service/internal/models"
)

// ErrDuplicate is returned when a unique constraint rejects an insert
var ErrDuplicate = errors.New("duplicate record")

const paymentColumns = `id, provider_session_id, account_id, amount, currency, payment_method,
	status, purpose, payer_contact, item_data, created_at, updated_at, completed_at`

// CreatePaymentRecord inserts a pending payment record
func (s *Store) CreatePaymentRecord(ctx context.Context, rec *models.PaymentRecord) error {
	query := `
		INSERT INTO payment_records (id, provider_session_id, account_id, amount, currency,
			payment_method, status, purpose, payer_contact, item_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		rec.ID, rec.ProviderSessionID, rec.AccountID, rec.Amount, rec.Currency,
		rec.PaymentMethod, rec.Status, rec.Purpose, rec.PayerContact, rec.ItemData)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: session %s", ErrDuplicate, rec.ProviderSessionID)
		}
		return err
	}
	return nil
}

// GetPaymentRecordBySession retrieves a payment record by provider session id
func (s *Store) GetPaymentRecordBySession(ctx context.Context, sessionID string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT "+paymentColumns+" FROM payment_records WHERE provider_session_id = $1", sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// TransitionPaymentStatus moves a pending record to a terminal status.
// It reports false when the record was not pending, so exactly one of
// several concurrent callers performs the transition.
func (s *Store) TransitionPaymentStatus(ctx context.Context, sessionID string, to models.PaymentStatus) (bool, error) {
	if !to.IsTerminal() {
		return false, fmt.Errorf("invalid target status %q", to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE payment_records
		SET status = $1,
			updated_at = NOW(),
			completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END
		WHERE provider_session_id = $2 AND status = 'pending'`,
		to, sessionID)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListPaymentRecordsByAccount retrieves an account's payment records, newest first
func (s *Store) ListPaymentRecordsByAccount(ctx context.Context, accountID string) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT "+paymentColumns+" FROM payment_records WHERE account_id = $1 ORDER BY created_at DESC", accountID)
	return records, err
}

// IsEventProcessed checks if a provider event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a provider event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
