package store

import (
	"context"
	"database/sql"

	"cardora-service/internal/models"
)

// CreateRSVP inserts a guest response
func (s *Store) CreateRSVP(ctx context.Context, r *models.RSVPRecord) error {
	query := `
		INSERT INTO rsvps (id, invite_slug, owner_account_id, guest_name, guest_email,
			guest_phone, attending, guest_count, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	return s.db.GetContext(ctx, &r.CreatedAt, query,
		r.ID, r.InviteSlug, r.OwnerAccountID, r.GuestName, r.GuestEmail,
		r.GuestPhone, r.Attending, r.GuestCount, r.Notes)
}

// GetRSVPByID retrieves one guest response
func (s *Store) GetRSVPByID(ctx context.Context, id string) (*models.RSVPRecord, error) {
	var r models.RSVPRecord
	err := s.db.GetContext(ctx, &r, "SELECT * FROM rsvps WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRSVPsByOwner retrieves all responses to an owner's invites, newest first
func (s *Store) ListRSVPsByOwner(ctx context.Context, ownerAccountID string) ([]models.RSVPRecord, error) {
	var rsvps []models.RSVPRecord
	err := s.db.SelectContext(ctx, &rsvps,
		"SELECT * FROM rsvps WHERE owner_account_id = $1 ORDER BY created_at DESC", ownerAccountID)
	return rsvps, err
}

// DeleteRSVP removes one guest response
func (s *Store) DeleteRSVP(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM rsvps WHERE id = $1", id)
	return err
}
