package store

import (
	"context"
	"database/sql"

	"cardora-service/internal/models"
)

// GetAccountByID retrieves an account by id
func (s *Store) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return s.getAccount(ctx, "SELECT * FROM accounts WHERE id = $1", id)
}

// GetAccountByHandle retrieves an account by its public handle
func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	return s.getAccount(ctx, "SELECT * FROM accounts WHERE handle = $1", handle)
}

// GetAccountByInviteSlug retrieves the account whose materialized invite uses slug
func (s *Store) GetAccountByInviteSlug(ctx context.Context, slug string) (*models.Account, error) {
	return s.getAccount(ctx, "SELECT * FROM accounts WHERE invite_slug = $1 AND invite_slug <> ''", slug)
}

func (s *Store) getAccount(ctx context.Context, query string, arg string) (*models.Account, error) {
	var acct models.Account
	err := s.db.GetContext(ctx, &acct, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// SetCardUnlocked flips card_unlocked to true. It reports whether the flag changed.
func (s *Store) SetCardUnlocked(ctx context.Context, accountID string) (bool, error) {
	return s.setFlag(ctx,
		"UPDATE accounts SET card_unlocked = TRUE, updated_at = NOW() WHERE id = $1 AND card_unlocked = FALSE",
		accountID)
}

// SetInviteUnlocked flips invite_unlocked to true. It reports whether the flag changed.
func (s *Store) SetInviteUnlocked(ctx context.Context, accountID string) (bool, error) {
	return s.setFlag(ctx,
		"UPDATE accounts SET invite_unlocked = TRUE, updated_at = NOW() WHERE id = $1 AND invite_unlocked = FALSE",
		accountID)
}

func (s *Store) setFlag(ctx context.Context, query, accountID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SaveInviteDetails writes the slug and denormalized invite fields
func (s *Store) SaveInviteDetails(ctx context.Context, accountID, slug string, invite *models.InviteItem) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET invite_slug = $1, invite_template = $2, invite_bride = $3, invite_groom = $4,
			invite_date = $5, invite_venue = $6, invite_message = $7, updated_at = NOW()
		WHERE id = $8`,
		slug, invite.Template, invite.Bride, invite.Groom,
		invite.WeddingDate, invite.Venue, invite.Message, accountID)
	return err
}
