package store

import (
	"context"
	"database/sql"
)

// ClaimSlug atomically inserts slug for accountID if no one holds it.
// When the slug is already taken it returns claimed=false and the holder.
func (s *Store) ClaimSlug(ctx context.Context, slug, accountID, sessionID string) (bool, string, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO invite_slugs (slug, account_id, session_id) VALUES ($1, $2, $3) ON CONFLICT (slug) DO NOTHING",
		slug, accountID, sessionID)
	if err != nil && !isUniqueViolation(err) {
		return false, "", err
	}
	if err == nil {
		n, err := res.RowsAffected()
		if err != nil {
			return false, "", err
		}
		if n == 1 {
			return true, accountID, nil
		}
	}

	owner, err := s.slugOwner(ctx, slug)
	if err != nil {
		return false, "", err
	}
	return false, owner, nil
}

// slugOwner returns the account holding slug, or "" if unclaimed
func (s *Store) slugOwner(ctx context.Context, slug string) (string, error) {
	var owner string
	err := s.db.GetContext(ctx, &owner, "SELECT account_id FROM invite_slugs WHERE slug = $1", slug)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return owner, err
}

// GetSlugBySession returns the slug claimed for a checkout session, or ""
func (s *Store) GetSlugBySession(ctx context.Context, sessionID string) (string, error) {
	var slug string
	err := s.db.GetContext(ctx, &slug,
		"SELECT slug FROM invite_slugs WHERE session_id = $1 ORDER BY created_at LIMIT 1", sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return slug, err
}
