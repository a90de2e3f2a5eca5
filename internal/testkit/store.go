// Package testkit provides in-memory implementations of the service ports.
package testkit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cardora-service/internal/models"
)

// ErrDuplicate mirrors the store's unique-violation error
var ErrDuplicate = errors.New("duplicate record")

// MemStore is a concurrency-safe in-memory store. Conditional writes are
// atomic under its mutex, like the SQL statements they stand in for.
type MemStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	payments map[string]*models.PaymentRecord
	slugs    map[string]models.InviteSlug
	rsvps    map[string]*models.RSVPRecord
	events   map[string]string

	// Injected failures
	SaveInviteErr error
	ClaimSlugErr  error
	UnlockErr     error

	// Call counters
	CardUnlockChanges   int
	InviteUnlockChanges int
	SaveInviteCalls     int
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{
		accounts: make(map[string]*models.Account),
		payments: make(map[string]*models.PaymentRecord),
		slugs:    make(map[string]models.InviteSlug),
		rsvps:    make(map[string]*models.RSVPRecord),
		events:   make(map[string]string),
	}
}

// PutAccount inserts or replaces an account
func (m *MemStore) PutAccount(a *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.ID] = &cp
}

// PutPayment inserts or replaces a payment record
func (m *MemStore) PutPayment(rec *models.PaymentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.payments[rec.ProviderSessionID] = &cp
}

// Account returns a copy of the stored account
func (m *MemStore) Account(id string) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		cp := *a
		return &cp
	}
	return nil
}

// Slugs returns every claimed slug
func (m *MemStore) Slugs() []models.InviteSlug {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.InviteSlug, 0, len(m.slugs))
	for _, s := range m.slugs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// PaymentCount returns the number of stored payment records
func (m *MemStore) PaymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

// RSVPCount returns the number of stored responses
func (m *MemStore) RSVPCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rsvps)
}

func (m *MemStore) CreatePaymentRecord(ctx context.Context, rec *models.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[rec.ProviderSessionID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	m.payments[rec.ProviderSessionID] = &cp
	return nil
}

func (m *MemStore) GetPaymentRecordBySession(ctx context.Context, sessionID string) (*models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.payments[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemStore) TransitionPaymentStatus(ctx context.Context, sessionID string, to models.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.payments[sessionID]
	if !ok || rec.Status != models.PaymentStatusPending {
		return false, nil
	}
	now := time.Now()
	rec.Status = to
	rec.UpdatedAt = now
	if to == models.PaymentStatusCompleted {
		rec.CompletedAt = &now
	}
	return true, nil
}

func (m *MemStore) ListPaymentRecordsByAccount(ctx context.Context, accountID string) ([]models.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentRecord
	for _, rec := range m.payments {
		if rec.AccountID == accountID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *MemStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		m.events[eventID] = eventType
	}
	return nil
}

func (m *MemStore) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return m.Account(id), nil
}

func (m *MemStore) GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Handle == handle {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) GetAccountByInviteSlug(ctx context.Context, slug string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if slug != "" && a.InviteSlug == slug {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) SetCardUnlocked(ctx context.Context, accountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnlockErr != nil {
		return false, m.UnlockErr
	}
	a, ok := m.accounts[accountID]
	if !ok || a.CardUnlocked {
		return false, nil
	}
	a.CardUnlocked = true
	m.CardUnlockChanges++
	return true, nil
}

func (m *MemStore) SetInviteUnlocked(ctx context.Context, accountID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnlockErr != nil {
		return false, m.UnlockErr
	}
	a, ok := m.accounts[accountID]
	if !ok || a.InviteUnlocked {
		return false, nil
	}
	a.InviteUnlocked = true
	m.InviteUnlockChanges++
	return true, nil
}

func (m *MemStore) SaveInviteDetails(ctx context.Context, accountID, slug string, invite *models.InviteItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveInviteCalls++
	if m.SaveInviteErr != nil {
		return m.SaveInviteErr
	}
	a, ok := m.accounts[accountID]
	if !ok {
		return nil
	}
	a.InviteSlug = slug
	a.InviteTemplate = invite.Template
	a.InviteBride = invite.Bride
	a.InviteGroom = invite.Groom
	a.InviteDate = invite.WeddingDate
	a.InviteVenue = invite.Venue
	a.InviteMessage = invite.Message
	return nil
}

func (m *MemStore) ClaimSlug(ctx context.Context, slug, accountID, sessionID string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClaimSlugErr != nil {
		return false, "", m.ClaimSlugErr
	}
	if held, ok := m.slugs[slug]; ok {
		return false, held.AccountID, nil
	}
	m.slugs[slug] = models.InviteSlug{Slug: slug, AccountID: accountID, SessionID: sessionID, CreatedAt: time.Now()}
	return true, accountID, nil
}

func (m *MemStore) GetSlugBySession(ctx context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slugs {
		if s.SessionID == sessionID {
			return s.Slug, nil
		}
	}
	return "", nil
}

func (m *MemStore) CreateRSVP(ctx context.Context, r *models.RSVPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.CreatedAt = time.Now()
	cp := *r
	m.rsvps[r.ID] = &cp
	return nil
}

func (m *MemStore) GetRSVPByID(ctx context.Context, id string) (*models.RSVPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rsvps[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) ListRSVPsByOwner(ctx context.Context, ownerAccountID string) ([]models.RSVPRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RSVPRecord
	for _, r := range m.rsvps {
		if r.OwnerAccountID == ownerAccountID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemStore) DeleteRSVP(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rsvps, id)
	return nil
}
