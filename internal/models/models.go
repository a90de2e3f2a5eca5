package models

import "time"

// PaymentStatus is the lifecycle state of a payment record
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// PaymentMethod identifies how the buyer paid
type PaymentMethod string

// Payment methods
const (
	PaymentMethodProviderHosted PaymentMethod = "provider_hosted"
	PaymentMethodManualTransfer PaymentMethod = "manual_transfer"
	PaymentMethodOther          PaymentMethod = "other"
)

// Purpose classifies a purchase. It is fixed at checkout creation and carried
// verbatim to the ingestor.
type Purpose string

// Purchase purposes
const (
	PurposeCardUnlock   Purpose = "card_unlock"
	PurposeInviteUnlock Purpose = "invite_unlock"
	PurposeCart         Purpose = "cart"
	PurposeTip          Purpose = "tip"
)

// Valid reports whether p is a known purpose
func (p Purpose) Valid() bool {
	switch p {
	case PurposeCardUnlock, PurposeInviteUnlock, PurposeCart, PurposeTip:
		return true
	}
	return false
}

// UnlockTarget is an entitlement a completed payment can flip
type UnlockTarget string

// Unlock targets
const (
	UnlockCard   UnlockTarget = "card"
	UnlockInvite UnlockTarget = "invite"
)

// PaymentRecord is one payment attempt and its lifecycle state
type PaymentRecord struct {
	ID                string        `db:"id" json:"id"`
	ProviderSessionID string        `db:"provider_session_id" json:"providerSessionId"`
	AccountID         string        `db:"account_id" json:"accountId"`
	Amount            int64         `db:"amount" json:"amount"`
	Currency          string        `db:"currency" json:"currency"`
	PaymentMethod     PaymentMethod `db:"payment_method" json:"paymentMethod"`
	Status            PaymentStatus `db:"status" json:"status"`
	Purpose           Purpose       `db:"purpose" json:"purpose"`
	PayerContact      string        `db:"payer_contact" json:"payerContact,omitempty"`
	ItemData          Items         `db:"item_data" json:"itemData"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
	CompletedAt       *time.Time    `db:"completed_at" json:"completedAt,omitempty"`
}

// Targets returns the entitlements this purchase unlocks, without duplicates
func (r *PaymentRecord) Targets() []UnlockTarget {
	switch r.Purpose {
	case PurposeCardUnlock:
		return []UnlockTarget{UnlockCard}
	case PurposeInviteUnlock:
		return []UnlockTarget{UnlockInvite}
	case PurposeCart:
		seen := make(map[UnlockTarget]bool)
		targets := make([]UnlockTarget, 0, 2)
		for _, item := range r.ItemData {
			t := item.Target()
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			targets = append(targets, t)
		}
		return targets
	}
	return nil
}

// InviteContent returns the invite form carried by this purchase, if any
func (r *PaymentRecord) InviteContent() *InviteItem {
	for _, item := range r.ItemData {
		if item.Invite != nil {
			return item.Invite
		}
	}
	return nil
}

// PaymentType is the account's product pricing mode
type PaymentType string

// Payment types
const (
	PaymentTypeFixed  PaymentType = "fixed"
	PaymentTypeCustom PaymentType = "custom"
)

// Account holds product configuration, entitlement flags and the
// denormalized invite once materialized
type Account struct {
	ID             string      `db:"id" json:"id"`
	Handle         string      `db:"handle" json:"handle"`
	Email          string      `db:"email" json:"email"`
	PaymentEnabled bool        `db:"payment_enabled" json:"paymentEnabled"`
	PaymentType    PaymentType `db:"payment_type" json:"paymentType"`
	FixedAmount    int64       `db:"fixed_amount" json:"fixedAmount"`
	Currency       string      `db:"currency" json:"currency"`
	CardUnlocked   bool        `db:"card_unlocked" json:"cardUnlocked"`
	InviteUnlocked bool        `db:"invite_unlocked" json:"inviteUnlocked"`
	InviteSlug     string      `db:"invite_slug" json:"inviteSlug,omitempty"`
	InviteTemplate string      `db:"invite_template" json:"inviteTemplate,omitempty"`
	InviteBride    string      `db:"invite_bride" json:"inviteBride,omitempty"`
	InviteGroom    string      `db:"invite_groom" json:"inviteGroom,omitempty"`
	InviteDate     string      `db:"invite_date" json:"inviteDate,omitempty"`
	InviteVenue    string      `db:"invite_venue" json:"inviteVenue,omitempty"`
	InviteMessage  string      `db:"invite_message" json:"inviteMessage,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updatedAt"`
}

// HasInvite reports whether invite content has been materialized
func (a *Account) HasInvite() bool {
	return a.InviteSlug != ""
}

// RSVPRecord is one guest response to an invite
type RSVPRecord struct {
	ID             string    `db:"id" json:"id"`
	InviteSlug     string    `db:"invite_slug" json:"inviteSlug"`
	OwnerAccountID string    `db:"owner_account_id" json:"ownerAccountId"`
	GuestName      string    `db:"guest_name" json:"guestName"`
	GuestEmail     string    `db:"guest_email" json:"guestEmail,omitempty"`
	GuestPhone     string    `db:"guest_phone" json:"guestPhone,omitempty"`
	Attending      bool      `db:"attending" json:"attending"`
	GuestCount     int       `db:"guest_count" json:"guestCount"`
	Notes          string    `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// InviteSlug records which account claimed a slug and for which session
type InviteSlug struct {
	Slug      string    `db:"slug" json:"slug"`
	AccountID string    `db:"account_id" json:"accountId"`
	SessionID string    `db:"session_id" json:"sessionId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
