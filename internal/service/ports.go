package service

import (
	"context"
	"time"

	"cardora-service/internal/models"
)

// PaymentStore persists payment records and processed provider events
type PaymentStore interface {
	CreatePaymentRecord(ctx context.Context, rec *models.PaymentRecord) error
	GetPaymentRecordBySession(ctx context.Context, sessionID string) (*models.PaymentRecord, error)
	TransitionPaymentStatus(ctx context.Context, sessionID string, to models.PaymentStatus) (bool, error)
	ListPaymentRecordsByAccount(ctx context.Context, accountID string) ([]models.PaymentRecord, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// AccountStore persists accounts and their entitlements
type AccountStore interface {
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (*models.Account, error)
	GetAccountByInviteSlug(ctx context.Context, slug string) (*models.Account, error)
	SetCardUnlocked(ctx context.Context, accountID string) (bool, error)
	SetInviteUnlocked(ctx context.Context, accountID string) (bool, error)
	SaveInviteDetails(ctx context.Context, accountID, slug string, invite *models.InviteItem) error
}

// SlugStore is the invite slug index
type SlugStore interface {
	ClaimSlug(ctx context.Context, slug, accountID, sessionID string) (bool, string, error)
	GetSlugBySession(ctx context.Context, sessionID string) (string, error)
}

// RSVPStore persists guest responses
type RSVPStore interface {
	CreateRSVP(ctx context.Context, r *models.RSVPRecord) error
	GetRSVPByID(ctx context.Context, id string) (*models.RSVPRecord, error)
	ListRSVPsByOwner(ctx context.Context, ownerAccountID string) ([]models.RSVPRecord, error)
	DeleteRSVP(ctx context.Context, id string) error
}

// IdempotencyCache stores responses keyed by a client idempotency key.
// The lock reserves a key while its first request is in flight.
type IdempotencyCache interface {
	Locker
	GetIdempotentResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetIdempotentResponse(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type AnalyticsRecorder interface {
	RecordPaymentView(ctx context.Context, accountID string) error
}

// Locker is a short-lived distributed lock
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// Publisher emits domain events
type Publisher interface {
	PublishPaymentViewed(ctx context.Context, event *models.PaymentViewedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishInviteMaterializationFailed(ctx context.Context, event *models.InviteMaterializationFailedEvent) error
	PublishRSVPSubmitted(ctx context.Context, event *models.RSVPSubmittedEvent) error
	PublishNotification(ctx context.Context, event *models.NotificationRequestedEvent) error
}
