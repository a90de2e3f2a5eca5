// Package provider is the boundary to the hosted checkout provider.
package provider

import (
	"context"
	"errors"
)

// SignatureHeader carries the webhook signature
const SignatureHeader = "Stripe-Signature"

// ErrInvalidSignature is returned when a webhook payload fails verification
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SessionStatus is the provider-side state of a checkout session
type SessionStatus string

// Session statuses
const (
	SessionOpen    SessionStatus = "open"
	SessionPaid    SessionStatus = "paid"
	SessionUnpaid  SessionStatus = "unpaid"
	SessionExpired SessionStatus = "expired"
)

// EventType is a normalized webhook event kind
type EventType string

// Webhook event types
const (
	EventSessionCompleted EventType = "session_completed"
	EventSessionFailed    EventType = "session_failed"
	EventSessionExpired   EventType = "session_expired"
	EventIgnored          EventType = "ignored"
)

// LineItem is one priced line on the hosted page
type LineItem struct {
	Name   string
	Amount int64
}

// SessionRequest opens a hosted checkout for one logical purchase
type SessionRequest struct {
	Reference     string
	AccountID     string
	Currency      string
	CustomerEmail string
	LineItems     []LineItem
	Metadata      map[string]string
}

// Session is a provider checkout session
type Session struct {
	ID            string
	URL           string
	Status        SessionStatus
	AmountTotal   int64
	CustomerEmail string
}

// WebhookEvent is a verified provider notification
type WebhookEvent struct {
	ID        string
	Type      EventType
	RawType   string
	SessionID string
	Paid      bool
}

// Provider opens and inspects hosted checkout sessions
type Provider interface {
	CreateSession(ctx context.Context, req *SessionRequest) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
