package models

import "time"

// Event types
const (
	EventTypePaymentViewed               = "PAYMENT_VIEWED"
	EventTypePaymentCompleted            = "PAYMENT_COMPLETED"
	EventTypeInviteMaterializationFailed = "INVITE_MATERIALIZATION_FAILED"
	EventTypeNotificationRequested       = "NOTIFICATION_REQUESTED"
	EventTypeRSVPSubmitted               = "RSVP_SUBMITTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentViewedEvent published when a checkout session is opened
type PaymentViewedEvent struct {
	BaseEvent
	AccountID string  `json:"account_id"`
	SessionID string  `json:"session_id"`
	Amount    int64   `json:"amount"`
	Purpose   Purpose `json:"purpose"`
}

// PaymentCompletedEvent published by whichever channel performed the transition
type PaymentCompletedEvent struct {
	BaseEvent
	SessionID string  `json:"session_id"`
	AccountID string  `json:"account_id"`
	Amount    int64   `json:"amount"`
	Currency  string  `json:"currency"`
	Purpose   Purpose `json:"purpose"`
	Channel   string  `json:"channel"`
}

// InviteMaterializationFailedEvent asks the worker to finish a paid invite.
// Attempt counts the materialization attempts that have failed.
type InviteMaterializationFailedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
	Attempt   int    `json:"attempt"`
}

// NotificationRequestedEvent carries one outbound email
type NotificationRequestedEvent struct {
	BaseEvent
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// RSVPSubmittedEvent published after a guest response is stored
type RSVPSubmittedEvent struct {
	BaseEvent
	RSVPID         string `json:"rsvp_id"`
	InviteSlug     string `json:"invite_slug"`
	OwnerAccountID string `json:"owner_account_id"`
	Attending      bool   `json:"attending"`
	GuestCount     int    `json:"guest_count"`
}
