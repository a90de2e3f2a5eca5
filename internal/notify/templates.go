package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Message kinds
const (
	KindPaymentReceipt = "payment_receipt"
	KindRSVPOwner      = "rsvp_owner"
	KindRSVPGuest      = "rsvp_guest"
	KindInviteCreated  = "invite_created"
)

// FormatAmount renders minor units as "12.34 USD"
func FormatAmount(amount int64, currency string) string {
	return decimal.New(amount, -2).StringFixed(2) + " " + strings.ToUpper(currency)
}

// PaymentReceipt confirms a completed payment to the payer
func PaymentReceipt(to string, amount int64, currency, purpose string) *Message {
	return &Message{
		Kind:    KindPaymentReceipt,
		To:      to,
		Subject: "Your Cardora payment receipt",
		Body: fmt.Sprintf("Thanks! We received your payment of %s for %s.\n",
			FormatAmount(amount, currency), strings.ReplaceAll(purpose, "_", " ")),
	}
}

// InviteCreated tells the owner where their invite lives
func InviteCreated(to, url string) *Message {
	return &Message{
		Kind:    KindInviteCreated,
		To:      to,
		Subject: "Your wedding invite is live",
		Body:    fmt.Sprintf("Your invite has been published at %s\n", url),
	}
}

// RSVPOwnerNotice tells the invite owner a guest responded
func RSVPOwnerNotice(to, guestName string, attending bool, guestCount int) *Message {
	status := "will not attend"
	if attending {
		status = fmt.Sprintf("will attend (party of %d)", guestCount)
	}
	return &Message{
		Kind:    KindRSVPOwner,
		To:      to,
		Subject: "New RSVP from " + guestName,
		Body:    fmt.Sprintf("%s %s.\n", guestName, status),
	}
}

// RSVPGuestConfirmation thanks an attending guest
func RSVPGuestConfirmation(to, guestName, couple string) *Message {
	return &Message{
		Kind:    KindRSVPGuest,
		To:      to,
		Subject: "See you at the wedding",
		Body:    fmt.Sprintf("Hi %s, your RSVP to %s's wedding is confirmed.\n", guestName, couple),
	}
}
