package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"cardora-service/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "5.00 USD", FormatAmount(500, "usd"))
	assert.Equal(t, "12.34 EUR", FormatAmount(1234, "eur"))
	assert.Equal(t, "0.07 USD", FormatAmount(7, "usd"))
}

func TestRSVPOwnerNotice(t *testing.T) {
	msg := RSVPOwnerNotice("owner@example.com", "Alice", true, 3)
	assert.Equal(t, KindRSVPOwner, msg.Kind)
	assert.Contains(t, msg.Body, "party of 3")

	msg = RSVPOwnerNotice("owner@example.com", "Bob", false, 0)
	assert.Contains(t, msg.Body, "will not attend")
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	m := NewMailer(config.MailConfig{}, zap.NewNop())
	_, ok := m.(*LogMailer)
	assert.True(t, ok)
	assert.NoError(t, m.Send(context.Background(), PaymentReceipt("a@b.c", 500, "usd", "card_unlock")))
}

func TestSMTPMailerSend(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotBody string

	m := &SMTPMailer{
		cfg: config.MailConfig{SMTPHost: "smtp.local", SMTPPort: 2525, From: "no-reply@cardora.local"},
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotBody = addr, to, string(msg)
			return nil
		},
	}

	err := m.Send(context.Background(), InviteCreated("owner@example.com", "https://x/invite/john-jane"))
	require.NoError(t, err)
	assert.Equal(t, "smtp.local:2525", gotAddr)
	assert.Equal(t, []string{"owner@example.com"}, gotTo)
	assert.Contains(t, gotBody, "Subject: Your wedding invite is live\r\n")
	assert.Contains(t, gotBody, "john-jane")
}

func TestSMTPMailerWrapsErrors(t *testing.T) {
	boom := errors.New("connection refused")
	m := &SMTPMailer{
		cfg: config.MailConfig{SMTPHost: "smtp.local", SMTPPort: 25},
		send: func(string, smtp.Auth, string, []string, []byte) error { return boom },
	}

	err := m.Send(context.Background(), InviteCreated("o@example.com", "u"))
	assert.ErrorIs(t, err, boom)
}

func TestSMTPMailerRejectsHeaderInjection(t *testing.T) {
	m := &SMTPMailer{cfg: config.MailConfig{SMTPHost: "smtp.local"}}
	err := m.Send(context.Background(), &Message{To: "a@b.c\r\nBcc: x@y.z", Subject: "hi"})
	assert.Error(t, err)
}
