package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"cardora-service/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newTestProvider() *StripeProvider {
	return NewStripeProvider(config.ProviderConfig{SecretKey: "sk_test", WebhookSecret: testSecret})
}

func eventPayload(eventType, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": %q,
		"data": {"object": {"id": "cs_test_1", "object": "checkout.session", "payment_status": %q, "status": "complete"}}
	}`, eventType, paymentStatus))
}

func TestParseWebhookCompleted(t *testing.T) {
	p := newTestProvider()
	payload := eventPayload("checkout.session.completed", "paid")

	evt, err := p.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, EventSessionCompleted, evt.Type)
	assert.Equal(t, "cs_test_1", evt.SessionID)
	assert.True(t, evt.Paid)
}

func TestParseWebhookCompletedButUnpaid(t *testing.T) {
	p := newTestProvider()
	payload := eventPayload("checkout.session.completed", "unpaid")

	evt, err := p.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, EventSessionCompleted, evt.Type)
	assert.False(t, evt.Paid)
}

func TestParseWebhookMapsTypes(t *testing.T) {
	p := newTestProvider()

	tests := []struct {
		raw  string
		want EventType
	}{
		{"checkout.session.expired", EventSessionExpired},
		{"checkout.session.async_payment_failed", EventSessionFailed},
		{"checkout.session.async_payment_succeeded", EventSessionCompleted},
		{"customer.created", EventIgnored},
	}

	for _, tt := range tests {
		payload := eventPayload(tt.raw, "unpaid")
		evt, err := p.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, evt.Type, tt.raw)
	}
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	p := newTestProvider()
	payload := eventPayload("checkout.session.completed", "paid")

	_, err := p.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	_, err = p.ParseWebhook(payload, "")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestParseWebhookRejectsTamperedPayload(t *testing.T) {
	p := newTestProvider()
	payload := eventPayload("checkout.session.completed", "paid")
	header := sign(payload, testSecret, time.Now())

	tampered := eventPayload("checkout.session.completed", "paid")
	tampered[len(tampered)-2] = ' '

	_, err := p.ParseWebhook(tampered, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
