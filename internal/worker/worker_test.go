package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cardora-service/internal/broker"
	"cardora-service/internal/models"
	"cardora-service/internal/notify"
	"cardora-service/internal/service"
	"cardora-service/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	err  error
	sent []*notify.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg *notify.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newIngestor(store *testkit.MemStore, pub *testkit.Publisher) *service.PaymentIngestor {
	slugs := service.NewSlugAllocator(store, 100)
	return service.NewPaymentIngestor(store, store, store, slugs, testkit.NewProvider(), pub,
		service.NewNotificationDispatcher(pub), nil, time.Second, "https://cardora.test/invite")
}

func TestRetryWorkerMaterializesInvite(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewMemStore()
	pub := testkit.NewPublisher()
	ingestor := newIngestor(store, pub)

	store.PutAccount(&models.Account{ID: "a1", Handle: "alice", Email: "alice@example.com", PaymentEnabled: true})
	store.PutPayment(&models.PaymentRecord{
		ID:                "p1",
		ProviderSessionID: "cs_1",
		AccountID:         "a1",
		Amount:            600,
		Currency:          "usd",
		Status:            models.PaymentStatusPending,
		Purpose:           models.PurposeCart,
		ItemData: models.Items{{
			Type:   models.ItemTypeInvite,
			Amount: 600,
			Invite: &models.InviteItem{Template: "garden", Bride: "Jane", Groom: "John"},
		}},
	})

	store.SaveInviteErr = errors.New("connection reset")
	res, err := ingestor.ConfirmSession(ctx, "cs_1", service.ChannelWebhook)
	require.NoError(t, err)
	require.NotEmpty(t, res.MaterializationError)
	require.Len(t, pub.MaterializationFailures, 1)
	assert.True(t, store.Account("a1").InviteUnlocked)
	assert.Empty(t, store.Account("a1").InviteSlug)

	store.SaveInviteErr = nil
	w := NewRetryWorker(nil, ingestor, 5, 0)

	raw, err := json.Marshal(pub.MaterializationFailures[0])
	require.NoError(t, err)
	require.NoError(t, w.eventHandler.Dispatch(ctx, raw))

	assert.Equal(t, "jane-john", store.Account("a1").InviteSlug)
	assert.Len(t, store.Slugs(), 1)
	assert.Equal(t, 1, pub.CompletedCount())
}

func TestRetryWorkerDropsUnknownSession(t *testing.T) {
	store := testkit.NewMemStore()
	w := NewRetryWorker(nil, newIngestor(store, testkit.NewPublisher()), 5, 0)

	err := w.HandleMaterializationFailed(context.Background(), &models.InviteMaterializationFailedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeInviteMaterializationFailed),
		SessionID: "cs_missing",
	})
	assert.NoError(t, err)
}

func TestRetryWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := testkit.NewMemStore()
	pub := testkit.NewPublisher()
	ingestor := newIngestor(store, pub)

	store.PutAccount(&models.Account{ID: "a1", Handle: "alice", Email: "alice@example.com", PaymentEnabled: true})
	store.PutPayment(&models.PaymentRecord{
		ID:                "p1",
		ProviderSessionID: "cs_1",
		AccountID:         "a1",
		Amount:            600,
		Currency:          "usd",
		Status:            models.PaymentStatusPending,
		Purpose:           models.PurposeCart,
		ItemData: models.Items{{
			Type:   models.ItemTypeInvite,
			Amount: 600,
			Invite: &models.InviteItem{Template: "garden", Bride: "Jane", Groom: "John"},
		}},
	})

	store.SaveInviteErr = errors.New("connection reset")
	_, err := ingestor.ConfirmSession(ctx, "cs_1", service.ChannelWebhook)
	require.NoError(t, err)
	require.Len(t, pub.MaterializationFailures, 1)

	w := NewRetryWorker(nil, ingestor, 3, 0)
	for i := 0; i < 5; i++ {
		last := pub.MaterializationFailures[len(pub.MaterializationFailures)-1]
		raw, err := json.Marshal(last)
		require.NoError(t, err)
		require.NoError(t, w.eventHandler.Dispatch(ctx, raw))
	}

	require.Len(t, pub.MaterializationFailures, 3)
	attempts := make([]int, 0, 3)
	for _, ev := range pub.MaterializationFailures {
		attempts = append(attempts, ev.Attempt)
	}
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Empty(t, store.Account("a1").InviteSlug)
}

func TestRetryWorkerStopsWaitingOnCancel(t *testing.T) {
	store := testkit.NewMemStore()
	w := NewRetryWorker(nil, newIngestor(store, testkit.NewPublisher()), 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.HandleMaterializationFailed(ctx, &models.InviteMaterializationFailedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeInviteMaterializationFailed),
		SessionID: "cs_1",
		Attempt:   1,
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{"no base", 0, 3, 0},
		{"first attempt", 2 * time.Second, 1, 2 * time.Second},
		{"zero attempt", 2 * time.Second, 0, 2 * time.Second},
		{"doubles", 2 * time.Second, 3, 8 * time.Second},
		{"capped", 2 * time.Second, 10, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryDelay(tt.base, tt.attempt))
		})
	}
}

func TestNotificationWorkerSends(t *testing.T) {
	mailer := &recordingMailer{}
	w := NewNotificationWorker(nil, mailer)

	event := &models.NotificationRequestedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeNotificationRequested),
		Kind:      notify.KindPaymentReceipt,
		To:        "alice@example.com",
		Subject:   "Receipt",
		Body:      "Thanks",
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, w.eventHandler.Dispatch(context.Background(), raw))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "alice@example.com", mailer.sent[0].To)
	assert.Equal(t, notify.KindPaymentReceipt, mailer.sent[0].Kind)
}

func TestNotificationWorkerReturnsSendError(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp 421")}
	w := NewNotificationWorker(nil, mailer)

	err := w.HandleNotification(context.Background(), &models.NotificationRequestedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeNotificationRequested),
		Kind:      notify.KindRSVPOwner,
		To:        "owner@example.com",
	})
	assert.Error(t, err)
}
