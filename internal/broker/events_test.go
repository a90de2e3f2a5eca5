package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cardora-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRoutesByEventType(t *testing.T) {
	h := NewEventHandler()

	var gotSession, gotTo string
	h.OnInviteMaterializationFailed(func(_ context.Context, e *models.InviteMaterializationFailedEvent) error {
		gotSession = e.SessionID
		return nil
	})
	h.OnNotificationRequested(func(_ context.Context, e *models.NotificationRequestedEvent) error {
		gotTo = e.To
		return nil
	})

	failed, err := json.Marshal(&models.InviteMaterializationFailedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeInviteMaterializationFailed),
		SessionID: "cs_1",
	})
	require.NoError(t, err)
	require.NoError(t, h.Dispatch(context.Background(), failed))
	assert.Equal(t, "cs_1", gotSession)

	note, err := json.Marshal(&models.NotificationRequestedEvent{
		BaseEvent: NewBaseEvent(models.EventTypeNotificationRequested),
		To:        "owner@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, h.Dispatch(context.Background(), note))
	assert.Equal(t, "owner@example.com", gotTo)
}

func TestDispatchIgnoresUnknownAndUnregistered(t *testing.T) {
	h := NewEventHandler()

	viewed, err := json.Marshal(&models.PaymentViewedEvent{BaseEvent: NewBaseEvent(models.EventTypePaymentViewed)})
	require.NoError(t, err)
	assert.NoError(t, h.Dispatch(context.Background(), viewed))

	note, err := json.Marshal(&models.NotificationRequestedEvent{BaseEvent: NewBaseEvent(models.EventTypeNotificationRequested)})
	require.NoError(t, err)
	assert.NoError(t, h.Dispatch(context.Background(), note))
}

func TestDispatchPropagatesHandlerError(t *testing.T) {
	h := NewEventHandler()
	boom := errors.New("boom")
	h.OnNotificationRequested(func(context.Context, *models.NotificationRequestedEvent) error { return boom })

	note, err := json.Marshal(&models.NotificationRequestedEvent{BaseEvent: NewBaseEvent(models.EventTypeNotificationRequested)})
	require.NoError(t, err)
	assert.ErrorIs(t, h.Dispatch(context.Background(), note), boom)
}

func TestDispatchRejectsGarbage(t *testing.T) {
	assert.Error(t, NewEventHandler().Dispatch(context.Background(), []byte("not json")))
}
