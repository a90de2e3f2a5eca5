package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cardora-service/internal/models"
	"cardora-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	payments      *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(payments, notifications *Producer) *EventPublisher {
	return &EventPublisher{payments: payments, notifications: notifications}
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PublishPaymentViewed publishes PaymentViewed event
func (ep *EventPublisher) PublishPaymentViewed(ctx context.Context, event *models.PaymentViewedEvent) error {
	return ep.payments.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishPaymentCompleted publishes PaymentCompleted event
func (ep *EventPublisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	return ep.payments.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishInviteMaterializationFailed publishes InviteMaterializationFailed event
func (ep *EventPublisher) PublishInviteMaterializationFailed(ctx context.Context, event *models.InviteMaterializationFailedEvent) error {
	return ep.payments.PublishEvent(ctx, sessionKey(event.SessionID), event)
}

// PublishRSVPSubmitted publishes RSVPSubmitted event
func (ep *EventPublisher) PublishRSVPSubmitted(ctx context.Context, event *models.RSVPSubmittedEvent) error {
	return ep.payments.PublishEvent(ctx, fmt.Sprintf("invite-%s", event.InviteSlug), event)
}

// PublishNotification publishes NotificationRequested event
func (ep *EventPublisher) PublishNotification(ctx context.Context, event *models.NotificationRequestedEvent) error {
	return ep.notifications.PublishEvent(ctx, event.To, event)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onMaterializationFailed func(context.Context, *models.InviteMaterializationFailedEvent) error
	onNotificationRequested func(context.Context, *models.NotificationRequestedEvent) error
	logger                  *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnInviteMaterializationFailed registers a handler for InviteMaterializationFailed events
func (eh *EventHandler) OnInviteMaterializationFailed(handler func(context.Context, *models.InviteMaterializationFailedEvent) error) {
	eh.onMaterializationFailed = handler
}

// OnNotificationRequested registers a handler for NotificationRequested events
func (eh *EventHandler) OnNotificationRequested(handler func(context.Context, *models.NotificationRequestedEvent) error) {
	eh.onNotificationRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return eh.Dispatch(ctx, msg.Value)
}

// Dispatch decodes a raw event and routes it by type
func (eh *EventHandler) Dispatch(ctx context.Context, value []byte) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeInviteMaterializationFailed:
		if eh.onMaterializationFailed != nil {
			var event models.InviteMaterializationFailedEvent
			if err := json.Unmarshal(value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal InviteMaterializationFailed event: %w", err)
			}
			return eh.onMaterializationFailed(ctx, &event)
		}

	case models.EventTypeNotificationRequested:
		if eh.onNotificationRequested != nil {
			var event models.NotificationRequestedEvent
			if err := json.Unmarshal(value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal NotificationRequested event: %w", err)
			}
			return eh.onNotificationRequested(ctx, &event)
		}
	}

	return nil
}
