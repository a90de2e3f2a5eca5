package service

import (
	"context"
	"time"

	"cardora-service/internal/broker"
	"cardora-service/internal/models"
	"cardora-service/internal/notify"
	"cardora-service/internal/util"

	"go.uber.org/zap"
)

const notificationPublishTimeout = 500 * time.Millisecond

// NotificationPublisher queues notifications for delivery
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, event *models.NotificationRequestedEvent) error
}

// NotificationDispatcher hands messages to the delivery queue.
// Failures are logged and counted, never returned.
type NotificationDispatcher struct {
	publisher NotificationPublisher
	logger    *zap.Logger
}

// NewNotificationDispatcher creates a new notification dispatcher
func NewNotificationDispatcher(publisher NotificationPublisher) *NotificationDispatcher {
	return &NotificationDispatcher{
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Dispatch queues msg, waiting at most notificationPublishTimeout for the
// broker. Messages without a recipient are dropped.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, msg *notify.Message) {
	if msg == nil || msg.To == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, notificationPublishTimeout)
	defer cancel()

	event := &models.NotificationRequestedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeNotificationRequested),
		Kind:      msg.Kind,
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
	}

	if err := d.publisher.PublishNotification(ctx, event); err != nil {
		util.NotificationFailuresTotal.WithLabelValues(msg.Kind).Inc()
		d.logger.Error("Failed to dispatch notification",
			zap.String("kind", msg.Kind),
			zap.Error(err))
	}
}
