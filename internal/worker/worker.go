package worker

import (
	"context"
	"errors"
	"time"

	"cardora-service/internal/broker"
	"cardora-service/internal/models"
	"cardora-service/internal/notify"
	"cardora-service/internal/service"
	"cardora-service/internal/util"

	"go.uber.org/zap"
)

const maxRetryDelay = time.Minute

// Confirmer re-runs the effects of a confirmed session
type Confirmer interface {
	RetryMaterialization(ctx context.Context, sessionID string, attempt int) (*service.ConfirmResult, error)
}

// RetryWorker finishes paid invites whose materialization failed
type RetryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	confirmer    Confirmer
	maxAttempts  int
	baseDelay    time.Duration
	logger       *zap.Logger
}

// NewRetryWorker creates a new retry worker. A session is given up on once
// maxAttempts materializations have failed.
func NewRetryWorker(
	consumer *broker.Consumer,
	confirmer Confirmer,
	maxAttempts int,
	baseDelay time.Duration,
) *RetryWorker {
	w := &RetryWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		confirmer:    confirmer,
		maxAttempts:  maxAttempts,
		baseDelay:    baseDelay,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnInviteMaterializationFailed(w.HandleMaterializationFailed)
	return w
}

// HandleMaterializationFailed waits out the backoff for the event's attempt
// and confirms the session again. A retry that fails again publishes the
// next attempt itself, so the message is acknowledged either way.
func (w *RetryWorker) HandleMaterializationFailed(ctx context.Context, event *models.InviteMaterializationFailedEvent) error {
	if event.Attempt >= w.maxAttempts {
		util.InviteMaterializationAbandonedTotal.Inc()
		w.logger.Error("Giving up on invite materialization",
			zap.String("session_id", event.SessionID),
			zap.String("account_id", event.AccountID),
			zap.Int("attempts", event.Attempt),
			zap.String("reason", event.Reason))
		return nil
	}

	if delay := retryDelay(w.baseDelay, event.Attempt); delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	res, err := w.confirmer.RetryMaterialization(ctx, event.SessionID, event.Attempt)
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			w.logger.Warn("Dropping retry for unknown session", zap.String("session_id", event.SessionID))
			return nil
		}
		return err
	}

	if res.MaterializationError != "" {
		w.logger.Warn("Invite still not materialized",
			zap.String("session_id", event.SessionID),
			zap.Int("attempt", event.Attempt+1),
			zap.String("reason", res.MaterializationError))
		return nil
	}

	w.logger.Info("Invite materialized on retry",
		zap.String("session_id", event.SessionID),
		zap.String("account_id", event.AccountID))
	return nil
}

// retryDelay doubles base for every failed attempt after the first, up to maxRetryDelay
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// Start starts the worker
func (w *RetryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting retry worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *RetryWorker) Stop() error {
	w.logger.Info("Stopping retry worker")
	return w.consumer.Close()
}

// NotificationWorker delivers queued emails
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	mailer       notify.Mailer
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(
	consumer *broker.Consumer,
	mailer notify.Mailer,
) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		mailer:       mailer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnNotificationRequested(w.HandleNotification)
	return w
}

// HandleNotification sends one email. A send error is retried by the
// consumer and the message is dead-lettered once retries run out.
func (w *NotificationWorker) HandleNotification(ctx context.Context, event *models.NotificationRequestedEvent) error {
	msg := &notify.Message{
		Kind:    event.Kind,
		To:      event.To,
		Subject: event.Subject,
		Body:    event.Body,
	}

	if err := w.mailer.Send(ctx, msg); err != nil {
		util.NotificationFailuresTotal.WithLabelValues(event.Kind).Inc()
		w.logger.Error("Failed to send notification",
			zap.String("kind", event.Kind),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return err
	}

	util.NotificationsSentTotal.WithLabelValues(event.Kind).Inc()
	return nil
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
