package testkit

import (
	"context"
	"sync"

	"cardora-service/internal/models"
)

// Publisher records published events
type Publisher struct {
	mu sync.Mutex

	Err       error
	NotifyErr error

	Viewed                  []*models.PaymentViewedEvent
	Completed               []*models.PaymentCompletedEvent
	MaterializationFailures []*models.InviteMaterializationFailedEvent
	RSVPs                   []*models.RSVPSubmittedEvent
	Notifications           []*models.NotificationRequestedEvent
}

// NewPublisher creates a recording publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishPaymentViewed(ctx context.Context, event *models.PaymentViewedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Viewed = append(p.Viewed, event)
	return nil
}

func (p *Publisher) PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Completed = append(p.Completed, event)
	return nil
}

func (p *Publisher) PublishInviteMaterializationFailed(ctx context.Context, event *models.InviteMaterializationFailedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.MaterializationFailures = append(p.MaterializationFailures, event)
	return nil
}

func (p *Publisher) PublishRSVPSubmitted(ctx context.Context, event *models.RSVPSubmittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.RSVPs = append(p.RSVPs, event)
	return nil
}

func (p *Publisher) PublishNotification(ctx context.Context, event *models.NotificationRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if p.NotifyErr != nil {
		return p.NotifyErr
	}
	p.Notifications = append(p.Notifications, event)
	return nil
}

// CompletedCount returns the number of PaymentCompleted events
func (p *Publisher) CompletedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Completed)
}

// NotificationKinds lists the kinds of queued notifications in order
func (p *Publisher) NotificationKinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]string, 0, len(p.Notifications))
	for _, n := range p.Notifications {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}
