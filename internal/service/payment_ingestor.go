package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cardora-service/internal/broker"
	"cardora-service/internal/models"
	"cardora-service/internal/notify"
	"cardora-service/internal/provider"
	"cardora-service/internal/util"

	"go.uber.org/zap"
)

// Channel names the path a confirmation arrived through
type Channel string

// Confirmation channels
const (
	ChannelWebhook Channel = "webhook"
	ChannelVerify  Channel = "verify"
	ChannelRetry   Channel = "retry"
)

const (
	confirmLockTTL  = 30 * time.Second
	confirmLockWait = 2 * time.Second
	confirmLockPoll = 50 * time.Millisecond
)

// CreatedInvite is a materialized invite and its public address
type CreatedInvite struct {
	Slug string `json:"slug"`
	URL  string `json:"url"`
}

// ConfirmResult describes the state after a confirmation attempt
type ConfirmResult struct {
	Record               *models.PaymentRecord
	Transitioned         bool
	CardUnlocked         bool
	InviteUnlocked       bool
	CreatedInvites       []CreatedInvite
	MaterializationError string
}

// VerifyResult is the outcome of a client verification poll
type VerifyResult struct {
	Success bool                  `json:"success"`
	Pending bool                  `json:"pending"`
	Record  *models.PaymentRecord `json:"paymentRecord"`
	confirm *ConfirmResult
}

// UnlockResult is returned to the buyer after redirect-back
type UnlockResult struct {
	CardUnlocked         bool            `json:"cardUnlocked"`
	InviteUnlocked       bool            `json:"inviteUnlocked"`
	CreatedInvites       []CreatedInvite `json:"createdInvites"`
	Pending              bool            `json:"pending"`
	MaterializationError string          `json:"materializationError,omitempty"`
}

// PaymentIngestor drives payment records to a terminal state and applies
// the resulting entitlements. Every entry point is safe to repeat.
type PaymentIngestor struct {
	payments        PaymentStore
	accounts        AccountStore
	slugStore       SlugStore
	slugs           *SlugAllocator
	provider        provider.Provider
	publisher       Publisher
	notifier        *NotificationDispatcher
	locker          Locker
	providerTimeout time.Duration
	inviteBaseURL   string
	logger          *zap.Logger
}

// NewPaymentIngestor creates a new payment ingestor. locker may be nil.
func NewPaymentIngestor(
	payments PaymentStore,
	accounts AccountStore,
	slugStore SlugStore,
	slugs *SlugAllocator,
	prov provider.Provider,
	publisher Publisher,
	notifier *NotificationDispatcher,
	locker Locker,
	providerTimeout time.Duration,
	inviteBaseURL string,
) *PaymentIngestor {
	return &PaymentIngestor{
		payments:        payments,
		accounts:        accounts,
		slugStore:       slugStore,
		slugs:           slugs,
		provider:        prov,
		publisher:       publisher,
		notifier:        notifier,
		locker:          locker,
		providerTimeout: providerTimeout,
		inviteBaseURL:   strings.TrimRight(inviteBaseURL, "/"),
		logger:          util.GetLogger(),
	}
}

// ConfirmSession marks the session's record completed and applies its
// effects. Only the caller that performs the pending->completed transition
// publishes the completion event and the receipt.
func (p *PaymentIngestor) ConfirmSession(ctx context.Context, sessionID string, channel Channel) (*ConfirmResult, error) {
	return p.confirm(ctx, sessionID, channel, 0)
}

// RetryMaterialization re-runs the confirmation of a session whose invite
// failed to materialize attempt times so far. A further failure is
// reported with the next attempt number.
func (p *PaymentIngestor) RetryMaterialization(ctx context.Context, sessionID string, attempt int) (*ConfirmResult, error) {
	return p.confirm(ctx, sessionID, ChannelRetry, attempt)
}

func (p *PaymentIngestor) confirm(ctx context.Context, sessionID string, channel Channel, attempt int) (*ConfirmResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentIngestor.ConfirmSession")
	defer span.End()

	rec, err := p.payments.GetPaymentRecordBySession(ctx, sessionID)
	if err != nil {
		util.SpanError(span, err)
		return nil, persistenceError("get payment record", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: session %s", ErrPaymentNotFound, sessionID)
	}

	transitioned := false
	if rec.Status == models.PaymentStatusPending {
		transitioned, err = p.payments.TransitionPaymentStatus(ctx, sessionID, models.PaymentStatusCompleted)
		if err != nil {
			util.SpanError(span, err)
			return nil, persistenceError("complete payment", err)
		}

		if transitioned {
			now := time.Now()
			rec.Status = models.PaymentStatusCompleted
			rec.CompletedAt = &now
			rec.UpdatedAt = now
			util.PaymentTerminalTotal.WithLabelValues(string(models.PaymentStatusCompleted)).Inc()
		} else {
			// another caller moved it first
			rec, err = p.payments.GetPaymentRecordBySession(ctx, sessionID)
			if err != nil {
				return nil, persistenceError("reload payment record", err)
			}
			if rec == nil {
				return nil, fmt.Errorf("%w: session %s", ErrPaymentNotFound, sessionID)
			}
		}
	}

	result := &ConfirmResult{Record: rec, Transitioned: transitioned}

	if rec.Status != models.PaymentStatusCompleted {
		util.PaymentConfirmationsTotal.WithLabelValues(string(channel), "not_completed").Inc()
		p.logger.Info("Confirmation ignored for terminal record",
			zap.String("session_id", sessionID),
			zap.String("status", string(rec.Status)))
		return result, nil
	}

	effectsErr := p.applyEffects(ctx, rec, result, attempt)

	// the payment completed even if an effect has to be retried
	outcome := "already_completed"
	if transitioned {
		outcome = "transitioned"
		p.announceCompletion(ctx, rec, channel)
	}
	if effectsErr != nil {
		util.SpanError(span, effectsErr)
		util.PaymentConfirmationsTotal.WithLabelValues(string(channel), "effects_failed").Inc()
		return nil, effectsErr
	}
	util.PaymentConfirmationsTotal.WithLabelValues(string(channel), outcome).Inc()

	p.logger.Info("Payment confirmed",
		zap.String("session_id", sessionID),
		zap.String("channel", string(channel)),
		zap.Bool("transitioned", transitioned))

	return result, nil
}

// applyEffects re-asserts every entitlement the record grants and
// materializes invite content that is still missing.
func (p *PaymentIngestor) applyEffects(ctx context.Context, rec *models.PaymentRecord, result *ConfirmResult, attempt int) error {
	release := p.lockSession(ctx, rec.ProviderSessionID)
	defer release()

	for _, target := range rec.Targets() {
		var changed bool
		var err error

		switch target {
		case models.UnlockCard:
			changed, err = p.accounts.SetCardUnlocked(ctx, rec.AccountID)
		case models.UnlockInvite:
			changed, err = p.accounts.SetInviteUnlocked(ctx, rec.AccountID)
		}
		if err != nil {
			return persistenceError(fmt.Sprintf("unlock %s", target), err)
		}
		if changed {
			util.EntitlementUnlocksTotal.WithLabelValues(string(target)).Inc()
			p.logger.Info("Entitlement unlocked",
				zap.String("account_id", rec.AccountID),
				zap.String("target", string(target)))
		}
	}

	if invite := rec.InviteContent(); invite != nil {
		created, err := p.materializeInvite(ctx, rec, invite)
		if err != nil {
			p.reportMaterializationFailure(ctx, rec, err, attempt+1)
			result.MaterializationError = err.Error()
		} else {
			result.CreatedInvites = append(result.CreatedInvites, *created)
		}
	}

	acct, err := p.accounts.GetAccountByID(ctx, rec.AccountID)
	if err != nil {
		return persistenceError("get account", err)
	}
	if acct != nil {
		result.CardUnlocked = acct.CardUnlocked
		result.InviteUnlocked = acct.InviteUnlocked
	}
	return nil
}

// materializeInvite allocates the slug for this purchase, unless one was
// already claimed for the session, and writes the invite fields.
func (p *PaymentIngestor) materializeInvite(ctx context.Context, rec *models.PaymentRecord, invite *models.InviteItem) (*CreatedInvite, error) {
	slug, err := p.slugStore.GetSlugBySession(ctx, rec.ProviderSessionID)
	if err != nil {
		return nil, persistenceError("get slug by session", err)
	}

	if slug == "" {
		slug, err = p.slugs.Allocate(ctx, invite.Bride, invite.Groom, rec.AccountID, rec.ProviderSessionID)
		if err != nil {
			return nil, err
		}
	}

	acct, err := p.accounts.GetAccountByID(ctx, rec.AccountID)
	if err != nil {
		return nil, persistenceError("get account", err)
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: account %s", ErrNotEligible, rec.AccountID)
	}

	created := &CreatedInvite{Slug: slug, URL: p.InviteURL(slug)}
	if acct.InviteSlug == slug {
		return created, nil
	}

	if err := p.accounts.SaveInviteDetails(ctx, rec.AccountID, slug, invite); err != nil {
		return nil, persistenceError("save invite details", err)
	}

	p.logger.Info("Invite materialized",
		zap.String("account_id", rec.AccountID),
		zap.String("slug", slug),
		zap.String("session_id", rec.ProviderSessionID))

	p.notifier.Dispatch(ctx, notify.InviteCreated(acct.Email, created.URL))
	return created, nil
}

func (p *PaymentIngestor) reportMaterializationFailure(ctx context.Context, rec *models.PaymentRecord, cause error, attempt int) {
	util.InviteMaterializationFailedTotal.Inc()
	p.logger.Error("Invite materialization failed",
		zap.String("session_id", rec.ProviderSessionID),
		zap.String("account_id", rec.AccountID),
		zap.Int("attempt", attempt),
		zap.Error(cause))

	event := &models.InviteMaterializationFailedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeInviteMaterializationFailed),
		SessionID: rec.ProviderSessionID,
		AccountID: rec.AccountID,
		Reason:    cause.Error(),
		Attempt:   attempt,
	}
	if err := p.publisher.PublishInviteMaterializationFailed(ctx, event); err != nil {
		p.logger.Error("Failed to publish InviteMaterializationFailed event", zap.Error(err))
	}
}

func (p *PaymentIngestor) announceCompletion(ctx context.Context, rec *models.PaymentRecord, channel Channel) {
	event := &models.PaymentCompletedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypePaymentCompleted),
		SessionID: rec.ProviderSessionID,
		AccountID: rec.AccountID,
		Amount:    rec.Amount,
		Currency:  rec.Currency,
		Purpose:   rec.Purpose,
		Channel:   string(channel),
	}
	if err := p.publisher.PublishPaymentCompleted(ctx, event); err != nil {
		p.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}

	to := rec.PayerContact
	if to == "" {
		if acct, err := p.accounts.GetAccountByID(ctx, rec.AccountID); err == nil && acct != nil {
			to = acct.Email
		}
	}
	p.notifier.Dispatch(ctx, notify.PaymentReceipt(to, rec.Amount, rec.Currency, string(rec.Purpose)))
}

// lockSession serializes effect application per session when a locker is
// configured. It waits briefly for a contended lock and then proceeds
// without it; the store's conditional writes keep effects correct either way.
func (p *PaymentIngestor) lockSession(ctx context.Context, sessionID string) func() {
	noop := func() {}
	if p.locker == nil {
		return noop
	}

	key := "confirm:" + sessionID
	deadline := time.Now().Add(confirmLockWait)

	for {
		token, ok, err := p.locker.AcquireLock(ctx, key, confirmLockTTL)
		if err != nil {
			p.logger.Warn("Confirm lock unavailable", zap.String("session_id", sessionID), zap.Error(err))
			return noop
		}
		if ok {
			return func() {
				if err := p.locker.ReleaseLock(context.Background(), key, token); err != nil {
					p.logger.Warn("Failed to release confirm lock", zap.String("session_id", sessionID), zap.Error(err))
				}
			}
		}
		if time.Now().After(deadline) {
			return noop
		}

		select {
		case <-ctx.Done():
			return noop
		case <-time.After(confirmLockPoll):
		}
	}
}

// CloseSession moves a pending record to failed or cancelled
func (p *PaymentIngestor) CloseSession(ctx context.Context, sessionID string, status models.PaymentStatus) (*models.PaymentRecord, error) {
	ctx, span := util.StartSpan(ctx, "PaymentIngestor.CloseSession")
	defer span.End()

	if status != models.PaymentStatusFailed && status != models.PaymentStatusCancelled {
		return nil, validationError("cannot close session as %s", status)
	}

	rec, err := p.payments.GetPaymentRecordBySession(ctx, sessionID)
	if err != nil {
		return nil, persistenceError("get payment record", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: session %s", ErrPaymentNotFound, sessionID)
	}
	if rec.Status != models.PaymentStatusPending {
		return rec, nil
	}

	ok, err := p.payments.TransitionPaymentStatus(ctx, sessionID, status)
	if err != nil {
		util.SpanError(span, err)
		return nil, persistenceError("close payment", err)
	}
	if !ok {
		rec, err = p.payments.GetPaymentRecordBySession(ctx, sessionID)
		if err != nil {
			return nil, persistenceError("reload payment record", err)
		}
		return rec, nil
	}

	rec.Status = status
	util.PaymentTerminalTotal.WithLabelValues(string(status)).Inc()
	p.logger.Info("Payment closed",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)))
	return rec, nil
}

// VerifySession asks the provider for the session state and converges the
// local record on it. A pending provider session is not an error.
func (p *PaymentIngestor) VerifySession(ctx context.Context, sessionID string) (*VerifyResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentIngestor.VerifySession")
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		return nil, validationError("sessionId is required")
	}

	rec, err := p.payments.GetPaymentRecordBySession(ctx, sessionID)
	if err != nil {
		return nil, persistenceError("get payment record", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: session %s", ErrPaymentNotFound, sessionID)
	}

	switch rec.Status {
	case models.PaymentStatusCompleted:
		return p.confirmForVerify(ctx, sessionID)
	case models.PaymentStatusFailed, models.PaymentStatusCancelled:
		return &VerifyResult{Record: rec}, nil
	}

	pctx, cancel := context.WithTimeout(ctx, p.providerTimeout)
	defer cancel()

	sess, err := p.provider.GetSession(pctx, sessionID)
	if err != nil {
		util.SpanError(span, err)
		p.logger.Warn("Provider session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	switch sess.Status {
	case provider.SessionPaid:
		return p.confirmForVerify(ctx, sessionID)
	case provider.SessionExpired:
		closed, err := p.CloseSession(ctx, sessionID, models.PaymentStatusCancelled)
		if err != nil {
			return nil, err
		}
		return &VerifyResult{Record: closed}, nil
	}

	return &VerifyResult{Pending: true, Record: rec}, nil
}

func (p *PaymentIngestor) confirmForVerify(ctx context.Context, sessionID string) (*VerifyResult, error) {
	res, err := p.ConfirmSession(ctx, sessionID, ChannelVerify)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Success: res.Record.Status == models.PaymentStatusCompleted,
		Record:  res.Record,
		confirm: res,
	}, nil
}

// UnlockAfterVerify verifies a session on behalf of its owner and reports
// the resulting entitlements
func (p *PaymentIngestor) UnlockAfterVerify(ctx context.Context, accountID, sessionID string) (*UnlockResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentIngestor.UnlockAfterVerify")
	defer span.End()

	rec, err := p.payments.GetPaymentRecordBySession(ctx, sessionID)
	if err != nil {
		return nil, persistenceError("get payment record", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: session %s", ErrPaymentNotFound, sessionID)
	}
	if rec.AccountID != accountID {
		return nil, fmt.Errorf("%w: session belongs to another account", ErrForbidden)
	}

	vr, err := p.VerifySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := &UnlockResult{Pending: vr.Pending, CreatedInvites: []CreatedInvite{}}
	if vr.confirm != nil {
		out.CardUnlocked = vr.confirm.CardUnlocked
		out.InviteUnlocked = vr.confirm.InviteUnlocked
		out.CreatedInvites = append(out.CreatedInvites, vr.confirm.CreatedInvites...)
		out.MaterializationError = vr.confirm.MaterializationError
		return out, nil
	}

	acct, err := p.accounts.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, persistenceError("get account", err)
	}
	if acct != nil {
		out.CardUnlocked = acct.CardUnlocked
		out.InviteUnlocked = acct.InviteUnlocked
	}
	return out, nil
}

// HandleWebhook verifies and applies one provider notification.
// Returning nil acknowledges the delivery.
func (p *PaymentIngestor) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "PaymentIngestor.HandleWebhook")
	defer span.End()

	evt, err := p.provider.ParseWebhook(payload, signature)
	if err != nil {
		util.WebhookRejectedTotal.Inc()
		p.logger.Warn("Rejected webhook", zap.Error(err))
		if errors.Is(err, provider.ErrInvalidSignature) {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return validationError("malformed webhook: %v", err)
	}

	if evt.Type == provider.EventIgnored {
		p.logger.Debug("Ignoring webhook event", zap.String("type", evt.RawType))
		return nil
	}

	processed, err := p.payments.IsEventProcessed(ctx, evt.ID)
	if err != nil {
		return persistenceError("check processed event", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", evt.ID))
		return nil
	}

	switch evt.Type {
	case provider.EventSessionCompleted:
		if !evt.Paid {
			p.logger.Info("Session completed without payment yet",
				zap.String("session_id", evt.SessionID))
			break
		}
		if _, err := p.ConfirmSession(ctx, evt.SessionID, ChannelWebhook); err != nil {
			util.SpanError(span, err)
			return err
		}
	case provider.EventSessionFailed:
		if _, err := p.CloseSession(ctx, evt.SessionID, models.PaymentStatusFailed); err != nil {
			return err
		}
	case provider.EventSessionExpired:
		if _, err := p.CloseSession(ctx, evt.SessionID, models.PaymentStatusCancelled); err != nil {
			return err
		}
	}

	if err := p.payments.MarkEventProcessed(ctx, evt.ID, evt.RawType); err != nil {
		return persistenceError("mark event processed", err)
	}
	return nil
}

// InviteURL is the public address of slug
func (p *PaymentIngestor) InviteURL(slug string) string {
	return p.inviteBaseURL + "/" + slug
}
