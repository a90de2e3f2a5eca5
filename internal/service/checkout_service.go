package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cardora-service/internal/broker"
	"cardora-service/internal/models"
	"cardora-service/internal/provider"
	"cardora-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyLockTTL  = 30 * time.Second
	idempotencyLockWait = 3 * time.Second
	idempotencyLockPoll = 100 * time.Millisecond
)

// CheckoutRequest opens a hosted checkout for one purchase
type CheckoutRequest struct {
	AccountHandle  string         `json:"accountHandle" binding:"required"`
	Amount         int64          `json:"amount" binding:"required"`
	Currency       string         `json:"currency"`
	Purpose        models.Purpose `json:"purpose" binding:"required"`
	PayerContact   string         `json:"payerContact,omitempty"`
	Items          models.Items   `json:"items,omitempty"`
	IdempotencyKey string         `json:"-"`
}

// CheckoutResponse tells the client where to send the buyer
type CheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

// CheckoutService opens provider sessions and records them as pending
type CheckoutService struct {
	payments        PaymentStore
	accounts        AccountStore
	provider        provider.Provider
	publisher       Publisher
	cache           IdempotencyCache
	analytics       AnalyticsRecorder
	providerTimeout time.Duration
	idempotencyTTL  time.Duration
	lockWait        time.Duration
	logger          *zap.Logger
}

// NewCheckoutService creates a new checkout service. cache and analytics may be nil.
func NewCheckoutService(
	payments PaymentStore,
	accounts AccountStore,
	prov provider.Provider,
	publisher Publisher,
	cache IdempotencyCache,
	analytics AnalyticsRecorder,
	providerTimeout time.Duration,
	idempotencyTTL time.Duration,
) *CheckoutService {
	return &CheckoutService{
		payments:        payments,
		accounts:        accounts,
		provider:        prov,
		publisher:       publisher,
		cache:           cache,
		analytics:       analytics,
		providerTimeout: providerTimeout,
		idempotencyTTL:  idempotencyTTL,
		lockWait:        idempotencyLockWait,
		logger:          util.GetLogger(),
	}
}

// CreateCheckout validates the purchase, opens a provider session and
// persists the pending record before returning the redirect URL
func (s *CheckoutService) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	cacheKey := ""
	if req.IdempotencyKey != "" && s.cache != nil {
		cacheKey = req.AccountHandle + ":" + req.IdempotencyKey
		if cached, ok := s.cachedResponse(ctx, cacheKey); ok {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("session_id", cached.SessionID))
			return cached, nil
		}

		release, cached, err := s.reserveIdempotencyKey(ctx, cacheKey)
		if err != nil {
			util.CheckoutFailedTotal.WithLabelValues("in_progress").Inc()
			return nil, err
		}
		if cached != nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("session_id", cached.SessionID))
			return cached, nil
		}
		defer release()
	}

	if err := validateCheckout(req); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	acct, err := s.accounts.GetAccountByHandle(ctx, req.AccountHandle)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, persistenceError("get account", err)
	}
	if acct == nil || !acct.PaymentEnabled {
		util.CheckoutFailedTotal.WithLabelValues("not_eligible").Inc()
		return nil, fmt.Errorf("%w: %s does not accept payments", ErrNotEligible, req.AccountHandle)
	}
	if acct.PaymentType == models.PaymentTypeFixed && req.Amount != acct.FixedAmount {
		util.CheckoutFailedTotal.WithLabelValues("amount_mismatch").Inc()
		return nil, validationError("amount must be %d", acct.FixedAmount)
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = acct.Currency
	}

	recordID := uuid.New().String()

	pctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	sess, err := s.provider.CreateSession(pctx, &provider.SessionRequest{
		Reference:     recordID,
		AccountID:     acct.ID,
		Currency:      currency,
		CustomerEmail: req.PayerContact,
		LineItems:     lineItems(req),
		Metadata:      map[string]string{"purpose": string(req.Purpose)},
	})
	if err != nil {
		util.SpanError(span, err)
		util.CheckoutFailedTotal.WithLabelValues("provider_error").Inc()
		s.logger.Error("Provider session creation failed",
			zap.String("account_id", acct.ID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	rec := &models.PaymentRecord{
		ID:                recordID,
		ProviderSessionID: sess.ID,
		AccountID:         acct.ID,
		Amount:            req.Amount,
		Currency:          currency,
		PaymentMethod:     models.PaymentMethodProviderHosted,
		Status:            models.PaymentStatusPending,
		Purpose:           req.Purpose,
		PayerContact:      req.PayerContact,
		ItemData:          req.Items,
	}

	if err := s.payments.CreatePaymentRecord(ctx, rec); err != nil {
		util.SpanError(span, err)
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return nil, persistenceError("create payment record", err)
	}

	util.CheckoutSessionsCreatedTotal.WithLabelValues(string(req.Purpose)).Inc()
	s.logger.Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("account_id", acct.ID),
		zap.Int64("amount", req.Amount),
		zap.String("purpose", string(req.Purpose)))

	s.recordView(ctx, rec)

	resp := &CheckoutResponse{SessionID: sess.ID, RedirectURL: sess.URL}
	if cacheKey != "" {
		s.cacheResponse(ctx, cacheKey, resp)
	}
	return resp, nil
}

// ListPayments returns an account's payment history, newest first
func (s *CheckoutService) ListPayments(ctx context.Context, accountID string) ([]models.PaymentRecord, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ListPayments")
	defer span.End()

	records, err := s.payments.ListPaymentRecordsByAccount(ctx, accountID)
	if err != nil {
		return nil, persistenceError("list payment records", err)
	}
	if records == nil {
		records = []models.PaymentRecord{}
	}
	return records, nil
}

func (s *CheckoutService) recordView(ctx context.Context, rec *models.PaymentRecord) {
	if s.analytics != nil {
		if err := s.analytics.RecordPaymentView(ctx, rec.AccountID); err != nil {
			s.logger.Warn("Failed to record payment view", zap.Error(err))
		}
	}

	event := &models.PaymentViewedEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypePaymentViewed),
		AccountID: rec.AccountID,
		SessionID: rec.ProviderSessionID,
		Amount:    rec.Amount,
		Purpose:   rec.Purpose,
	}
	if err := s.publisher.PublishPaymentViewed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentViewed event", zap.Error(err))
	}
}

// reserveIdempotencyKey locks key for the caller. While another request
// holds it, the cache is polled for that request's response until lockWait
// runs out. Without a reachable lock the request proceeds unreserved.
func (s *CheckoutService) reserveIdempotencyKey(ctx context.Context, key string) (func(), *CheckoutResponse, error) {
	noop := func() {}
	lockKey := "checkout:" + key
	deadline := time.Now().Add(s.lockWait)

	for {
		token, ok, err := s.cache.AcquireLock(ctx, lockKey, idempotencyLockTTL)
		if err != nil {
			s.logger.Warn("Idempotency lock unavailable", zap.Error(err))
			return noop, nil, nil
		}
		if ok {
			release := func() {
				if err := s.cache.ReleaseLock(context.Background(), lockKey, token); err != nil {
					s.logger.Warn("Failed to release idempotency lock", zap.Error(err))
				}
			}
			// the previous holder may have cached its response before releasing
			if cached, found := s.cachedResponse(ctx, key); found {
				release()
				return noop, cached, nil
			}
			return release, nil, nil
		}

		if cached, found := s.cachedResponse(ctx, key); found {
			return noop, cached, nil
		}
		if time.Now().After(deadline) {
			return nil, nil, fmt.Errorf("%w: a checkout with this idempotency key is still being created", ErrRequestInProgress)
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(idempotencyLockPoll):
		}
	}
}

func (s *CheckoutService) cachedResponse(ctx context.Context, key string) (*CheckoutResponse, bool) {
	raw, found, err := s.cache.GetIdempotentResponse(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var resp CheckoutResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.logger.Warn("Discarding unreadable cached checkout response", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

func (s *CheckoutService) cacheResponse(ctx context.Context, key string, resp *CheckoutResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.cache.SetIdempotentResponse(ctx, key, raw, s.idempotencyTTL); err != nil {
		s.logger.Warn("Failed to cache checkout response", zap.Error(err))
	}
}

func validateCheckout(req *CheckoutRequest) error {
	if strings.TrimSpace(req.AccountHandle) == "" {
		return validationError("accountHandle is required")
	}
	if !req.Purpose.Valid() {
		return validationError("unknown purpose %q", req.Purpose)
	}
	if req.Amount <= 0 {
		return validationError("amount must be positive")
	}
	if req.Currency != "" && len(req.Currency) != 3 {
		return validationError("currency must be a 3-letter code")
	}

	for i := range req.Items {
		if err := req.Items[i].Validate(); err != nil {
			return validationError("item %d: %v", i, err)
		}
	}

	switch req.Purpose {
	case models.PurposeCart:
		if len(req.Items) == 0 {
			return validationError("cart requires at least one item")
		}
		seen := make(map[models.ItemType]bool, len(req.Items))
		for i, it := range req.Items {
			if it.Amount <= 0 {
				return validationError("item %d: amount must be positive", i)
			}
			// an account holds one card and one invite
			if seen[it.Type] {
				return validationError("cart takes at most one %s item", it.Type)
			}
			seen[it.Type] = true
		}
		if total := req.Items.Total(); total != req.Amount {
			return validationError("item total %d does not match amount %d", total, req.Amount)
		}
	case models.PurposeCardUnlock, models.PurposeInviteUnlock:
		if len(req.Items) > 1 {
			return validationError("%s takes at most one item", req.Purpose)
		}
		want := models.UnlockCard
		if req.Purpose == models.PurposeInviteUnlock {
			want = models.UnlockInvite
		}
		if len(req.Items) == 1 && req.Items[0].Target() != want {
			return validationError("item type %s does not match purpose %s", req.Items[0].Type, req.Purpose)
		}
	case models.PurposeTip:
		if len(req.Items) > 0 {
			return validationError("tip takes no items")
		}
	}
	return nil
}

func lineItems(req *CheckoutRequest) []provider.LineItem {
	if req.Purpose != models.PurposeCart {
		return []provider.LineItem{{Name: purposeLabel(req.Purpose), Amount: req.Amount}}
	}

	items := make([]provider.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		name := "Digital business card"
		if it.Type == models.ItemTypeInvite {
			name = "Wedding invitation"
		}
		items = append(items, provider.LineItem{Name: name, Amount: it.Amount})
	}
	return items
}

func purposeLabel(p models.Purpose) string {
	switch p {
	case models.PurposeCardUnlock:
		return "Digital business card"
	case models.PurposeInviteUnlock:
		return "Wedding invitation"
	case models.PurposeTip:
		return "Tip"
	}
	return string(p)
}
