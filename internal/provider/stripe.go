package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cardora-service/config"
	"cardora-service/internal/util"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider with Stripe Checkout
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripeProvider creates a Stripe-backed provider
func NewStripeProvider(cfg config.ProviderConfig) *StripeProvider {
	return &StripeProvider{
		api:           client.New(cfg.SecretKey, nil),
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}
}

// CreateSession opens a Checkout session in payment mode
func (p *StripeProvider) CreateSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	start := time.Now()
	defer func() {
		util.ProviderLatency.WithLabelValues("create_session").Observe(time.Since(start).Seconds())
	}()

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.Reference),
	}
	params.Context = ctx

	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(li.Amount),
			},
			Quantity: stripe.Int64(1),
		})
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("account_id", req.AccountID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	cs, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return toSession(cs), nil
}

// GetSession fetches the current state of a Checkout session
func (p *StripeProvider) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	start := time.Now()
	defer func() {
		util.ProviderLatency.WithLabelValues("get_session").Observe(time.Since(start).Seconds())
	}()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return toSession(cs), nil
}

// ParseWebhook verifies the signature header and normalizes the event
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{ID: event.ID, RawType: string(event.Type), Type: EventIgnored}

	switch string(event.Type) {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		out.Type = EventSessionCompleted
	case "checkout.session.async_payment_failed":
		out.Type = EventSessionFailed
	case "checkout.session.expired":
		out.Type = EventSessionExpired
	default:
		return out, nil
	}

	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	out.SessionID = cs.ID
	out.Paid = cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid

	return out, nil
}

func toSession(cs *stripe.CheckoutSession) *Session {
	s := &Session{
		ID:          cs.ID,
		URL:         cs.URL,
		AmountTotal: cs.AmountTotal,
	}
	if cs.CustomerDetails != nil {
		s.CustomerEmail = cs.CustomerDetails.Email
	}

	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		s.Status = SessionPaid
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		s.Status = SessionExpired
	case cs.Status == stripe.CheckoutSessionStatusComplete:
		s.Status = SessionUnpaid
	default:
		s.Status = SessionOpen
	}
	return s
}
