package service

import (
	"testing"
	"time"

	"cardora-service/internal/models"
	"cardora-service/internal/testkit"
)

const testInviteBase = "https://cardora.test/invite"

type harness struct {
	store    *testkit.MemStore
	prov     *testkit.Provider
	pub      *testkit.Publisher
	slugs    *SlugAllocator
	notifier *NotificationDispatcher
	ingestor *PaymentIngestor
	checkout *CheckoutService
	invites  *InviteService
	rsvps    *RSVPService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store: testkit.NewMemStore(),
		prov:  testkit.NewProvider(),
		pub:   testkit.NewPublisher(),
	}
	h.slugs = NewSlugAllocator(h.store, 1000)
	h.notifier = NewNotificationDispatcher(h.pub)
	h.ingestor = NewPaymentIngestor(h.store, h.store, h.store, h.slugs, h.prov, h.pub, h.notifier, nil, time.Second, testInviteBase)
	h.checkout = NewCheckoutService(h.store, h.store, h.prov, h.pub, nil, nil, time.Second, time.Hour)
	h.invites = NewInviteService(h.store, h.slugs, testInviteBase)
	h.rsvps = NewRSVPService(h.store, h.store, h.pub, h.notifier, nil, 0)
	return h
}

func (h *harness) addAccount(id string, mutate ...func(*models.Account)) *models.Account {
	a := &models.Account{
		ID:             id,
		Handle:         "handle-" + id,
		Email:          id + "@example.com",
		PaymentEnabled: true,
		PaymentType:    models.PaymentTypeCustom,
		Currency:       "usd",
	}
	for _, m := range mutate {
		m(a)
	}
	h.store.PutAccount(a)
	return a
}

func (h *harness) addPending(sessionID, accountID string, purpose models.Purpose, items models.Items) {
	h.store.PutPayment(&models.PaymentRecord{
		ID:                "rec-" + sessionID,
		ProviderSessionID: sessionID,
		AccountID:         accountID,
		Amount:            1000,
		Currency:          "usd",
		PaymentMethod:     models.PaymentMethodProviderHosted,
		Status:            models.PaymentStatusPending,
		Purpose:           purpose,
		ItemData:          items,
		CreatedAt:         time.Now(),
	})
}

func inviteCart(bride, groom string) models.Items {
	return models.Items{
		{Type: models.ItemTypeCard, Amount: 400, Card: &models.CardItem{Template: "minimal"}},
		{Type: models.ItemTypeInvite, Amount: 600, Invite: &models.InviteItem{
			Template: "garden", Bride: bride, Groom: groom, Venue: "Town Hall",
		}},
	}
}
