package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cardora-service/internal/models"
	"cardora-service/internal/provider"
	"cardora-service/internal/service"
	"cardora-service/internal/testkit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	router *gin.Engine
	store  *testkit.MemStore
	prov   *testkit.Provider
	pub    *testkit.Publisher
	checks map[string]Pinger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:  testkit.NewMemStore(),
		prov:   testkit.NewProvider(),
		pub:    testkit.NewPublisher(),
		checks: map[string]Pinger{},
	}

	const inviteBase = "https://cardora.test/invite"
	slugs := service.NewSlugAllocator(env.store, 100)
	notifier := service.NewNotificationDispatcher(env.pub)
	ingestor := service.NewPaymentIngestor(env.store, env.store, env.store, slugs, env.prov, env.pub, notifier, nil, time.Second, inviteBase)
	checkout := service.NewCheckoutService(env.store, env.store, env.prov, env.pub, nil, nil, time.Second, time.Hour)
	invites := service.NewInviteService(env.store, slugs, inviteBase)
	rsvps := service.NewRSVPService(env.store, env.store, env.pub, notifier, nil, 0)

	h := NewHandler(checkout, ingestor, invites, rsvps, testSecret, env.checks)
	env.router = gin.New()
	h.SetupRoutes(env.router)

	env.store.PutAccount(&models.Account{
		ID:             "a1",
		Handle:         "alice",
		Email:          "alice@example.com",
		PaymentEnabled: true,
		PaymentType:    models.PaymentTypeCustom,
		Currency:       "usd",
	})
	env.store.PutAccount(&models.Account{
		ID:             "a2",
		Handle:         "bob",
		Email:          "bob@example.com",
		PaymentEnabled: true,
		PaymentType:    models.PaymentTypeFixed,
		FixedAmount:    1500,
		Currency:       "usd",
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, accountID string) map[string]string {
	t.Helper()
	token, err := NewToken(testSecret, accountID, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (env *testEnv) addPending(sessionID, accountID string, purpose models.Purpose) {
	env.store.PutPayment(&models.PaymentRecord{
		ID:                "rec-" + sessionID,
		ProviderSessionID: sessionID,
		AccountID:         accountID,
		Amount:            500,
		Currency:          "usd",
		PaymentMethod:     models.PaymentMethodProviderHosted,
		Status:            models.PaymentStatusPending,
		Purpose:           purpose,
		CreatedAt:         time.Now(),
	})
}

func webhookBody(id, sessionID string, typ provider.EventType) []byte {
	return testkit.WebhookPayload(provider.WebhookEvent{
		ID:        id,
		Type:      typ,
		RawType:   "checkout.session.completed",
		SessionID: sessionID,
		Paid:      true,
	})
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestReadinessReportsFailedDependency(t *testing.T) {
	env := newTestEnv(t)
	env.checks["postgres"] = pingFunc(func(ctx context.Context) error { return nil })

	w := env.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.checks["redis"] = pingFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	w = env.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	failed, ok := body["failed"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, failed, "redis")
	assert.NotContains(t, failed, "postgres")
}

func TestCreateCheckout(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/checkout", gin.H{
		"accountHandle": "alice",
		"amount":        500,
		"purpose":       "card_unlock",
	}, nil)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "cs_test_1", body["sessionId"])
	assert.Equal(t, "https://checkout.test/pay/cs_test_1", body["redirectUrl"])
	assert.Equal(t, 1, env.store.PaymentCount())
}

func TestCreateCheckoutFixedAmountMismatch(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/checkout", gin.H{
		"accountHandle": "bob",
		"amount":        999,
		"purpose":       "card_unlock",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ValidationError", decode(t, w)["error"])
	assert.Equal(t, 0, env.prov.CreateCalls)
	assert.Equal(t, 0, env.store.PaymentCount())
}

func TestCreateCheckoutUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/checkout", gin.H{
		"accountHandle": "nobody",
		"amount":        500,
		"purpose":       "tip",
	}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NotEligible", decode(t, w)["error"])
}

func TestCreateCheckoutProviderDown(t *testing.T) {
	env := newTestEnv(t)
	env.prov.CreateErr = errors.New("timeout")

	w := env.do(t, http.MethodPost, "/api/v1/checkout", gin.H{
		"accountHandle": "alice",
		"amount":        500,
		"purpose":       "tip",
	}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.Equal(t, 0, env.store.PaymentCount())
}

func TestRespondErrorRequestInProgress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, fmt.Errorf("%w: key-1", service.ErrRequestInProgress))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
	assert.Equal(t, "RequestInProgress", decode(t, w)["error"])
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	env.addPending("cs_1", "a1", models.PurposeCardUnlock)

	w := env.do(t, http.MethodPost, "/api/v1/webhooks/payments",
		webhookBody("evt_1", "cs_1", provider.EventSessionCompleted),
		map[string]string{provider.SignatureHeader: "t=1,v1=forged"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidSignature", decode(t, w)["error"])
	assert.False(t, env.store.Account("a1").CardUnlocked)
}

func TestWebhookCompletesPayment(t *testing.T) {
	env := newTestEnv(t)
	env.addPending("cs_1", "a1", models.PurposeCardUnlock)

	w := env.do(t, http.MethodPost, "/api/v1/webhooks/payments",
		webhookBody("evt_1", "cs_1", provider.EventSessionCompleted),
		map[string]string{provider.SignatureHeader: testkit.WebhookSignature})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["received"])
	assert.True(t, env.store.Account("a1").CardUnlocked)
	assert.Equal(t, 1, env.pub.CompletedCount())
}

func TestWebhookUnknownSessionIsRedelivered(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/webhooks/payments",
		webhookBody("evt_1", "cs_missing", provider.EventSessionCompleted),
		map[string]string{provider.SignatureHeader: testkit.WebhookSignature})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PaymentNotFound", decode(t, w)["error"])
}

func TestWebhookSucceedsWhenNotificationFails(t *testing.T) {
	env := newTestEnv(t)
	env.pub.NotifyErr = errors.New("broker down")
	env.addPending("cs_1", "a1", models.PurposeCardUnlock)

	w := env.do(t, http.MethodPost, "/api/v1/webhooks/payments",
		webhookBody("evt_1", "cs_1", provider.EventSessionCompleted),
		map[string]string{provider.SignatureHeader: testkit.WebhookSignature})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.store.Account("a1").CardUnlocked)
}

func TestVerifyPayment(t *testing.T) {
	env := newTestEnv(t)
	env.addPending("cs_1", "a1", models.PurposeCardUnlock)
	env.prov.SetStatus("cs_1", provider.SessionPaid)

	w := env.do(t, http.MethodPost, "/api/v1/payments/verify", gin.H{"sessionId": "cs_1"}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	record, ok := body["paymentRecord"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "completed", record["status"])
}

func TestVerifyPaymentProviderUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.addPending("cs_1", "a1", models.PurposeCardUnlock)
	env.prov.GetErr = errors.New("503 from provider")

	w := env.do(t, http.MethodPost, "/api/v1/payments/verify", gin.H{"sessionId": "cs_1"}, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ProviderUnavailable", decode(t, w)["error"])
}

func TestVerifyPaymentRequiresSessionID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/payments/verify", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnlockVerifyRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/unlock/verify", gin.H{"sessionId": "cs_1"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/unlock/verify", gin.H{"sessionId": "cs_1"},
		map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnlockVerifyRejectsExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	token, err := NewToken(testSecret, "a1", -time.Minute)
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/api/v1/unlock/verify", gin.H{"sessionId": "cs_1"},
		map[string]string{"Authorization": "Bearer " + token})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token expired", decode(t, w)["details"])
}

func TestUnlockVerify(t *testing.T) {
	env := newTestEnv(t)
	env.addPending("cs_1", "a1", models.PurposeInviteUnlock)
	env.prov.SetStatus("cs_1", provider.SessionPaid)

	w := env.do(t, http.MethodPost, "/api/v1/unlock/verify", gin.H{"sessionId": "cs_1"}, bearer(t, "a1"))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["inviteUnlocked"])
	assert.Equal(t, false, body["cardUnlocked"])
	assert.Equal(t, []interface{}{}, body["createdInvites"])
}

func TestUnlockVerifyOtherAccountForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.addPending("cs_1", "a1", models.PurposeCardUnlock)
	env.prov.SetStatus("cs_1", provider.SessionPaid)

	w := env.do(t, http.MethodPost, "/api/v1/unlock/verify", gin.H{"sessionId": "cs_1"}, bearer(t, "a2"))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.store.Account("a1").CardUnlocked)
}

func TestListPaymentsEmpty(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/payments", nil, bearer(t, "a1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["payments"])
}

func TestSaveInviteRequiresUnlock(t *testing.T) {
	env := newTestEnv(t)
	invite := gin.H{"template": "garden", "bride": "Jane", "groom": "John"}

	w := env.do(t, http.MethodPut, "/api/v1/invite", invite, bearer(t, "a1"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, err := env.store.SetInviteUnlocked(context.Background(), "a1")
	require.NoError(t, err)

	w = env.do(t, http.MethodPut, "/api/v1/invite", invite, bearer(t, "a1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "jane-john", decode(t, w)["slug"])

	w = env.do(t, http.MethodGet, "/api/v1/invites/jane-john", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Jane", decode(t, w)["bride"])
}

func TestGetInviteUnknownSlug(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/invites/nobody-here", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "InviteNotFound", decode(t, w)["error"])
}

func TestSubmitRSVPUnknownSlug(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/rsvp/submit", gin.H{
		"inviteSlug": "missing",
		"guestName":  "Guest",
		"attending":  true,
	}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, env.store.RSVPCount())
}

func TestRSVPLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.store.ClaimSlug(context.Background(), "jane-john", "a1", "cs_1")
	require.NoError(t, err)
	acct := env.store.Account("a1")
	acct.InviteSlug = "jane-john"
	env.store.PutAccount(acct)

	w := env.do(t, http.MethodPost, "/api/v1/rsvp/submit", gin.H{
		"inviteSlug": "jane-john",
		"guestName":  "Guest",
		"attending":  true,
		"guestCount": 3,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)

	w = env.do(t, http.MethodGet, "/api/v1/rsvp", nil, bearer(t, "a1"))
	require.Equal(t, http.StatusOK, w.Code)
	stats, ok := decode(t, w)["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), stats["attending"])
	assert.Equal(t, float64(3), stats["totalGuests"])

	w = env.do(t, http.MethodDelete, "/api/v1/rsvp/"+id, nil, bearer(t, "a2"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, env.store.RSVPCount())

	w = env.do(t, http.MethodDelete, "/api/v1/rsvp/"+id, nil, bearer(t, "a1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.store.RSVPCount())
}
