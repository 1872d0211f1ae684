package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	stripewebhook "github.com/lplate/lplate-backend/internal/webhooks/stripe"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
	"github.com/lplate/lplate-backend/pkg/metrics"
)

const testSecret = "whsec_test"

func newEndpoint(t *testing.T, handler EventHandler) (StripeEndpoint, *prometheus.Registry) {
	t.Helper()
	guard, err := stripewebhook.NewEventGuard(newInMemoryStore(), time.Minute, "stripe_payments")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	return StripeEndpoint{
		Name:          EndpointPayments,
		SigningSecret: testSecret,
		Handler:       handler,
		Guard:         guard,
		Metrics:       metrics.NewWebhookMetrics(reg),
	}, reg
}

func post(handler http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe/payments", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookProcessesOnce(t *testing.T) {
	payload, header := buildSignedEvent(t, testSecret)
	service := &fakeEventHandler{}
	endpoint, reg := newEndpoint(t, service)
	handler := StripeWebhook(endpoint, nil)

	rec := post(handler, payload, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"received":true}`, rec.Body.String())
	require.Equal(t, 1, service.calls)

	rec = post(handler, payload, header)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"received":true}`, rec.Body.String())
	require.Equal(t, 1, service.calls, "duplicate delivery must not be reprocessed")

	count, err := testutil.GatherAndCount(reg, "lplate_webhook_events_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t, testSecret)
	service := &fakeEventHandler{}
	endpoint, _ := newEndpoint(t, service)
	handler := StripeWebhook(endpoint, nil)

	rec := post(handler, payload, "t=1,v1=invalid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, service.calls)

	_, wrongSecret := buildSignedEvent(t, "whsec_other")
	rec = post(handler, payload, wrongSecret)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(handler, payload, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, service.calls)
}

func TestStripeWebhookFailureAllowsRedelivery(t *testing.T) {
	payload, header := buildSignedEvent(t, testSecret)
	service := &fakeEventHandler{err: pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")}
	endpoint, _ := newEndpoint(t, service)
	handler := StripeWebhook(endpoint, nil)

	rec := post(handler, payload, header)
	require.Equal(t, http.StatusNotFound, rec.Code)

	service.err = nil
	rec = post(handler, payload, header)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, service.calls)
}

func TestStripeWebhookUnexpectedErrorIs500(t *testing.T) {
	payload, header := buildSignedEvent(t, testSecret)
	endpoint, _ := newEndpoint(t, &fakeEventHandler{err: errors.New("db down")})
	rec := post(StripeWebhook(endpoint, nil), payload, header)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStripeWebhookRequiresSecret(t *testing.T) {
	payload, header := buildSignedEvent(t, testSecret)
	endpoint, _ := newEndpoint(t, &fakeEventHandler{})
	endpoint.SigningSecret = ""
	rec := post(StripeWebhook(endpoint, nil), payload, header)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func buildSignedEvent(t *testing.T, secret string) ([]byte, string) {
	t.Helper()
	intent := map[string]any{
		"id":       "pi_" + uuid.NewString(),
		"object":   "payment_intent",
		"status":   "succeeded",
		"amount":   4720,
		"currency": "gbp",
		"metadata": map[string]string{"paymentId": uuid.NewString()},
	}
	raw, err := json.Marshal(intent)
	require.NoError(t, err)
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data: &stripe.EventData{
			Raw: raw,
		},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload, buildStripeSignatureHeader(payload, secret, time.Now().Unix())
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeEventHandler struct {
	calls int
	err   error
}

func (f *fakeEventHandler) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
