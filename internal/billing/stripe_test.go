package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

// fakeStripe records API calls and serves canned responses.
type fakeStripe struct {
	*httptest.Server

	mu       sync.Mutex
	form     url.Values
	query    url.Values
	subsBody string
	status   int
}

func newFakeStripe(t *testing.T) *fakeStripe {
	t.Helper()
	f := &fakeStripe{status: http.StatusOK, subsBody: `{"object":"list","data":[],"has_more":false,"url":"/v1/subscriptions"}`}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeStripe) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"No such customer: 'cus_missing'","type":"invalid_request_error"}}`))
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		_ = r.ParseForm()
		f.form = r.PostForm
		_, _ = w.Write([]byte(`{"id":"cs_test_123","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_123"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v1/subscriptions":
		f.query = r.URL.Query()
		_, _ = w.Write([]byte(f.subsBody))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"unknown route","type":"invalid_request_error"}}`))
	}
}

func newTestStripeClient(f *fakeStripe) *StripeClient {
	return NewStripeClient(StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		PriceID:       "price_123",
		SiteURL:       "https://devtools.example.com/",
		APIURL:        f.URL,
	})
}

// signPayload builds a Stripe-Signature header for payload.
func signPayload(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeClient_CreateCheckoutSession(t *testing.T) {
	t.Run("new customer", func(t *testing.T) {
		f := newFakeStripe(t)

		session, err := newTestStripeClient(f).CreateCheckoutSession(context.Background(), "")
		require.NoError(t, err)

		assert.Equal(t, "cs_test_123", session.ID)
		assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_123", session.URL)

		assert.Equal(t, "subscription", f.form.Get("mode"))
		assert.Equal(t, "card", f.form.Get("payment_method_types[0]"))
		assert.Equal(t, "price_123", f.form.Get("line_items[0][price]"))
		assert.Equal(t, "1", f.form.Get("line_items[0][quantity]"))
		assert.Equal(t, "https://devtools.example.com/pro?session_id={CHECKOUT_SESSION_ID}", f.form.Get("success_url"))
		assert.Equal(t, "https://devtools.example.com/pricing", f.form.Get("cancel_url"))
		assert.Equal(t, "true", f.form.Get("allow_promotion_codes"))
		assert.Equal(t, "required", f.form.Get("billing_address_collection"))
		assert.Equal(t, "always", f.form.Get("customer_creation"))
		assert.Empty(t, f.form.Get("customer"))
	})

	t.Run("existing customer", func(t *testing.T) {
		f := newFakeStripe(t)

		_, err := newTestStripeClient(f).CreateCheckoutSession(context.Background(), "cus_123")
		require.NoError(t, err)

		assert.Equal(t, "cus_123", f.form.Get("customer"))
		assert.Empty(t, f.form.Get("customer_creation"))
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFakeStripe(t)
		f.status = http.StatusBadRequest

		_, err := newTestStripeClient(f).CreateCheckoutSession(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestStripeClient_ActiveSubscription(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		f := newFakeStripe(t)
		f.subsBody = `{"object":"list","data":[{"id":"sub_123","object":"subscription","customer":"cus_123","status":"active"}],"has_more":false,"url":"/v1/subscriptions"}`

		sub, err := newTestStripeClient(f).ActiveSubscription(context.Background(), "cus_123")
		require.NoError(t, err)
		require.NotNil(t, sub)

		assert.Equal(t, "sub_123", sub.ID)
		assert.Equal(t, "cus_123", sub.CustomerID)
		assert.Equal(t, "active", sub.Status)

		assert.Equal(t, "cus_123", f.query.Get("customer"))
		assert.Equal(t, "active", f.query.Get("status"))
		assert.Equal(t, "1", f.query.Get("limit"))
	})

	t.Run("none", func(t *testing.T) {
		f := newFakeStripe(t)

		sub, err := newTestStripeClient(f).ActiveSubscription(context.Background(), "cus_123")
		require.NoError(t, err)
		assert.Nil(t, sub)
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFakeStripe(t)
		f.status = http.StatusNotFound

		_, err := newTestStripeClient(f).ActiveSubscription(context.Background(), "cus_missing")
		require.Error(t, err)
		assert.Equal(t, "No such customer: 'cus_missing'", StripeErrorMessage(err))
	})
}

func TestStripeClient_ConstructEvent(t *testing.T) {
	c := NewStripeClient(StripeConfig{WebhookSecret: testWebhookSecret})
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"2023-10-16","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"canceled"}}}`)

	t.Run("valid signature", func(t *testing.T) {
		evt, err := c.ConstructEvent(payload, signPayload(payload, testWebhookSecret, time.Now()))
		require.NoError(t, err)

		assert.Equal(t, "evt_1", evt.ID)
		assert.Equal(t, EventSubscriptionDeleted, evt.Type)
		require.NotNil(t, evt.Subscription)
		assert.Equal(t, "sub_1", evt.Subscription.ID)
		assert.Equal(t, "cus_1", evt.Subscription.CustomerID)
		assert.Equal(t, "canceled", evt.Subscription.Status)
	})

	t.Run("checkout completed", func(t *testing.T) {
		body := []byte(`{"id":"evt_2","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_test_9","object":"checkout.session"}}}`)

		evt, err := c.ConstructEvent(body, signPayload(body, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "cs_test_9", evt.SessionID)
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := signPayload(payload, testWebhookSecret, time.Now())
		tampered := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.created","data":{"object":{}}}`)

		_, err := c.ConstructEvent(tampered, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := c.ConstructEvent(payload, signPayload(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := c.ConstructEvent(payload, signPayload(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := c.ConstructEvent(payload, "")
		assert.ErrorIs(t, err, ErrMissingSignature)
	})
}

func TestStripeClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})

	c := NewStripeClient(StripeConfig{
		SecretKey: "sk_test_123",
		APIURL:    slow.URL,
		Timeout:   100 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.ActiveSubscription(context.Background(), "cus_123")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	status := NewSubscriptionVerifier(c, nil).Verify(context.Background(), "cus_123")
	assert.False(t, status.IsActive)
	assert.NotEmpty(t, status.Error)
}
