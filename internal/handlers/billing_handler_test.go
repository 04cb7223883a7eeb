package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtoolspro/gateway/internal/billing"
)

type fakeBilling struct {
	sub         *billing.Subscription
	subErr      error
	session     *billing.CheckoutSession
	checkoutErr error
	event       *billing.Event
	eventErr    error

	gotCustomer  string
	gotSignature string
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, customerID string) (*billing.CheckoutSession, error) {
	f.gotCustomer = customerID
	return f.session, f.checkoutErr
}

func (f *fakeBilling) ActiveSubscription(_ context.Context, customerID string) (*billing.Subscription, error) {
	f.gotCustomer = customerID
	return f.sub, f.subErr
}

func (f *fakeBilling) ConstructEvent(_ []byte, signature string) (*billing.Event, error) {
	f.gotSignature = signature
	return f.event, f.eventErr
}

func newBillingHandler(c *fakeBilling) *BillingHandler {
	return NewBillingHandler(c, billing.NewSubscriptionVerifier(c, nil), billing.NewWebhooks(c, nil), nil)
}

func TestBillingHandler_VerifySubscription(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		c := &fakeBilling{sub: &billing.Subscription{ID: "sub_1", CustomerID: "cus_1", Status: "active"}}
		h := newBillingHandler(c)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscription/verify", strings.NewReader(`{"customerId":"cus_1"}`))
		rec := httptest.NewRecorder()
		h.VerifySubscription(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var status billing.SubscriptionStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.True(t, status.IsActive)
		assert.Equal(t, "sub_1", status.SubscriptionID)
		assert.Equal(t, "cus_1", c.gotCustomer)
	})

	t.Run("provider failure fails closed", func(t *testing.T) {
		c := &fakeBilling{subErr: errors.New("timeout")}
		h := newBillingHandler(c)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscription/verify", strings.NewReader(`{"customerId":"cus_1"}`))
		rec := httptest.NewRecorder()
		h.VerifySubscription(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var status billing.SubscriptionStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.False(t, status.IsActive)
		assert.NotEmpty(t, status.Error)
	})

	t.Run("missing customer", func(t *testing.T) {
		h := newBillingHandler(&fakeBilling{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscription/verify", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.VerifySubscription(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Customer ID is required", resp.Error)
		assert.Equal(t, CodeCustomerRequired, resp.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := newBillingHandler(&fakeBilling{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/subscription/verify", strings.NewReader(`not json`))
		rec := httptest.NewRecorder()
		h.VerifySubscription(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBillingHandler_Checkout(t *testing.T) {
	t.Run("with customer", func(t *testing.T) {
		c := &fakeBilling{session: &billing.CheckoutSession{ID: "cs_123", URL: "https://checkout.example/cs_123"}}
		h := newBillingHandler(c)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"customerId":"cus_9"}`))
		rec := httptest.NewRecorder()
		h.Checkout(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionId":"cs_123","url":"https://checkout.example/cs_123"}`, rec.Body.String())
		assert.Equal(t, "cus_9", c.gotCustomer)
	})

	t.Run("empty body", func(t *testing.T) {
		c := &fakeBilling{session: &billing.CheckoutSession{ID: "cs_anon"}}
		h := newBillingHandler(c)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		rec := httptest.NewRecorder()
		h.Checkout(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionId":"cs_anon"}`, rec.Body.String())
		assert.Empty(t, c.gotCustomer)
	})

	t.Run("provider error", func(t *testing.T) {
		h := newBillingHandler(&fakeBilling{checkoutErr: errors.New("secret detail")})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.Checkout(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret detail")
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, CodeInternalError, resp.Code)
	})
}

func TestBillingHandler_Webhook(t *testing.T) {
	t.Run("verified event", func(t *testing.T) {
		c := &fakeBilling{event: &billing.Event{ID: "evt_1", Type: billing.EventCheckoutSessionComplete, SessionID: "cs_1"}}
		h := newBillingHandler(c)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		rec := httptest.NewRecorder()
		h.Webhook(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		assert.Equal(t, "t=1,v1=abc", c.gotSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		h := newBillingHandler(&fakeBilling{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		h.Webhook(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, billing.ErrMissingSignature.Error(), resp.Error)
	})

	t.Run("bad signature", func(t *testing.T) {
		h := newBillingHandler(&fakeBilling{eventErr: billing.ErrInvalidSignature})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`))
		req.Header.Set("Stripe-Signature", "t=1,v1=bad")
		rec := httptest.NewRecorder()
		h.Webhook(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, CodeWebhookInvalid, resp.Code)
	})
}
