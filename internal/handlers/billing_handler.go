package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/devtoolspro/gateway/internal/billing"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// maxWebhookBytes caps webhook payloads.
const maxWebhookBytes = 64 << 10

// SubscriptionRequest is the body of a subscription verification request.
type SubscriptionRequest struct {
	CustomerID string `json:"customerId" validate:"required,max=255"`
}

// CheckoutRequest is the body of a checkout request.
type CheckoutRequest struct {
	CustomerID string `json:"customerId" validate:"omitempty,max=255"`
}

// WebhookResponse acknowledges a webhook delivery.
type WebhookResponse struct {
	Received bool `json:"received"`
}

// BillingHandler handles subscription, checkout and webhook endpoints.
type BillingHandler struct {
	client   billing.Client
	verifier *billing.SubscriptionVerifier
	webhooks *billing.Webhooks
	log      *logger.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(c billing.Client, v *billing.SubscriptionVerifier, wh *billing.Webhooks, log *logger.Logger) *BillingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &BillingHandler{client: c, verifier: v, webhooks: wh, log: log}
}

// VerifySubscription handles POST /api/v1/subscription/verify requests.
func (h *BillingHandler) VerifySubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := decodeJSON(w, r, &req, defaultMaxBodyBytes); err != nil {
		if missingField(err, "CustomerID") {
			writeError(w, http.StatusBadRequest, CodeCustomerRequired, "Customer ID is required")
			return
		}
		decodeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.verifier.Verify(r.Context(), req.CustomerID))
}

// Checkout handles POST /api/v1/checkout requests.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeJSON(w, r, &req, defaultMaxBodyBytes); err != nil && !errors.Is(err, errEmptyBody) {
		decodeError(w, err)
		return
	}

	session, err := h.client.CreateCheckoutSession(r.Context(), req.CustomerID)
	if err != nil {
		h.log.Error("failed to create checkout session", "error", billing.StripeErrorMessage(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "Failed to create checkout session")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Webhook handles POST /api/v1/webhooks/stripe requests.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		writeError(w, http.StatusBadRequest, CodeWebhookInvalid, billing.ErrMissingSignature.Error())
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body")
		return
	}

	if _, err := h.webhooks.Handle(r.Context(), payload, signature); err != nil {
		h.log.Warn("rejected webhook delivery", "error", err)
		msg := "webhook verification failed"
		if errors.Is(err, billing.ErrMissingSignature) {
			msg = billing.ErrMissingSignature.Error()
		}
		writeError(w, http.StatusBadRequest, CodeWebhookInvalid, msg)
		return
	}

	writeJSON(w, http.StatusOK, WebhookResponse{Received: true})
}
