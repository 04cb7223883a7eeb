package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig configures the Stripe client.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	SiteURL       string
	APIURL        string // overrides the Stripe API base, empty for production
	Timeout       time.Duration
}

// DefaultTimeout bounds a single Stripe API request.
const DefaultTimeout = 5 * time.Second

// StripeClient implements Client with stripe-go.
type StripeClient struct {
	api *client.API
	cfg StripeConfig
}

// NewStripeClient creates a Stripe client.
func NewStripeClient(cfg StripeConfig) *StripeClient {
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")

	return &StripeClient{
		api: client.New(cfg.SecretKey, stripeBackends(cfg)),
		cfg: cfg,
	}
}

// stripeBackends builds backends whose HTTP client carries cfg.Timeout.
// Overridden API URLs get a single backend without retries.
func stripeBackends(cfg StripeConfig) *stripe.Backends {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	quiet := &stripe.LeveledLogger{Level: stripe.LevelNull}

	if cfg.APIURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient:        httpClient,
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     quiet,
		})
		return &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	newBackend := func(kind stripe.SupportedBackend) stripe.Backend {
		return stripe.GetBackendWithConfig(kind, &stripe.BackendConfig{
			HTTPClient:    httpClient,
			LeveledLogger: quiet,
		})
	}
	return &stripe.Backends{
		API:     newBackend(stripe.APIBackend),
		Connect: newBackend(stripe.ConnectBackend),
		Uploads: newBackend(stripe.UploadsBackend),
	}
}

// CreateCheckoutSession starts a subscription checkout. Without a customer ID
// Stripe creates a new customer.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, customerID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:               stripe.String(c.cfg.SiteURL + "/pro?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:                stripe.String(c.cfg.SiteURL + "/pricing"),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired)),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else {
		params.CustomerCreation = stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways))
	}
	params.Context = ctx

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ActiveSubscription returns the customer's first active subscription.
func (c *StripeClient) ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Limit = stripe.Int64(1)
	params.Single = true
	params.Context = ctx

	iter := c.api.Subscriptions.List(params)
	if iter.Next() {
		sub := iter.Subscription()
		return &Subscription{
			ID:         sub.ID,
			CustomerID: customerID,
			Status:     string(sub.Status),
		}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return nil, nil
}

// ConstructEvent verifies the signature and decodes a webhook payload.
func (c *StripeClient) ConstructEvent(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, c.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}

	switch {
	case strings.HasPrefix(out.Type, "customer.subscription."):
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription event: %w", err)
		}
		out.Subscription = &Subscription{ID: sub.ID, Status: string(sub.Status)}
		if sub.Customer != nil {
			out.Subscription.CustomerID = sub.Customer.ID
		}
	case out.Type == EventCheckoutSessionComplete:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout event: %w", err)
		}
		out.SessionID = session.ID
	}
	return out, nil
}

// StripeErrorMessage extracts a provider message from err, if any.
func StripeErrorMessage(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	return err.Error()
}
