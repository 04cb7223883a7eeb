// Package billing integrates Stripe checkout, subscription lookup and webhooks.
package billing

import (
	"context"
	"errors"
)

// Errors returned by billing operations.
var (
	ErrMissingSignature = errors.New("missing stripe-signature header")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMissingCustomer  = errors.New("customer ID is required")
)

// NoActiveSubscription is reported when a customer has no active subscription.
const NoActiveSubscription = "No active subscription found"

// CheckoutSession is a created hosted checkout page.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url,omitempty"`
}

// Subscription is the subset of a billing subscription the gateway uses.
type Subscription struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	Status     string `json:"status"`
}

// Event is a verified webhook event.
type Event struct {
	ID           string
	Type         string
	Subscription *Subscription // set for customer.subscription.* events
	SessionID    string        // set for checkout.session.completed
}

// Client is the billing provider surface.
type Client interface {
	CreateCheckoutSession(ctx context.Context, customerID string) (*CheckoutSession, error)
	// ActiveSubscription returns nil with no error when the customer has none.
	ActiveSubscription(ctx context.Context, customerID string) (*Subscription, error)
	ConstructEvent(payload []byte, signature string) (*Event, error)
}
