package billing

import (
	"context"
	"strings"
	"time"

	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// SubscriptionStatus reports whether a customer has an active subscription.
type SubscriptionStatus struct {
	IsActive       bool   `json:"isActive"`
	CustomerID     string `json:"customerId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// SubscriptionVerifier checks customers against the billing provider.
// It fails closed: provider errors report an inactive subscription.
type SubscriptionVerifier struct {
	client  Client
	timeout time.Duration
	log     *logger.Logger
}

// NewSubscriptionVerifier creates a verifier.
func NewSubscriptionVerifier(c Client, log *logger.Logger) *SubscriptionVerifier {
	if log == nil {
		log = logger.Nop()
	}
	return &SubscriptionVerifier{client: c, timeout: DefaultTimeout, log: log}
}

// WithTimeout sets the deadline applied to each provider lookup.
func (v *SubscriptionVerifier) WithTimeout(d time.Duration) *SubscriptionVerifier {
	if d > 0 {
		v.timeout = d
	}
	return v
}

// Verify returns the subscription status for customerID. It never fails.
func (v *SubscriptionVerifier) Verify(ctx context.Context, customerID string) SubscriptionStatus {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return SubscriptionStatus{Error: ErrMissingCustomer.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	sub, err := v.client.ActiveSubscription(ctx, customerID)
	if err != nil {
		v.log.Error("subscription lookup failed", "customer_id", customerID, "error", err)
		metrics.RecordSubscriptionCheck(false)
		return SubscriptionStatus{Error: StripeErrorMessage(err)}
	}

	if sub == nil {
		metrics.RecordSubscriptionCheck(false)
		return SubscriptionStatus{
			CustomerID: customerID,
			Error:      NoActiveSubscription,
		}
	}

	metrics.RecordSubscriptionCheck(true)
	return SubscriptionStatus{
		IsActive:       true,
		CustomerID:     customerID,
		SubscriptionID: sub.ID,
	}
}
