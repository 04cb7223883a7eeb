package billing

import (
	"context"

	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// Handled webhook event types.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventCheckoutSessionComplete = "checkout.session.completed"
)

// EventListener is notified of verified events.
type EventListener func(ctx context.Context, evt *Event)

// Webhooks verifies and dispatches billing webhook deliveries.
type Webhooks struct {
	client    Client
	log       *logger.Logger
	listeners []EventListener
}

// NewWebhooks creates a webhook dispatcher.
func NewWebhooks(c Client, log *logger.Logger, listeners ...EventListener) *Webhooks {
	if log == nil {
		log = logger.Nop()
	}
	return &Webhooks{client: c, log: log, listeners: listeners}
}

// Handle verifies payload against signature and dispatches the event.
func (w *Webhooks) Handle(ctx context.Context, payload []byte, signature string) (*Event, error) {
	evt, err := w.client.ConstructEvent(payload, signature)
	if err != nil {
		return nil, err
	}

	metrics.RecordWebhookEvent(evt.Type)
	log := w.log.With("event_id", evt.ID, "event_type", evt.Type)

	switch evt.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		log.Info("subscription updated", subscriptionFields(evt)...)
	case EventSubscriptionDeleted:
		log.Info("subscription cancelled", subscriptionFields(evt)...)
	case EventCheckoutSessionComplete:
		log.Info("checkout completed", "session_id", evt.SessionID)
	default:
		log.Debug("unhandled webhook event")
		return evt, nil
	}

	for _, l := range w.listeners {
		l(ctx, evt)
	}
	return evt, nil
}

func subscriptionFields(evt *Event) []any {
	if evt.Subscription == nil {
		return nil
	}
	return []any{
		"subscription_id", evt.Subscription.ID,
		"customer_id", evt.Subscription.CustomerID,
		"status", evt.Subscription.Status,
	}
}
