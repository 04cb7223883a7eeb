package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory Client.
type fakeClient struct {
	sub      *Subscription
	err      error
	event    *Event
	eventErr error
	calls    int
}

func (f *fakeClient) CreateCheckoutSession(context.Context, string) (*CheckoutSession, error) {
	return &CheckoutSession{ID: "cs_fake"}, f.err
}

func (f *fakeClient) ActiveSubscription(context.Context, string) (*Subscription, error) {
	f.calls++
	return f.sub, f.err
}

func (f *fakeClient) ConstructEvent([]byte, string) (*Event, error) {
	return f.event, f.eventErr
}

func TestSubscriptionVerifier_Verify(t *testing.T) {
	tests := []struct {
		name     string
		client   *fakeClient
		customer string
		want     SubscriptionStatus
	}{
		{
			name:     "active",
			client:   &fakeClient{sub: &Subscription{ID: "sub_1", Status: "active"}},
			customer: "cus_1",
			want:     SubscriptionStatus{IsActive: true, CustomerID: "cus_1", SubscriptionID: "sub_1"},
		},
		{
			name:     "none",
			client:   &fakeClient{},
			customer: "cus_1",
			want:     SubscriptionStatus{CustomerID: "cus_1", Error: "No active subscription found"},
		},
		{
			name:     "provider failure fails closed",
			client:   &fakeClient{err: errors.New("connection reset")},
			customer: "cus_1",
			want:     SubscriptionStatus{Error: "connection reset"},
		},
		{
			name:     "empty customer",
			client:   &fakeClient{},
			customer: "  ",
			want:     SubscriptionStatus{Error: "customer ID is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewSubscriptionVerifier(tt.client, nil)
			assert.Equal(t, tt.want, v.Verify(context.Background(), tt.customer))
		})
	}
}

func TestSubscriptionVerifier_EmptyCustomerSkipsProvider(t *testing.T) {
	c := &fakeClient{}
	NewSubscriptionVerifier(c, nil).Verify(context.Background(), "")
	assert.Equal(t, 0, c.calls)
}

func TestWebhooks_Handle(t *testing.T) {
	t.Run("dispatches handled events", func(t *testing.T) {
		evt := &Event{ID: "evt_1", Type: EventSubscriptionUpdated, Subscription: &Subscription{ID: "sub_1"}}

		var mu sync.Mutex
		var seen []string
		w := NewWebhooks(&fakeClient{event: evt}, nil, func(_ context.Context, e *Event) {
			mu.Lock()
			seen = append(seen, e.ID)
			mu.Unlock()
		})

		got, err := w.Handle(context.Background(), []byte("{}"), "sig")
		require.NoError(t, err)
		assert.Equal(t, evt, got)
		assert.Equal(t, []string{"evt_1"}, seen)
	})

	t.Run("unhandled events are acknowledged without dispatch", func(t *testing.T) {
		called := false
		w := NewWebhooks(&fakeClient{event: &Event{ID: "evt_2", Type: "invoice.paid"}}, nil,
			func(context.Context, *Event) { called = true })

		_, err := w.Handle(context.Background(), []byte("{}"), "sig")
		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("verification failure", func(t *testing.T) {
		w := NewWebhooks(&fakeClient{eventErr: ErrInvalidSignature}, nil)

		_, err := w.Handle(context.Background(), []byte("{}"), "sig")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

// stalledClient blocks lookups until the caller's context ends.
type stalledClient struct {
	fakeClient
	deadline bool
}

func (s *stalledClient) ActiveSubscription(ctx context.Context, _ string) (*Subscription, error) {
	_, s.deadline = ctx.Deadline()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSubscriptionVerifier_BoundsProviderLookup(t *testing.T) {
	c := &stalledClient{}
	v := NewSubscriptionVerifier(c, nil).WithTimeout(50 * time.Millisecond)

	start := time.Now()
	status := v.Verify(context.Background(), "cus_1")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, c.deadline)
	assert.False(t, status.IsActive)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Error)
}

func TestSubscriptionVerifier_DefaultTimeout(t *testing.T) {
	v := NewSubscriptionVerifier(&fakeClient{}, nil)
	assert.Equal(t, DefaultTimeout, v.timeout)

	v.WithTimeout(0)
	assert.Equal(t, DefaultTimeout, v.timeout)
}
