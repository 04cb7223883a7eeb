package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devtoolspro/gateway/internal/models"
)

// MockLicenseCheckStore is a mock implementation of LicenseCheckStore.
type MockLicenseCheckStore struct {
	mock.Mock
}

func (m *MockLicenseCheckStore) RecentByKeyHash(ctx context.Context, keyHash string, limit int) ([]models.LicenseCheck, error) {
	args := m.Called(ctx, keyHash, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.LicenseCheck), args.Error(1)
}

func (m *MockLicenseCheckStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func TestAuditService_History(t *testing.T) {
	ctx := context.Background()
	checks := []models.LicenseCheck{{ID: 2, KeyHash: models.HashKey("KEY-1"), Valid: true}}

	store := new(MockLicenseCheckStore)
	store.On("RecentByKeyHash", ctx, models.HashKey("KEY-1"), defaultHistoryLimit).Return(checks, nil)

	got, err := NewAuditService(store).History(ctx, "  KEY-1 ", 0)

	require.NoError(t, err)
	assert.Equal(t, checks, got)
	store.AssertExpectations(t)
}

func TestAuditService_HistoryEmptyKey(t *testing.T) {
	store := new(MockLicenseCheckStore)

	_, err := NewAuditService(store).History(context.Background(), " ", 5)

	assert.ErrorIs(t, err, ErrEmptyKey)
	store.AssertNotCalled(t, "RecentByKeyHash", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuditService_Prune(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	store := new(MockLicenseCheckStore)
	store.On("DeleteOlderThan", ctx, now.Add(-30*24*time.Hour)).Return(int64(42), nil)

	svc := NewAuditService(store)
	svc.now = func() time.Time { return now }

	n, err := svc.Prune(ctx, 30*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = svc.Prune(ctx, 0)
	assert.Error(t, err)
	store.AssertNumberOfCalls(t, "DeleteOlderThan", 1)
}
