package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/devtoolspro/gateway/internal/models"
)

// ErrEmptyKey is returned when no license key is given.
var ErrEmptyKey = errors.New("license key is required")

const defaultHistoryLimit = 20

// LicenseCheckStore reads and prunes the license check audit log.
type LicenseCheckStore interface {
	RecentByKeyHash(ctx context.Context, keyHash string, limit int) ([]models.LicenseCheck, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditService defines the license audit operations.
type AuditService interface {
	History(ctx context.Context, key string, limit int) ([]models.LicenseCheck, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// AuditServiceImpl implements AuditService.
type AuditServiceImpl struct {
	store LicenseCheckStore
	now   func() time.Time
}

// NewAuditService creates a new AuditService.
func NewAuditService(store LicenseCheckStore) *AuditServiceImpl {
	return &AuditServiceImpl{store: store, now: time.Now}
}

// History returns the most recent checks of key. Keys are only stored hashed.
func (s *AuditServiceImpl) History(ctx context.Context, key string, limit int) ([]models.LicenseCheck, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.store.RecentByKeyHash(ctx, models.HashKey(key), limit)
}

// Prune deletes checks older than retention.
func (s *AuditServiceImpl) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	return s.store.DeleteOlderThan(ctx, s.now().Add(-retention))
}
