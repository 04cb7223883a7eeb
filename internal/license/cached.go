package license

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/devtoolspro/gateway/internal/cache"
	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/pkg/logger"
)

const cacheKeyPrefix = "license:"

// Cached remembers verification results for a TTL so a pro caller does not
// hit the licensing service on every request. Transient failures are not cached.
type Cached struct {
	next  Verifier
	cache *cache.JSONCache[Result]
	ttl   time.Duration
	log   *logger.Logger
}

// NewCached wraps next with a result cache keyed by the key's hash.
func NewCached(next Verifier, c cache.Cache, ttl time.Duration, log *logger.Logger) *Cached {
	if log == nil {
		log = logger.Nop()
	}
	return &Cached{
		next:  next,
		cache: cache.NewJSONCache[Result](c, cacheKeyPrefix, ttl),
		ttl:   ttl,
		log:   log,
	}
}

// Verify serves a cached result or delegates. Keys are trimmed before
// hashing and the key itself is never written to the cache.
func (c *Cached) Verify(ctx context.Context, key string) Result {
	key = strings.TrimSpace(key)
	if key == "" {
		return c.next.Verify(ctx, key)
	}

	id := models.HashKey(key)

	cached, err := c.cache.Get(ctx, id)
	switch {
	case err == nil:
		metrics.RecordLicenseCacheHit()
		res := withLicenseKey(*cached, key)
		res.Source = SourceCache
		return res
	case !errors.Is(err, cache.ErrCacheMiss):
		c.log.Debug("license cache read failed", "key_fp", models.Fingerprint(key), "error", err)
	}
	metrics.RecordLicenseCacheMiss()

	res := c.next.Verify(ctx, key)
	if res.Reason.Transient() {
		return res
	}

	stored := withLicenseKey(res, "")
	if err := c.cache.SetWithTTL(ctx, id, &stored, c.ttl); err != nil {
		c.log.Debug("license cache write failed", "key_fp", models.Fingerprint(key), "error", err)
	}
	return res
}

// Invalidate drops any cached result for key.
func (c *Cached) Invalidate(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, models.HashKey(key))
}

// withLicenseKey returns res with a copy of its license carrying key.
func withLicenseKey(res Result, key string) Result {
	if res.License != nil {
		lic := *res.License
		lic.Key = key
		res.License = &lic
	}
	return res
}
