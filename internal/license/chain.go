package license

import (
	"context"
	"io"
	"time"

	"github.com/devtoolspro/gateway/internal/cache"
	"github.com/devtoolspro/gateway/internal/config"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// Options selects the decorators applied around the Gumroad verifier.
type Options struct {
	Gumroad  GumroadConfig
	Breaker  BreakerConfig
	Cache    cache.Cache // nil disables result caching
	CacheTTL time.Duration
	Recorder Recorder // nil disables auditing
	ClientIP func(context.Context) string
}

// New builds the verifier chain: audit, then cache, then breaker, then Gumroad.
func New(opts Options, log *logger.Logger) Verifier {
	var v Verifier = NewGumroad(opts.Gumroad, log)
	v = NewBreaker(v, opts.Breaker, log)
	if opts.Cache != nil && opts.CacheTTL > 0 {
		v = NewCached(v, opts.Cache, opts.CacheTTL, log)
	}
	if opts.Recorder != nil {
		v = NewAudited(v, opts.Recorder, opts.ClientIP, log)
	}
	return v
}

// Close releases resources held by a verifier built with New. With a
// Recorder it waits for queued audit records to be written.
func Close(v Verifier) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ConfigOptions returns the Gumroad and breaker settings from cfg.
// The development key is accepted everywhere except production.
func ConfigOptions(cfg *config.Config) Options {
	return Options{
		Gumroad: GumroadConfig{
			BaseURL:     cfg.License.BaseURL,
			AccessToken: cfg.License.AccessToken,
			ProductID:   cfg.License.ProductID,
			Timeout:     cfg.License.Timeout,
			AllowDevKey: !cfg.App.IsProduction(),
		},
		Breaker: BreakerConfig{
			Name:        "gumroad",
			MaxFailures: uint32(max(cfg.License.BreakerMaxFailures, 0)),
			OpenTimeout: cfg.License.BreakerOpenTimeout,
		},
		CacheTTL: cfg.License.CacheTTL,
	}
}
