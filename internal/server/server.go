// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/devtoolspro/gateway/internal/billing"
	"github.com/devtoolspro/gateway/internal/config"
	"github.com/devtoolspro/gateway/internal/formatter"
	"github.com/devtoolspro/gateway/internal/handlers"
	"github.com/devtoolspro/gateway/internal/license"
	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/internal/middleware"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/internal/ratelimit"
	"github.com/devtoolspro/gateway/internal/security"
	"github.com/devtoolspro/gateway/internal/services"
	"github.com/devtoolspro/gateway/pkg/logger"
)

// Option configures the dependencies a Server runs against.
type Option func(*options)

type options struct {
	rateStore   ratelimit.Store
	limiterOpts []ratelimit.Option
	verifier    license.Verifier
	billing     billing.Client
	usage       services.UsageRecorder
	listeners   []billing.EventListener
	checks      map[string]handlers.CheckFunc
	closers     []func() error
}

// WithRateStore sets the rate limit counter store. Default is in-memory.
func WithRateStore(s ratelimit.Store) Option {
	return func(o *options) { o.rateStore = s }
}

// WithLimiterOptions passes options to the rate limiter.
func WithLimiterOptions(opts ...ratelimit.Option) Option {
	return func(o *options) { o.limiterOpts = append(o.limiterOpts, opts...) }
}

// WithLicenseVerifier replaces the license verifier built from config.
func WithLicenseVerifier(v license.Verifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithBillingClient replaces the Stripe client built from config.
func WithBillingClient(c billing.Client) Option {
	return func(o *options) { o.billing = c }
}

// WithUsageRecorder counts successful tool invocations.
func WithUsageRecorder(u services.UsageRecorder) Option {
	return func(o *options) { o.usage = u }
}

// WithWebhookListener is notified of verified billing events.
func WithWebhookListener(l billing.EventListener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// WithReadyCheck adds a dependency check to /ready.
func WithReadyCheck(name string, check handlers.CheckFunc) Option {
	return func(o *options) {
		if o.checks == nil {
			o.checks = make(map[string]handlers.CheckFunc)
		}
		o.checks[name] = check
	}
}

// WithCloser registers a function run on shutdown, after the listener stops.
// Closers run in reverse registration order.
func WithCloser(fn func() error) Option {
	return func(o *options) { o.closers = append(o.closers, fn) }
}

// Server represents the HTTP server.
type Server struct {
	cfg           *config.Config
	log           *logger.Logger
	httpServer    *http.Server
	router        chi.Router
	healthHandler *handlers.HealthHandler
	limiter       *ratelimit.Limiter
	closers       []func() error
	listener      net.Listener
	running       bool
	mu            sync.RWMutex
}

// New creates a new Server instance.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *Server {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{
		cfg:           cfg,
		log:           log,
		healthHandler: handlers.NewHealthHandler(),
		closers:       o.closers,
	}
	for name, check := range o.checks {
		s.healthHandler.AddCheck(name, check)
	}

	if o.rateStore == nil {
		o.rateStore = ratelimit.NewMemoryStore(cfg.Rate.SweepInterval)
	}
	s.limiter = ratelimit.NewLimiter(o.rateStore, ratelimit.DefaultConfig(), log, o.limiterOpts...)

	if o.verifier == nil {
		lo := license.ConfigOptions(cfg)
		o.verifier = license.New(lo, log)
	}
	if o.billing == nil {
		o.billing = billing.NewStripeClient(stripeConfig(cfg))
	}

	s.router = s.routes(o)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// routes builds the router and its middleware chain.
func (s *Server) routes(o *options) chi.Router {
	sanitizer := security.NewSanitizer(security.Config{
		MaxInputBytes: s.cfg.Tools.MaxInputBytes,
		Blocked:       security.DefaultConfig().Blocked,
	})

	licenseHandler := handlers.NewLicenseHandler(o.verifier, s.log)
	billingHandler := handlers.NewBillingHandler(
		o.billing,
		billing.NewSubscriptionVerifier(o.billing, s.log).WithTimeout(s.cfg.Billing.Timeout),
		billing.NewWebhooks(o.billing, s.log, o.listeners...),
		s.log,
	)
	toolsHandler := handlers.NewToolsHandler(services.NewToolService(formatter.Default(), sanitizer, o.usage), s.log)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Metrics(),
		middleware.ClientIP(s.cfg.Rate.TrustProxy, s.cfg.Rate.TrustedProxies),
		security.DefaultHeaders().Middleware,
		middleware.CORS(middleware.CORSConfig{
			DefaultOrigin:  s.cfg.CORS.DefaultOrigin,
			AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		}),
		middleware.Gate(s.limiter, o.verifier, middleware.GateConfig{}, s.log),
	)
	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/health", s.healthHandler.Health)
	r.Get("/ready", s.healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/license/validate", licenseHandler.Validate)
		r.Post("/subscription/verify", billingHandler.VerifySubscription)
		r.Post("/checkout", billingHandler.Checkout)
		r.Post("/webhooks/stripe", billingHandler.Webhook)

		r.Get("/tools", toolsHandler.List)
		r.Post("/tools/{tool}", toolsHandler.Execute)
	})

	s.log.Info("routes registered",
		"free_limit", s.limiter.LimitFor(models.TierFree),
		"pro_limit", s.limiter.LimitFor(models.TierPro),
		"window", s.limiter.Window().String(),
	)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()

	// Create listener first to get the actual address (important when port is 0)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.log.Info("server starting", "address", listener.Addr().String())

	err = s.httpServer.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server and releases its dependencies.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")

	// Mark as not ready during shutdown
	s.healthHandler.SetReady(false)

	err := s.httpServer.Shutdown(ctx)

	if closeErr := s.limiter.Close(); closeErr != nil {
		s.log.Error("failed to close rate limiter", "error", closeErr.Error())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if closeErr := s.closers[i](); closeErr != nil {
			s.log.Error("failed to release dependency", "error", closeErr.Error())
		}
	}
	s.closers = nil

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}

	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HealthHandler returns the health handler.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}

// Limiter returns the rate limiter.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

func stripeConfig(cfg *config.Config) billing.StripeConfig {
	return billing.StripeConfig{
		SecretKey:     cfg.Billing.SecretKey,
		WebhookSecret: cfg.Billing.WebhookSecret,
		PriceID:       cfg.Billing.PriceID,
		SiteURL:       cfg.Billing.SiteURL,
		Timeout:       cfg.Billing.Timeout,
	}
}
