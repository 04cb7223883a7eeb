package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devtoolspro/gateway/internal/metrics"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/pkg/logger"
)

const (
	verifyPath      = "/v2/licenses/verify"
	maxResponseSize = 64 << 10
	excerptSize     = 256
	defaultTimeout  = 5 * time.Second
)

// GumroadConfig configures the Gumroad verifier.
type GumroadConfig struct {
	BaseURL     string
	AccessToken string
	ProductID   string
	Timeout     time.Duration
	AllowDevKey bool
}

// Gumroad verifies keys with the Gumroad license API.
type Gumroad struct {
	cfg    GumroadConfig
	client *http.Client
	log    *logger.Logger
	now    func() time.Time
}

// GumroadOption configures a Gumroad verifier.
type GumroadOption func(*Gumroad)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) GumroadOption {
	return func(g *Gumroad) {
		g.client = c
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) GumroadOption {
	return func(g *Gumroad) {
		g.now = now
	}
}

// NewGumroad creates a Gumroad verifier.
func NewGumroad(cfg GumroadConfig, log *logger.Logger, opts ...GumroadOption) *Gumroad {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.gumroad.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if log == nil {
		log = logger.Nop()
	}

	g := &Gumroad{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type verifyRequest struct {
	LicenseKey string `json:"license_key"`
	ProductID  string `json:"product_id"`
}

type verifyResponse struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Purchase *purchase `json:"purchase,omitempty"`
}

type purchase struct {
	ProductID               string  `json:"product_id"`
	Email                   string  `json:"email"`
	CreatedAt               string  `json:"created_at"`
	Refunded                bool    `json:"refunded"`
	Chargebacked            bool    `json:"chargebacked"`
	SubscriptionEndedAt     *string `json:"subscription_ended_at"`
	SubscriptionCancelledAt *string `json:"subscription_cancelled_at"`
}

// Verify checks key against the licensing service.
func (g *Gumroad) Verify(ctx context.Context, key string) Result {
	now := g.now()

	key = strings.TrimSpace(key)
	if key == "" {
		return invalid(ReasonEmptyKey, SourceInput, now)
	}

	if g.cfg.AllowDevKey && key == DevTestKey {
		metrics.RecordLicenseVerification(true, "")
		return Result{
			Valid: true,
			License: &models.License{
				Key:       DevTestKey,
				Type:      models.LicenseTypeDevelopment,
				Email:     "dev@example.com",
				CreatedAt: now,
			},
			Source:    SourceDevKey,
			CheckedAt: now,
		}
	}

	log := g.log.With("key_fp", models.Fingerprint(key))

	start := time.Now()
	status, body, err := g.call(ctx, key)
	metrics.RecordLicenseUpstream(time.Since(start))
	if err != nil {
		log.Warn("license verification request failed", "error", err)
		metrics.RecordLicenseVerification(false, string(ReasonUpstreamError))
		return invalid(ReasonUpstreamError, SourceUpstream, now)
	}

	res := g.evaluate(key, status, body, now)
	if res.Reason == ReasonUpstreamError {
		log.Warn("unexpected licensing service response",
			"status", status,
			"body", excerpt(body),
		)
	} else {
		log.Debug("license verified", "valid", res.Valid, "reason", string(res.Reason))
	}

	metrics.RecordLicenseVerification(res.Valid, string(res.Reason))
	return res
}

func (g *Gumroad) call(ctx context.Context, key string) (int, []byte, error) {
	payload, err := json.Marshal(verifyRequest{LicenseKey: key, ProductID: g.cfg.ProductID})
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+verifyPath, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// evaluate applies the validity predicate:
// success && !refunded && !chargebacked && no subscription end or cancellation.
func (g *Gumroad) evaluate(key string, status int, body []byte, now time.Time) Result {
	if status >= http.StatusInternalServerError {
		return invalid(ReasonUpstreamError, SourceUpstream, now)
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return invalid(ReasonUpstreamError, SourceUpstream, now)
	}

	if !resp.Success {
		return invalid(ReasonInvalid, SourceUpstream, now)
	}
	if status < 200 || status >= 300 || resp.Purchase == nil {
		return invalid(ReasonUpstreamError, SourceUpstream, now)
	}

	p := resp.Purchase
	switch {
	case p.Refunded:
		return invalid(ReasonRefunded, SourceUpstream, now)
	case p.Chargebacked:
		return invalid(ReasonChargebacked, SourceUpstream, now)
	case p.SubscriptionEndedAt != nil:
		return invalid(ReasonSubscriptionEnded, SourceUpstream, now)
	case p.SubscriptionCancelledAt != nil:
		return invalid(ReasonSubscriptionCancelled, SourceUpstream, now)
	}

	created, _ := time.Parse(time.RFC3339, p.CreatedAt)
	return Result{
		Valid: true,
		License: &models.License{
			Key:       key,
			Type:      models.LicenseTypePro,
			Email:     p.Email,
			CreatedAt: created,
		},
		Source:    SourceUpstream,
		CheckedAt: now,
	}
}

func excerpt(body []byte) string {
	if len(body) > excerptSize {
		body = body[:excerptSize]
	}
	return string(body)
}
