package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtoolspro/gateway/internal/license"
	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/internal/ratelimit"
)

var gateEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// stubStore returns a fixed error for every hit.
type stubStore struct{ err error }

func (s stubStore) Hit(context.Context, string, time.Time, time.Duration, int) (ratelimit.Window, error) {
	return ratelimit.Window{}, s.err
}
func (stubStore) Reset(context.Context, string) error { return nil }
func (stubStore) Close() error                        { return nil }

// proVerifier accepts exactly one key and counts calls.
func proVerifier(validKey string, calls *int32) license.Verifier {
	return license.VerifierFunc(func(ctx context.Context, key string) license.Result {
		atomic.AddInt32(calls, 1)
		if key == validKey {
			return license.Result{Valid: true, Source: license.SourceUpstream}
		}
		return license.Result{Reason: license.ReasonInvalid, Source: license.SourceUpstream}
	})
}

type gateFixture struct {
	handler   http.Handler
	forwarded int32
	lastTier  atomic.Value
	verified  int32
}

func newGateFixture(t *testing.T, store ratelimit.Store) *gateFixture {
	t.Helper()
	if store == nil {
		store = ratelimit.NewMemoryStore(0)
	}
	limiter := ratelimit.NewLimiter(store, ratelimit.DefaultConfig(), nil,
		ratelimit.WithClock(func() time.Time { return gateEpoch }))
	t.Cleanup(func() { _ = limiter.Close() })

	f := &gateFixture{}
	gate := Gate(limiter, proVerifier("PRO-KEY", &f.verified), GateConfig{}, nil)
	f.handler = gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.forwarded, 1)
		f.lastTier.Store(GetTier(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))
	return f
}

func (f *gateFixture) do(method, path, ip, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":5555"
	if key != "" {
		req.Header.Set(HeaderLicenseKey, key)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestGate_Preflight(t *testing.T) {
	f := newGateFixture(t, nil)

	rec := f.do(http.MethodOptions, "/api/v1/tools/json", "192.0.2.1", "PRO-KEY")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.forwarded))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.verified))
}

func TestGate_BypassPaths(t *testing.T) {
	f := newGateFixture(t, nil)

	for _, path := range DefaultBypassPaths {
		for i := 0; i < 15; i++ {
			rec := f.do(http.MethodPost, path, "192.0.2.1", "")
			require.Equal(t, http.StatusOK, rec.Code, path)
			assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit), path)
		}
	}

	// Bypassed requests never consumed quota.
	rec := f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "")
	assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))
}

func TestGate_FreeTierLimit(t *testing.T) {
	f := newGateFixture(t, nil)

	for i := 0; i < models.FreeTierLimit; i++ {
		rec := f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, strconv.Itoa(models.FreeTierLimit-i-1), rec.Header().Get(HeaderRateLimitRemaining))
		assert.Equal(t, "free", rec.Header().Get(HeaderTier))
	}

	rec := f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "10", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, strconv.FormatInt(gateEpoch.Add(time.Minute).Unix(), 10), rec.Header().Get(HeaderRateLimitReset))
	assert.Equal(t, "60", rec.Header().Get(HeaderRetryAfter))
	assert.Empty(t, rec.Header().Get(HeaderTier))

	var body RateLimitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Code)
	assert.Equal(t, 60, body.RetryAfter)
	assert.NotEmpty(t, body.Error)

	assert.Equal(t, int32(models.FreeTierLimit), atomic.LoadInt32(&f.forwarded))
}

func TestGate_ProTier(t *testing.T) {
	f := newGateFixture(t, nil)

	for i := 0; i < 11; i++ {
		rec := f.do(http.MethodPost, "/api/v1/tools/sql", "192.0.2.1", "PRO-KEY")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := f.do(http.MethodPost, "/api/v1/tools/sql", "192.0.2.1", "PRO-KEY")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "48", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, "pro", rec.Header().Get(HeaderTier))
	assert.Equal(t, models.TierPro, f.lastTier.Load())
}

func TestGate_InvalidKeyIsFree(t *testing.T) {
	f := newGateFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "BOGUS")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "free", rec.Header().Get(HeaderTier))
	assert.Equal(t, models.TierFree, f.lastTier.Load())
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.verified))
}

func TestGate_NoKeySkipsVerifier(t *testing.T) {
	f := newGateFixture(t, nil)

	f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "")
	f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "   ")

	assert.Equal(t, int32(0), atomic.LoadInt32(&f.verified))
}

func TestGate_ClientsAreIndependent(t *testing.T) {
	f := newGateFixture(t, nil)

	for i := 0; i < models.FreeTierLimit; i++ {
		f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "")
	}
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.2", "").Code)
}

func TestGate_UsesClientIPFromContext(t *testing.T) {
	f := newGateFixture(t, nil)
	handler := ClientIP(true, nil)(f.handler)

	for i := 0; i < models.FreeTierLimit; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/json", nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set(HeaderXForwardedFor, "203.0.113.9")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	// Same proxy, different client: still has quota.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/json", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set(HeaderXForwardedFor, "203.0.113.10")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))
}

func TestGate_FailsOpen(t *testing.T) {
	f := newGateFixture(t, stubStore{err: errors.New("redis: connection refused")})

	for i := 0; i < 20; i++ {
		rec := f.do(http.MethodPost, "/api/v1/tools/json", "192.0.2.1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))
	}
	assert.Equal(t, int32(20), atomic.LoadInt32(&f.forwarded))
}

func TestGate_CustomBypass(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(0), ratelimit.DefaultConfig(), nil)
	t.Cleanup(func() { _ = limiter.Close() })

	gate := Gate(limiter, nil, GateConfig{BypassPaths: []string{"/open"}}, nil)
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "10", rec.Header().Get(HeaderRateLimitLimit))
}
