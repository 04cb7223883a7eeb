package license

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devtoolspro/gateway/internal/models"
	"github.com/devtoolspro/gateway/pkg/logger"
)

const (
	recordTimeout  = 2 * time.Second
	auditQueueSize = 1024
)

// Recorder persists license check audit records.
type Recorder interface {
	RecordLicenseCheck(ctx context.Context, check *models.LicenseCheck) error
}

// Audited records every verification. Records are written by a background
// worker so Verify never waits on the store; when the queue is full the
// record is dropped. Recording failures never change the result.
type Audited struct {
	next     Verifier
	rec      Recorder
	clientIP func(context.Context) string
	log      *logger.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan *models.LicenseCheck
	done    chan struct{}
	dropped atomic.Int64
}

// NewAudited wraps next and starts the writer. clientIP may be nil.
// Close must be called to flush pending records.
func NewAudited(next Verifier, rec Recorder, clientIP func(context.Context) string, log *logger.Logger) *Audited {
	if clientIP == nil {
		clientIP = func(context.Context) string { return "" }
	}
	if log == nil {
		log = logger.Nop()
	}
	a := &Audited{
		next:     next,
		rec:      rec,
		clientIP: clientIP,
		log:      log,
		queue:    make(chan *models.LicenseCheck, auditQueueSize),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// Verify delegates and queues the outcome for recording.
func (a *Audited) Verify(ctx context.Context, key string) Result {
	res := a.next.Verify(ctx, key)
	if res.Reason == ReasonEmptyKey {
		return res
	}

	check := &models.LicenseCheck{
		KeyHash:   models.HashKey(strings.TrimSpace(key)),
		Valid:     res.Valid,
		Reason:    string(res.Reason),
		Source:    res.Source,
		ClientIP:  a.clientIP(ctx),
		CheckedAt: res.CheckedAt,
	}
	if check.CheckedAt.IsZero() {
		check.CheckedAt = time.Now()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return res
	}
	select {
	case a.queue <- check:
	default:
		a.dropped.Add(1)
		a.log.Warn("license audit queue full, dropping record", "key_fp", models.Fingerprint(key))
	}
	return res
}

// Dropped returns how many records were discarded because the queue was full.
func (a *Audited) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting records and waits for queued ones to be written.
func (a *Audited) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	<-a.done
	return nil
}

func (a *Audited) run() {
	defer close(a.done)
	for check := range a.queue {
		a.record(check)
	}
}

func (a *Audited) record(check *models.LicenseCheck) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := a.rec.RecordLicenseCheck(ctx, check); err != nil {
		a.log.Warn("failed to record license check",
			"key_fp", check.KeyHash[:12],
			"error", err,
		)
	}
}
