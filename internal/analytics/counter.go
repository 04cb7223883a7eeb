// Package analytics counts tool invocations and persists them in batches.
package analytics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devtoolspro/gateway/internal/models"
)

// Flusher defines the interface for persisting usage counts.
type Flusher interface {
	FlushUsage(ctx context.Context, usage []models.ToolUsage) error
}

// Config holds configuration for the UsageCounter.
type Config struct {
	FlushInterval time.Duration // How often to flush accumulated counts
	BatchSize     int           // Flush when this many invocations accumulated
	ChannelBuffer int           // Size of the invocation channel buffer
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 10 * time.Second,
		BatchSize:     100,
		ChannelBuffer: 10000,
	}
}

// UsageCounter provides non-blocking, batched counting of tool invocations.
type UsageCounter struct {
	flusher Flusher
	cfg     Config
	now     func() time.Time

	usageChan    chan models.UsageKey
	counts       map[models.UsageKey]int64
	countsMu     sync.Mutex
	pendingCount int64 // total pending invocations (for batch size check)
	dropped      atomic.Int64

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
	stopped  atomic.Bool
}

// NewUsageCounter creates a new UsageCounter and starts its flush loop.
func NewUsageCounter(cfg Config, flusher Flusher) *UsageCounter {
	def := DefaultConfig()
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = def.ChannelBuffer
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	c := &UsageCounter{
		flusher:   flusher,
		cfg:       cfg,
		now:       time.Now,
		usageChan: make(chan models.UsageKey, cfg.ChannelBuffer),
		counts:    make(map[models.UsageKey]int64),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}

	go c.run()
	return c
}

// Record counts one invocation of tool at tier (non-blocking).
func (c *UsageCounter) Record(tool string, tier models.Tier) {
	if c.stopped.Load() {
		return
	}

	// Drop if buffer is full; usage counts are best effort.
	select {
	case c.usageChan <- models.UsageKey{Tool: tool, Tier: tier}:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many invocations were discarded because the buffer was full.
func (c *UsageCounter) Dropped() int64 {
	return c.dropped.Load()
}

// Stop stops the counter and flushes remaining counts.
func (c *UsageCounter) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopChan)
		<-c.doneChan
	})
}

// GetPendingStats returns a snapshot of pending (unflushed) counts.
func (c *UsageCounter) GetPendingStats() map[models.UsageKey]int64 {
	c.countsMu.Lock()
	defer c.countsMu.Unlock()

	result := make(map[models.UsageKey]int64, len(c.counts))
	for k, v := range c.counts {
		result[k] = v
	}
	return result
}

// run is the main loop that processes invocations and flushes periodically.
func (c *UsageCounter) run() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case key := <-c.usageChan:
			if c.add(key) {
				c.flush()
			}

		case <-ticker.C:
			c.flush()

		case <-c.stopChan:
			c.drainChannel()
			c.flush()
			return
		}
	}
}

// add counts key and reports whether the batch is full.
func (c *UsageCounter) add(key models.UsageKey) bool {
	c.countsMu.Lock()
	defer c.countsMu.Unlock()
	c.counts[key]++
	c.pendingCount++
	return int(c.pendingCount) >= c.cfg.BatchSize
}

// drainChannel processes any invocations still buffered.
func (c *UsageCounter) drainChannel() {
	for {
		select {
		case key := <-c.usageChan:
			c.add(key)
		default:
			return
		}
	}
}

// flush sends accumulated counts to the flusher and resets.
func (c *UsageCounter) flush() {
	c.countsMu.Lock()
	if len(c.counts) == 0 {
		c.countsMu.Unlock()
		return
	}

	// Swap maps for minimal lock time
	toFlush := c.counts
	c.counts = make(map[models.UsageKey]int64)
	c.pendingCount = 0
	c.countsMu.Unlock()

	day := c.now().UTC().Truncate(24 * time.Hour)
	usage := make([]models.ToolUsage, 0, len(toFlush))
	for k, n := range toFlush {
		usage = append(usage, models.ToolUsage{Tool: k.Tool, Tier: k.Tier, Day: day, Count: n})
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Tool != usage[j].Tool {
			return usage[i].Tool < usage[j].Tool
		}
		return usage[i].Tier < usage[j].Tier
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Errors are logged by the flusher and never block the loop.
	_ = c.flusher.FlushUsage(ctx, usage)
}
