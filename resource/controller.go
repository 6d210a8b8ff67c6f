package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds limits for background work.
type Config struct {
	// MaxBackgroundRuns is the maximum number of refresh runs executing
	// concurrently. If 0, defaults to 1.
	MaxBackgroundRuns int64

	// StoreCallsPerSec limits calls into the authoritative store across all
	// workers. If 0, unlimited.
	StoreCallsPerSec float64

	// Burst is the number of store calls allowed at once. If 0, defaults to
	// max(1, StoreCallsPerSec).
	Burst int
}

// Controller limits background work shared by all refresh runs.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	bgSem *semaphore.Weighted

	callLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundRuns <= 0 {
		cfg.MaxBackgroundRuns = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundRuns),
	}

	if cfg.StoreCallsPerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.StoreCallsPerSec))
		}
		c.callLimiter = rate.NewLimiter(rate.Limit(cfg.StoreCallsPerSec), burst)
	}

	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireBackground reserves a background run slot.
// Blocks if all slots are busy or until ctx is canceled.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a background run slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a background run slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// AcquireCall waits until the rate limit allows one store call.
func (c *Controller) AcquireCall(ctx context.Context) error {
	if c == nil || c.callLimiter == nil {
		return nil
	}
	return c.callLimiter.Wait(ctx)
}
