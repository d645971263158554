package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the memory budget.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for reserved arena capacity,
	// summed over every pool sharing the controller.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxWorkers is the maximum number of goroutines pre-faulting pages
	// at the same time.
	// If 0, defaults to 1.
	MaxWorkers int64

	// BytesPerSec throttles page pre-faulting and snapshot IO.
	// If 0, unlimited.
	BytesPerSec int64
}

// Controller arbitrates what several pools may take from the machine:
// reserved address space, pre-fault goroutines and IO bandwidth.
//
// A nil *Controller is valid and imposes no limits.
type Controller struct {
	cfg Config

	budget  *semaphore.Weighted // nil when unlimited
	charged atomic.Int64

	workers *semaphore.Weighted
	limiter *rate.Limiter // nil when unthrottled
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	cfg.MaxWorkers = max(cfg.MaxWorkers, 1)

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxWorkers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.budget = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.BytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), int(cfg.BytesPerSec))
	}
	return c
}

// TryAcquireMemory charges bytes against the memory budget or fails with
// ErrMemoryLimitExceeded.
func (c *Controller) TryAcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.budget != nil && !c.budget.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.charged.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes to the memory budget.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.budget != nil {
		c.budget.Release(bytes)
	}
	c.charged.Add(-bytes)
}

// MemoryUsage returns the bytes currently charged.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.charged.Load()
}

// MaxWorkers returns the number of pre-fault worker slots.
func (c *Controller) MaxWorkers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxWorkers)
}

// AcquireWorker takes a worker slot, blocking while all are busy.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.workers.Acquire(ctx, 1)
}

// ReleaseWorker returns a worker slot.
func (c *Controller) ReleaseWorker() {
	if c != nil {
		c.workers.Release(1)
	}
}

// AcquireBytes waits until the byte rate allows bytes more. Requests larger
// than the burst are split into burst-sized waits.
func (c *Controller) AcquireBytes(ctx context.Context, bytes int) error {
	if c == nil || c.limiter == nil {
		return nil
	}
	burst := c.limiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
