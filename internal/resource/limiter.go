// Package resource bounds how many snapshots are built at once, so that many
// console and websocket clients cannot flood the upstream NTP servers.
package resource

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Limiter is a counting semaphore for snapshot builds with wait statistics
type Limiter struct {
	// Channel-based semaphore; len(slots) is the number in use
	slots chan struct{}

	config Config

	acquireCount atomic.Int64
	rejectCount  atomic.Int64
	waitTimeNs   atomic.Int64
}

// Config configures the limiter
type Config struct {
	// MaxConcurrentSnapshots limits snapshot builds in flight.
	// Default: max(1, NumCPU/2)
	MaxConcurrentSnapshots int
}

// DefaultConfig returns defaults sized to the machine
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSnapshots: max(1, runtime.NumCPU()/2),
	}
}

// NewLimiter creates a new limiter with the given configuration
func NewLimiter(cfg Config) *Limiter {
	if cfg.MaxConcurrentSnapshots <= 0 {
		cfg.MaxConcurrentSnapshots = DefaultConfig().MaxConcurrentSnapshots
	}

	return &Limiter{
		slots:  make(chan struct{}, cfg.MaxConcurrentSnapshots),
		config: cfg,
	}
}

// DefaultLimiter creates a limiter with default configuration
func DefaultLimiter() *Limiter {
	return NewLimiter(DefaultConfig())
}

// Acquire blocks until a slot is free or ctx is done.
// Caller must call Release after a nil return.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	defer func() {
		l.waitTimeNs.Add(time.Since(start).Nanoseconds())
	}()

	select {
	case l.slots <- struct{}{}:
		l.acquireCount.Add(1)
		return nil
	case <-ctx.Done():
		l.rejectCount.Add(1)
		return ctx.Err()
	}
}

// Release frees a slot
func (l *Limiter) Release() {
	<-l.slots
}

// Stats holds limiter statistics
type Stats struct {
	MaxSnapshots int `json:"max_snapshots"`
	InUse        int `json:"in_use"`

	AcquireCount  int64         `json:"acquire_count"`
	RejectCount   int64         `json:"reject_count"`
	TotalWaitTime time.Duration `json:"total_wait_time"`
}

// GetStats returns current limiter statistics
func (l *Limiter) GetStats() Stats {
	return Stats{
		MaxSnapshots:  l.config.MaxConcurrentSnapshots,
		InUse:         len(l.slots),
		AcquireCount:  l.acquireCount.Load(),
		RejectCount:   l.rejectCount.Load(),
		TotalWaitTime: time.Duration(l.waitTimeNs.Load()),
	}
}
