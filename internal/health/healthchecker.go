// Package health aggregates component health for the scheduler's HTTP surface.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, scheduler loop).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker aggregates component checkers into a single service health flag.
type ServiceHealthChecker struct {
	healthy atomic.Int32
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	h := &ServiceHealthChecker{deps: deps, log: log}
	h.healthy.Store(0)
	return h
}

// IsHealthy returns cached service health.
func (h *ServiceHealthChecker) IsHealthy() bool { return h.healthy.Load() == 1 }

// Components reports the cached status of every dependency by name.
func (h *ServiceHealthChecker) Components() map[string]bool {
	out := make(map[string]bool, len(h.deps))
	for _, c := range h.deps {
		out[c.Name()] = c.IsHealthy()
	}
	return out
}

// Start periodically evaluates dependency health and updates the service flag.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := int32(0)
	eval := func() {
		var down []string
		for _, c := range h.deps {
			if !c.IsHealthy() {
				down = append(down, c.Name())
			}
		}
		if len(down) == 0 {
			h.healthy.Store(1)
		} else {
			h.healthy.Store(0)
		}
		cur := h.healthy.Load()
		if cur != prev {
			if cur == 1 {
				h.log.Info().Msg("service health: UP")
			} else {
				h.log.Error().Strs("down", down).Msg("service health: DOWN")
			}
			prev = cur
		}
	}

	eval()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			eval()
		}
	}
}

// Heartbeat is a checker fed by the scheduler: it stays healthy while
// passes keep completing within the allowed staleness.
type Heartbeat struct {
	name     string
	maxStale time.Duration
	now      func() time.Time
	last     atomic.Int64 // unix nanos of the last beat; 0 before the first
}

// NewHeartbeat creates a heartbeat checker. Before the first beat it is unhealthy.
func NewHeartbeat(name string, maxStale time.Duration) *Heartbeat {
	return &Heartbeat{name: name, maxStale: maxStale, now: time.Now}
}

// Beat records a completed pass.
func (b *Heartbeat) Beat() { b.last.Store(b.now().UnixNano()) }

// LastBeat returns the time of the last beat, zero before the first.
func (b *Heartbeat) LastBeat() time.Time {
	n := b.last.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (b *Heartbeat) Name() string { return b.name }

func (b *Heartbeat) IsHealthy() bool {
	n := b.last.Load()
	if n == 0 {
		return false
	}
	return b.now().Sub(time.Unix(0, n)) <= b.maxStale
}

// Start is a no-op; beats are pushed by the scheduler.
func (b *Heartbeat) Start(context.Context, time.Duration) {}
