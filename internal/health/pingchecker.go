package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PingChecker probes a dependency through a ping function.
type PingChecker struct {
	name         string
	ping         func(context.Context) error
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewPingChecker starts unhealthy until the first successful probe.
func NewPingChecker(name string, ping func(context.Context) error, log zerolog.Logger, probeTimeout time.Duration) *PingChecker {
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	return &PingChecker{name: name, ping: ping, log: log, probeTimeout: probeTimeout}
}

func (p *PingChecker) Name() string    { return p.name }
func (p *PingChecker) IsHealthy() bool { return p.healthy.Load() == 1 }

// Start probes immediately and then on every interval.
func (p *PingChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check runs one probe and updates the cached status.
func (p *PingChecker) Check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()
	if err := p.ping(checkCtx); err != nil {
		p.log.Error().Str("checker", p.name).Err(err).Msg("health probe failed")
		p.healthy.Store(0)
		return
	}
	p.healthy.Store(1)
}
