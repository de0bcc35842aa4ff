package schedulerd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/health"
	"github.com/areahq/area-engine/internal/logger"
	"github.com/areahq/area-engine/internal/scheduler"
	"github.com/areahq/area-engine/internal/store"
	"github.com/areahq/area-engine/internal/tracing"
)

const serviceName = "area-scheduler"

// Run starts the scheduler and its HTTP surface and blocks until shutdown or error.
func Run() error {
	cfg, err := config.New()
	if err != nil {
		bootLog := logger.New(serviceName, "info")
		bootLog.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log := logger.New(serviceName, cfg.LogLevel)

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Dur("tick_interval", cfg.EffectiveTickInterval()).
		Msg("AREA scheduler starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Environment, cfg.OTel)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Tracing setup failed")
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	rt, err := Bootstrap(ctx, cfg, log, BootstrapOptions{SeedCatalog: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn().Err(err).Msg("runtime close failed")
		}
	}()

	interval := cfg.EffectiveTickInterval()
	heartbeat := health.NewHeartbeat("scheduler", 3*interval+cfg.CallTimeout)
	sched := scheduler.New(rt.Store.Areas(), rt.Evaluator, log, scheduler.Options{
		Interval:    interval,
		Parallelism: cfg.Parallelism,
		QueueSize:   cfg.QueueSize,
		Heartbeat:   heartbeat,
	})

	storeChecker, svcHealth := startHealthCheckers(ctx, cfg, log, rt, heartbeat)

	// Block scheduling until the store answers; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, storeChecker); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, buildRouter(svcHealth, heartbeat, sched))
	errCh := serveHTTP(server, log, cfg)

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		_ = sched.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down scheduler")
	case runErr = <-errCh:
		log.Error().Stack().Err(runErr).Msg("HTTP server failed")
		stop()
	}

	<-schedDone
	if err := sched.Close(); err != nil {
		log.Warn().Err(err).Msg("scheduler close failed")
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error().Stack().Err(err).Msg("Server forced to shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	log.Info().Msg("Scheduler exited")
	return runErr
}

// startHealthCheckers starts component checkers and the service-level aggregator.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, rt *Runtime, heartbeat *health.Heartbeat) (health.HealthChecker, *health.ServiceHealthChecker) {
	probeTimeout := 2 * time.Second
	interval := cfg.HealthInterval

	storeChecker := store.NewStoreHealthChecker(rt.Store, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers := []health.HealthChecker{storeChecker, heartbeat}

	if p, ok := rt.Watermarks.(interface{ HealthPing(context.Context) error }); ok {
		wmChecker := health.NewPingChecker("watermarks", p.HealthPing, log, probeTimeout)
		go wmChecker.Start(ctx, interval)
		checkers = append(checkers, wmChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	return storeChecker, svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// startupHealthTimeout is twice the health interval, at least 60 seconds.
func startupHealthTimeout(interval time.Duration) time.Duration {
	return max(2*interval, 60*time.Second)
}

// waitUntilHealthy blocks until the checker reports healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, checker health.HealthChecker) error {
	timeout := startupHealthTimeout(cfg.HealthInterval)
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if checker.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: %s not healthy within %s", checker.Name(), timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
