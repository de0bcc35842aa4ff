// Package scheduler drives evaluation passes over every active AREA.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/areahq/area-engine/internal/evaluator"
	"github.com/areahq/area-engine/internal/health"
	"github.com/areahq/area-engine/internal/metrics"
	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/shardqueue"
	"github.com/areahq/area-engine/internal/store"
	"github.com/areahq/area-engine/internal/tracing"
)

// Evaluator evaluates a single AREA.
type Evaluator interface {
	Evaluate(ctx context.Context, area *model.Area) evaluator.Result
}

// Report summarises one pass.
type Report struct {
	StartedAt    time.Time          `json:"startedAt"`
	Duration     time.Duration      `json:"duration"`
	Active       int                `json:"active"`
	Triggered    int                `json:"triggered"`
	NotTriggered int                `json:"notTriggered"`
	Errors       int                `json:"errors"`
	Results      []evaluator.Result `json:"results"`
}

func (r *Report) add(res evaluator.Result) {
	switch res.Outcome {
	case model.OutcomeTriggered:
		r.Triggered++
	case model.OutcomeNotTriggered:
		r.NotTriggered++
	default:
		r.Errors++
	}
}

// Options tune a Scheduler.
type Options struct {
	Interval    time.Duration
	Parallelism int
	QueueSize   int
	// Heartbeat, when set, is beaten after every completed pass.
	Heartbeat *health.Heartbeat
	Now       func() time.Time
}

// Scheduler runs passes one after another; a pass never overlaps the next.
type Scheduler struct {
	areas     store.Areas
	eval      Evaluator
	exec      *shardqueue.ShardExecutor
	log       zerolog.Logger
	interval  time.Duration
	heartbeat *health.Heartbeat
	now       func() time.Time
	mu        sync.Mutex // serialises passes between Run and ad-hoc RunOnce
}

// New builds a scheduler and starts its worker shards. Call Close when done.
func New(areas store.Areas, eval Evaluator, log zerolog.Logger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log = log.With().Str("component", "scheduler").Logger()
	exec := shardqueue.NewShardExecutor(shardqueue.Config{
		Shards:         opts.Parallelism,
		QueueSize:      opts.QueueSize,
		EnqueueTimeout: shardqueue.WaitForRoom,
		Logger:         log,
		ErrorHandler: func(key string, err error) {
			log.Error().Str("area_id", key).Err(err).Msg("evaluation job failed")
		},
	})
	return &Scheduler{
		areas:     areas,
		eval:      eval,
		exec:      exec,
		log:       log,
		interval:  opts.Interval,
		heartbeat: opts.Heartbeat,
		now:       opts.Now,
	}
}

// Close stops the worker shards after draining queued evaluations.
func (s *Scheduler) Close() error { return s.exec.Close() }

// Run performs a pass immediately and then one per interval until ctx is
// cancelled. A failed pass is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Stack().Err(err).Msg("evaluation pass failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce evaluates every active AREA and waits for all of them. AREAs are
// evaluated in parallel across shards keyed by AREA id.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	metrics.TicksTotal.Inc()
	ctx, span := tracing.StartSpan(ctx, "scheduler.tick")

	areas, err := s.areas.ListActive(ctx)
	if err != nil {
		tracing.End(span, err)
		return nil, err
	}
	metrics.ActiveAreas.Set(float64(len(areas)))
	span.SetAttributes(attribute.Int("areas.active", len(areas)))

	results := make([]evaluator.Result, len(areas))
	var wg sync.WaitGroup
	for i, area := range areas {
		if err := ctx.Err(); err != nil {
			results[i] = evaluator.Result{AreaID: area.AreaID, Name: area.Name, Outcome: model.OutcomeError, Err: err, Message: err.Error()}
			continue
		}
		i, area := i, area // per-iteration copies (go directive < 1.22)
		wg.Add(1)
		// The queue context never cancels so every job runs and releases wg;
		// the job itself honours ctx. Submit waits for room on a full shard,
		// so every active AREA is evaluated in this pass.
		job := shardqueue.JobFunc(func(context.Context) error {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				results[i] = evaluator.Result{AreaID: area.AreaID, Name: area.Name, Outcome: model.OutcomeError, Err: err, Message: err.Error()}
				return nil
			}
			results[i] = s.eval.Evaluate(ctx, area)
			return nil
		})
		if err := s.exec.Submit(context.WithoutCancel(ctx), area.AreaID, job); err != nil {
			wg.Done()
			s.log.Error().Str("area_id", area.AreaID).Err(err).Msg("could not schedule evaluation")
			results[i] = evaluator.Result{AreaID: area.AreaID, Name: area.Name, Outcome: model.OutcomeError, Err: err, Message: err.Error()}
		}
	}
	wg.Wait()

	report := &Report{StartedAt: start, Active: len(areas), Results: results}
	for _, r := range results {
		report.add(r)
	}
	report.Duration = s.now().Sub(start)
	metrics.TickDuration.Observe(report.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("areas.triggered", report.Triggered),
		attribute.Int("areas.errors", report.Errors),
	)
	tracing.End(span, nil)

	if s.heartbeat != nil {
		s.heartbeat.Beat()
	}
	s.log.Info().
		Int("active", report.Active).
		Int("triggered", report.Triggered).
		Int("not_triggered", report.NotTriggered).
		Int("errors", report.Errors).
		Dur("duration", report.Duration).
		Msg("evaluation pass complete")
	return report, nil
}
