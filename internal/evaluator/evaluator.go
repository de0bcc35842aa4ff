// Package evaluator runs one AREA through check, render, effect and
// watermark advance.
package evaluator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/metrics"
	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/store"
	"github.com/areahq/area-engine/internal/tracing"
)

// Result is the outcome of one evaluation.
type Result struct {
	AreaID  string        `json:"areaId"`
	Name    string        `json:"name"`
	Outcome model.Outcome `json:"outcome"`
	// ReactionSuccess is meaningful only when Outcome is triggered.
	ReactionSuccess bool          `json:"reactionSuccess"`
	Message         string        `json:"message,omitempty"`
	Err             error         `json:"-"`
	Duration        time.Duration `json:"duration"`
}

// Options tune an Evaluator.
type Options struct {
	// CallTimeout bounds each CheckTrigger and ExecuteEffect call.
	CallTimeout time.Duration
	Now         func() time.Time
}

// Evaluator is safe for concurrent use across distinct AREAs.
type Evaluator struct {
	registry    *connector.Registry
	areas       store.Areas
	executions  store.Executions
	log         zerolog.Logger
	callTimeout time.Duration
	now         func() time.Time
}

// New builds an evaluator. executions may be nil to skip the audit trail.
func New(registry *connector.Registry, areas store.Areas, executions store.Executions, log zerolog.Logger, opts Options) *Evaluator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Evaluator{
		registry:    registry,
		areas:       areas,
		executions:  executions,
		log:         log.With().Str("component", "evaluator").Logger(),
		callTimeout: opts.CallTimeout,
		now:         opts.Now,
	}
}

// Evaluate runs one AREA. It never panics and never returns an error
// directly: failures are reported in the Result and logged.
func (e *Evaluator) Evaluate(ctx context.Context, area *model.Area) (res Result) {
	start := e.now()
	res = Result{AreaID: area.AreaID, Name: area.Name}
	log := e.log.With().
		Str("area_id", area.AreaID).
		Str("action", area.Action.Service+"/"+area.Action.Identifier).
		Str("reaction", area.Reaction.Service+"/"+area.Reaction.Identifier).
		Logger()

	ctx, span := tracing.StartSpan(ctx, "area.evaluate",
		attribute.String("area.id", area.AreaID),
		attribute.String("area.action", area.Action.Service+"/"+area.Action.Identifier),
		attribute.String("area.reaction", area.Reaction.Service+"/"+area.Reaction.Identifier),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("evaluation panicked")
			res.Outcome = model.OutcomeError
			res.Err = fmt.Errorf("evaluation panic: %v", r)
			res.Message = res.Err.Error()
		}
		res.Duration = e.now().Sub(start)
		metrics.EvaluationsTotal.WithLabelValues(string(res.Outcome)).Inc()
		span.SetAttributes(attribute.String("area.outcome", string(res.Outcome)))
		tracing.End(span, res.Err)
	}()

	action, err := e.registry.Resolve(area.Action.Service)
	if err != nil {
		log.Warn().Err(err).Msg("unknown action service")
		return e.fail(ctx, res, err, nil)
	}

	trig, err := e.check(ctx, action, connector.TriggerRequest{
		Trigger:        area.Action.Identifier,
		Params:         connector.Params(area.ActionParams).Clone(),
		LastExecutedAt: area.LastExecutedAt,
		UserID:         area.UserID,
		AreaID:         area.AreaID,
	})
	if err != nil {
		log.Error().Err(err).Msg("trigger check failed")
		return e.fail(ctx, res, err, nil)
	}
	if !trig.Fired() {
		res.Outcome = model.OutcomeNotTriggered
		log.Debug().Msg("not triggered")
		return res
	}
	log.Info().Msg("action triggered")

	reaction, err := e.registry.Resolve(area.Reaction.Service)
	if err != nil {
		log.Warn().Err(err).Msg("unknown reaction service; firing dropped")
		return e.fail(ctx, res, err, trig.Payload)
	}

	firedAt := start
	params := renderParams(area.ReactionParams, trig.Payload, firedAt)
	effect := e.execute(ctx, reaction, connector.EffectRequest{
		Effect:      area.Reaction.Identifier,
		Params:      params,
		TriggerData: trig.Payload,
	})
	if effect.Success {
		log.Info().Str("result", effect.Message).Msg("reaction executed")
	} else {
		log.Warn().Str("result", effect.Message).Str("error", effect.Error).Msg("reaction failed")
	}

	// The firing is consumed whatever the effect reported.
	if err := e.areas.AdvanceWatermark(ctx, area.AreaID, firedAt); err != nil {
		log.Error().Stack().Err(err).Msg("failed to advance watermark")
		res.Err = err
	} else {
		ts := firedAt
		area.LastExecutedAt = &ts
	}

	res.Outcome = model.OutcomeTriggered
	res.ReactionSuccess = effect.Success
	res.Message = effect.Message
	e.record(ctx, &model.Execution{
		AreaID:     area.AreaID,
		Outcome:    model.OutcomeTriggered,
		Success:    effect.Success,
		Message:    effect.Message,
		Snapshot:   map[string]any{"trigger": map[string]any(trig.Payload), "reaction": effect},
		ExecutedAt: firedAt,
	}, log)
	return res
}

func (e *Evaluator) fail(ctx context.Context, res Result, err error, payload connector.Payload) Result {
	res.Outcome = model.OutcomeError
	res.Err = err
	res.Message = err.Error()
	var snap map[string]any
	if payload != nil {
		snap = map[string]any{"trigger": map[string]any(payload)}
	}
	e.record(ctx, &model.Execution{
		AreaID:     res.AreaID,
		Outcome:    model.OutcomeError,
		Message:    res.Message,
		Snapshot:   snap,
		ExecutedAt: e.now(),
	}, e.log.With().Str("area_id", res.AreaID).Logger())
	return res
}

func (e *Evaluator) record(ctx context.Context, ex *model.Execution, log zerolog.Logger) {
	if e.executions == nil {
		return
	}
	if err := e.executions.Append(ctx, ex); err != nil {
		log.Error().Err(err).Msg("failed to record execution")
	}
}

// check runs CheckTrigger under the call timeout. A connector panic is
// reported as an error rather than crashing the pass.
func (e *Evaluator) check(ctx context.Context, c connector.Connector, req connector.TriggerRequest) (res connector.TriggerResult, err error) {
	service := c.Describe().Name
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.ConnectorCallsTotal.WithLabelValues(service, "check", "panic").Inc()
			err = fmt.Errorf("%s check %s panicked: %v", service, req.Trigger, r)
		}
	}()

	res = c.CheckTrigger(callCtx, req)
	result := "not_triggered"
	if res.Fired() {
		result = "fired"
	}
	metrics.ConnectorCallsTotal.WithLabelValues(service, "check", result).Inc()
	return res, nil
}

// execute performs the single effect attempt under the call timeout.
func (e *Evaluator) execute(ctx context.Context, c connector.Connector, req connector.EffectRequest) (res connector.EffectResult) {
	service := c.Describe().Name
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			metrics.ConnectorCallsTotal.WithLabelValues(service, "effect", "panic").Inc()
			res = connector.Failed(fmt.Sprintf("%s reaction crashed", service), fmt.Errorf("panic: %v", r))
		}
	}()

	res = c.ExecuteEffect(callCtx, req)
	result := "success"
	if !res.Success {
		result = "failure"
	}
	metrics.ConnectorCallsTotal.WithLabelValues(service, "effect", result).Inc()
	return res
}
