// Package connector defines the contract every external-service adapter
// implements, plus the shared plumbing adapters are built from.
package connector

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// FirstRunPolicy declares what a connector does when an AREA has never fired.
type FirstRunPolicy int

const (
	// FireOnFirstRun treats a missing watermark as "never fired" and fires on
	// the first qualifying data.
	FireOnFirstRun FirstRunPolicy = iota
	// SeedOnlyOnFirstRun suppresses the first firing and only records a
	// baseline for the next check.
	SeedOnlyOnFirstRun
)

func (p FirstRunPolicy) String() string {
	switch p {
	case FireOnFirstRun:
		return "FireOnFirstRun"
	case SeedOnlyOnFirstRun:
		return "SeedOnlyOnFirstRun"
	default:
		return fmt.Sprintf("FirstRunPolicy(%d)", int(p))
	}
}

// Descriptor is a connector's static registration metadata.
type Descriptor struct {
	Name        string
	AuthType    string
	Description string
	FirstRun    FirstRunPolicy
	Triggers    []string
	Effects     []string
}

// SupportsTrigger reports whether id is one of the declared trigger identifiers.
func (d Descriptor) SupportsTrigger(id string) bool { return slices.Contains(d.Triggers, id) }

// SupportsEffect reports whether id is one of the declared effect identifiers.
func (d Descriptor) SupportsEffect(id string) bool { return slices.Contains(d.Effects, id) }

// TriggerRequest carries one trigger check.
type TriggerRequest struct {
	Trigger string
	Params  Params
	// LastExecutedAt is the AREA watermark; nil when it never fired.
	LastExecutedAt *time.Time
	UserID         string
	// AreaID scopes connector-private watermarks to one AREA.
	AreaID string
}

// TriggerResult is either not triggered (nil payload) or a fired payload.
type TriggerResult struct {
	Payload Payload
}

// Fired reports whether the check produced new data.
func (r TriggerResult) Fired() bool { return r.Payload != nil }

// NotTriggered is the "checked successfully, nothing new" result.
func NotTriggered() TriggerResult { return TriggerResult{} }

// Fire wraps data as a fired result, marking it triggered and making sure a
// message is present.
func Fire(service string, data Payload) TriggerResult {
	if data == nil {
		data = Payload{}
	}
	data["triggered"] = true
	if data.Message() == "" {
		data["message"] = service + " trigger fired"
	}
	return TriggerResult{Payload: data}
}

// EffectRequest carries one effect execution.
type EffectRequest struct {
	Effect string
	// Params are the reaction parameters after templating.
	Params Params
	// TriggerData is the raw payload of the trigger that fired.
	TriggerData Payload
}

// EffectResult reports the single attempt at a side effect.
type EffectResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Succeeded builds a successful effect result.
func Succeeded(message string, data map[string]any) EffectResult {
	return EffectResult{Success: true, Message: message, Data: data}
}

// Failed builds a failed effect result.
func Failed(message string, err error) EffectResult {
	res := EffectResult{Success: false, Message: message}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Connector is the uniform adapter for one external service.
//
// CheckTrigger must be a pure read on the external system and must absorb
// transient failures as NotTriggered. ExecuteEffect performs exactly one
// attempt and reports expected failures through EffectResult.
type Connector interface {
	Describe() Descriptor
	CheckTrigger(ctx context.Context, req TriggerRequest) TriggerResult
	ExecuteEffect(ctx context.Context, req EffectRequest) EffectResult
}

// NoEffects is embedded by trigger-only connectors.
type NoEffects struct{ Service string }

// ExecuteEffect always fails with a fixed explanation.
func (n NoEffects) ExecuteEffect(_ context.Context, req EffectRequest) EffectResult {
	return Failed(fmt.Sprintf("%s has no reactions", n.Service), fmt.Errorf("%w: %s", ErrUnsupported, req.Effect))
}

// NoTriggers is embedded by effect-only connectors.
type NoTriggers struct{}

// CheckTrigger never fires.
func (NoTriggers) CheckTrigger(context.Context, TriggerRequest) TriggerResult { return NotTriggered() }

// UnsupportedEffect is the result for an unknown effect identifier.
func UnsupportedEffect(service, effect string) EffectResult {
	return Failed(fmt.Sprintf("%s does not support reaction %q", service, effect), fmt.Errorf("%w: %s", ErrUnsupported, effect))
}
