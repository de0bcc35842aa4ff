// Package timer implements the clock-driven trigger connector.
//
// First-run policy: FireOnFirstRun. Wall-clock triggers fire once per
// boundary (hour, day, week, instant) when the check lands within a grace
// window after it and the watermark is older than the boundary.
package timer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const Name = "Timer"

const (
	EveryHour     = "timer_every_hour"
	EveryDay      = "timer_every_day"
	EveryXMinutes = "timer_every_x_minutes"
	Interval      = "timer_interval"
	EveryMinute   = "every_minute"
	Weekday       = "timer_weekday"
	SpecificTime  = "timer_specific_time"
	DailyAt       = "specific_time"
	Cron          = "timer_cron"
)

const defaultGrace = 5 * time.Minute

// Connector is the Timer service.
type Connector struct {
	connector.NoEffects
	deps connector.Deps
	log  zerolog.Logger
}

// New builds the Timer connector.
func New(deps connector.Deps) *Connector {
	return &Connector{
		NoEffects: connector.NoEffects{Service: Name},
		deps:      deps,
		log:       deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "none",
		Description: "Clock-based triggers",
		FirstRun:    connector.FireOnFirstRun,
		Triggers:    []string{EveryHour, EveryDay, EveryXMinutes, Interval, EveryMinute, Weekday, SpecificTime, DailyAt, Cron},
	}
}

func (c *Connector) CheckTrigger(_ context.Context, req connector.TriggerRequest) connector.TriggerResult {
	now := c.deps.Clock()
	last := req.LastExecutedAt
	if last != nil {
		l := last.In(now.Location())
		last = &l
	}
	grace := time.Duration(req.Params.Int("grace_minutes", int(defaultGrace/time.Minute))) * time.Minute

	switch req.Trigger {
	case EveryHour:
		return c.everyHour(now, last, grace)
	case EveryDay:
		return c.everyDay(now, last, req.Params.String("time"), grace)
	case DailyAt:
		at := fmt.Sprintf("%02d:%02d", req.Params.Int("hour", 9), req.Params.Int("minute", 0))
		return c.everyDay(now, last, at, grace)
	case EveryXMinutes:
		return c.everyXMinutes(now, last, req.Params.Int("minutes", 30))
	case Interval:
		return c.everyXMinutes(now, last, req.Params.Int("interval_minutes", req.Params.Int("minutes", 30)))
	case EveryMinute:
		return c.everyXMinutes(now, last, 1)
	case Weekday:
		return c.weekday(now, last, req.Params.String("day"), req.Params.String("time"), grace)
	case SpecificTime:
		return c.specificTime(now, last, req.Params.String("datetime"), grace)
	case Cron:
		return c.cron(now, last, req.Params.String("expression", "cron"), grace)
	default:
		c.log.Warn().Str("trigger", req.Trigger).Msg("unsupported trigger")
		return connector.NotTriggered()
	}
}

// due reports whether boundary has passed within grace and the watermark predates it.
func due(now time.Time, last *time.Time, boundary time.Time, grace time.Duration) bool {
	if now.Before(boundary) || now.Sub(boundary) >= grace {
		return false
	}
	return last == nil || last.Before(boundary)
}

func (c *Connector) everyHour(now time.Time, last *time.Time, grace time.Duration) connector.TriggerResult {
	boundary := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	if !due(now, last, boundary, grace) {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"current_time": now.Format("15:04"),
		"hour":         now.Hour(),
		"message":      fmt.Sprintf("Il est %s ! Rappel horaire.", boundary.Format("15:04")),
	})
}

func parseClock(s string, now time.Time) (time.Time, error) {
	if s == "" {
		s = "09:00"
	}
	t, err := time.ParseInLocation("15:04", s, now.Location())
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}

func (c *Connector) everyDay(now time.Time, last *time.Time, at string, grace time.Duration) connector.TriggerResult {
	target, err := parseClock(at, now)
	if err != nil {
		c.log.Warn().Str("time", at).Err(err).Msg("invalid daily time")
		return connector.NotTriggered()
	}
	if !due(now, last, target, grace) {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"current_time":   now.Format("15:04"),
		"target_time":    target.Format("15:04"),
		"last_execution": formatLast(last, "2006-01-02 15:04"),
		"message":        fmt.Sprintf("Rappel quotidien à %s !", target.Format("15:04")),
	})
}

func (c *Connector) everyXMinutes(now time.Time, last *time.Time, interval int) connector.TriggerResult {
	if interval < 1 {
		interval = 1
	}
	if last == nil {
		return connector.Fire(Name, connector.Payload{
			"interval":           interval,
			"current_time":       now.Format("15:04"),
			"last_execution":     "jamais",
			"minutes_since_last": 0,
			"message":            fmt.Sprintf("Premier déclenchement toutes les %d minutes", interval),
		})
	}
	since := int(now.Sub(*last).Minutes())
	if since < interval {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"interval":           interval,
		"current_time":       now.Format("15:04"),
		"last_execution":     last.Format("15:04"),
		"minutes_since_last": since,
		"message":            fmt.Sprintf("Déclenchement programmé toutes les %d minutes", interval),
	})
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return time.Monday, true
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

func (c *Connector) weekday(now time.Time, last *time.Time, day, at string, grace time.Duration) connector.TriggerResult {
	wd, ok := parseWeekday(day)
	if !ok {
		c.log.Warn().Str("day", day).Msg("invalid weekday")
		return connector.NotTriggered()
	}
	if now.Weekday() != wd {
		return connector.NotTriggered()
	}
	target, err := parseClock(at, now)
	if err != nil {
		c.log.Warn().Str("time", at).Err(err).Msg("invalid weekday time")
		return connector.NotTriggered()
	}
	if !due(now, last, target, grace) {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"day":          wd.String(),
		"time":         target.Format("15:04"),
		"current_date": now.Format("02/01/2006"),
		"message":      fmt.Sprintf("C'est %s à %s !", strings.ToLower(wd.String()), target.Format("15:04")),
	})
}

func (c *Connector) specificTime(now time.Time, last *time.Time, raw string, grace time.Duration) connector.TriggerResult {
	if raw == "" {
		c.log.Warn().Msg("timer_specific_time without datetime")
		return connector.NotTriggered()
	}
	target, ok := connector.ParseTime(raw)
	if !ok {
		t, err := time.ParseInLocation("2006-01-02 15:04", raw, now.Location())
		if err != nil {
			c.log.Warn().Str("datetime", raw).Msg("invalid datetime")
			return connector.NotTriggered()
		}
		target = t
	}
	target = target.In(now.Location()).Truncate(time.Minute)
	if !due(now, last, target, grace) {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"target_datetime": target.Format("02/01/2006 15:04"),
		"current_time":    now.Format("15:04"),
		"message":         fmt.Sprintf("C'est l'heure programmée : %s !", target.Format("02/01/2006 15:04")),
	})
}

func (c *Connector) cron(now time.Time, last *time.Time, expr string, grace time.Duration) connector.TriggerResult {
	if expr == "" {
		c.log.Warn().Msg("timer_cron without expression")
		return connector.NotTriggered()
	}
	sched, err := cronexpr.Parse(expr)
	if err != nil {
		c.log.Warn().Str("expression", expr).Err(err).Msg("invalid cron expression")
		return connector.NotTriggered()
	}
	anchor := now.Add(-grace)
	if last != nil && last.After(anchor) {
		anchor = *last
	}
	next := sched.Next(anchor)
	if next.IsZero() || next.After(now) {
		return connector.NotTriggered()
	}
	return connector.Fire(Name, connector.Payload{
		"expression":     expr,
		"scheduled_at":   next.Format("2006-01-02 15:04"),
		"current_time":   now.Format("15:04"),
		"next_run":       sched.Next(now).Format("2006-01-02 15:04"),
		"last_execution": formatLast(last, "2006-01-02 15:04"),
		"message":        fmt.Sprintf("Planification %s déclenchée", expr),
	})
}

func formatLast(last *time.Time, layout string) string {
	if last == nil {
		return "jamais"
	}
	return last.Format(layout)
}
