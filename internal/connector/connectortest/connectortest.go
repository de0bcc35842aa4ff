// Package connectortest holds fakes shared by connector tests.
package connectortest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

// Tokens is a static UserTokens keyed by "user/service".
type Tokens map[string]string

func (t Tokens) AccessToken(_ context.Context, userID, service string) (string, bool) {
	v, ok := t[userID+"/"+service]
	return v, ok && v != ""
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Watermarks is an in-memory WatermarkCache that ignores TTLs.
type Watermarks struct {
	mu sync.Mutex
	m  map[string]string
}

func NewWatermarks() *Watermarks { return &Watermarks{m: map[string]string{}} }

func (w *Watermarks) Get(_ context.Context, key string) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.m[key]
	return v, ok, nil
}

func (w *Watermarks) Set(_ context.Context, key, value string, _ time.Duration) error {
	w.mu.Lock()
	w.m[key] = value
	w.mu.Unlock()
	return nil
}

// Deps returns connector dependencies suitable for httptest servers: no
// retries, short timeouts, UTC.
func Deps(clock *Clock) connector.Deps {
	return connector.Deps{
		HTTP:       connector.HTTPConfig{Timeout: 2 * time.Second, Retries: 0, BaseBackoff: time.Millisecond},
		Log:        zerolog.Nop(),
		Tokens:     connector.NewTokenCache(time.Minute).WithClock(clock.Now),
		Watermarks: NewWatermarks(),
		Now:        clock.Now,
		Location:   time.UTC,
	}
}
