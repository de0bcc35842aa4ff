package connector

import (
	"context"
	"strings"
	"time"
)

// WatermarkCache stores connector-private "last seen" markers for feeds that
// have no usable timestamp, keyed by user and parameters.
type WatermarkCache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// WatermarkKey builds a cache key scoped to a service, a user and the
// parameters that identify the watched feed. Callers include the AREA id so
// two AREAs watching the same feed each see every new item.
func WatermarkKey(service, userID string, parts ...string) string {
	return "wm:" + strings.ToLower(service) + ":" + userID + ":" + strings.Join(parts, ":")
}

// Baseline resolves the effective watermark of a seed-only connector. An AREA
// watermark is returned as is. Without one, the baseline stored under key is
// used; when none exists yet, now is stored and seeded is true, meaning the
// caller must not fire.
func Baseline(ctx context.Context, cache WatermarkCache, key string, last *time.Time, now time.Time, ttl time.Duration) (effective *time.Time, seeded bool, err error) {
	if last != nil {
		return last, false, nil
	}
	if cache == nil {
		return nil, true, nil
	}
	v, ok, err := cache.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		if t, perr := time.Parse(time.RFC3339Nano, v); perr == nil {
			return &t, false, nil
		}
	}
	if err := cache.Set(ctx, key, now.UTC().Format(time.RFC3339Nano), ttl); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}
