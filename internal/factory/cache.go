package factory

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/cache"
	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/connector"
)

// NewWatermarkCache returns the connector-private marker cache. The returned
// closer is never nil.
func NewWatermarkCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (connector.WatermarkCache, io.Closer, error) {
	switch cfg.WatermarkBackend {
	case "", "memory":
		return cache.NewMemory(), nopCloser{}, nil
	case "redis":
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Msg("redis watermark cache connected")
		r := cache.NewRedis(client, "area:")
		return r, r, nil
	default:
		return nil, nil, fmt.Errorf("unsupported WATERMARK_BACKEND: %s", cfg.WatermarkBackend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
