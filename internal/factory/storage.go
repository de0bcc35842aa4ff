// Package factory builds the store, caches and connector registry from config.
package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/store"
	storepg "github.com/areahq/area-engine/internal/store/postgres"
	storesqlite "github.com/areahq/area-engine/internal/store/sqlite"
)

// NewStore opens the configured store and applies its schema.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("AREA_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		st, err := storepg.OpenStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		log.Debug().Str("driver", cfg.DBDriver).Msg("store ready")
		return st, nil
	case "sqlite":
		st, err := storesqlite.OpenStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Debug().Str("driver", cfg.DBDriver).Str("path", cfg.SQLitePath).Msg("store ready")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
