// Package schedulerd hosts the AREA scheduler: it wires configuration,
// storage, connectors and the evaluation loop, and serves health and metrics.
package schedulerd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/catalog"
	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/credentials"
	"github.com/areahq/area-engine/internal/evaluator"
	"github.com/areahq/area-engine/internal/factory"
	"github.com/areahq/area-engine/internal/store"
)

// Runtime is the assembled engine shared by the daemon and the CLI.
type Runtime struct {
	Config      *config.Config
	Store       store.Store
	Watermarks  connector.WatermarkCache
	Credentials *credentials.Manager
	Connectors  *factory.Connectors
	Catalog     *catalog.Catalog
	Evaluator   *evaluator.Evaluator

	closers []io.Closer
}

// BootstrapOptions controls optional startup steps.
type BootstrapOptions struct {
	// SeedCatalog upserts the catalog into the store after validation.
	SeedCatalog bool
}

// Bootstrap opens the store and caches, registers every connector and
// validates the catalog against the registry. A catalog entry without a
// matching connector identifier aborts startup.
func Bootstrap(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts BootstrapOptions) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.Store, err = factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, err
	}
	rt.closers = append(rt.closers, rt.Store)

	wm, wmCloser, err := factory.NewWatermarkCache(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Watermark cache unavailable")
		return nil, err
	}
	rt.Watermarks = wm
	rt.closers = append(rt.closers, wmCloser)

	rt.Credentials = factory.NewCredentials(cfg, log, rt.Store)
	deps, err := factory.NewDeps(cfg, log, rt.Credentials, wm)
	if err != nil {
		return nil, err
	}
	rt.Connectors, err = factory.NewConnectors(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("register connectors: %w", err)
	}
	rt.closers = append(rt.closers, rt.Connectors)

	rt.Catalog, err = catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	if err := rt.Catalog.Validate(rt.Connectors.Registry); err != nil {
		log.Error().Err(err).Msg("catalog does not match registered connectors")
		return nil, err
	}
	if opts.SeedCatalog {
		svcs, caps, err := rt.Catalog.Seed(ctx, rt.Store.Catalog())
		if err != nil {
			return nil, err
		}
		log.Info().Int("services", svcs).Int("capabilities", caps).Msg("catalog seeded")
	}

	rt.Evaluator = evaluator.New(rt.Connectors.Registry, rt.Store.Areas(), rt.Store.Executions(), log, evaluator.Options{
		CallTimeout: cfg.CallTimeout,
	})
	return rt, nil
}

// Close releases connectors, caches and the store, in reverse order of creation.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
