package store

import (
	"context"
	"time"

	"github.com/areahq/area-engine/internal/model"
)

// Store exposes persistence operations required by the scheduler and CLI.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
type Store interface {
	Areas() Areas
	Catalog() Catalog
	Credentials() Credentials
	Executions() Executions
	Close() error
}

// Areas persists automation rules. The evaluator is the only caller of AdvanceWatermark.
type Areas interface {
	Create(ctx context.Context, a *model.Area) (*model.Area, error)
	Get(ctx context.Context, areaID string) (*model.Area, error)
	List(ctx context.Context, userID string) ([]*model.Area, error)
	// ListActive returns active AREAs with action and reaction bindings resolved.
	ListActive(ctx context.Context) ([]*model.Area, error)
	// AdvanceWatermark moves last_executed_at forward; an older timestamp is a no-op.
	AdvanceWatermark(ctx context.Context, areaID string, at time.Time) error
	SetActive(ctx context.Context, areaID string, active bool) error
	// Delete removes the AREA and cascades its execution records.
	Delete(ctx context.Context, areaID string) error
}

// Catalog persists services and their action/reaction definitions.
type Catalog interface {
	PutService(ctx context.Context, s *model.Service) error
	ListServices(ctx context.Context) ([]*model.Service, error)
	PutCapability(ctx context.Context, c *model.Capability) error
	GetCapability(ctx context.Context, id string) (*model.Capability, error)
	ListCapabilities(ctx context.Context) ([]*model.Capability, error)
}

// Credentials persists per-user OAuth tokens.
type Credentials interface {
	Get(ctx context.Context, userID, service string) (*model.Credential, error)
	Put(ctx context.Context, c *model.Credential) error
	Delete(ctx context.Context, userID, service string) error
}

// Executions is the append-only audit trail.
type Executions interface {
	Append(ctx context.Context, e *model.Execution) error
	List(ctx context.Context, areaID string, limit int) ([]*model.Execution, error)
}
