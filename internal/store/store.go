// Package store persists attributed and classified snapshots so restarts
// can skip re-attribution. Two drivers are provided: SQLite for single-node
// deployments and PostgreSQL for shared ones.
package store

import (
	"context"

	"github.com/sells-group/crimemap/internal/boundary"
	"github.com/sells-group/crimemap/internal/model"
)

// Store is the persistence interface for snapshots and boundary geometry.
// GetSnapshot and GetRegions return (nil, nil) when nothing is stored.
type Store interface {
	// Snapshots
	SaveSnapshot(ctx context.Context, snap *model.YearSnapshot) error
	GetSnapshot(ctx context.Context, year int) (*model.YearSnapshot, error)
	ListYears(ctx context.Context) ([]int, error)
	DeleteSnapshot(ctx context.Context, year int) error

	// Boundary geometry, keyed by region-set identity, stored as EWKB.
	SaveRegions(ctx context.Context, setID string, regions []boundary.Region) error
	GetRegions(ctx context.Context, setID string) ([]boundary.Region, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
