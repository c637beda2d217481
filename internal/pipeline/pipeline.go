// Package pipeline wires the incident registry, geospatial attribution, and
// category classification into immutable per-year snapshots, and provides
// the pure filter operations the dashboard API is built on.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crimemap/internal/attribute"
	"github.com/sells-group/crimemap/internal/classify"
	"github.com/sells-group/crimemap/internal/dataset"
	"github.com/sells-group/crimemap/internal/model"
	"github.com/sells-group/crimemap/internal/store"
)

// Pipeline builds and caches year snapshots. The registry, attributor, and
// classification table are process-wide read-only reference state; the only
// mutable state is the snapshot cache, guarded for concurrent requests.
type Pipeline struct {
	registry   *dataset.Registry
	attributor *attribute.Attributor
	table      *classify.Table
	store      store.Store // optional; nil means in-memory only

	mu        sync.RWMutex
	snapshots map[int]*model.YearSnapshot
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithStore attaches a snapshot store. Built snapshots are persisted to it,
// and a restarted process restores persisted snapshots instead of re-running
// attribution. Store failures degrade to a rebuild, never a request error.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) { p.store = st }
}

// New creates a Pipeline.
func New(registry *dataset.Registry, attributor *attribute.Attributor, table *classify.Table, opts ...Option) (*Pipeline, error) {
	if registry == nil {
		return nil, eris.New("pipeline: nil registry")
	}
	if attributor == nil {
		return nil, eris.New("pipeline: nil attributor")
	}
	if table == nil {
		return nil, eris.New("pipeline: nil classification table")
	}
	p := &Pipeline{
		registry:   registry,
		attributor: attributor,
		table:      table,
		snapshots:  make(map[int]*model.YearSnapshot),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Registry exposes the underlying registry for year listing.
func (p *Pipeline) Registry() *dataset.Registry { return p.registry }

// Attributor exposes the attribution stage, mainly for its region set.
func (p *Pipeline) Attributor() *attribute.Attributor { return p.attributor }

// Year returns the attributed and classified snapshot for a year. A year
// with no source yields an empty snapshot, never an error: missing years
// are a normal condition. Snapshots are cached; repeated calls for the same
// year return the identical immutable value. When a store is attached, a
// persisted snapshot is restored before any rebuild, and fresh builds are
// persisted for the next restart.
func (p *Pipeline) Year(ctx context.Context, year int) (*model.YearSnapshot, error) {
	p.mu.RLock()
	snap, ok := p.snapshots[year]
	p.mu.RUnlock()
	if ok {
		return snap, nil
	}

	if p.store != nil {
		stored, err := p.store.GetSnapshot(ctx, year)
		if err != nil {
			zap.L().Warn("pipeline: snapshot store read failed, rebuilding",
				zap.Int("year", year), zap.Error(err))
		} else if stored != nil {
			zap.L().Info("pipeline: snapshot restored from store",
				zap.Int("year", year),
				zap.Int("incidents", len(stored.Incidents)),
			)
			return p.cache(year, stored), nil
		}
	}

	snap, err := p.build(ctx, year)
	if err != nil {
		return nil, err
	}

	if p.store != nil && !snap.Empty() {
		if err := p.store.SaveSnapshot(ctx, snap); err != nil {
			zap.L().Warn("pipeline: snapshot store write failed",
				zap.Int("year", year), zap.Error(err))
		}
	}
	return p.cache(year, snap), nil
}

// cache stores a snapshot under its year unless another request already
// cached one, so callers always observe one identity per year.
func (p *Pipeline) cache(year int, snap *model.YearSnapshot) *model.YearSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.snapshots[year]; ok {
		return existing
	}
	p.snapshots[year] = snap
	return snap
}

// build loads, attributes, and classifies one year's incidents.
func (p *Pipeline) build(ctx context.Context, year int) (*model.YearSnapshot, error) {
	start := time.Now()

	src, err := p.registry.Source(year)
	if eris.Is(err, dataset.ErrNoData) {
		zap.L().Info("pipeline: no data for year", zap.Int("year", year))
		return &model.YearSnapshot{
			ID:      uuid.NewString(),
			Year:    year,
			BuiltAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	raw, err := src.Load(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load year %d", year)
	}

	attributed := p.attributor.Attribute(raw)
	classified := p.table.Apply(attributed.Incidents)

	snap := &model.YearSnapshot{
		ID:         uuid.NewString(),
		Year:       year,
		Incidents:  classified,
		Categories: distinctCategories(classified),
		Skipped:    attributed.Skipped,
		BuiltAt:    time.Now(),
	}

	zap.L().Info("pipeline: snapshot built",
		zap.Int("year", year),
		zap.Int("incidents", len(snap.Incidents)),
		zap.Int("skipped", snap.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return snap, nil
}

// Preload warms the snapshot cache for several years concurrently. Snapshot
// construction is pure over immutable inputs, so concurrent builds are safe.
func (p *Pipeline) Preload(ctx context.Context, years []int, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 3
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, year := range years {
		g.Go(func() error {
			_, err := p.Year(gCtx, year)
			return err
		})
	}
	return g.Wait()
}

// Invalidate drops all cached snapshots, forcing rebuilds from the current
// registry state. Persisted snapshots are purged too: they were derived from
// source files that have since changed. Wired to the dataset watcher's
// refresh callback.
func (p *Pipeline) Invalidate() {
	p.mu.Lock()
	p.snapshots = make(map[int]*model.YearSnapshot)
	p.mu.Unlock()

	if p.store != nil {
		ctx := context.Background()
		years, err := p.store.ListYears(ctx)
		if err != nil {
			zap.L().Warn("pipeline: list persisted snapshots", zap.Error(err))
		}
		for _, y := range years {
			if err := p.store.DeleteSnapshot(ctx, y); err != nil {
				zap.L().Warn("pipeline: purge persisted snapshot",
					zap.Int("year", y), zap.Error(err))
			}
		}
	}
	zap.L().Info("pipeline: snapshot cache invalidated")
}

// distinctCategories returns the sorted set of trimmed raw categories.
func distinctCategories(incidents []model.Incident) []string {
	seen := make(map[string]struct{})
	for _, inc := range incidents {
		if inc.Category == "" {
			continue
		}
		seen[inc.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
