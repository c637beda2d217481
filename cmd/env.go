package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crimemap/internal/attribute"
	"github.com/sells-group/crimemap/internal/boundary"
	"github.com/sells-group/crimemap/internal/classify"
	"github.com/sells-group/crimemap/internal/dataset"
	"github.com/sells-group/crimemap/internal/db"
	"github.com/sells-group/crimemap/internal/pipeline"
	"github.com/sells-group/crimemap/internal/store"
)

// appEnv holds the loaded boundary set, dataset registry, and pipeline
// needed by the serve/attribute/export commands.
type appEnv struct {
	Set      *boundary.Set
	Table    *classify.Table
	Registry *dataset.Registry
	Pipeline *pipeline.Pipeline
	Store    store.Store // may be nil
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for the given mode, loads boundaries and the
// incident registry, and builds the pipeline. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	regions, err := boundary.LoadShapefile(cfg.Boundary.ShapefilePath, boundary.LoadOptions{
		NameField: cfg.Boundary.NameField,
	})
	if err != nil {
		return nil, err
	}
	set, err := boundary.NewSet(regions)
	if err != nil {
		return nil, err
	}

	table := classify.DefaultTable()
	if cfg.Classify.TablePath != "" {
		table, err = classify.LoadTable(cfg.Classify.TablePath)
		if err != nil {
			return nil, err
		}
	}

	reg, err := dataset.NewRegistry(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}

	attr, err := attribute.New(set)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		if err := persistRegions(ctx, st, set); err != nil {
			zap.L().Warn("persist boundary regions", zap.Error(err))
		}
	}

	var opts []pipeline.Option
	if st != nil {
		opts = append(opts, pipeline.WithStore(st))
	}
	pipe, err := pipeline.New(reg, attr, table, opts...)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	zap.L().Info("environment ready",
		zap.Int("regions", set.Len()),
		zap.Ints("years", reg.Years()),
		zap.String("store", cfg.Store.Driver),
	)

	return &appEnv{
		Set:      set,
		Table:    table,
		Registry: reg,
		Pipeline: pipe,
		Store:    st,
	}, nil
}

// persistRegions saves the loaded boundary geometry under the region-set
// identity, unless that exact set is already stored.
func persistRegions(ctx context.Context, st store.Store, set *boundary.Set) error {
	stored, err := st.GetRegions(ctx, set.ID())
	if err != nil {
		return err
	}
	if stored != nil {
		return nil
	}
	return st.SaveRegions(ctx, set.ID(), set.Regions())
}

// initStore builds the snapshot store named by config, or nil for the
// "none" driver.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
