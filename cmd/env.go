package main

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/district-poi/internal/boundary"
	"github.com/sells-group/district-poi/internal/category"
	"github.com/sells-group/district-poi/internal/dedup"
	"github.com/sells-group/district-poi/internal/model"
	"github.com/sells-group/district-poi/internal/store"
	"github.com/sells-group/district-poi/internal/table"
)

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		if err := table.EnsureDir(cfg.Store.Path); err != nil {
			return nil, err
		}
		st, err = store.NewSQLite(cfg.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initIndex builds the known-identifier index. The returned cleanup closes
// any external connection.
func initIndex(ctx context.Context) (dedup.Index, func(), error) {
	switch cfg.Dedup.Index {
	case "", "memory":
		return dedup.NewMemoryIndex(), func() {}, nil
	case "redis":
		rdb, err := dedup.DialRedis(ctx, cfg.Dedup.Redis.Addr, cfg.Dedup.Redis.Password, cfg.Dedup.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return dedup.NewRedisIndex(rdb, cfg.Dedup.Redis.Key), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, eris.Errorf("unsupported dedup index: %s", cfg.Dedup.Index)
	}
}

func loadBoundary() (*boundary.Boundary, error) {
	b, err := boundary.Load(cfg.Boundary.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "load boundary %s", cfg.Boundary.Path)
	}
	return b, nil
}

func loadMapping() (*category.Mapping, error) {
	if cfg.Categories.Path == "" {
		return category.Default()
	}
	return category.Load(cfg.Categories.Path)
}

// tableSource selects where a command reads POIs from: a CSV file when path
// is set, otherwise the store.
type tableSource struct {
	path    string
	charset string
}

func (s tableSource) fromFile() bool { return s.path != "" }

func (s tableSource) load(ctx context.Context) ([]model.POI, error) {
	if s.fromFile() {
		pois, err := table.ReadFile(s.path, table.ReadOptions{Charset: s.charset})
		if err != nil {
			return nil, err
		}
		zap.L().Info("table loaded", zap.String("path", s.path), zap.Int("rows", len(pois)))
		return pois, nil
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	pois, err := st.All(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "read store")
	}
	zap.L().Info("store loaded", zap.String("driver", cfg.Store.Driver), zap.Int("rows", len(pois)))
	return pois, nil
}

func outputPath(parts ...string) string {
	return filepath.Join(append([]string{cfg.Output.Dir}, parts...)...)
}

// save writes pois back to where they were loaded from. File sources go to
// out, or over the input when out is empty; store sources go through update.
func (s tableSource) save(ctx context.Context, out string, pois []model.POI, update func(context.Context, store.Store, []model.POI) error) (string, error) {
	if s.fromFile() {
		if out == "" {
			out = s.path
		}
		if err := table.WriteFile(out, pois, true); err != nil {
			return "", err
		}
		return out, nil
	}

	st, err := initStore(ctx)
	if err != nil {
		return "", err
	}
	defer st.Close() //nolint:errcheck

	if err := update(ctx, st, pois); err != nil {
		return "", err
	}
	return cfg.Store.Driver, nil
}

// sourceFlags registers the --in and --charset flags shared by table commands.
func sourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("in", "", "read POIs from this CSV instead of the store")
	cmd.Flags().String("charset", "", "input charset (default utf-8)")
}

func sourceFrom(cmd *cobra.Command) tableSource {
	in, _ := cmd.Flags().GetString("in")
	charset, _ := cmd.Flags().GetString("charset")
	return tableSource{path: in, charset: charset}
}
