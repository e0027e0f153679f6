package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "microarea.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres database URL is required (MICROAREA_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore returns a migrated store. Callers close it.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func loadCatalog() (*geo.Catalog, error) {
	c, err := geo.LoadCatalog(cfg.Resolve.CatalogPath)
	if err != nil {
		return nil, eris.Wrap(err, "load centroid catalog")
	}
	return c, nil
}
