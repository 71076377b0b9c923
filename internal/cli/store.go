package cli

import (
	"context"
	"fmt"

	"github.com/randalmurphal/orc/internal/config"
	"github.com/randalmurphal/orc/internal/store"
)

// openStore opens (and migrates) the Store named by cfg.Database, choosing
// the SQLite or Postgres driver per cfg.Database.Driver.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		pg := cfg.Database.Postgres
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			pg.Host, pg.Port, pg.Database, pg.User, pg.Password, pg.SSLMode)
		return store.Open(ctx, store.DialectPostgres, dsn)
	default:
		path := cfg.Database.SQLite.Path
		if path == "" {
			path = ".orc/orc.db"
		}
		return store.Open(ctx, store.DialectSQLite, path)
	}
}

// loadConfig loads the project config, falling back to defaults so
// commands that only need the Engine/Database sections still work outside
// an initialized project.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.Default()
	}
	return cfg
}
