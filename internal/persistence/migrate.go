package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/rakunlabs/muz"

	"github.com/periplon/metis/internal/config"
)

//go:embed migrations/*
var migrationFS embed.FS

// migrateDB runs the embedded migration set against cfg.Datasource, grounded
// on internal/store/sqlite3's MigrateDB (same muz.Migrate + SQLite driver
// pattern, generalized to the persistence core's own schema).
func migrateDB(ctx context.Context, cfg *config.Migrate) error {
	if cfg.Datasource == "" {
		return fmt.Errorf("persistence migrate: datasource is required")
	}

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return fmt.Errorf("open sqlite connection for migration: %w", err)
	}
	defer db.Close()

	m := muz.Migrate{
		Path:      "migrations",
		FS:        migrationFS,
		Extension: ".sql",
		Values:    cfg.Values,
	}

	driver := muz.NewSQLiteDriver(db, cfg.Table, slog.Default())

	if err := m.Migrate(ctx, driver); err != nil {
		return fmt.Errorf("run persistence migrations: %w", err)
	}

	return nil
}
