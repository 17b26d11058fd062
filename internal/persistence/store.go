// Package persistence implements the Persistence Core (spec §4.J): an
// append-only commit/changeset log with a materialized archetype table for
// O(1) current-state reads, plus the non-versioned data-record table that
// backs data lakes (spec §3's DataRecord).
//
// Grounded on internal/store/sqlite3's connection/migration pattern
// (goqu query building over modernc.org/sqlite, muz embedded migrations,
// ulid row IDs); the write-through transaction steps follow spec §4.J
// exactly (upsert archetype, insert changeset, insert commit, advance HEAD,
// snapshot every K commits).
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	_ "modernc.org/sqlite"

	"github.com/periplon/metis/internal/config"
)

// DefaultTablePrefix matches internal/store/sqlite3's convention so both
// packages can share one database file without name collisions.
var DefaultTablePrefix = "metis_"

// DefaultSnapshotInterval is K in spec §4.J step 5: a snapshot is taken
// every time this many changeset commits have accumulated since the last
// one.
const DefaultSnapshotInterval = 50

type Store struct {
	db   *sql.DB
	goqu *goqu.Database

	tableArchetypes      exp.IdentifierExpression
	tableCommits         exp.IdentifierExpression
	tableChangesets      exp.IdentifierExpression
	tableSnapshotEntries exp.IdentifierExpression
	tableTags            exp.IdentifierExpression
	tableDataRecords     exp.IdentifierExpression

	// tagsTableName is the raw (prefixed) tags table name, needed to
	// qualify its "message" column in Tags()'s join against commits (which
	// also has a "message" column).
	tagsTableName string

	snapshotInterval int

	// headMu serializes the read-modify-write HEAD advance (open tx, upsert
	// archetype, insert changeset+commit) so concurrent writers never race
	// on parent_hash. Reads (head/commits/archetype_at) don't need it.
	headMu sync.Mutex
}

// Open connects to cfg's datasource, running embedded migrations first.
func Open(ctx context.Context, cfg *config.StoreSQLite) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("persistence: sqlite configuration is nil")
	}
	if cfg.Datasource == "" {
		return nil, errors.New("persistence: sqlite datasource is required")
	}

	tablePrefix := DefaultTablePrefix
	if cfg.TablePrefix != nil {
		tablePrefix = *cfg.TablePrefix
	}

	migrate := cfg.Migrate
	if migrate.Table == "" {
		migrate.Table = "persistence_migrations"
	}
	if migrate.Datasource == "" {
		migrate.Datasource = cfg.Datasource
	}
	migrate.Table = tablePrefix + migrate.Table
	if migrate.Values == nil {
		migrate.Values = make(map[string]string)
	}
	migrate.Values["TABLE_PREFIX"] = tablePrefix

	if err := migrateDB(ctx, &migrate); err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Datasource)
	if err != nil {
		return nil, fmt.Errorf("persistence: open sqlite connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	slog.Info("connected to persistence store")

	dbGoqu := goqu.New("sqlite3", db)

	return &Store{
		db:                   db,
		goqu:                 dbGoqu,
		tableArchetypes:      goqu.T(tablePrefix + "archetypes"),
		tableCommits:         goqu.T(tablePrefix + "commits"),
		tableChangesets:      goqu.T(tablePrefix + "changesets"),
		tableSnapshotEntries: goqu.T(tablePrefix + "snapshot_entries"),
		tableTags:            goqu.T(tablePrefix + "tags"),
		tableDataRecords:     goqu.T(tablePrefix + "data_records"),
		tagsTableName:        tablePrefix + "tags",
		snapshotInterval:     DefaultSnapshotInterval,
	}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("close persistence store connection", "error", err)
		}
	}
}

// DB exposes the underlying connection for callers (e.g. internal/mockengine's
// `database` strategy) that need to run arbitrary read queries against the
// same file.
func (s *Store) DB() *sql.DB { return s.db }
