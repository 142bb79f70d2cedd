// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package shadowdb is the local durable shadow store, a single SQLite
// database holding accounts, edges and run metrics.
package shadowdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/shadowgraph/private/dbutil"
	"storj.io/shadowgraph/private/migrate"
	"storj.io/shadowgraph/private/tagsql"
	"storj.io/shadowgraph/runstats"
	"storj.io/shadowgraph/shadow"
)

var (
	mon = monkit.Package()

	// ErrDatabase represents errors from the shadow database.
	ErrDatabase = errs.Class("shadowdb")
	// ErrIntegrity represents fatal constraint violations, usually a
	// programmer error rather than bad luck.
	ErrIntegrity = errs.Class("integrity")
	// ErrPreflight represents errors during the preflight check.
	ErrPreflight = errs.Class("shadowdb preflight")
)

// VersionTable is the table that stores the migration state.
const VersionTable = "versions"

// DB is the shadow store backed by a single SQLite database file.
type DB struct {
	log      *zap.Logger
	location string
	db       tagsql.DB

	accounts *accountsDB
	edges    *edgesDB
	runs     *runsDB
}

// Open creates the database file if missing and connects, without running
// migrations.
func Open(ctx context.Context, log *zap.Logger, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, ErrDatabase.Wrap(err)
	}

	db, err := tagsql.Open(ctx, "sqlite3", "file:"+path+"?_journal=WAL&_busy_timeout=10000&_foreign_keys=on")
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	dbutil.Configure(db, "shadow", mon)

	core := &DB{
		log:      log,
		location: path,
		db:       db,
	}
	core.accounts = &accountsDB{db: db}
	core.edges = &edgesDB{db: db}
	core.runs = &runsDB{db: db}
	return core, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return ErrDatabase.Wrap(db.db.Close())
}

// Location returns the database file path.
func (db *DB) Location() string { return db.location }

// UnderlyingTagSQL returns the raw database handle.
func (db *DB) UnderlyingTagSQL() tagsql.DB { return db.db }

// Accounts returns the account store.
func (db *DB) Accounts() shadow.Accounts { return db.accounts }

// Edges returns the edge store.
func (db *DB) Edges() shadow.Edges { return db.edges }

// Runs returns the run metrics store.
func (db *DB) Runs() runstats.DB { return db.runs }

// MigrateToLatest creates any missing tables and indexes.
func (db *DB) MigrateToLatest(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return ErrDatabase.Wrap(db.Migration().Run(ctx, db.log.Named("migration")))
}

// CheckVersion ensures the database schema version matches this binary.
func (db *DB) CheckVersion(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return ErrDatabase.Wrap(db.Migration().ValidateVersions(ctx, db.log))
}

// Migration returns the schema migration steps for the shadow store.
func (db *DB) Migration() *migrate.Migration {
	return &migrate.Migration{
		Table: VersionTable,
		Steps: []*migrate.Step{
			{
				DB:          db.db,
				Description: "Initial setup",
				Version:     0,
				Action: migrate.SQL{
					`CREATE TABLE shadow_accounts (
						account_id        TEXT      NOT NULL,
						username          TEXT      NOT NULL,
						display_name      TEXT,
						bio               TEXT,
						location          TEXT,
						website           TEXT,
						profile_image_url TEXT,
						num_followers     INTEGER,
						num_following     INTEGER,
						num_tweets        INTEGER,
						num_likes         INTEGER,
						first_seen_at     TIMESTAMP NOT NULL,
						last_updated_at   TIMESTAMP NOT NULL,
						provenance        TEXT      NOT NULL,
						PRIMARY KEY ( account_id )
					)`,
					`CREATE INDEX idx_shadow_accounts_username ON shadow_accounts ( username COLLATE NOCASE )`,
					`CREATE TABLE shadow_edges (
						source_id     TEXT      NOT NULL,
						target_id     TEXT      NOT NULL,
						direction     TEXT      NOT NULL,
						list_type     TEXT      NOT NULL,
						seed_username TEXT      NOT NULL,
						captured_at   TIMESTAMP NOT NULL,
						metadata      TEXT,
						PRIMARY KEY ( source_id, target_id, direction, list_type ),
						FOREIGN KEY ( source_id ) REFERENCES shadow_accounts ( account_id ),
						FOREIGN KEY ( target_id ) REFERENCES shadow_accounts ( account_id )
					)`,
					`CREATE INDEX idx_shadow_edges_source ON shadow_edges ( source_id )`,
					`CREATE TABLE shadow_run_metrics (
						id              INTEGER   PRIMARY KEY AUTOINCREMENT NOT NULL,
						seed_id         TEXT      NOT NULL,
						list_type       TEXT      NOT NULL,
						started_at      TIMESTAMP NOT NULL,
						completed_at    TIMESTAMP NOT NULL,
						captured_count  INTEGER   NOT NULL DEFAULT 0,
						claimed_count   INTEGER   NOT NULL DEFAULT 0,
						coverage_ratio  REAL      NOT NULL DEFAULT 0,
						scroll_rounds   INTEGER   NOT NULL DEFAULT 0,
						stagnant_rounds INTEGER   NOT NULL DEFAULT 0,
						error_type      TEXT,
						error_details   TEXT,
						skipped         INTEGER   NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX idx_shadow_run_metrics_seed ON shadow_run_metrics ( seed_id, list_type, completed_at )`,
				},
			},
			{
				DB:          db.db,
				Description: "Add reverse edge lookup index",
				Version:     1,
				Action: migrate.SQL{
					`CREATE INDEX idx_shadow_edges_target ON shadow_edges ( target_id )`,
				},
			},
		},
	}
}

// wrapWriteError classifies write failures: constraint violations are
// integrity errors and must not be retried, everything else is a plain
// database error.
func wrapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return ErrIntegrity.Wrap(err)
	}
	return ErrDatabase.Wrap(err)
}
