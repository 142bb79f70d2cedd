// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/zeebo/errs"

	"storj.io/shadowgraph/private/tagsql"
)

// Preflight conducts a pre-flight check to ensure correct schema and
// minimal read+write functionality before a run touches the database.
func (db *DB) Preflight(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	// Preflight stage 1: test schema correctness
	schema, err := QuerySchema(ctx, db.db)
	if err != nil {
		return ErrPreflight.New("schema check failed: %v", err)
	}
	// we don't care about changes in the versions table
	delete(schema, VersionTable)
	// if a previous pre-flight failed, test_table might still exist
	delete(schema, "test_table")

	if diff := cmp.Diff(Schema(), schema); diff != "" {
		return ErrPreflight.New("expected schema does not match actual: %s", diff)
	}

	// Preflight stage 2: test basic read/write access by creating a table,
	// inserting a row, reading it back, and dropping the table.
	return db.preflightReadWrite(ctx)
}

func (db *DB) preflightReadWrite(ctx context.Context) (err error) {
	// drop test table in case the last preflight check failed before the
	// table could be dropped
	_, err = db.db.ExecContext(ctx, `DROP TABLE IF EXISTS test_table`)
	if err != nil {
		return ErrPreflight.New("failed drop if test_table: %w", err)
	}
	_, err = db.db.ExecContext(ctx, `CREATE TABLE test_table(id int NOT NULL, name varchar(30), PRIMARY KEY (id))`)
	if err != nil {
		return ErrPreflight.New("failed create test_table: %w", err)
	}

	var expectedID, actualID int
	var expectedName, actualName string
	expectedID = 1
	expectedName = "TEST"
	_, err = db.db.ExecContext(ctx, `INSERT INTO test_table VALUES ( ?, ? )`, expectedID, expectedName)
	if err != nil {
		return ErrPreflight.New("failed inserting test value: %w", err)
	}

	rows, err := db.db.QueryContext(ctx, `SELECT id, name FROM test_table`)
	if err != nil {
		return ErrPreflight.New("failed selecting test value: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Err(), rows.Close()) }()
	if !rows.Next() {
		return ErrPreflight.New("no rows in test_table")
	}
	err = rows.Scan(&actualID, &actualName)
	if err != nil {
		return ErrPreflight.New("failed scanning row: %w", err)
	}
	if expectedID != actualID || expectedName != actualName {
		return ErrPreflight.New("expected (%d, %q), actual (%d, %q)", expectedID, expectedName, actualID, actualName)
	}
	if rows.Next() {
		return ErrPreflight.New("more than one row in test_table")
	}

	_, err = db.db.ExecContext(ctx, `DROP TABLE test_table`)
	if err != nil {
		return ErrPreflight.New("failed drop test_table: %w", err)
	}
	return nil
}

// QuerySchema loads the names and definitions of all user tables and
// indexes. Definitions come back with whitespace collapsed so that
// formatting differences do not register as schema drift.
func QuerySchema(ctx context.Context, db tagsql.DB) (_ map[string]string, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.QueryContext(ctx, `
		SELECT name, sql FROM sqlite_master
		WHERE sql NOT NULL AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	schema := map[string]string{}
	for rows.Next() {
		var name, definition string
		if err := rows.Scan(&name, &definition); err != nil {
			return nil, errs.Wrap(err)
		}
		schema[name] = collapseWhitespace(definition)
	}
	return schema, errs.Wrap(rows.Err())
}

var whitespace = regexp.MustCompile(`\s+`)

func collapseWhitespace(definition string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(definition, " "))
}
