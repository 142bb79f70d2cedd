// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package shadowdbtest runs tests against a migrated shadow database.
package shadowdbtest

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/shadowgraph/shadowdb"
)

// Run opens a fresh database in a temporary directory, migrates it to the
// latest version and hands it to the test.
func Run(t *testing.T, test func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB)) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)

	db, err := shadowdb.Open(ctx, log, ctx.File("shadowdb", "shadow.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Check(db.Close)

	if err := db.MigrateToLatest(ctx); err != nil {
		t.Fatal(err)
	}

	test(ctx, t, db)
}
