// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/shadowgraph/shadowdb"
	"storj.io/shadowgraph/shadowdb/shadowdbtest"
)

func TestMigrateCheckPreflight(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		require.NoError(t, db.CheckVersion(ctx))
		require.NoError(t, db.Preflight(ctx))
	})
}

func TestMigrateIsRepeatable(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		// a second run is a no-op on an up-to-date database
		require.NoError(t, db.MigrateToLatest(ctx))
		require.NoError(t, db.CheckVersion(ctx))
	})
}

func TestCheckVersionUnmigrated(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)

	db, err := shadowdb.Open(ctx, log, ctx.File("unmigrated", "shadow.db"))
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	require.Error(t, db.CheckVersion(ctx))
}

func TestPreflightDetectsDrift(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		_, err := db.UnderlyingTagSQL().ExecContext(ctx, `CREATE TABLE rogue ( id int )`)
		require.NoError(t, err)

		err = db.Preflight(ctx)
		require.Error(t, err)
		require.True(t, shadowdb.ErrPreflight.Has(err))
	})
}

func TestPreflightDetectsMissingIndex(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		_, err := db.UnderlyingTagSQL().ExecContext(ctx, `DROP INDEX idx_shadow_edges_target`)
		require.NoError(t, err)

		err = db.Preflight(ctx)
		require.Error(t, err)
		require.True(t, shadowdb.ErrPreflight.Has(err))
	})
}
