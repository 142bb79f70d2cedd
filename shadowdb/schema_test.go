// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/shadowgraph/shadowdb"
	"storj.io/shadowgraph/shadowdb/shadowdbtest"
)

// The Schema snapshot must stay in sync with what the migrations actually
// produce, otherwise every preflight check fails.
func TestSchemaMatchesMigration(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		actual, err := shadowdb.QuerySchema(ctx, db.UnderlyingTagSQL())
		require.NoError(t, err)
		delete(actual, shadowdb.VersionTable)

		if diff := cmp.Diff(shadowdb.Schema(), actual); diff != "" {
			t.Fatalf("schema mismatch (-expected +actual):\n%s", diff)
		}
	})
}
