// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/shadowgraph/shadow"
	"storj.io/shadowgraph/shadowdb"
	"storj.io/shadowgraph/shadowdb/shadowdbtest"
)

func upsertAccount(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB, accountID, username string) {
	_, err := db.Accounts().Upsert(ctx, shadow.Account{
		AccountID:  accountID,
		Username:   username,
		Provenance: shadow.ProvenanceScrape,
	})
	require.NoError(t, err)
}

func TestEdgesUpsert(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		upsertAccount(ctx, t, db, "seed", "seed_user")
		upsertAccount(ctx, t, db, "target", "target_user")

		captured := time.Date(2025, 5, 12, 10, 0, 0, 0, time.UTC)
		err := db.Edges().Upsert(ctx, shadow.Edge{
			SourceID:     "seed",
			TargetID:     "target",
			Direction:    shadow.DirectionOutbound,
			ListType:     shadow.ListFollowing,
			SeedUsername: "seed_user",
			CapturedAt:   captured,
			Metadata:     map[string]string{"position": "3"},
		})
		require.NoError(t, err)

		edges, err := db.Edges().ForSeed(ctx, "seed", shadow.DirectionOutbound)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		require.Equal(t, "seed", edges[0].SourceID)
		require.Equal(t, "target", edges[0].TargetID)
		require.Equal(t, shadow.ListFollowing, edges[0].ListType)
		require.Equal(t, "seed_user", edges[0].SeedUsername)
		require.True(t, edges[0].CapturedAt.Equal(captured))
		require.Equal(t, map[string]string{"position": "3"}, edges[0].Metadata)
	})
}

func TestEdgesRequireBothEndpoints(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		upsertAccount(ctx, t, db, "seed", "seed_user")

		err := db.Edges().Upsert(ctx, shadow.Edge{
			SourceID:     "seed",
			TargetID:     "ghost",
			Direction:    shadow.DirectionOutbound,
			ListType:     shadow.ListFollowing,
			SeedUsername: "seed_user",
		})
		require.Error(t, err)
		require.True(t, shadowdb.ErrIntegrity.Has(err))

		edges, err := db.Edges().ForSeed(ctx, "seed", shadow.DirectionOutbound)
		require.NoError(t, err)
		require.Empty(t, edges)
	})
}

func TestEdgesUpsertIdempotent(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		upsertAccount(ctx, t, db, "seed", "seed_user")
		upsertAccount(ctx, t, db, "target", "target_user")

		edge := shadow.Edge{
			SourceID:     "seed",
			TargetID:     "target",
			Direction:    shadow.DirectionOutbound,
			ListType:     shadow.ListFollowing,
			SeedUsername: "seed_user",
			CapturedAt:   time.Date(2025, 5, 12, 10, 0, 0, 0, time.UTC),
			Metadata:     map[string]string{"position": "1"},
		}
		require.NoError(t, db.Edges().Upsert(ctx, edge))

		// re-observing the same edge refreshes the capture time and keeps
		// earlier metadata when the new observation carries none
		edge.CapturedAt = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
		edge.Metadata = nil
		require.NoError(t, db.Edges().Upsert(ctx, edge))

		edges, err := db.Edges().ForSeed(ctx, "seed", shadow.DirectionOutbound)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		require.True(t, edges[0].CapturedAt.Equal(edge.CapturedAt))
		require.Equal(t, map[string]string{"position": "1"}, edges[0].Metadata)
	})
}

func TestEdgesForSeedDirections(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		upsertAccount(ctx, t, db, "seed", "seed_user")
		upsertAccount(ctx, t, db, "t1", "first")
		upsertAccount(ctx, t, db, "t2", "second")

		older := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		newer := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, db.Edges().Upsert(ctx, shadow.Edge{
			SourceID: "seed", TargetID: "t1",
			Direction: shadow.DirectionOutbound, ListType: shadow.ListFollowing,
			SeedUsername: "seed_user", CapturedAt: older,
		}))
		require.NoError(t, db.Edges().Upsert(ctx, shadow.Edge{
			SourceID: "seed", TargetID: "t2",
			Direction: shadow.DirectionOutbound, ListType: shadow.ListFollowing,
			SeedUsername: "seed_user", CapturedAt: newer,
		}))
		require.NoError(t, db.Edges().Upsert(ctx, shadow.Edge{
			SourceID: "t2", TargetID: "seed",
			Direction: shadow.DirectionInbound, ListType: shadow.ListFollowers,
			SeedUsername: "seed_user", CapturedAt: newer,
		}))

		outbound, err := db.Edges().ForSeed(ctx, "seed", shadow.DirectionOutbound)
		require.NoError(t, err)
		require.Len(t, outbound, 2)
		// newest capture first
		require.Equal(t, "t2", outbound[0].TargetID)
		require.Equal(t, "t1", outbound[1].TargetID)

		inbound, err := db.Edges().ForSeed(ctx, "seed", shadow.DirectionInbound)
		require.NoError(t, err)
		require.Len(t, inbound, 1)
		require.Equal(t, "t2", inbound[0].SourceID)
	})
}

func TestEdgesSummary(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		upsertAccount(ctx, t, db, "seed", "seed_user")
		upsertAccount(ctx, t, db, "a", "alice")
		upsertAccount(ctx, t, db, "b", "bob")
		upsertAccount(ctx, t, db, "c", "carol")

		for _, edge := range []shadow.Edge{
			{SourceID: "seed", TargetID: "a", Direction: shadow.DirectionOutbound, ListType: shadow.ListFollowing, SeedUsername: "seed_user"},
			{SourceID: "seed", TargetID: "b", Direction: shadow.DirectionOutbound, ListType: shadow.ListFollowing, SeedUsername: "seed_user"},
			{SourceID: "a", TargetID: "seed", Direction: shadow.DirectionInbound, ListType: shadow.ListFollowers, SeedUsername: "seed_user"},
			{SourceID: "c", TargetID: "seed", Direction: shadow.DirectionInbound, ListType: shadow.ListFollowersYouFollow, SeedUsername: "seed_user"},
		} {
			require.NoError(t, db.Edges().Upsert(ctx, edge))
		}

		summary, err := db.Edges().Summary(ctx, "seed")
		require.NoError(t, err)
		require.Equal(t, shadow.EdgeSummary{
			FollowingCount:  2,
			FollowersCount:  1,
			ReciprocalCount: 1,
		}, summary)

		// somebody else's edges stay out of the seed's summary
		empty, err := db.Edges().Summary(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, shadow.EdgeSummary{}, empty)
	})
}

func TestEdgesUpsertRejectsInvalid(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		upsertAccount(ctx, t, db, "seed", "seed_user")

		err := db.Edges().Upsert(ctx, shadow.Edge{
			SourceID:  "seed",
			TargetID:  "seed",
			Direction: shadow.DirectionOutbound,
			ListType:  shadow.ListFollowing,
		})
		require.Error(t, err)
		require.True(t, shadowdb.ErrIntegrity.Has(err))
	})
}
