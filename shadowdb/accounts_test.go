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

func ptr[T any](v T) *T { return &v }

func TestAccountsUpsertNew(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		account := shadow.Account{
			AccountID:    "1001",
			Username:     "naval",
			DisplayName:  ptr("Naval"),
			Bio:          ptr("angel"),
			NumFollowers: ptr[int64](1_900_000),
			Provenance:   shadow.ProvenanceScrape,
		}

		stored, err := db.Accounts().Upsert(ctx, account)
		require.NoError(t, err)
		require.Equal(t, "1001", stored.AccountID)
		require.Equal(t, "naval", stored.Username)
		require.Equal(t, ptr("Naval"), stored.DisplayName)
		require.Equal(t, ptr("angel"), stored.Bio)
		require.Nil(t, stored.Location)
		require.Equal(t, ptr[int64](1_900_000), stored.NumFollowers)
		require.Nil(t, stored.NumFollowing)
		require.Equal(t, shadow.ProvenanceScrape, stored.Provenance)
		require.False(t, stored.FirstSeenAt.IsZero())
		require.False(t, stored.LastUpdatedAt.IsZero())

		got, err := db.Accounts().Get(ctx, "1001")
		require.NoError(t, err)
		require.Equal(t, stored, got)
	})
}

func TestAccountsUpsertMerge(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		scraped := shadow.Account{
			AccountID:   "2002",
			Username:    "patio11",
			DisplayName: ptr("Patrick"),
			Bio:         ptr("writes about money"),
			Provenance:  shadow.ProvenanceScrape,
		}
		first, err := db.Accounts().Upsert(ctx, scraped)
		require.NoError(t, err)

		backfilled := shadow.Account{
			AccountID:    "2002",
			Username:     "patio11",
			DisplayName:  ptr("Patrick McKenzie"),
			Location:     ptr("Tokyo"),
			NumFollowers: ptr[int64](180_000),
			NumFollowing: ptr[int64](1_200),
			Provenance:   shadow.ProvenanceAPI,
		}
		merged, err := db.Accounts().Upsert(ctx, backfilled)
		require.NoError(t, err)

		// non-null fields win, null fields never erase stored values
		require.Equal(t, ptr("Patrick McKenzie"), merged.DisplayName)
		require.Equal(t, ptr("writes about money"), merged.Bio)
		require.Equal(t, ptr("Tokyo"), merged.Location)
		require.Equal(t, ptr[int64](180_000), merged.NumFollowers)
		require.Equal(t, ptr[int64](1_200), merged.NumFollowing)

		require.Equal(t, shadow.ProvenanceMerged, merged.Provenance)
		require.True(t, merged.FirstSeenAt.Equal(first.FirstSeenAt))
		require.False(t, merged.LastUpdatedAt.Before(first.LastUpdatedAt))
	})
}

func TestAccountsUpsertIdempotent(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		account := shadow.Account{
			AccountID:  "3003",
			Username:   "visakanv",
			Bio:        ptr("marathon tweeter"),
			Provenance: shadow.ProvenanceScrape,
		}

		first, err := db.Accounts().Upsert(ctx, account)
		require.NoError(t, err)
		second, err := db.Accounts().Upsert(ctx, account)
		require.NoError(t, err)

		// replaying the same observation changes nothing but the clock
		require.Equal(t, first.Username, second.Username)
		require.Equal(t, first.Bio, second.Bio)
		require.Equal(t, first.Provenance, second.Provenance)
		require.True(t, second.FirstSeenAt.Equal(first.FirstSeenAt))
		require.False(t, second.LastUpdatedAt.Before(first.LastUpdatedAt))
	})
}

func TestAccountsProvenanceStaysMerged(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		account := shadow.Account{AccountID: "4004", Username: "pmarca", Provenance: shadow.ProvenanceScrape}
		_, err := db.Accounts().Upsert(ctx, account)
		require.NoError(t, err)

		account.Provenance = shadow.ProvenanceAPI
		merged, err := db.Accounts().Upsert(ctx, account)
		require.NoError(t, err)
		require.Equal(t, shadow.ProvenanceMerged, merged.Provenance)

		merged, err = db.Accounts().Upsert(ctx, account)
		require.NoError(t, err)
		require.Equal(t, shadow.ProvenanceMerged, merged.Provenance)
	})
}

func TestAccountsUsernameChange(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		_, err := db.Accounts().Upsert(ctx, shadow.Account{
			AccountID: "5005", Username: "oldhandle", Provenance: shadow.ProvenanceScrape,
		})
		require.NoError(t, err)

		renamed, err := db.Accounts().Upsert(ctx, shadow.Account{
			AccountID: "5005", Username: "newhandle", Provenance: shadow.ProvenanceScrape,
		})
		require.NoError(t, err)
		require.Equal(t, "newhandle", renamed.Username)

		accountID, err := db.Accounts().ResolveUsername(ctx, "newhandle")
		require.NoError(t, err)
		require.Equal(t, "5005", accountID)
	})
}

func TestAccountsGetNotFound(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		_, err := db.Accounts().Get(ctx, "missing")
		require.Error(t, err)
		require.True(t, shadow.ErrAccountNotFound.Has(err))
	})
}

func TestAccountsResolveUsername(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		stored, err := db.Accounts().Upsert(ctx, shadow.Account{
			AccountID: "6006", Username: "NavalBot", Provenance: shadow.ProvenanceScrape,
		})
		require.NoError(t, err)
		// lookup is case-insensitive, storage keeps the original case
		require.Equal(t, "NavalBot", stored.Username)

		accountID, err := db.Accounts().ResolveUsername(ctx, "navalbot")
		require.NoError(t, err)
		require.Equal(t, "6006", accountID)

		accountID, err = db.Accounts().ResolveUsername(ctx, "NAVALBOT")
		require.NoError(t, err)
		require.Equal(t, "6006", accountID)

		_, err = db.Accounts().ResolveUsername(ctx, "nobody")
		require.Error(t, err)
		require.True(t, shadow.ErrAccountNotFound.Has(err))
	})
}

func TestAccountsResolveUsernamePrefersRecent(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		_, err := db.Accounts().Upsert(ctx, shadow.Account{
			AccountID: "7007", Username: "swapped", Provenance: shadow.ProvenanceScrape,
		})
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		_, err = db.Accounts().Upsert(ctx, shadow.Account{
			AccountID: "8008", Username: "swapped", Provenance: shadow.ProvenanceScrape,
		})
		require.NoError(t, err)

		accountID, err := db.Accounts().ResolveUsername(ctx, "swapped")
		require.NoError(t, err)
		require.Equal(t, "8008", accountID)
	})
}

func TestAccountsUpsertRejectsInvalid(t *testing.T) {
	shadowdbtest.Run(t, func(ctx *testcontext.Context, t *testing.T, db *shadowdb.DB) {
		_, err := db.Accounts().Upsert(ctx, shadow.Account{
			AccountID: "9009", Username: "", Provenance: shadow.ProvenanceScrape,
		})
		require.Error(t, err)
		require.True(t, shadowdb.ErrIntegrity.Has(err))

		_, err = db.Accounts().Upsert(ctx, shadow.Account{
			AccountID:    "9009",
			Username:     "negative",
			NumFollowers: ptr[int64](-1),
			Provenance:   shadow.ProvenanceScrape,
		})
		require.Error(t, err)
		require.True(t, shadowdb.ErrIntegrity.Has(err))

		_, err = db.Accounts().Get(ctx, "9009")
		require.True(t, shadow.ErrAccountNotFound.Has(err))
	})
}
