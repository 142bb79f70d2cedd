// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/shadowgraph/shadow"
)

func ptr[T any](v T) *T { return &v }

func TestAccountValidate(t *testing.T) {
	account := shadow.Account{
		AccountID:    "1001",
		Username:     "alice",
		Bio:          ptr("hello"),
		NumFollowers: ptr(int64(100)),
		Provenance:   shadow.ProvenanceScrape,
	}
	require.NoError(t, account.Validate())

	missingID := account
	missingID.AccountID = ""
	require.Error(t, missingID.Validate())

	missingUsername := account
	missingUsername.Username = ""
	require.Error(t, missingUsername.Validate())

	badProvenance := account
	badProvenance.Provenance = "guesswork"
	require.Error(t, badProvenance.Validate())

	negative := account
	negative.NumTweets = ptr(int64(-3))
	require.Error(t, negative.Validate())
}

func TestEdgeValidate(t *testing.T) {
	edge := shadow.Edge{
		SourceID:     "1001",
		TargetID:     "1002",
		Direction:    shadow.DirectionOutbound,
		ListType:     shadow.ListFollowing,
		SeedUsername: "alice",
	}
	require.NoError(t, edge.Validate())

	for _, broken := range []func(e shadow.Edge) shadow.Edge{
		func(e shadow.Edge) shadow.Edge { e.SourceID = ""; return e },
		func(e shadow.Edge) shadow.Edge { e.TargetID = ""; return e },
		func(e shadow.Edge) shadow.Edge { e.Direction = "sideways"; return e },
		func(e shadow.Edge) shadow.Edge { e.ListType = "enemies"; return e },
		func(e shadow.Edge) shadow.Edge { e.SeedUsername = ""; return e },
	} {
		require.Error(t, broken(edge).Validate())
	}
}

func TestListTypeEdgeDirection(t *testing.T) {
	require.Equal(t, shadow.DirectionOutbound, shadow.ListFollowing.EdgeDirection())
	require.Equal(t, shadow.DirectionInbound, shadow.ListFollowers.EdgeDirection())
	require.Equal(t, shadow.DirectionInbound, shadow.ListFollowersYouFollow.EdgeDirection())
}

func TestParseListTypes(t *testing.T) {
	types, err := shadow.ParseListTypes([]string{"following", "followers"})
	require.NoError(t, err)
	require.Equal(t, []shadow.ListType{shadow.ListFollowing, shadow.ListFollowers}, types)

	_, err = shadow.ParseListTypes([]string{"following", "rivals"})
	require.Error(t, err)
}
