// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package shadow defines the domain model of the shadow graph: accounts
// and directional follow edges captured by scraping or backfilled through
// the platform API, distinct from the reference archive.
package shadow

import (
	"time"

	"github.com/zeebo/errs"
)

// Error is the default error class for the shadow package.
var Error = errs.Class("shadow")

// ErrAccountNotFound is returned when an account lookup finds nothing.
var ErrAccountNotFound = errs.Class("account not found")

// Provenance records which pipeline produced an account's fields.
type Provenance string

const (
	// ProvenanceScrape marks fields extracted from rendered pages.
	ProvenanceScrape Provenance = "scrape"
	// ProvenanceAPI marks fields fetched from the platform API.
	ProvenanceAPI Provenance = "api"
	// ProvenanceMerged marks rows that combine both sources.
	ProvenanceMerged Provenance = "merged"
)

// Valid reports whether the provenance is a known value.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceScrape, ProvenanceAPI, ProvenanceMerged:
		return true
	}
	return false
}

// Direction tells from which perspective a follow edge was observed.
// The edge itself always means "source follows target".
type Direction string

const (
	// DirectionOutbound is an edge observed from the source's following list.
	DirectionOutbound Direction = "outbound"
	// DirectionInbound is an edge observed from the target's follower list.
	DirectionInbound Direction = "inbound"
)

// Valid reports whether the direction is a known value.
func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// ListType names the platform list a capture came from.
type ListType string

const (
	// ListFollowing is the accounts a profile follows.
	ListFollowing ListType = "following"
	// ListFollowers is the accounts following a profile.
	ListFollowers ListType = "followers"
	// ListFollowersYouFollow is the platform's intersection view of
	// followers that the session identity also follows.
	ListFollowersYouFollow ListType = "followers_you_follow"
)

// DefaultListTypes is the standard collection order for a seed.
var DefaultListTypes = []ListType{ListFollowing, ListFollowers, ListFollowersYouFollow}

// Valid reports whether the list type is a known value.
func (lt ListType) Valid() bool {
	switch lt {
	case ListFollowing, ListFollowers, ListFollowersYouFollow:
		return true
	}
	return false
}

// EdgeDirection returns the direction edges from this list carry.
// Follower style lists are observed from the seed's perspective as the
// target of the follow.
func (lt ListType) EdgeDirection() Direction {
	if lt == ListFollowing {
		return DirectionOutbound
	}
	return DirectionInbound
}

// ParseListTypes converts a list of names into list types, rejecting
// unknown names.
func ParseListTypes(names []string) ([]ListType, error) {
	types := make([]ListType, 0, len(names))
	for _, name := range names {
		lt := ListType(name)
		if !lt.Valid() {
			return nil, Error.New("unknown list type %q", name)
		}
		types = append(types, lt)
	}
	return types, nil
}

// Account is a profile on the external platform. AccountID is the
// platform's stable opaque identifier and is authoritative; Username is
// the mutable handle. Pointer fields distinguish unknown from empty, which
// the merge-upsert rule depends on.
type Account struct {
	AccountID       string
	Username        string
	DisplayName     *string
	Bio             *string
	Location        *string
	Website         *string
	ProfileImageURL *string
	NumFollowers    *int64
	NumFollowing    *int64
	NumTweets       *int64
	NumLikes        *int64
	FirstSeenAt     time.Time
	LastUpdatedAt   time.Time
	Provenance      Provenance
}

// Validate checks the account invariants that the store refuses to persist.
func (account Account) Validate() error {
	if account.AccountID == "" {
		return Error.New("empty account id")
	}
	if account.Username == "" {
		return Error.New("empty username for account %q", account.AccountID)
	}
	if !account.Provenance.Valid() {
		return Error.New("invalid provenance %q for account %q", account.Provenance, account.AccountID)
	}
	for _, count := range []struct {
		name  string
		value *int64
	}{
		{"num_followers", account.NumFollowers},
		{"num_following", account.NumFollowing},
		{"num_tweets", account.NumTweets},
		{"num_likes", account.NumLikes},
	} {
		if count.value != nil && *count.value < 0 {
			return Error.New("negative %s for account %q", count.name, account.AccountID)
		}
	}
	return nil
}

// Edge is a directional follow relationship: source follows target.
type Edge struct {
	SourceID     string
	TargetID     string
	Direction    Direction
	ListType     ListType
	SeedUsername string
	CapturedAt   time.Time
	Metadata     map[string]string
}

// Validate checks the edge invariants that the store refuses to persist.
func (edge Edge) Validate() error {
	if edge.SourceID == "" || edge.TargetID == "" {
		return Error.New("edge endpoint missing: %q -> %q", edge.SourceID, edge.TargetID)
	}
	if !edge.Direction.Valid() {
		return Error.New("invalid direction %q", edge.Direction)
	}
	if !edge.ListType.Valid() {
		return Error.New("invalid list type %q", edge.ListType)
	}
	if edge.SeedUsername == "" {
		return Error.New("edge without seed username: %q -> %q", edge.SourceID, edge.TargetID)
	}
	return nil
}

// EdgeSummary aggregates a seed's edges per list type.
type EdgeSummary struct {
	FollowingCount  int64
	FollowersCount  int64
	ReciprocalCount int64
}
