// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadow

import "context"

// Accounts stores shadow accounts with merge-upsert semantics.
//
// architecture: Database
type Accounts interface {
	// Upsert inserts the account or merges it into the existing row.
	// On merge, null fields never overwrite existing values, first_seen_at
	// is preserved and last_updated_at moves forward. It returns the
	// post-merge account.
	Upsert(ctx context.Context, account Account) (Account, error)
	// Get returns the account with the given id, or ErrAccountNotFound.
	Get(ctx context.Context, accountID string) (Account, error)
	// ResolveUsername returns the id of the most recently updated account
	// with the given username, matched case-insensitively, or
	// ErrAccountNotFound.
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// Edges stores directional follow edges between shadow accounts. Both
// endpoints must exist as accounts before an edge is written.
//
// architecture: Database
type Edges interface {
	// Upsert inserts the edge or refreshes captured_at and metadata of the
	// existing one. Edges are never deleted.
	Upsert(ctx context.Context, edge Edge) error
	// ForSeed returns the seed's edges observed in the given direction,
	// newest capture first.
	ForSeed(ctx context.Context, seedID string, direction Direction) ([]Edge, error)
	// Summary aggregates the seed's edge counts per list type.
	Summary(ctx context.Context, seedID string) (EdgeSummary, error)
}
