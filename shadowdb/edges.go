// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/zeebo/errs"

	"storj.io/shadowgraph/private/dbutil/txutil"
	"storj.io/shadowgraph/private/tagsql"
	"storj.io/shadowgraph/shadow"
)

// edgesDB implements shadow.Edges.
type edgesDB struct {
	db tagsql.DB
}

// Upsert inserts the edge or refreshes captured_at and metadata of the
// existing row. Edges are never deleted; re-observations only move the
// capture time forward.
func (edges *edgesDB) Upsert(ctx context.Context, edge shadow.Edge) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := edge.Validate(); err != nil {
		return ErrIntegrity.Wrap(err)
	}

	captured := edge.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	captured = captured.UTC()

	var metadata *string
	if len(edge.Metadata) > 0 {
		encoded, err := json.Marshal(edge.Metadata)
		if err != nil {
			return ErrIntegrity.Wrap(err)
		}
		text := string(encoded)
		metadata = &text
	}

	err = txutil.WithTx(ctx, edges.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO shadow_edges (
				source_id, target_id, direction, list_type, seed_username, captured_at, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT ( source_id, target_id, direction, list_type ) DO UPDATE SET
				captured_at = excluded.captured_at,
				metadata    = COALESCE(excluded.metadata, metadata)`,
			edge.SourceID, edge.TargetID, string(edge.Direction), string(edge.ListType),
			edge.SeedUsername, captured, metadata,
		)
		return err
	})
	return wrapWriteError(err)
}

// ForSeed returns the seed's edges observed in the given direction, newest
// capture first. Outbound edges hang off the seed as source, inbound ones
// as target.
func (edges *edgesDB) ForSeed(ctx context.Context, seedID string, direction shadow.Direction) (_ []shadow.Edge, err error) {
	defer mon.Task()(&ctx)(&err)

	if !direction.Valid() {
		return nil, ErrDatabase.New("invalid direction %q", direction)
	}
	seedColumn := `source_id`
	if direction == shadow.DirectionInbound {
		seedColumn = `target_id`
	}

	rows, err := edges.db.QueryContext(ctx, `
		SELECT source_id, target_id, direction, list_type, seed_username, captured_at, metadata
		FROM shadow_edges
		WHERE `+seedColumn+` = ? AND direction = ?
		ORDER BY captured_at DESC`,
		seedID, string(direction),
	)
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var result []shadow.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, ErrDatabase.Wrap(err)
		}
		result = append(result, edge)
	}
	return result, ErrDatabase.Wrap(rows.Err())
}

// Summary aggregates the seed's edge counts per list type.
func (edges *edgesDB) Summary(ctx context.Context, seedID string) (_ shadow.EdgeSummary, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := edges.db.QueryContext(ctx, `
		SELECT list_type, COUNT(*)
		FROM shadow_edges
		WHERE (source_id = ? AND direction = ?) OR (target_id = ? AND direction = ?)
		GROUP BY list_type`,
		seedID, string(shadow.DirectionOutbound), seedID, string(shadow.DirectionInbound),
	)
	if err != nil {
		return shadow.EdgeSummary{}, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var summary shadow.EdgeSummary
	for rows.Next() {
		var listType string
		var count int64
		if err := rows.Scan(&listType, &count); err != nil {
			return shadow.EdgeSummary{}, ErrDatabase.Wrap(err)
		}
		switch shadow.ListType(listType) {
		case shadow.ListFollowing:
			summary.FollowingCount = count
		case shadow.ListFollowers:
			summary.FollowersCount = count
		case shadow.ListFollowersYouFollow:
			summary.ReciprocalCount = count
		}
	}
	return summary, ErrDatabase.Wrap(rows.Err())
}

func scanEdge(rows *sql.Rows) (shadow.Edge, error) {
	var edge shadow.Edge
	var direction, listType string
	var metadata sql.NullString

	err := rows.Scan(&edge.SourceID, &edge.TargetID, &direction, &listType,
		&edge.SeedUsername, &edge.CapturedAt, &metadata)
	if err != nil {
		return shadow.Edge{}, err
	}

	edge.Direction = shadow.Direction(direction)
	edge.ListType = shadow.ListType(listType)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &edge.Metadata); err != nil {
			return shadow.Edge{}, err
		}
	}
	return edge, nil
}
