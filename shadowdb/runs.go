// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeebo/errs"

	"storj.io/shadowgraph/private/tagsql"
	"storj.io/shadowgraph/runstats"
	"storj.io/shadowgraph/shadow"
)

// runsDB implements runstats.DB.
type runsDB struct {
	db tagsql.DB
}

// Record appends one run metrics row. Rows are append-only; there is no
// update path.
func (runs *runsDB) Record(ctx context.Context, metrics runstats.Metrics) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := metrics.Validate(); err != nil {
		return ErrIntegrity.Wrap(err)
	}

	var errorType *string
	if metrics.ErrorType != runstats.ErrorNone {
		text := string(metrics.ErrorType)
		errorType = &text
	}
	var errorDetails *string
	if metrics.ErrorDetails != "" {
		errorDetails = &metrics.ErrorDetails
	}

	_, err = runs.db.ExecContext(ctx, `
		INSERT INTO shadow_run_metrics (
			seed_id, list_type, started_at, completed_at,
			captured_count, claimed_count, coverage_ratio,
			scroll_rounds, stagnant_rounds,
			error_type, error_details, skipped
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		metrics.SeedID, string(metrics.ListType),
		metrics.StartedAt.UTC(), metrics.CompletedAt.UTC(),
		metrics.CapturedCount, metrics.ClaimedCount, metrics.CoverageRatio,
		metrics.ScrollRounds, metrics.StagnantRounds,
		errorType, errorDetails, metrics.Skipped,
	)
	return wrapWriteError(err)
}

// LastCompleted returns the most recent non-skipped run for the seed and
// list type, or nil when the pair has never been worked.
func (runs *runsDB) LastCompleted(ctx context.Context, seedID string, listType shadow.ListType) (_ *runstats.Metrics, err error) {
	defer mon.Task()(&ctx)(&err)

	row := runs.db.QueryRowContext(ctx, `
		SELECT seed_id, list_type, started_at, completed_at,
			captured_count, claimed_count, coverage_ratio,
			scroll_rounds, stagnant_rounds,
			error_type, error_details, skipped
		FROM shadow_run_metrics
		WHERE seed_id = ? AND list_type = ? AND skipped = 0
		ORDER BY completed_at DESC, id DESC
		LIMIT 1`,
		seedID, string(listType),
	)

	metrics, err := scanMetrics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ErrDatabase.Wrap(err)
	}
	return &metrics, nil
}

// Summarize aggregates non-skipped runs completed at or after the cutoff.
func (runs *runsDB) Summarize(ctx context.Context, since time.Time) (_ runstats.Summary, err error) {
	defer mon.Task()(&ctx)(&err)

	summary := runstats.Summary{
		ErrorHistogram: map[runstats.ErrorType]int64{},
	}

	err = runs.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT seed_id),
			COALESCE(AVG(CASE WHEN error_type IS NULL THEN 1.0 ELSE 0.0 END), 0),
			COALESCE(AVG(CASE WHEN claimed_count > 0 THEN coverage_ratio END), 0)
		FROM shadow_run_metrics
		WHERE completed_at >= ? AND skipped = 0`,
		since.UTC(),
	).Scan(&summary.Runs, &summary.Seeds, &summary.SuccessRate, &summary.MeanCoverage)
	if err != nil {
		return runstats.Summary{}, ErrDatabase.Wrap(err)
	}

	rows, err := runs.db.QueryContext(ctx, `
		SELECT error_type, COUNT(*)
		FROM shadow_run_metrics
		WHERE completed_at >= ? AND skipped = 0 AND error_type IS NOT NULL
		GROUP BY error_type`,
		since.UTC(),
	)
	if err != nil {
		return runstats.Summary{}, ErrDatabase.Wrap(err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	for rows.Next() {
		var errorType string
		var count int64
		if err := rows.Scan(&errorType, &count); err != nil {
			return runstats.Summary{}, ErrDatabase.Wrap(err)
		}
		summary.ErrorHistogram[runstats.ErrorType(errorType)] = count
	}
	return summary, ErrDatabase.Wrap(rows.Err())
}

func scanMetrics(row rowScanner) (runstats.Metrics, error) {
	var metrics runstats.Metrics
	var listType string
	var errorType, errorDetails sql.NullString

	err := row.Scan(&metrics.SeedID, &listType,
		&metrics.StartedAt, &metrics.CompletedAt,
		&metrics.CapturedCount, &metrics.ClaimedCount, &metrics.CoverageRatio,
		&metrics.ScrollRounds, &metrics.StagnantRounds,
		&errorType, &errorDetails, &metrics.Skipped)
	if err != nil {
		return runstats.Metrics{}, err
	}

	metrics.ListType = shadow.ListType(listType)
	if errorType.Valid {
		metrics.ErrorType = runstats.ErrorType(errorType.String)
	}
	metrics.ErrorDetails = errorDetails.String
	return metrics, nil
}
