// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package runstats records per-seed, per-list scrape run metrics and
// aggregates them into operational summaries.
package runstats

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"storj.io/shadowgraph/shadow"
)

// Error is the default error class for the runstats package.
var Error = errs.Class("runstats")

// ErrorType is the coarse classification of a run failure.
type ErrorType string

const (
	// ErrorNone marks a clean run.
	ErrorNone ErrorType = ""
	// ErrorNavigation is a page that never loaded.
	ErrorNavigation ErrorType = "navigation"
	// ErrorBlocked is a suspected anti-automation or rate-limit gate.
	ErrorBlocked ErrorType = "blocked"
	// ErrorSession is an expired or invalid browser session.
	ErrorSession ErrorType = "session"
	// ErrorDOMParse is a page that loaded but could not be extracted.
	ErrorDOMParse ErrorType = "dom_parse"
	// ErrorRateLimit is an API rate limit that retries did not clear.
	ErrorRateLimit ErrorType = "rate_limit"
	// ErrorTimeout is an operation that ran out of time.
	ErrorTimeout ErrorType = "timeout"
	// ErrorAPIHTTP is an API call rejected at the HTTP level.
	ErrorAPIHTTP ErrorType = "api_http"
	// ErrorAPIDecode is an API response that could not be decoded.
	ErrorAPIDecode ErrorType = "api_decode"
	// ErrorInterrupted is a run cut short by cancellation.
	ErrorInterrupted ErrorType = "interrupted"
	// ErrorUnknown is everything the classifier does not recognize.
	ErrorUnknown ErrorType = "unknown"
)

// Metrics is one row per (seed, list type, run).
type Metrics struct {
	SeedID         string
	ListType       shadow.ListType
	StartedAt      time.Time
	CompletedAt    time.Time
	CapturedCount  int64
	ClaimedCount   int64
	CoverageRatio  float64
	ScrollRounds   int
	StagnantRounds int
	ErrorType      ErrorType
	ErrorDetails   string
	Skipped        bool
}

// Validate checks the metrics invariants that the store refuses to persist.
func (metrics Metrics) Validate() error {
	if metrics.SeedID == "" {
		return Error.New("empty seed id")
	}
	if !metrics.ListType.Valid() {
		return Error.New("invalid list type %q", metrics.ListType)
	}
	if metrics.CapturedCount > 0 && metrics.ClaimedCount > 0 {
		if metrics.CoverageRatio < 0 || metrics.CoverageRatio > 1 {
			return Error.New("coverage ratio %v out of range", metrics.CoverageRatio)
		}
	}
	if metrics.Skipped && (metrics.CapturedCount != 0 || metrics.ErrorType != ErrorNone) {
		return Error.New("skipped run for seed %q carries work or an error", metrics.SeedID)
	}
	return nil
}

// Coverage computes captured/claimed clamped into [0, 1]. An unknown or
// zero claim yields zero coverage rather than a division error.
func Coverage(captured, claimed int64) float64 {
	if claimed <= 0 || captured <= 0 {
		return 0
	}
	ratio := float64(captured) / float64(claimed)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Summary aggregates run metrics over a time window.
type Summary struct {
	Runs           int64
	Seeds          int64
	SuccessRate    float64
	MeanCoverage   float64
	ErrorHistogram map[ErrorType]int64
}

// DB stores run metrics append-only.
//
// architecture: Database
type DB interface {
	// Record appends one metrics row.
	Record(ctx context.Context, metrics Metrics) error
	// LastCompleted returns the most recent non-skipped row for the seed
	// and list type, or nil when no such row exists.
	LastCompleted(ctx context.Context, seedID string, listType shadow.ListType) (*Metrics, error)
	// Summarize aggregates the non-skipped rows completed after since.
	Summarize(ctx context.Context, since time.Time) (Summary, error)
}
