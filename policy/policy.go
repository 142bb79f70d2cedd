// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package policy decides, per seed and list type, whether a new scrape is
// warranted based on the last run's metrics and the current claimed counts.
package policy

import (
	"time"

	"storj.io/shadowgraph/runstats"
	"storj.io/shadowgraph/shadow"
)

// Config tunes the refresh decision.
type Config struct {
	MaxAgeDays          int      `help:"refresh a list when its last run is older than this many days" default:"180"`
	DeltaThresholdPct   float64  `help:"refresh a list when its claimed count changed by more than this percent" default:"50"`
	RequireConfirmation bool     `help:"ask for confirmation before scraping each seed" default:"false"`
	ListTypes           []string `help:"list types to collect" default:"following,followers,followers_you_follow"`
}

// ParsedListTypes returns the configured list types in collection order.
func (config Config) ParsedListTypes() ([]shadow.ListType, error) {
	if len(config.ListTypes) == 0 {
		return append([]shadow.ListType{}, shadow.DefaultListTypes...), nil
	}
	return shadow.ParseListTypes(config.ListTypes)
}

// Decision reasons. The reason strings are recorded in run metrics and
// must stay stable.
const (
	ReasonNeverScraped = "never scraped"
	ReasonStale        = "stale"
	ReasonDelta        = "delta exceeded"
	ReasonFresh        = "fresh, within delta"
	ReasonDeclined     = "declined"
)

// Decision is the verdict for one list type of one seed.
type Decision struct {
	ListType shadow.ListType
	Refresh  bool
	Reason   string
}

// Evaluate decides whether one list of a seed needs a refresh. claimed is
// the list's current advertised count from a fresh profile fetch, nil when
// unknown. last is the most recent non-skipped run for the list, nil when
// it was never scraped.
//
// Evaluate is pure: it performs no I/O and reads no clocks; the caller
// passes now.
func Evaluate(now time.Time, listType shadow.ListType, claimed *int64, last *runstats.Metrics, config Config) Decision {
	decision := Decision{ListType: listType}

	switch {
	case last == nil:
		decision.Refresh = true
		decision.Reason = ReasonNeverScraped
	case now.Sub(last.CompletedAt) > time.Duration(config.MaxAgeDays)*24*time.Hour:
		decision.Refresh = true
		decision.Reason = ReasonStale
	case claimed != nil && deltaPct(*claimed, last.ClaimedCount) > config.DeltaThresholdPct:
		decision.Refresh = true
		decision.Reason = ReasonDelta
	default:
		decision.Reason = ReasonFresh
	}

	return decision
}

// EvaluateAll evaluates every list type in order.
func EvaluateAll(now time.Time, listTypes []shadow.ListType, claimed map[shadow.ListType]*int64, last map[shadow.ListType]*runstats.Metrics, config Config) []Decision {
	decisions := make([]Decision, 0, len(listTypes))
	for _, listType := range listTypes {
		decisions = append(decisions, Evaluate(now, listType, claimed[listType], last[listType], config))
	}
	return decisions
}

// deltaPct is the relative change between the last claimed count and the
// current one, in percent. The max(last, 1) base keeps an empty history
// from dividing by zero.
func deltaPct(current, last int64) float64 {
	base := last
	if base < 1 {
		base = 1
	}
	diff := current - last
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(base) * 100
}
