// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package runstats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"storj.io/shadowgraph/runstats"
	"storj.io/shadowgraph/shadow"
)

func TestMetricsValidate(t *testing.T) {
	now := time.Now()
	metrics := runstats.Metrics{
		SeedID:        "1001",
		ListType:      shadow.ListFollowing,
		StartedAt:     now.Add(-time.Minute),
		CompletedAt:   now,
		CapturedCount: 48,
		ClaimedCount:  50,
		CoverageRatio: 0.96,
	}
	require.NoError(t, metrics.Validate())

	missingSeed := metrics
	missingSeed.SeedID = ""
	require.Error(t, missingSeed.Validate())

	badList := metrics
	badList.ListType = "friends"
	require.Error(t, badList.Validate())

	badCoverage := metrics
	badCoverage.CoverageRatio = 1.5
	require.Error(t, badCoverage.Validate())

	skippedWithWork := metrics
	skippedWithWork.Skipped = true
	require.Error(t, skippedWithWork.Validate())

	skippedWithError := runstats.Metrics{
		SeedID:    "1001",
		ListType:  shadow.ListFollowing,
		Skipped:   true,
		ErrorType: runstats.ErrorNavigation,
	}
	require.Error(t, skippedWithError.Validate())

	skipped := runstats.Metrics{
		SeedID:   "1001",
		ListType: shadow.ListFollowing,
		Skipped:  true,
	}
	require.NoError(t, skipped.Validate())
}

func TestCoverage(t *testing.T) {
	require.Equal(t, 0.96, runstats.Coverage(48, 50))
	require.Equal(t, float64(0), runstats.Coverage(48, 0))
	require.Equal(t, float64(0), runstats.Coverage(0, 50))
	require.Equal(t, float64(1), runstats.Coverage(70, 50))
	require.Equal(t, float64(0), runstats.Coverage(-1, 50))
}
