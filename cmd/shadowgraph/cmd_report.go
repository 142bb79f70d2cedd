// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/process"
	"storj.io/shadowgraph/runstats"
	"storj.io/shadowgraph/shadow"
	"storj.io/shadowgraph/shadowdb"
)

// ReportConfig is the flag surface of the report command.
type ReportConfig struct {
	Database string        `help:"path to the shadow store database" default:"$CONFDIR/shadowgraph.db"`
	Since    time.Duration `help:"summarize runs completed within this window" default:"720h"`
	Center   string        `help:"also report the edge summary of this seed" default:""`
}

func cmdReport(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := shadowdb.Open(ctx, log.Named("db"), reportCfg.Database)
	if err != nil {
		return errs.New("opening shadow store: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, db.Close())
	}()
	if err := db.CheckVersion(ctx); err != nil {
		return errs.New("checking shadow store version: %+v", err)
	}

	// WAL mode allows concurrent readers, the two summaries do not have
	// to wait for each other.
	var (
		group       errgroup.Group
		summary     runstats.Summary
		centerEdges *shadow.EdgeSummary
	)
	group.Go(func() error {
		var err error
		summary, err = db.Runs().Summarize(ctx, time.Now().Add(-reportCfg.Since))
		return err
	})
	center := strings.TrimPrefix(strings.TrimSpace(reportCfg.Center), "@")
	if center != "" {
		group.Go(func() error {
			seedID, err := db.Accounts().ResolveUsername(ctx, center)
			if shadow.ErrAccountNotFound.Has(err) {
				return errs.New("center %q is not in the store", center)
			}
			if err != nil {
				return err
			}
			edges, err := db.Edges().Summary(ctx, seedID)
			if err != nil {
				return err
			}
			centerEdges = &edges
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	printSummary(reportCfg.Since, summary)
	if centerEdges != nil {
		printEdgeSummary(center, *centerEdges)
	}
	return nil
}

func printSummary(window time.Duration, summary runstats.Summary) {
	heading := color.New(color.FgGreen, color.Bold)
	_, _ = heading.Printf("\nShadow Graph Report ( last %s )\n\n", humanWindow(window))

	w := tabwriter.NewWriter(color.Output, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "Runs\t%s\n", whiteInt(summary.Runs))
	fmt.Fprintf(w, "Seeds\t%s\n", whiteInt(summary.Seeds))
	fmt.Fprintf(w, "Success Rate\t%s\n", colorRate(summary.SuccessRate))
	fmt.Fprintf(w, "Mean Coverage\t%s\n", color.YellowString("%.2f", summary.MeanCoverage))
	_ = w.Flush()

	if len(summary.ErrorHistogram) > 0 {
		_, _ = heading.Printf("\nErrors\n\n")
		w = tabwriter.NewWriter(color.Output, 0, 0, 1, ' ', 0)
		for _, errorType := range sortedErrorTypes(summary.ErrorHistogram) {
			fmt.Fprintf(w, "%s\t%s\n", errorType, color.RedString("%d", summary.ErrorHistogram[errorType]))
		}
		_ = w.Flush()
	}
}

func printEdgeSummary(center string, summary shadow.EdgeSummary) {
	heading := color.New(color.FgGreen, color.Bold)
	_, _ = heading.Printf("\nEdges of @%s\n\n", center)

	w := tabwriter.NewWriter(color.Output, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "Following\t%s\n", whiteInt(summary.FollowingCount))
	fmt.Fprintf(w, "Followers\t%s\n", whiteInt(summary.FollowersCount))
	fmt.Fprintf(w, "Reciprocal\t%s\n", whiteInt(summary.ReciprocalCount))
	_ = w.Flush()
}

func colorRate(rate float64) string {
	text := fmt.Sprintf("%.0f%%", rate*100)
	switch {
	case rate < 0.5:
		return color.RedString(text)
	case rate < 0.9:
		return color.YellowString(text)
	default:
		return color.GreenString(text)
	}
}

// sortedErrorTypes orders the histogram keys by count, most frequent
// first, ties alphabetically.
func sortedErrorTypes(histogram map[runstats.ErrorType]int64) []runstats.ErrorType {
	types := make([]runstats.ErrorType, 0, len(histogram))
	for errorType := range histogram {
		types = append(types, errorType)
	}
	sort.Slice(types, func(i, j int) bool {
		if histogram[types[i]] != histogram[types[j]] {
			return histogram[types[i]] > histogram[types[j]]
		}
		return types[i] < types[j]
	})
	return types
}

// humanWindow renders whole-day durations as days.
func humanWindow(window time.Duration) string {
	if window >= 24*time.Hour && window%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", window/(24*time.Hour))
	}
	return window.String()
}
