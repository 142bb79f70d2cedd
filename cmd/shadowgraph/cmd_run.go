// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/process"
	"storj.io/shadowgraph/apiclient"
	"storj.io/shadowgraph/collector"
	"storj.io/shadowgraph/enrichment"
	"storj.io/shadowgraph/policy"
	"storj.io/shadowgraph/private/prompt"
	"storj.io/shadowgraph/shadow"
	"storj.io/shadowgraph/shadowdb"
)

// Exit codes of the run command. Scripts branch on these, keep them
// stable.
const (
	exitOK          = 0
	exitSeedsFailed = 1
	exitAborted     = 2
	exitBadConfig   = 3
)

// RunConfig is the flat flag surface of the run command.
type RunConfig struct {
	Database  string `help:"path to the shadow store database" default:"$CONFDIR/shadowgraph.db"`
	Center    string `help:"seed username to prioritize first" default:""`
	SeedsFile string `help:"file with one seed username per line" default:""`

	MaxScrolls           int           `help:"maximum scroll rounds per list" default:"6"`
	DelayMin             time.Duration `help:"minimum randomized scroll delay" default:"4s"`
	DelayMax             time.Duration `help:"maximum randomized scroll delay" default:"9s"`
	ScrollOffset         int           `help:"scroll offset per round in pixels" default:"1200"`
	NavigationTimeout    time.Duration `help:"hard timeout for one page navigation" default:"30s"`
	NoFollowersYouFollow bool          `help:"skip the followers-you-follow list" default:"false"`

	MaxAgeDays          int     `help:"policy: refresh when older than this many days" default:"180"`
	DeltaThresholdPct   float64 `help:"policy: refresh when the claimed count delta exceeds this percent" default:"50"`
	RequireConfirmation bool    `help:"policy: confirm each seed before scraping" default:"false"`
	AutoConfirmFirst    bool    `help:"auto-confirm the first seed" default:"false"`

	EnableAPIFallback bool          `help:"backfill missing profiles through the API" default:"false"`
	BearerToken       string        `help:"platform API bearer token" default:""`
	APIBaseURL        string        `help:"platform API base URL" default:"https://api.x.com"`
	APIRequestTimeout time.Duration `help:"hard timeout for one API request" default:"30s"`
	APIWindowLimit    int           `help:"max API requests per rate limit window" default:"15"`
	APIWindow         time.Duration `help:"API rate limit window" default:"15m"`
	APIStatePath      string        `help:"path to the persisted API rate limiter state" default:"$CONFDIR/ratelimit.json"`

	Cookies      string `help:"path to the captured session cookies file" default:""`
	ChromeBinary string `help:"custom chromium binary" default:""`
	BrowserURL   string `help:"platform web base URL" default:"https://x.com"`
	Headless     bool   `help:"run the browser headless" default:"true"`
	Quiet        bool   `help:"only print the final summary and errors" default:"false"`
}

func cmdRun(cmd *cobra.Command, args []string) error {
	code, err := runEnrichment(cmd)
	if code != exitOK {
		if err != nil {
			zap.L().Error("run did not complete", zap.Error(err))
		}
		_ = zap.L().Sync()
		os.Exit(code)
	}
	return err
}

// runEnrichment owns every resource of the run; deferred closes must
// settle before the caller turns the code into os.Exit.
func runEnrichment(cmd *cobra.Command) (_ int, err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	if err := validateRunConfig(runCfg); err != nil {
		return exitBadConfig, err
	}
	logFlagOverrides(log.Named("config"), cmd)
	seeds, err := resolveSeeds(runCfg)
	if err != nil {
		return exitBadConfig, err
	}

	db, err := shadowdb.Open(ctx, log.Named("db"), runCfg.Database)
	if err != nil {
		return exitSeedsFailed, errs.New("opening shadow store: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, db.Close())
	}()

	if err := db.MigrateToLatest(ctx); err != nil {
		return exitSeedsFailed, errs.New("migrating shadow store: %+v", err)
	}
	if err := db.CheckVersion(ctx); err != nil {
		return exitSeedsFailed, errs.New("checking shadow store version: %+v", err)
	}
	if err := db.Preflight(ctx); err != nil {
		return exitSeedsFailed, errs.New("shadow store preflight: %+v", err)
	}

	browser, err := collector.New(ctx, log.Named("collector"), collector.Config{
		CookiesPath:       runCfg.Cookies,
		ChromeBinary:      runCfg.ChromeBinary,
		Headless:          runCfg.Headless,
		BaseURL:           runCfg.BrowserURL,
		MaxScrollRounds:   runCfg.MaxScrolls,
		DelayMin:          runCfg.DelayMin,
		DelayMax:          runCfg.DelayMax,
		ScrollOffset:      runCfg.ScrollOffset,
		NavigationTimeout: runCfg.NavigationTimeout,
	})
	if err != nil {
		return exitSeedsFailed, errs.New("launching browser: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, browser.Close())
	}()

	var fetcher enrichment.ProfileFetcher
	if runCfg.EnableAPIFallback {
		api, apiErr := apiclient.New(log.Named("api"), apiclient.Config{
			BaseURL:        runCfg.APIBaseURL,
			BearerToken:    runCfg.BearerToken,
			RequestTimeout: runCfg.APIRequestTimeout,
			WindowLimit:    runCfg.APIWindowLimit,
			Window:         runCfg.APIWindow,
			StatePath:      runCfg.APIStatePath,
		})
		if apiErr != nil {
			return exitBadConfig, errs.New("building api client: %+v", apiErr)
		}
		defer func() {
			err = errs.Combine(err, api.Close())
		}()
		fetcher = api
	}

	listTypes := []shadow.ListType{shadow.ListFollowing, shadow.ListFollowers}
	if !runCfg.NoFollowersYouFollow {
		listTypes = append(listTypes, shadow.ListFollowersYouFollow)
	}

	coordinator := enrichment.NewCoordinator(log.Named("enrichment"), browser, fetcher,
		db.Accounts(), db.Edges(), db.Runs(),
		policy.Config{
			MaxAgeDays:          runCfg.MaxAgeDays,
			DeltaThresholdPct:   runCfg.DeltaThresholdPct,
			RequireConfirmation: runCfg.RequireConfirmation,
		},
		enrichment.Config{
			ListTypes:         listTypes,
			EnableAPIFallback: runCfg.EnableAPIFallback,
			AutoConfirmFirst:  runCfg.AutoConfirmFirst,
			Quiet:             runCfg.Quiet,
		},
		confirmSeed)

	report, runErr := coordinator.Run(ctx, seeds)
	if err := printReport(report); err != nil {
		return exitSeedsFailed, errs.Combine(runErr, err)
	}

	switch {
	case report.Aborted:
		return exitAborted, runErr
	case report.SeedsFailed > 0:
		return exitSeedsFailed, runErr
	default:
		return exitOK, runErr
	}
}

// logFlagOverrides records the knobs changed from their defaults. The
// bearer token never reaches the log.
func logFlagOverrides(log *zap.Logger, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed || flag.Name == "bearer-token" {
			return
		}
		log.Debug("flag override",
			zap.String("name", flag.Name), zap.String("value", flag.Value.String()))
	})
}

func validateRunConfig(config RunConfig) error {
	if config.DelayMax < config.DelayMin {
		return errs.New("delay-min %v exceeds delay-max %v", config.DelayMin, config.DelayMax)
	}
	if config.MaxScrolls < 0 {
		return errs.New("max-scrolls must not be negative")
	}
	if config.Cookies != "" {
		if _, err := os.Stat(config.Cookies); err != nil {
			return errs.New("cookies file: %v", err)
		}
	}
	if config.EnableAPIFallback && config.BearerToken == "" {
		return errs.New("api fallback enabled without a bearer token")
	}
	return nil
}

// resolveSeeds builds the seed list: --center first, then the seeds
// file, deduplicated case-insensitively with a leading @ stripped.
func resolveSeeds(config RunConfig) ([]string, error) {
	var seeds []string
	seen := map[string]bool{}
	add := func(raw string) {
		username := strings.TrimPrefix(strings.TrimSpace(raw), "@")
		if username == "" {
			return
		}
		key := strings.ToLower(username)
		if seen[key] {
			return
		}
		seen[key] = true
		seeds = append(seeds, username)
	}

	if config.Center != "" {
		add(config.Center)
	}
	if config.SeedsFile != "" {
		data, err := os.ReadFile(config.SeedsFile)
		if err != nil {
			return nil, errs.New("seeds file: %v", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			add(line)
		}
	}

	if len(seeds) == 0 {
		return nil, errs.New("no seeds: provide --center or --seeds-file")
	}
	return seeds, nil
}

// confirmSeed renders the preview and asks on the terminal.
func confirmSeed(ctx context.Context, preview enrichment.Preview) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	name := "@" + preview.Profile.Username
	if preview.Profile.DisplayName != nil {
		name += " (" + *preview.Profile.DisplayName + ")"
	}
	fmt.Printf("\nseed %s\n", name)
	for _, decision := range preview.Decisions {
		verdict := "skip"
		if decision.Refresh {
			verdict = "refresh"
		}
		line := fmt.Sprintf("  %-22s %-8s %s", decision.ListType, verdict, decision.Reason)
		if coverage, ok := preview.LastCoverage[decision.ListType]; ok {
			line += fmt.Sprintf(", last coverage %.2f", coverage)
		}
		fmt.Println(line)
	}

	return prompt.Confirm(fmt.Sprintf("scrape @%s now", preview.Profile.Username))
}

func printReport(report enrichment.Report) error {
	heading := color.New(color.FgGreen, color.Bold)
	_, _ = heading.Printf("\nEnrichment Run Summary\n\n")

	w := tabwriter.NewWriter(color.Output, 0, 0, 1, ' ', 0)
	fmt.Fprintf(w, "Seeds\t%s\n", whiteInt(int64(report.Seeds)))
	if report.SeedsFailed > 0 {
		fmt.Fprintf(w, "Seeds Failed\t%s\n", color.RedString("%d", report.SeedsFailed))
	} else {
		fmt.Fprintf(w, "Seeds Failed\t%s\n", color.GreenString("0"))
	}
	fmt.Fprintf(w, "Seeds Skipped\t%s\n", whiteInt(int64(report.SeedsSkipped)))
	fmt.Fprintf(w, "Lists Collected\t%s\n", whiteInt(int64(report.ListsCollected)))
	fmt.Fprintf(w, "Lists Skipped\t%s\n", whiteInt(int64(report.ListsSkipped)))
	fmt.Fprintf(w, "Accounts Upserted\t%s\n", whiteInt(int64(report.AccountsUpserted)))
	fmt.Fprintf(w, "Edges Written\t%s\n", whiteInt(int64(report.EdgesWritten)))
	fmt.Fprintf(w, "Profiles Backfilled\t%s\n", whiteInt(int64(report.Backfilled)))
	if report.Aborted {
		fmt.Fprintf(w, "Aborted\t%s\n", color.RedString(report.AbortReason))
	}
	return w.Flush()
}

func whiteInt(value int64) string {
	return color.WhiteString(fmt.Sprintf("%+v", value))
}
