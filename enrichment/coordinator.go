// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package enrichment drives the shadow graph pipeline: it walks the seed
// accounts one by one, decides per list whether a scrape is due, collects
// the due lists through the browser, persists accounts and edges, records
// a metrics row per list and finally backfills thin profiles through the
// platform API.
package enrichment

import (
	"context"
	"strconv"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/context2"
	"storj.io/common/errs2"
	"storj.io/shadowgraph/collector"
	"storj.io/shadowgraph/policy"
	"storj.io/shadowgraph/runstats"
	"storj.io/shadowgraph/shadow"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the enrichment package.
	Error = errs.Class("enrichment")
)

const backfillBatchSize = 100

// Config tunes a single enrichment run.
type Config struct {
	ListTypes         []shadow.ListType
	EnableAPIFallback bool
	AutoConfirmFirst  bool
	Quiet             bool
}

// ListCollector is the browser side of the pipeline.
//
// architecture: Client
type ListCollector interface {
	OpenProfile(ctx context.Context, username string) (collector.Profile, error)
	CollectList(ctx context.Context, username string, listType shadow.ListType) ([]collector.Member, collector.Stats, error)
}

// ProfileFetcher is the API side of the pipeline, used to backfill
// profiles the scrape only saw as bare list cells.
//
// architecture: Client
type ProfileFetcher interface {
	FetchProfilesBatch(ctx context.Context, ids []string) (map[string]shadow.Account, error)
}

// ConfirmFunc answers whether a previewed seed should be scraped.
type ConfirmFunc func(ctx context.Context, preview Preview) (bool, error)

// Preview is what a ConfirmFunc gets to show the operator before a seed
// is scraped.
type Preview struct {
	Profile      collector.Profile
	Decisions    []policy.Decision
	LastCoverage map[shadow.ListType]float64
}

// Report sums up one enrichment run.
type Report struct {
	Seeds        int
	SeedsFailed  int
	SeedsSkipped int

	ListsCollected int
	ListsSkipped   int

	AccountsUpserted int
	EdgesWritten     int
	Backfilled       int

	Aborted     bool
	AbortReason string
}

// Coordinator owns one enrichment run end to end. Seeds are processed
// strictly sequentially; the browser session is not safe for concurrent
// pages.
type Coordinator struct {
	log       *zap.Logger
	collector ListCollector
	api       ProfileFetcher
	accounts  shadow.Accounts
	edges     shadow.Edges
	runs      runstats.DB

	policyConfig policy.Config
	config       Config
	confirm      ConfirmFunc
}

// NewCoordinator assembles a coordinator. api may be nil when API
// fallback is disabled, confirm may be nil when confirmation is not
// required.
func NewCoordinator(log *zap.Logger, collector ListCollector, api ProfileFetcher,
	accounts shadow.Accounts, edges shadow.Edges, runs runstats.DB,
	policyConfig policy.Config, config Config, confirm ConfirmFunc) *Coordinator {
	if len(config.ListTypes) == 0 {
		config.ListTypes = append([]shadow.ListType{}, shadow.DefaultListTypes...)
	}
	if confirm == nil {
		confirm = func(context.Context, Preview) (bool, error) { return true, nil }
	}
	return &Coordinator{
		log:          log,
		collector:    collector,
		api:          api,
		accounts:     accounts,
		edges:        edges,
		runs:         runs,
		policyConfig: policyConfig,
		config:       config,
		confirm:      confirm,
	}
}

// Run processes the seeds in order and returns what happened. Per-seed
// and per-list failures are isolated and show up in the report; a block
// or an expired session aborts the whole run, since continuing would
// only dig the hole deeper.
func (coordinator *Coordinator) Run(ctx context.Context, seeds []string) (_ Report, err error) {
	defer mon.Task()(&ctx)(&err)

	report := Report{}
	queue := newBackfillQueue()

	for index, seed := range seeds {
		if ctx.Err() != nil {
			report.Aborted = true
			report.AbortReason = "interrupted"
			return report, ctx.Err()
		}

		report.Seeds++
		result := coordinator.processSeed(ctx, index, seed, &report, queue)
		switch {
		case result.abort != nil:
			report.Aborted = true
			report.AbortReason = result.abort.reason
			coordinator.log.Warn("run aborted",
				zap.String("seed", seed), zap.String("reason", result.abort.reason))
			return report, result.abort.err
		case result.failed:
			report.SeedsFailed++
		case result.skipped:
			report.SeedsSkipped++
		}
	}

	if coordinator.config.EnableAPIFallback && coordinator.api != nil {
		coordinator.drainBackfill(ctx, queue.ordered(), &report)
	}

	return report, nil
}

type abortSignal struct {
	reason string
	err    error
}

func abortCause(err error) *abortSignal {
	switch {
	case collector.ErrBlocked.Has(err):
		return &abortSignal{reason: "blocked", err: err}
	case collector.ErrSessionExpired.Has(err):
		return &abortSignal{reason: "session expired", err: err}
	case errs2.IsCanceled(err):
		return &abortSignal{reason: "interrupted", err: err}
	}
	return nil
}

type seedResult struct {
	failed  bool
	skipped bool
	abort   *abortSignal
}

func (coordinator *Coordinator) processSeed(ctx context.Context, index int, username string, report *Report, queue *backfillQueue) seedResult {
	log := coordinator.log.With(zap.String("seed", username))

	profileStart := time.Now()
	profile, err := coordinator.collector.OpenProfile(ctx, username)
	if err != nil {
		coordinator.recordProfileFailure(ctx, log, username, profileStart, err)
		if abort := abortCause(err); abort != nil {
			return seedResult{abort: abort}
		}
		log.Warn("seed profile failed", zap.Error(err))
		return seedResult{failed: true}
	}

	// DOM-only extraction carries no account id; an earlier run may
	// still know the seed under this username.
	if profile.AccountID == "" {
		resolved, err := coordinator.accounts.ResolveUsername(ctx, username)
		switch {
		case err == nil:
			profile.AccountID = resolved
		case shadow.ErrAccountNotFound.Has(err):
			coordinator.record(ctx, log, runstats.Metrics{
				SeedID:       username,
				ListType:     coordinator.config.ListTypes[0],
				StartedAt:    profileStart,
				CompletedAt:  time.Now(),
				ErrorType:    runstats.ErrorDOMParse,
				ErrorDetails: "profile rendered without an account id",
			})
			log.Warn("seed profile carries no account id")
			return seedResult{failed: true}
		default:
			log.Error("seed id lookup failed", zap.Error(err))
			return seedResult{failed: true}
		}
	}

	account := shadow.Account{
		AccountID:       profile.AccountID,
		Username:        profile.Username,
		DisplayName:     profile.DisplayName,
		Bio:             profile.Bio,
		Location:        profile.Location,
		Website:         profile.Website,
		ProfileImageURL: profile.ProfileImageURL,
		NumFollowers:    profile.ClaimedFollowers,
		NumFollowing:    profile.ClaimedFollowing,
		NumTweets:       profile.ClaimedTweets,
		Provenance:      shadow.ProvenanceScrape,
	}
	if _, err := coordinator.accounts.Upsert(ctx, account); err != nil {
		log.Error("seed account upsert failed", zap.Error(err))
		return seedResult{failed: true}
	}
	report.AccountsUpserted++

	now := time.Now()
	claimed := map[shadow.ListType]*int64{}
	last := map[shadow.ListType]*runstats.Metrics{}
	for _, listType := range coordinator.config.ListTypes {
		claimed[listType] = claimedFor(profile, listType)
		row, err := coordinator.runs.LastCompleted(ctx, profile.AccountID, listType)
		if err != nil {
			log.Error("run history lookup failed", zap.Error(err))
			return seedResult{failed: true}
		}
		last[listType] = row
	}
	decisions := policy.EvaluateAll(now, coordinator.config.ListTypes, claimed, last, coordinator.policyConfig)

	if coordinator.policyConfig.RequireConfirmation && !(coordinator.config.AutoConfirmFirst && index == 0) {
		confirmed, err := coordinator.confirm(ctx, Preview{
			Profile:      profile,
			Decisions:    decisions,
			LastCoverage: lastCoverage(last),
		})
		if err != nil {
			if abort := abortCause(err); abort != nil {
				return seedResult{abort: abort}
			}
			log.Error("confirmation failed", zap.Error(err))
			return seedResult{failed: true}
		}
		if !confirmed {
			coordinator.progress("seed declined", zap.String("seed", username))
			for i := range decisions {
				if decisions[i].Refresh {
					decisions[i].Refresh = false
					decisions[i].Reason = policy.ReasonDeclined
				}
			}
		}
	}

	collectedAny := false
	for _, decision := range decisions {
		if ctx.Err() != nil {
			return seedResult{abort: &abortSignal{reason: "interrupted", err: ctx.Err()}}
		}
		if !decision.Refresh {
			coordinator.recordSkip(ctx, log, profile.AccountID, decision)
			report.ListsSkipped++
			continue
		}

		collected, abort := coordinator.collectList(ctx, log, profile, decision.ListType, claimed[decision.ListType], report, queue)
		if abort != nil {
			return seedResult{abort: abort}
		}
		if collected {
			collectedAny = true
			report.ListsCollected++
		}
	}

	return seedResult{skipped: !collectedAny}
}

// collectList scrapes one due list and persists what it saw. It returns
// whether the list settled cleanly; a non-nil abort means the whole run
// must stop.
func (coordinator *Coordinator) collectList(ctx context.Context, log *zap.Logger, profile collector.Profile, listType shadow.ListType, claimed *int64, report *Report, queue *backfillQueue) (collected bool, abort *abortSignal) {
	start := time.Now()
	members, stats, err := coordinator.collector.CollectList(ctx, profile.Username, listType)

	claimedCount := int64(0)
	if claimed != nil {
		claimedCount = *claimed
	}
	metrics := runstats.Metrics{
		SeedID:         profile.AccountID,
		ListType:       listType,
		StartedAt:      start,
		CompletedAt:    time.Now(),
		CapturedCount:  int64(len(members)),
		ClaimedCount:   claimedCount,
		CoverageRatio:  runstats.Coverage(int64(len(members)), claimedCount),
		ScrollRounds:   stats.ScrollRounds,
		StagnantRounds: stats.StagnantRounds,
	}

	if err != nil {
		metrics.ErrorType = runstats.Classify(err)
		metrics.ErrorDetails = err.Error()
		coordinator.record(ctx, log, metrics)
		if abort := abortCause(err); abort != nil {
			return false, abort
		}
		log.Warn("list collection failed",
			zap.String("list_type", string(listType)), zap.Error(err))
		return false, nil
	}

	direction := listType.EdgeDirection()
	for position, member := range members {
		if ctx.Err() != nil {
			metrics.CompletedAt = time.Now()
			metrics.ErrorType = runstats.ErrorInterrupted
			metrics.ErrorDetails = ctx.Err().Error()
			coordinator.record(ctx, log, metrics)
			return false, &abortSignal{reason: "interrupted", err: ctx.Err()}
		}

		stub := shadow.Account{
			AccountID:   member.AccountID,
			Username:    member.Username,
			DisplayName: member.DisplayName,
			Bio:         member.Bio,
			Provenance:  shadow.ProvenanceScrape,
		}
		if _, err := coordinator.accounts.Upsert(ctx, stub); err != nil {
			log.Warn("member upsert failed",
				zap.String("account_id", member.AccountID), zap.Error(err))
			continue
		}
		report.AccountsUpserted++

		edge := shadow.Edge{
			Direction:    direction,
			ListType:     listType,
			SeedUsername: profile.Username,
			Metadata:     map[string]string{"discovery_index": strconv.Itoa(position)},
		}
		if direction == shadow.DirectionOutbound {
			edge.SourceID, edge.TargetID = profile.AccountID, member.AccountID
		} else {
			edge.SourceID, edge.TargetID = member.AccountID, profile.AccountID
		}
		if err := coordinator.edges.Upsert(ctx, edge); err != nil {
			log.Warn("edge upsert failed",
				zap.String("account_id", member.AccountID), zap.Error(err))
			continue
		}
		report.EdgesWritten++

		if member.Bio == nil {
			queue.add(member.AccountID)
		}
	}

	metrics.CompletedAt = time.Now()
	coordinator.record(ctx, log, metrics)
	coordinator.progress("list settled",
		zap.String("seed", profile.Username), zap.String("list_type", string(listType)),
		zap.Int64("captured", metrics.CapturedCount), zap.Int64("claimed", claimedCount),
		zap.Float64("coverage", metrics.CoverageRatio))
	return true, nil
}

func (coordinator *Coordinator) recordSkip(ctx context.Context, log *zap.Logger, seedID string, decision policy.Decision) {
	now := time.Now()
	coordinator.record(ctx, log, runstats.Metrics{
		SeedID:      seedID,
		ListType:    decision.ListType,
		StartedAt:   now,
		CompletedAt: now,
		Skipped:     true,
	})
	coordinator.progress("list skipped",
		zap.String("seed_id", seedID), zap.String("list_type", string(decision.ListType)),
		zap.String("reason", decision.Reason))
}

func (coordinator *Coordinator) recordProfileFailure(ctx context.Context, log *zap.Logger, username string, start time.Time, cause error) {
	// the seed may be known from an earlier run; otherwise the username
	// has to stand in for the id
	seedID := username
	if resolved, err := coordinator.accounts.ResolveUsername(context2.WithoutCancellation(ctx), username); err == nil {
		seedID = resolved
	}
	coordinator.record(ctx, log, runstats.Metrics{
		SeedID:       seedID,
		ListType:     coordinator.config.ListTypes[0],
		StartedAt:    start,
		CompletedAt:  time.Now(),
		ErrorType:    runstats.Classify(cause),
		ErrorDetails: cause.Error(),
	})
}

// record persists a metrics row. Rows must land even when the run is
// being torn down, so recording ignores cancellation.
func (coordinator *Coordinator) record(ctx context.Context, log *zap.Logger, metrics runstats.Metrics) {
	if err := coordinator.runs.Record(context2.WithoutCancellation(ctx), metrics); err != nil {
		log.Error("metrics row not recorded",
			zap.String("list_type", string(metrics.ListType)), zap.Error(err))
	}
}

func (coordinator *Coordinator) drainBackfill(ctx context.Context, queue []string, report *Report) {
	if len(queue) == 0 {
		return
	}
	coordinator.progress("backfilling thin profiles", zap.Int("queued", len(queue)))

	for start := 0; start < len(queue); start += backfillBatchSize {
		if ctx.Err() != nil {
			coordinator.log.Warn("backfill interrupted", zap.Int("remaining", len(queue)-start))
			return
		}
		end := start + backfillBatchSize
		if end > len(queue) {
			end = len(queue)
		}

		accounts, err := coordinator.api.FetchProfilesBatch(ctx, queue[start:end])
		if err != nil {
			coordinator.log.Warn("backfill batch failed",
				zap.Int("batch_start", start), zap.Error(err))
			continue
		}
		for _, account := range accounts {
			if _, err := coordinator.accounts.Upsert(ctx, account); err != nil {
				coordinator.log.Warn("backfill upsert failed",
					zap.String("account_id", account.AccountID), zap.Error(err))
				continue
			}
			report.Backfilled++
		}
	}
}

func (coordinator *Coordinator) progress(msg string, fields ...zap.Field) {
	if coordinator.config.Quiet {
		coordinator.log.Debug(msg, fields...)
		return
	}
	coordinator.log.Info(msg, fields...)
}

// claimedFor picks the advertised count that corresponds to a list type.
// Both follower style lists draw on the same claim; the intersection view
// has no count of its own.
func claimedFor(profile collector.Profile, listType shadow.ListType) *int64 {
	if listType == shadow.ListFollowing {
		return profile.ClaimedFollowing
	}
	return profile.ClaimedFollowers
}

func lastCoverage(last map[shadow.ListType]*runstats.Metrics) map[shadow.ListType]float64 {
	coverage := make(map[shadow.ListType]float64, len(last))
	for listType, metrics := range last {
		if metrics != nil {
			coverage[listType] = metrics.CoverageRatio
		}
	}
	return coverage
}

// backfillQueue keeps enqueue order while dropping duplicates, so the
// API drain touches each account once.
type backfillQueue struct {
	order []string
	seen  map[string]bool
}

func newBackfillQueue() *backfillQueue {
	return &backfillQueue{seen: make(map[string]bool)}
}

func (queue *backfillQueue) add(accountID string) {
	if queue.seen[accountID] {
		return
	}
	queue.seen[accountID] = true
	queue.order = append(queue.order, accountID)
}

func (queue *backfillQueue) ordered() []string { return queue.order }
