// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package collector drives a real Chromium session over the platform's
// web frontend and extracts profiles and follow lists from the rendered
// pages. One Collector owns one browser for the whole run.
package collector

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/rod/lib/utils"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/shadowgraph/shadow"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the collector.
	Error = errs.Class("collector")
	// ErrNavigation means a page never loaded, after a retry.
	ErrNavigation = errs.Class("navigation failed")
	// ErrBlocked means the platform showed an anti-automation or rate
	// limit interstitial. The whole run must stop, not just one list.
	ErrBlocked = errs.Class("blocked by platform")
	// ErrSessionExpired means the session cookies no longer authenticate.
	ErrSessionExpired = errs.Class("session expired")
	// ErrParse means the page rendered but the expected markup was not
	// there.
	ErrParse = errs.Class("page parse failed")
	// ErrProfileNotFound means the profile page exists but shows no
	// account, deleted and suspended accounts included.
	ErrProfileNotFound = errs.Class("profile not found")
)

// Config holds the browser session configuration.
type Config struct {
	CookiesPath       string        `help:"path to the captured session cookies file" default:""`
	ChromeBinary      string        `help:"custom chromium binary path" default:""`
	Headless          bool          `help:"run the browser headless" default:"true"`
	BaseURL           string        `help:"platform web base URL" default:"https://x.com"`
	MaxScrollRounds   int           `help:"max scroll rounds per list, also the stagnation cutoff" default:"6"`
	DelayMin          time.Duration `help:"min randomized delay between scrolls" default:"4s" testDefault:"10ms"`
	DelayMax          time.Duration `help:"max randomized delay between scrolls" default:"9s" testDefault:"20ms"`
	ScrollOffset      int           `help:"scroll offset per round in pixels" default:"1200"`
	NavigationTimeout time.Duration `help:"hard timeout for one page navigation" default:"30s"`
}

// Profile is what the profile page showed about an account. The claimed
// counts are the platform's own numbers, not what we captured. AccountID
// stays empty when only the DOM fallback path succeeded.
type Profile struct {
	AccountID       string
	Username        string
	DisplayName     *string
	Bio             *string
	Location        *string
	Website         *string
	ProfileImageURL *string

	ClaimedFollowers *int64
	ClaimedFollowing *int64
	ClaimedTweets    *int64
}

// Member is one extracted list entry.
type Member struct {
	AccountID   string
	Username    string
	DisplayName *string
	Bio         *string
}

// Stats describes how a list collection went.
type Stats struct {
	ScrollRounds   int
	StagnantRounds int
	Captured       int
	Duration       time.Duration
}

// Collector owns the browser session.
type Collector struct {
	log    *zap.Logger
	config Config

	launcher *launcher.Launcher
	browser  *rod.Browser

	closeOnce sync.Once
	closeErr  error
}

type zapWriter struct {
	*zap.Logger
}

func (log zapWriter) Write(data []byte) (int, error) {
	log.Logger.Info(string(data))
	return len(data), nil
}

// New launches the browser, connects and loads the session cookies.
func New(ctx context.Context, log *zap.Logger, config Config) (_ *Collector, err error) {
	defer mon.Task()(&ctx)(&err)

	if config.DelayMax < config.DelayMin {
		return nil, Error.New("delay range inverted: min %v > max %v", config.DelayMin, config.DelayMax)
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	launch := launcher.New().
		Headless(config.Headless).
		Leakless(false).
		Devtools(false).
		NoSandbox(true).
		Logger(zapWriter{Logger: log.Named("launcher")})
	if config.ChromeBinary != "" {
		launch = launch.Bin(config.ChromeBinary)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		launch.Cleanup()
		return nil, Error.Wrap(err)
	}

	logBrowser := log.Named("rod")

	connectCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	browser := rod.New().
		ControlURL(controlURL).
		Logger(utils.Log(func(msg ...interface{}) {
			logBrowser.Debug(fmt.Sprintln(msg...))
		})).
		Context(connectCtx)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, Error.Wrap(err)
	}
	// the connect deadline must not apply to the rest of the session
	browser = browser.Context(ctx)

	collector := &Collector{
		log:      log,
		config:   config,
		launcher: launch,
		browser:  browser,
	}

	if config.CookiesPath != "" {
		cookies, err := loadCookies(config.CookiesPath)
		if err != nil {
			return nil, errs.Combine(err, collector.Close())
		}
		if err := browser.SetCookies(cookies); err != nil {
			return nil, errs.Combine(Error.Wrap(err), collector.Close())
		}
		log.Info("session cookies loaded", zap.Int("count", len(cookies)))
	}

	return collector, nil
}

// Close shuts the browser down. It is safe to call concurrently and more
// than once.
func (collector *Collector) Close() error {
	collector.closeOnce.Do(func() {
		collector.closeErr = Error.Wrap(collector.browser.Close())
		collector.launcher.Cleanup()
	})
	return collector.closeErr
}

// OpenProfile loads the profile page and extracts the account metadata,
// preferring the embedded structured payload over DOM selectors.
func (collector *Collector) OpenProfile(ctx context.Context, username string) (_ Profile, err error) {
	defer mon.Task()(&ctx)(&err)

	page, err := collector.newPage(ctx)
	if err != nil {
		return Profile{}, err
	}
	defer func() { err = errs.Combine(err, page.Close()) }()

	profileURL := collector.config.BaseURL + "/" + url.PathEscape(username)
	if err := collector.navigate(ctx, page, profileURL); err != nil {
		return Profile{}, err
	}
	if err := collector.checkInterstitials(page); err != nil {
		return Profile{}, err
	}
	if has, _, err := page.Has(selectorEmptyState); err == nil && has {
		return Profile{}, ErrProfileNotFound.New("%q", username)
	}

	if payload, ok := collector.profilePayload(page); ok {
		profile, err := parseProfilePayload(payload, username, collector.config.BaseURL)
		if err == nil {
			collector.log.Debug("profile extracted from structured payload",
				zap.String("username", username), zap.String("account_id", profile.AccountID))
			return profile, nil
		}
		collector.log.Debug("structured profile payload unusable, falling back to DOM",
			zap.String("username", username), zap.Error(err))
	}

	return collector.profileFromDOM(ctx, page, username)
}

// CollectList loads the list view for the given list type and scrolls
// through it, extracting one member per rendered cell.
func (collector *Collector) CollectList(ctx context.Context, username string, listType shadow.ListType) (_ []Member, _ Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	start := time.Now()
	stats := Stats{}

	page, err := collector.newPage(ctx)
	if err != nil {
		return nil, stats, err
	}
	defer func() { err = errs.Combine(err, page.Close()) }()

	listURL := collector.config.BaseURL + "/" + url.PathEscape(username) + "/" + string(listType)
	if err := collector.navigate(ctx, page, listURL); err != nil {
		return nil, stats, err
	}
	if err := collector.checkInterstitials(page); err != nil {
		return nil, stats, err
	}

	if !collector.waitFirstCell(ctx, page) {
		// slow interstitials surface here instead of right after navigation
		if err := collector.checkInterstitials(page); err != nil {
			return nil, stats, err
		}
		collector.log.Info("list rendered no entries",
			zap.String("username", username), zap.String("list_type", string(listType)))
		stats.Duration = time.Since(start)
		return nil, stats, nil
	}

	discovered := newMemberSet()
	capture := func() error {
		cells, err := extractCells(page)
		if err != nil {
			return err
		}
		for _, cell := range cells {
			member, ok := cell.member()
			if !ok {
				collector.log.Debug("skipping list cell without account id",
					zap.String("href", cell.Href))
				continue
			}
			discovered.add(member)
		}
		return nil
	}

	if err := capture(); err != nil {
		return nil, stats, err
	}
	lastHeight, err := pageHeight(page)
	if err != nil {
		return nil, stats, ErrParse.Wrap(err)
	}

	consecutiveStagnant := 0
	for round := 0; round < collector.config.MaxScrollRounds; round++ {
		if ctx.Err() != nil {
			return nil, stats, ctx.Err()
		}

		if err := scrollBy(page, collector.config.ScrollOffset); err != nil {
			return nil, stats, ErrNavigation.Wrap(err)
		}
		stats.ScrollRounds++

		delay := collector.scrollDelay()
		collector.log.Debug("scrolled",
			zap.String("username", username), zap.String("list_type", string(listType)),
			zap.Int("round", stats.ScrollRounds), zap.Int("discovered", discovered.len()),
			zap.Duration("delay", delay))
		if !sync2.Sleep(ctx, delay) {
			return nil, stats, ctx.Err()
		}

		if err := capture(); err != nil {
			return nil, stats, err
		}

		height, err := pageHeight(page)
		if err != nil {
			return nil, stats, ErrParse.Wrap(err)
		}
		if height <= lastHeight {
			stats.StagnantRounds++
			consecutiveStagnant++
			if consecutiveStagnant >= collector.config.MaxScrollRounds {
				break
			}
		} else {
			consecutiveStagnant = 0
		}
		lastHeight = height
	}

	members := discovered.ordered()
	stats.Captured = len(members)
	stats.Duration = time.Since(start)

	collector.log.Info("list collected",
		zap.String("username", username), zap.String("list_type", string(listType)),
		zap.Int("captured", stats.Captured), zap.Int("scroll_rounds", stats.ScrollRounds),
		zap.Int("stagnant_rounds", stats.StagnantRounds), zap.Duration("duration", stats.Duration))
	return members, stats, nil
}

func (collector *Collector) newPage(ctx context.Context) (*rod.Page, error) {
	page, err := collector.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, ErrNavigation.Wrap(err)
	}
	return page.Context(ctx), nil
}

// navigate loads the target URL, retrying once.
func (collector *Collector) navigate(ctx context.Context, page *rod.Page, target string) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			collector.log.Debug("retrying navigation", zap.String("url", target))
		}
		err := collector.navigateOnce(page, target)
		if err == nil {
			collector.log.Debug("navigated", zap.String("url", target))
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ErrNavigation.Wrap(lastErr)
}

func (collector *Collector) navigateOnce(page *rod.Page, target string) error {
	bounded := page.Timeout(collector.config.NavigationTimeout)
	if err := bounded.Navigate(target); err != nil {
		return err
	}
	return bounded.WaitLoad()
}

// checkInterstitials looks for the markers the platform uses to refuse
// service: the login wall and the rate limit or retry interstitial.
func (collector *Collector) checkInterstitials(page *rod.Page) error {
	if info, err := page.Info(); err == nil && strings.Contains(info.URL, "/login") {
		return ErrSessionExpired.New("redirected to login")
	}
	if has, _, err := page.Has(selectorLoginForm); err == nil && has {
		return ErrSessionExpired.New("login form shown")
	}
	if has, element, err := page.Has(selectorErrorDetail); err == nil && has {
		text, err := element.Text()
		if err == nil {
			lower := strings.ToLower(text)
			if strings.Contains(lower, "rate limit") || strings.Contains(lower, "something went wrong") {
				return ErrBlocked.New("%s", strings.TrimSpace(text))
			}
		}
	}
	return nil
}

// profilePayload returns the embedded structured payload, when present.
func (collector *Collector) profilePayload(page *rod.Page) (string, bool) {
	has, element, err := page.Has(selectorProfilePayload)
	if err != nil || !has {
		return "", false
	}
	text, err := element.Text()
	if err != nil || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// profileFromDOM extracts the profile from rendered markup. Only the
// marker element is required, every other field is optional.
func (collector *Collector) profileFromDOM(ctx context.Context, page *rod.Page, username string) (Profile, error) {
	if !collector.waitVisible(ctx, page, selectorUserName) {
		if has, _, err := page.Has(selectorEmptyState); err == nil && has {
			return Profile{}, ErrProfileNotFound.New("%q", username)
		}
		if err := collector.checkInterstitials(page); err != nil {
			return Profile{}, err
		}
		return Profile{}, ErrParse.New("profile markup never appeared for %q", username)
	}

	profile := Profile{
		Username:         username,
		DisplayName:      collector.elementText(page, selectorUserName+" span"),
		Bio:              collector.elementText(page, selectorUserBio),
		Location:         collector.elementText(page, selectorUserLocation),
		Website:          collector.elementText(page, selectorUserWebsite),
		ProfileImageURL:  collector.elementAttribute(page, selectorAvatar, "src"),
		ClaimedFollowing: collector.claimedCount(page, selectorFollowingCount),
		ClaimedFollowers: collector.claimedCount(page, selectorFollowersCount),
	}
	collector.log.Debug("profile extracted from DOM", zap.String("username", username))
	return profile, nil
}

// waitVisible waits until the selector matches, bounded by the
// navigation timeout. False means it never showed up.
func (collector *Collector) waitVisible(ctx context.Context, page *rod.Page, selector string) bool {
	waitCtx, cancel := context.WithTimeout(ctx, collector.config.NavigationTimeout)
	defer cancel()
	_, err := page.Context(waitCtx).Element(selector)
	return err == nil
}

func (collector *Collector) waitFirstCell(ctx context.Context, page *rod.Page) bool {
	return collector.waitVisible(ctx, page, selectorUserCell)
}

func (collector *Collector) elementText(page *rod.Page, selector string) *string {
	has, element, err := page.Has(selector)
	if err != nil || !has {
		return nil
	}
	text, err := element.Text()
	if err != nil {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}

func (collector *Collector) elementAttribute(page *rod.Page, selector, name string) *string {
	has, element, err := page.Has(selector)
	if err != nil || !has {
		return nil
	}
	value, err := element.Attribute(name)
	if err != nil || value == nil || *value == "" {
		return nil
	}
	return value
}

func (collector *Collector) claimedCount(page *rod.Page, selector string) *int64 {
	text := collector.elementText(page, selector)
	if text == nil {
		return nil
	}
	value, ok := parseCount(*text)
	if !ok {
		return nil
	}
	return &value
}

// scrollDelay draws a uniform delay from [DelayMin, DelayMax].
func (collector *Collector) scrollDelay() time.Duration {
	min, max := collector.config.DelayMin, collector.config.DelayMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
