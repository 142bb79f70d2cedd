// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package apiclient backfills shadow accounts through the platform's
// public JSON API, kept under the platform's rate limit by a persisted
// sliding-window limiter.
package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/shadowgraph/shadow"
)

var (
	mon = monkit.Package()

	// Error is the default error class for the api client.
	Error = errs.Class("apiclient")
	// ErrRateLimited means the platform kept answering 429 after retries.
	ErrRateLimited = errs.Class("api rate limited")
	// ErrUnauthorized means the bearer token was rejected.
	ErrUnauthorized = errs.Class("api unauthorized")
	// ErrNotFound means the requested resource does not exist.
	ErrNotFound = errs.Class("api not found")
	// ErrTransient means a server error or timeout survived the retries.
	ErrTransient = errs.Class("api transient")
	// ErrMalformed means the response body could not be decoded.
	ErrMalformed = errs.Class("api malformed response")
)

const (
	// maxIDsPerBatch is the platform's cap on ids per lookup call.
	maxIDsPerBatch = 100
	// maxRetries bounds both the 429 and the transient retry loops.
	maxRetries = 3

	userFields = "name,description,location,url,profile_image_url,public_metrics"
)

// Config holds the api client configuration.
type Config struct {
	BaseURL        string        `help:"platform API base URL" default:"https://api.x.com"`
	BearerToken    string        `help:"bearer token for API auth" default:""`
	RequestTimeout time.Duration `help:"hard timeout for one API request" default:"30s" testDefault:"1m"`
	WindowLimit    int           `help:"max API requests per window" default:"15"`
	Window         time.Duration `help:"rate limit window" default:"15m"`
	StatePath      string        `help:"path to the persisted rate limiter state" default:"$CONFDIR/ratelimit.json"`
}

// Client calls the platform API.
//
// architecture: Client
type Client struct {
	log     *zap.Logger
	config  Config
	http    *http.Client
	limiter *Limiter

	// retryBackoff is the first transient retry wait, doubled per attempt.
	retryBackoff time.Duration
}

// Member is one entry of a platform list.
type Member struct {
	AccountID   string
	Username    string
	DisplayName *string
}

// New creates an api client with a freshly loaded rate limiter.
func New(log *zap.Logger, config Config) (*Client, error) {
	if config.BearerToken == "" {
		return nil, Error.New("bearer token required")
	}
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	limiter, err := NewLimiter(log.Named("ratelimit"), config.WindowLimit, config.Window, config.StatePath)
	if err != nil {
		return nil, err
	}

	return &Client{
		log:          log,
		config:       config,
		http:         &http.Client{Timeout: config.RequestTimeout},
		limiter:      limiter,
		retryBackoff: time.Second,
	}, nil
}

// Close flushes the rate limiter state and drops idle connections.
func (client *Client) Close() error {
	client.http.CloseIdleConnections()
	return client.limiter.Close()
}

// FetchProfile returns the account with the given id, provenance api.
func (client *Client) FetchProfile(ctx context.Context, accountID string) (_ shadow.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	var response struct {
		Data wireUser `json:"data"`
	}
	query := url.Values{"user.fields": {userFields}}
	if err := client.getJSON(ctx, "/2/users/"+url.PathEscape(accountID), query, &response); err != nil {
		return shadow.Account{}, err
	}
	if response.Data.ID == "" {
		return shadow.Account{}, ErrMalformed.New("user payload without id for %q", accountID)
	}
	return response.Data.Account(), nil
}

// FetchProfilesBatch looks up many accounts at once, splitting the input
// into the platform's batch size. Unknown ids are left out of the result.
func (client *Client) FetchProfilesBatch(ctx context.Context, ids []string) (_ map[string]shadow.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	accounts := make(map[string]shadow.Account, len(ids))
	for len(ids) > 0 {
		chunk := ids
		if len(chunk) > maxIDsPerBatch {
			chunk = chunk[:maxIDsPerBatch]
		}
		ids = ids[len(chunk):]

		var response struct {
			Data []wireUser `json:"data"`
		}
		query := url.Values{
			"ids":         {strings.Join(chunk, ",")},
			"user.fields": {userFields},
		}
		err := client.getJSON(ctx, "/2/users", query, &response)
		if ErrNotFound.Has(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, user := range response.Data {
			if user.ID == "" {
				continue
			}
			accounts[user.ID] = user.Account()
		}
	}
	return accounts, nil
}

// FetchListMembers returns the members of a platform list. A missing list
// yields an empty result rather than an error.
func (client *Client) FetchListMembers(ctx context.Context, listID string) (_ []Member, err error) {
	defer mon.Task()(&ctx)(&err)

	var response struct {
		Data []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"data"`
	}
	err = client.getJSON(ctx, "/2/lists/"+url.PathEscape(listID)+"/members", nil, &response)
	if ErrNotFound.Has(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var members []Member
	for _, entry := range response.Data {
		if entry.ID == "" || entry.Username == "" {
			continue
		}
		members = append(members, Member{
			AccountID:   entry.ID,
			Username:    entry.Username,
			DisplayName: optional(entry.Name),
		})
	}
	return members, nil
}

// getJSON performs one logical GET, including the 429 and transient retry
// loops. Every physical request first takes a limiter admission.
func (client *Client) getJSON(ctx context.Context, endpoint string, query url.Values, target interface{}) (err error) {
	defer mon.Task()(&ctx)(&err)

	transientLeft := maxRetries
	rateLimitLeft := maxRetries
	backoff := client.retryBackoff

	for {
		if err := client.limiter.Acquire(ctx); err != nil {
			return Error.Wrap(err)
		}

		status, header, body, err := client.roundTrip(ctx, endpoint, query)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return Error.Wrap(err)
			}
			if transientLeft == 0 {
				return ErrTransient.Wrap(err)
			}
			transientLeft--

		case status == http.StatusOK:
			if err := json.Unmarshal(body, target); err != nil {
				return ErrMalformed.New("decoding %s: %v", endpoint, err)
			}
			return nil

		case status == http.StatusNotFound:
			return ErrNotFound.New("%s", endpoint)

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return ErrUnauthorized.New("status %d from %s", status, endpoint)

		case status == http.StatusTooManyRequests:
			if rateLimitLeft == 0 {
				return ErrRateLimited.New("%s", endpoint)
			}
			rateLimitLeft--
			wait := retryAfter(header)
			client.log.Info("rate limited by the platform, waiting",
				zap.String("endpoint", endpoint), zap.Duration("wait", wait))
			mon.Event("api_rate_limited")
			if !sync2.Sleep(ctx, wait) {
				return Error.Wrap(ctx.Err())
			}
			continue

		case status >= http.StatusInternalServerError:
			if transientLeft == 0 {
				return ErrTransient.New("status %d from %s", status, endpoint)
			}
			transientLeft--

		default:
			return Error.New("unexpected status %d from %s: %s", status, endpoint, body)
		}

		// transient failure, back off and try again
		client.log.Debug("transient api failure, retrying",
			zap.String("endpoint", endpoint), zap.Duration("backoff", backoff))
		if !sync2.Sleep(ctx, backoff) {
			return Error.Wrap(ctx.Err())
		}
		backoff *= 2
	}
}

func (client *Client) roundTrip(ctx context.Context, endpoint string, query url.Values) (status int, header http.Header, body []byte, err error) {
	requestURL := client.config.BaseURL + endpoint
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+client.config.BearerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

// retryAfter picks the wait the platform asked for: retry-after seconds
// first, the x-rate-limit-reset epoch second, 5s when neither parses.
func retryAfter(header http.Header) time.Duration {
	if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if epoch, err := strconv.ParseInt(header.Get("x-rate-limit-reset"), 10, 64); err == nil {
		if wait := time.Until(time.Unix(epoch, 0)); wait > 0 {
			return wait
		}
	}
	return 5 * time.Second
}

// wireUser is the platform's JSON user object.
type wireUser struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	URL             string `json:"url"`
	ProfileImageURL string `json:"profile_image_url"`
	PublicMetrics   *struct {
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
		TweetCount     int64 `json:"tweet_count"`
		LikeCount      int64 `json:"like_count"`
	} `json:"public_metrics"`
}

// Account converts the wire user into a shadow account with provenance
// api. Empty strings become nil so a merge never erases known values.
func (user wireUser) Account() shadow.Account {
	account := shadow.Account{
		AccountID:       user.ID,
		Username:        user.Username,
		DisplayName:     optional(user.Name),
		Bio:             optional(user.Description),
		Location:        optional(user.Location),
		Website:         optional(user.URL),
		ProfileImageURL: optional(user.ProfileImageURL),
		LastUpdatedAt:   time.Now().UTC(),
		Provenance:      shadow.ProvenanceAPI,
	}
	if user.PublicMetrics != nil {
		metrics := *user.PublicMetrics
		account.NumFollowers = &metrics.FollowersCount
		account.NumFollowing = &metrics.FollowingCount
		account.NumTweets = &metrics.TweetCount
		account.NumLikes = &metrics.LikeCount
	}
	return account
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
