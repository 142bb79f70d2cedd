// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package apiclient

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"storj.io/common/sync2"
)

// Limiter admits at most limit calls in any window, counting admissions
// granted before a restart. State lives in a small JSON file next to the
// config and is rewritten after every admission.
type Limiter struct {
	log    *zap.Logger
	limit  int
	window time.Duration
	path   string

	mu     sync.Mutex
	stamps []time.Time
}

// limiterState is the on-disk shape of the admission history.
type limiterState struct {
	WindowSeconds int64    `json:"window_seconds"`
	Timestamps    []string `json:"timestamps"`
}

// NewLimiter loads previous admissions from path, dropping the expired
// ones. An empty path keeps the history in memory only.
func NewLimiter(log *zap.Logger, limit int, window time.Duration, path string) (*Limiter, error) {
	if limit < 1 {
		return nil, Error.New("limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, Error.New("window must be positive, got %v", window)
	}

	limiter := &Limiter{
		log:    log,
		limit:  limit,
		window: window,
		path:   path,
	}
	if err := limiter.load(); err != nil {
		return nil, Error.Wrap(err)
	}
	return limiter, nil
}

// Acquire blocks until an admission fits into the window, then records it.
// It returns early when the context is done.
func (limiter *Limiter) Acquire(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for {
		limiter.mu.Lock()
		now := time.Now()
		limiter.prune(now)
		if len(limiter.stamps) < limiter.limit {
			limiter.stamps = append(limiter.stamps, now)
			err := limiter.persist()
			limiter.mu.Unlock()
			if err != nil {
				limiter.log.Warn("failed to persist rate limiter state", zap.Error(err))
			}
			return nil
		}
		wait := limiter.stamps[0].Add(limiter.window).Sub(now)
		limiter.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		mon.Event("ratelimit_wait")
		if !sync2.Sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// Close writes the final admission history.
func (limiter *Limiter) Close() error {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	return Error.Wrap(limiter.persist())
}

// prune drops stamps that have aged out of the window. Callers hold mu.
func (limiter *Limiter) prune(now time.Time) {
	cutoff := now.Add(-limiter.window)
	drop := 0
	for drop < len(limiter.stamps) && !limiter.stamps[drop].After(cutoff) {
		drop++
	}
	limiter.stamps = limiter.stamps[drop:]
}

func (limiter *Limiter) load() error {
	if limiter.path == "" {
		return nil
	}
	data, err := os.ReadFile(limiter.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var state limiterState
	if err := json.Unmarshal(data, &state); err != nil {
		return Error.New("unreadable rate limiter state %q, delete it to reset: %v", limiter.path, err)
	}
	if state.WindowSeconds != int64(limiter.window/time.Second) {
		limiter.log.Warn("rate limiter state recorded a different window, discarding",
			zap.Int64("state_window_seconds", state.WindowSeconds),
			zap.Duration("window", limiter.window))
		return nil
	}

	now := time.Now()
	for _, raw := range state.Timestamps {
		stamp, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			limiter.log.Warn("skipping unreadable rate limiter stamp", zap.String("stamp", raw))
			continue
		}
		if now.Sub(stamp) < limiter.window {
			limiter.stamps = append(limiter.stamps, stamp)
		}
	}
	sort.Slice(limiter.stamps, func(i, k int) bool {
		return limiter.stamps[i].Before(limiter.stamps[k])
	})
	return nil
}

// persist writes the history atomically. Callers hold mu.
func (limiter *Limiter) persist() error {
	if limiter.path == "" {
		return nil
	}

	state := limiterState{
		WindowSeconds: int64(limiter.window / time.Second),
		Timestamps:    make([]string, 0, len(limiter.stamps)),
	}
	for _, stamp := range limiter.stamps {
		state.Timestamps = append(state.Timestamps, stamp.Format(time.RFC3339Nano))
	}

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	tmp := limiter.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, limiter.path)
}
