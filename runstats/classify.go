// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package runstats

import (
	"context"
	"strings"

	"github.com/zeebo/errs"

	"storj.io/common/errs2"

	"storj.io/shadowgraph/apiclient"
	"storj.io/shadowgraph/collector"
)

// Classify maps a raw error to its ErrorType. Typed classes win over
// substring matching; substrings only catch errors that arrive without
// their class, for example after crossing a process boundary as text.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorNone
	}

	switch {
	case errs2.IsCanceled(err):
		return ErrorInterrupted
	case collector.ErrBlocked.Has(err):
		return ErrorBlocked
	case collector.ErrSessionExpired.Has(err):
		return ErrorSession
	case collector.ErrNavigation.Has(err), collector.ErrProfileNotFound.Has(err):
		return ErrorNavigation
	case collector.ErrParse.Has(err):
		return ErrorDOMParse
	case apiclient.ErrRateLimited.Has(err):
		return ErrorRateLimit
	case apiclient.ErrMalformed.Has(err):
		return ErrorAPIDecode
	case apiclient.ErrTransient.Has(err):
		if errs.Is(err, context.DeadlineExceeded) || containsAny(err, "timeout", "deadline") {
			return ErrorTimeout
		}
		return ErrorAPIHTTP
	case apiclient.ErrUnauthorized.Has(err):
		return ErrorAPIHTTP
	case errs.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	}

	switch {
	case containsAny(err, "rate limit", "too many requests"):
		return ErrorRateLimit
	case containsAny(err, "timeout", "deadline"):
		return ErrorTimeout
	case containsAny(err, "decode", "unmarshal"):
		return ErrorAPIDecode
	case containsAny(err, "parse", "selector", "element"):
		return ErrorDOMParse
	case containsAny(err, "navigat"):
		return ErrorNavigation
	}

	return ErrorUnknown
}

func containsAny(err error, fragments ...string) bool {
	msg := strings.ToLower(err.Error())
	for _, fragment := range fragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
