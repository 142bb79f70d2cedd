// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package txutil provides safe transaction-encapsulation functions which have
// retry semantics as necessary.
package txutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/common/sync2"

	"storj.io/shadowgraph/private/tagsql"
)

var mon = monkit.Package()

const (
	maxAttempts  = 5
	retryBackoff = 100 * time.Millisecond
	retryCap     = 2 * time.Second
)

// WithTx starts a transaction on the given database. While in the transaction,
// fn is called with a handle to the transaction in order to make use of it. If
// fn returns an error, the transaction is rolled back. If fn returns nil, the
// transaction is committed.
//
// Transactions that fail because the database was busy or locked are restarted
// with exponential backoff, up to 5 attempts. If fn has any side effects
// outside of changes to the database, they must be idempotent! fn may be
// called more than one time.
func WithTx(ctx context.Context, db tagsql.DB, txOpts *sql.TxOptions, fn func(context.Context, tagsql.Tx) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	backoff := retryBackoff
	for i := 0; ; i++ {
		err, rollbackErr := withTxOnce(ctx, db, txOpts, fn)
		if i < maxAttempts-1 && retryNeeded(err) {
			mon.Event(fmt.Sprintf("transaction_retry_%d", i+1))
			if !sync2.Sleep(ctx, backoff) {
				return errs.Wrap(errs.Combine(ctx.Err(), err, rollbackErr))
			}
			backoff *= 2
			if backoff > retryCap {
				backoff = retryCap
			}
			continue
		}
		mon.IntVal("transaction_retries").Observe(int64(i))
		return errs.Wrap(errs.Combine(err, rollbackErr))
	}
}

// withTxOnce creates a transaction, ensures that it is eventually released
// (commit or rollback) and passes it to the provided callback. It does not
// handle retries or anything, delegating that to callers.
func withTxOnce(ctx context.Context, db tagsql.DB, txOpts *sql.TxOptions, fn func(context.Context, tagsql.Tx) error) (err, rollbackErr error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := db.BeginTx(ctx, txOpts)
	if err != nil {
		return errs.Wrap(err), nil
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
		} else {
			rollbackErr = tx.Rollback()
		}
	}()

	return fn(ctx, tx), nil
}

// retryNeeded reports whether the error is sqlite signaling a busy or locked
// database, which clears once the competing transaction finishes.
func retryNeeded(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
