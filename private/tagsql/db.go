// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package tagsql implements a minimal wrapper around *sql.DB that
// makes context usage explicit on every call.
package tagsql

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"
)

// Open opens a database with the given driver and verifies the connection.
func Open(ctx context.Context, driverName, dataSourceName string) (DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	err = db.PingContext(ctx)
	if err != nil {
		return nil, errs.Combine(errs.Wrap(err), db.Close())
	}
	return Wrap(db), nil
}

// Wrap turns a *sql.DB into a DB.
func Wrap(db *sql.DB) DB {
	return &sqlDB{db: db}
}

// DB is an interface for *sql.DB-like databases.
//
// All methods take a context and pass it to the underlying database.
// database/sql handles cancellation generically for every supported
// driver, including transactions on mattn/go-sqlite3.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	BeginTx(ctx context.Context, txOptions *sql.TxOptions) (Tx, error)
	PingContext(ctx context.Context) error

	SetMaxIdleConns(n int)
	SetMaxOpenConns(n int)
	SetConnMaxLifetime(d time.Duration)
	Stats() sql.DBStats

	Internal() *sql.DB
	Close() error
}

// sqlDB implements DB on top of *sql.DB.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqlDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *sqlDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqlDB) BeginTx(ctx context.Context, txOptions *sql.TxOptions) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, txOptions)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (s *sqlDB) PingContext(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlDB) SetMaxIdleConns(n int) { s.db.SetMaxIdleConns(n) }

func (s *sqlDB) SetMaxOpenConns(n int) { s.db.SetMaxOpenConns(n) }

func (s *sqlDB) SetConnMaxLifetime(d time.Duration) { s.db.SetConnMaxLifetime(d) }

func (s *sqlDB) Stats() sql.DBStats { return s.db.Stats() }

// Internal returns the underlying *sql.DB for code that needs it directly.
func (s *sqlDB) Internal() *sql.DB { return s.db }

func (s *sqlDB) Close() error { return s.db.Close() }
