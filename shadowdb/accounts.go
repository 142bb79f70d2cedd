// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"storj.io/shadowgraph/private/dbutil/txutil"
	"storj.io/shadowgraph/private/tagsql"
	"storj.io/shadowgraph/shadow"
)

// accountsDB implements shadow.Accounts.
type accountsDB struct {
	db tagsql.DB
}

const accountColumns = `account_id, username, display_name, bio, location, website,
	profile_image_url, num_followers, num_following, num_tweets, num_likes,
	first_seen_at, last_updated_at, provenance`

// Upsert inserts the account or merges it into the existing row. Null
// fields never overwrite stored values, first_seen_at survives the merge
// and last_updated_at only moves forward.
func (accounts *accountsDB) Upsert(ctx context.Context, account shadow.Account) (_ shadow.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	if err := account.Validate(); err != nil {
		return shadow.Account{}, ErrIntegrity.Wrap(err)
	}

	now := time.Now().UTC()
	var merged shadow.Account
	err = txutil.WithTx(ctx, accounts.db, nil, func(ctx context.Context, tx tagsql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO shadow_accounts (`+accountColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT ( account_id ) DO UPDATE SET
				username          = excluded.username,
				display_name      = COALESCE(excluded.display_name, display_name),
				bio               = COALESCE(excluded.bio, bio),
				location          = COALESCE(excluded.location, location),
				website           = COALESCE(excluded.website, website),
				profile_image_url = COALESCE(excluded.profile_image_url, profile_image_url),
				num_followers     = COALESCE(excluded.num_followers, num_followers),
				num_following     = COALESCE(excluded.num_following, num_following),
				num_tweets        = COALESCE(excluded.num_tweets, num_tweets),
				num_likes         = COALESCE(excluded.num_likes, num_likes),
				last_updated_at   = MAX(last_updated_at, excluded.last_updated_at),
				provenance        = CASE
					WHEN provenance = excluded.provenance THEN provenance
					ELSE 'merged'
				END`,
			account.AccountID, account.Username, account.DisplayName, account.Bio,
			account.Location, account.Website, account.ProfileImageURL,
			account.NumFollowers, account.NumFollowing, account.NumTweets,
			account.NumLikes, now, now, string(account.Provenance),
		)
		if err != nil {
			return err
		}

		merged, err = scanAccount(tx.QueryRowContext(ctx, `
			SELECT `+accountColumns+` FROM shadow_accounts WHERE account_id = ?`,
			account.AccountID,
		))
		return err
	})
	if err != nil {
		return shadow.Account{}, wrapWriteError(err)
	}
	return merged, nil
}

// Get returns the account with the given id.
func (accounts *accountsDB) Get(ctx context.Context, accountID string) (_ shadow.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	account, err := scanAccount(accounts.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM shadow_accounts WHERE account_id = ?`,
		accountID,
	))
	if errs.Is(err, sql.ErrNoRows) {
		return shadow.Account{}, shadow.ErrAccountNotFound.New("%q", accountID)
	}
	if err != nil {
		return shadow.Account{}, ErrDatabase.Wrap(err)
	}
	return account, nil
}

// ResolveUsername returns the id of the most recently updated account
// carrying the username, matched case-insensitively.
func (accounts *accountsDB) ResolveUsername(ctx context.Context, username string) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	var accountID string
	err = accounts.db.QueryRowContext(ctx, `
		SELECT account_id FROM shadow_accounts
		WHERE username = ? COLLATE NOCASE
		ORDER BY last_updated_at DESC
		LIMIT 1`,
		username,
	).Scan(&accountID)
	if errs.Is(err, sql.ErrNoRows) {
		return "", shadow.ErrAccountNotFound.New("%q", username)
	}
	if err != nil {
		return "", ErrDatabase.Wrap(err)
	}
	return accountID, nil
}

// rowScanner matches both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (shadow.Account, error) {
	var account shadow.Account
	var displayName, bio, location, website, imageURL sql.NullString
	var followers, following, tweets, likes sql.NullInt64
	var provenance string

	err := row.Scan(
		&account.AccountID, &account.Username, &displayName, &bio, &location,
		&website, &imageURL, &followers, &following, &tweets, &likes,
		&account.FirstSeenAt, &account.LastUpdatedAt, &provenance,
	)
	if err != nil {
		return shadow.Account{}, err
	}

	account.DisplayName = nullStringPtr(displayName)
	account.Bio = nullStringPtr(bio)
	account.Location = nullStringPtr(location)
	account.Website = nullStringPtr(website)
	account.ProfileImageURL = nullStringPtr(imageURL)
	account.NumFollowers = nullInt64Ptr(followers)
	account.NumFollowing = nullInt64Ptr(following)
	account.NumTweets = nullInt64Ptr(tweets)
	account.NumLikes = nullInt64Ptr(likes)
	account.Provenance = shadow.Provenance(provenance)
	return account, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
