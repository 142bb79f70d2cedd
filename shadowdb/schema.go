// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package shadowdb

// Schema returns the expected database objects after all migrations have
// run, keyed by object name. Definitions carry collapsed whitespace, the
// same form QuerySchema reports. Keep this in sync with Migration; the
// schema test compares the two.
func Schema() map[string]string {
	return map[string]string{
		"shadow_accounts": `CREATE TABLE shadow_accounts ( ` +
			`account_id TEXT NOT NULL, ` +
			`username TEXT NOT NULL, ` +
			`display_name TEXT, ` +
			`bio TEXT, ` +
			`location TEXT, ` +
			`website TEXT, ` +
			`profile_image_url TEXT, ` +
			`num_followers INTEGER, ` +
			`num_following INTEGER, ` +
			`num_tweets INTEGER, ` +
			`num_likes INTEGER, ` +
			`first_seen_at TIMESTAMP NOT NULL, ` +
			`last_updated_at TIMESTAMP NOT NULL, ` +
			`provenance TEXT NOT NULL, ` +
			`PRIMARY KEY ( account_id ) )`,

		"shadow_edges": `CREATE TABLE shadow_edges ( ` +
			`source_id TEXT NOT NULL, ` +
			`target_id TEXT NOT NULL, ` +
			`direction TEXT NOT NULL, ` +
			`list_type TEXT NOT NULL, ` +
			`seed_username TEXT NOT NULL, ` +
			`captured_at TIMESTAMP NOT NULL, ` +
			`metadata TEXT, ` +
			`PRIMARY KEY ( source_id, target_id, direction, list_type ), ` +
			`FOREIGN KEY ( source_id ) REFERENCES shadow_accounts ( account_id ), ` +
			`FOREIGN KEY ( target_id ) REFERENCES shadow_accounts ( account_id ) )`,

		"shadow_run_metrics": `CREATE TABLE shadow_run_metrics ( ` +
			`id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, ` +
			`seed_id TEXT NOT NULL, ` +
			`list_type TEXT NOT NULL, ` +
			`started_at TIMESTAMP NOT NULL, ` +
			`completed_at TIMESTAMP NOT NULL, ` +
			`captured_count INTEGER NOT NULL DEFAULT 0, ` +
			`claimed_count INTEGER NOT NULL DEFAULT 0, ` +
			`coverage_ratio REAL NOT NULL DEFAULT 0, ` +
			`scroll_rounds INTEGER NOT NULL DEFAULT 0, ` +
			`stagnant_rounds INTEGER NOT NULL DEFAULT 0, ` +
			`error_type TEXT, ` +
			`error_details TEXT, ` +
			`skipped INTEGER NOT NULL DEFAULT 0 )`,

		"idx_shadow_accounts_username": `CREATE INDEX idx_shadow_accounts_username ON shadow_accounts ( username COLLATE NOCASE )`,
		"idx_shadow_edges_source":      `CREATE INDEX idx_shadow_edges_source ON shadow_edges ( source_id )`,
		"idx_shadow_edges_target":      `CREATE INDEX idx_shadow_edges_target ON shadow_edges ( target_id )`,
		"idx_shadow_run_metrics_seed":  `CREATE INDEX idx_shadow_run_metrics_seed ON shadow_run_metrics ( seed_id, list_type, completed_at )`,
	}
}
