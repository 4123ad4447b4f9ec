// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmstore

// migrations is applied by sqlitepool in order. Append only: existing
// entries have already run against deployed databases.
var migrations = []string{
	`
	CREATE TABLE epics (
		id        TEXT PRIMARY KEY,
		title     TEXT NOT NULL,
		priority  TEXT NOT NULL,
		component TEXT NOT NULL,
		release   TEXT NOT NULL,
		status    TEXT NOT NULL,
		label     TEXT NOT NULL,
		version   INTEGER NOT NULL
	);

	CREATE TABLE user_stories (
		id         TEXT PRIMARY KEY,
		epic_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		priority   TEXT NOT NULL,
		status     TEXT NOT NULL,
		gdpr_flags BLOB NOT NULL,
		component  TEXT NOT NULL,
		release    TEXT NOT NULL,
		version    INTEGER NOT NULL
	);
	CREATE INDEX user_stories_epic ON user_stories (epic_id);

	CREATE TABLE tests (
		id            TEXT PRIMARY KEY,
		user_story_id TEXT NOT NULL,
		type          TEXT NOT NULL,
		status        TEXT NOT NULL,
		title         TEXT NOT NULL,
		version       INTEGER NOT NULL
	);
	CREATE INDEX tests_user_story ON tests (user_story_id);

	CREATE TABLE defects (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		priority      TEXT NOT NULL,
		status        TEXT NOT NULL,
		epic_id       TEXT NOT NULL,
		user_story_id TEXT NOT NULL,
		version       INTEGER NOT NULL
	);

	CREATE TABLE sync_records (
		local_entity_id TEXT PRIMARY KEY,
		remote_issue_id INTEGER NOT NULL UNIQUE,
		content_hash    TEXT NOT NULL,
		last_synced_at  TEXT NOT NULL
	);

	CREATE TABLE sync_checkpoint (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		updated_since TEXT NOT NULL
	);
	`,
	`
	ALTER TABLE sync_records ADD COLUMN declared BLOB;
	`,
}
