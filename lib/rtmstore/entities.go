// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmstore

import (
	"fmt"
	"slices"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/rtmsync/lib/codec"
	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

const (
	selectEpics       = "SELECT id, title, priority, component, release, status, label, version FROM epics"
	selectUserStories = "SELECT id, epic_id, title, priority, status, gdpr_flags, component, release, version FROM user_stories"
	selectTests       = "SELECT id, user_story_id, type, status, title, version FROM tests"
	selectDefects     = "SELECT id, title, priority, status, epic_id, user_story_id, version FROM defects"
)

func scanEpic(stmt *sqlite.Stmt) rtm.Epic {
	return rtm.Epic{
		ID:        stmt.ColumnText(0),
		Title:     stmt.ColumnText(1),
		Priority:  rtm.Priority(stmt.ColumnText(2)),
		Component: rtm.Component(stmt.ColumnText(3)),
		Release:   stmt.ColumnText(4),
		Status:    rtm.Status(stmt.ColumnText(5)),
		Label:     stmt.ColumnText(6),
		Version:   stmt.ColumnInt64(7),
	}
}

func scanUserStory(stmt *sqlite.Stmt) (rtm.UserStory, error) {
	story := rtm.UserStory{
		ID:        stmt.ColumnText(0),
		EpicID:    stmt.ColumnText(1),
		Title:     stmt.ColumnText(2),
		Priority:  rtm.Priority(stmt.ColumnText(3)),
		Status:    rtm.Status(stmt.ColumnText(4)),
		Component: rtm.Component(stmt.ColumnText(6)),
		Release:   stmt.ColumnText(7),
		Version:   stmt.ColumnInt64(8),
	}
	blob := make([]byte, stmt.ColumnLen(5))
	stmt.ColumnBytes(5, blob)
	if err := codec.Unmarshal(blob, &story.GDPRFlags); err != nil {
		return story, fmt.Errorf("decoding GDPR flags of %s: %w", story.ID, err)
	}
	return story, nil
}

func scanTest(stmt *sqlite.Stmt) rtm.Test {
	return rtm.Test{
		ID:          stmt.ColumnText(0),
		UserStoryID: stmt.ColumnText(1),
		Type:        rtm.TestType(stmt.ColumnText(2)),
		Status:      rtm.TestStatus(stmt.ColumnText(3)),
		Title:       stmt.ColumnText(4),
		Version:     stmt.ColumnInt64(5),
	}
}

func scanDefect(stmt *sqlite.Stmt) rtm.Defect {
	return rtm.Defect{
		ID:          stmt.ColumnText(0),
		Title:       stmt.ColumnText(1),
		Priority:    rtm.Priority(stmt.ColumnText(2)),
		Status:      rtm.Status(stmt.ColumnText(3)),
		EpicID:      stmt.ColumnText(4),
		UserStoryID: stmt.ColumnText(5),
		Version:     stmt.ColumnInt64(6),
	}
}

// loadOne runs query with id bound and scans at most one row. Returns
// nil when no row matches.
func loadOne[T any](conn *sqlite.Conn, query, id string, scan func(*sqlite.Stmt) (T, error)) (*T, error) {
	var found *T
	err := sqlitex.Execute(conn, query+" WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value, err := scan(stmt)
			found = &value
			return err
		},
	})
	return found, err
}

func infallible[T any](scan func(*sqlite.Stmt) T) func(*sqlite.Stmt) (T, error) {
	return func(stmt *sqlite.Stmt) (T, error) { return scan(stmt), nil }
}

func loadEpic(conn *sqlite.Conn, id string) (*rtm.Epic, error) {
	return loadOne(conn, selectEpics, id, infallible(scanEpic))
}

func loadUserStory(conn *sqlite.Conn, id string) (*rtm.UserStory, error) {
	return loadOne(conn, selectUserStories, id, scanUserStory)
}

func loadTest(conn *sqlite.Conn, id string) (*rtm.Test, error) {
	return loadOne(conn, selectTests, id, infallible(scanTest))
}

func loadDefect(conn *sqlite.Conn, id string) (*rtm.Defect, error) {
	return loadOne(conn, selectDefects, id, infallible(scanDefect))
}

// compareAndSwap loads the stored row, checks the caller's expected
// version, and runs the write with the next version. The write's
// statement must be conditioned on "version = <current>" for updates
// so a row changed behind the transaction's back is caught by the
// change count.
func compareAndSwap[T any](
	conn *sqlite.Conn,
	id string,
	expected int64,
	load func(*sqlite.Conn, string) (*T, error),
	version func(*T) int64,
	write func(conn *sqlite.Conn, next, current int64) error,
) (*T, error) {
	previous, err := load(conn, id)
	if err != nil {
		return nil, &TransactionError{Op: "load", EntityID: id, Err: err}
	}
	var current int64
	if previous != nil {
		current = version(previous)
	}
	if expected != 0 && expected != current {
		return nil, &TransactionError{Op: "upsert", EntityID: id, Conflict: true, Expected: expected, Actual: current}
	}
	if err := write(conn, current+1, current); err != nil {
		return nil, &TransactionError{Op: "upsert", EntityID: id, Err: err}
	}
	if conn.Changes() != 1 {
		return nil, &TransactionError{Op: "upsert", EntityID: id, Conflict: true, Expected: current, Actual: -1}
	}
	return previous, nil
}

func writeEpic(conn *sqlite.Conn, epic rtm.Epic) (*rtm.Epic, error) {
	return compareAndSwap(conn, epic.ID, epic.Version, loadEpic,
		func(e *rtm.Epic) int64 { return e.Version },
		func(conn *sqlite.Conn, next, current int64) error {
			return sqlitex.Execute(conn, `
				INSERT INTO epics (id, title, priority, component, release, status, label, version)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					title = excluded.title,
					priority = excluded.priority,
					component = excluded.component,
					release = excluded.release,
					status = excluded.status,
					label = excluded.label,
					version = excluded.version
				WHERE epics.version = ?`,
				&sqlitex.ExecOptions{Args: []any{
					epic.ID, epic.Title, string(epic.Priority), string(epic.Component),
					epic.Release, string(epic.Status), epic.Label, next, current,
				}})
		})
}

func writeUserStory(conn *sqlite.Conn, story rtm.UserStory) (*rtm.UserStory, error) {
	flags := slices.Clone(story.GDPRFlags)
	slices.Sort(flags)
	flags = slices.Compact(flags)
	if flags == nil {
		flags = []rtm.GDPRFlag{}
	}
	encodedFlags, err := codec.Marshal(flags)
	if err != nil {
		return nil, &TransactionError{Op: "encode", EntityID: story.ID, Err: err}
	}

	return compareAndSwap(conn, story.ID, story.Version, loadUserStory,
		func(s *rtm.UserStory) int64 { return s.Version },
		func(conn *sqlite.Conn, next, current int64) error {
			return sqlitex.Execute(conn, `
				INSERT INTO user_stories (id, epic_id, title, priority, status, gdpr_flags, component, release, version)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					epic_id = excluded.epic_id,
					title = excluded.title,
					priority = excluded.priority,
					status = excluded.status,
					gdpr_flags = excluded.gdpr_flags,
					component = excluded.component,
					release = excluded.release,
					version = excluded.version
				WHERE user_stories.version = ?`,
				&sqlitex.ExecOptions{Args: []any{
					story.ID, story.EpicID, story.Title, string(story.Priority), string(story.Status),
					encodedFlags, string(story.Component), story.Release, next, current,
				}})
		})
}

func writeTest(conn *sqlite.Conn, test rtm.Test) (*rtm.Test, error) {
	return compareAndSwap(conn, test.ID, test.Version, loadTest,
		func(t *rtm.Test) int64 { return t.Version },
		func(conn *sqlite.Conn, next, current int64) error {
			return sqlitex.Execute(conn, `
				INSERT INTO tests (id, user_story_id, type, status, title, version)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					user_story_id = excluded.user_story_id,
					type = excluded.type,
					status = excluded.status,
					title = excluded.title,
					version = excluded.version
				WHERE tests.version = ?`,
				&sqlitex.ExecOptions{Args: []any{
					test.ID, test.UserStoryID, string(test.Type), string(test.Status), test.Title, next, current,
				}})
		})
}

func writeDefect(conn *sqlite.Conn, defect rtm.Defect) (*rtm.Defect, error) {
	return compareAndSwap(conn, defect.ID, defect.Version, loadDefect,
		func(d *rtm.Defect) int64 { return d.Version },
		func(conn *sqlite.Conn, next, current int64) error {
			return sqlitex.Execute(conn, `
				INSERT INTO defects (id, title, priority, status, epic_id, user_story_id, version)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					title = excluded.title,
					priority = excluded.priority,
					status = excluded.status,
					epic_id = excluded.epic_id,
					user_story_id = excluded.user_story_id,
					version = excluded.version
				WHERE defects.version = ?`,
				&sqlitex.ExecOptions{Args: []any{
					defect.ID, defect.Title, string(defect.Priority), string(defect.Status),
					defect.EpicID, defect.UserStoryID, next, current,
				}})
		})
}
