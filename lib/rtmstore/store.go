// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmstore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
	"github.com/bureau-foundation/rtmsync/lib/sqlitepool"
)

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the SQLite database file. Created if missing; the parent
	// directory must exist.
	Path string

	// PoolSize defaults to 4.
	PoolSize int

	// Logger defaults to a discard logger.
	Logger *slog.Logger
}

// Store is the Traceability Store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
	locks  keyLocks
}

// Open opens (creating if needed) the store at cfg.Path and brings its
// schema up to date.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Schema:   migrations,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("rtmstore: %w", err)
	}

	store := &Store{pool: pool, logger: logger}

	// Take one connection now so a corrupt file or a schema from a
	// newer binary fails at open rather than mid-cycle.
	if err := pool.Read(context.Background(), func(*sqlite.Conn) error { return nil }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("rtmstore: %w", err)
	}
	return store, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// UpsertEpic replaces the epic with epic.ID and returns the previous
// version, or nil when the epic is new.
func (s *Store) UpsertEpic(ctx context.Context, epic rtm.Epic) (*rtm.Epic, error) {
	var batch Batch
	batch.PutEpic(epic)
	previous, err := s.Commit(ctx, &batch)
	if err != nil {
		return nil, err
	}
	return previous[0].Epic, nil
}

// UpsertUserStory replaces the story with story.ID and returns the
// previous version, or nil when the story is new.
func (s *Store) UpsertUserStory(ctx context.Context, story rtm.UserStory) (*rtm.UserStory, error) {
	var batch Batch
	batch.PutUserStory(story)
	previous, err := s.Commit(ctx, &batch)
	if err != nil {
		return nil, err
	}
	return previous[0].UserStory, nil
}

// UpsertTest replaces the test with test.ID and returns the previous
// version, or nil when the test is new.
func (s *Store) UpsertTest(ctx context.Context, test rtm.Test) (*rtm.Test, error) {
	var batch Batch
	batch.PutTest(test)
	previous, err := s.Commit(ctx, &batch)
	if err != nil {
		return nil, err
	}
	return previous[0].Test, nil
}

// UpsertDefect replaces the defect with defect.ID and returns the
// previous version, or nil when the defect is new.
func (s *Store) UpsertDefect(ctx context.Context, defect rtm.Defect) (*rtm.Defect, error) {
	var batch Batch
	batch.PutDefect(defect)
	previous, err := s.Commit(ctx, &batch)
	if err != nil {
		return nil, err
	}
	return previous[0].Defect, nil
}

// Commit applies every upsert in batch inside one IMMEDIATE
// transaction and returns the previous versions in batch order. On any
// failure nothing is written. Entities are validated before the
// transaction starts; a validation failure is a plain error, every
// failure after that is a [*TransactionError].
func (s *Store) Commit(ctx context.Context, batch *Batch) ([]Previous, error) {
	if batch == nil || len(batch.items) == 0 {
		return nil, nil
	}
	if err := batch.validate(); err != nil {
		return nil, fmt.Errorf("rtmstore: %w", err)
	}

	release := s.locks.acquire(batch.ids())
	defer release()

	previous := make([]Previous, 0, len(batch.items))
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, item := range batch.items {
			prior, err := item.apply(conn)
			if err != nil {
				return err
			}
			previous = append(previous, prior)
		}
		return nil
	})
	if err != nil {
		if IsTransactionFailure(err) {
			return nil, err
		}
		return nil, &TransactionError{Op: "commit", Err: err}
	}

	s.logger.Debug("committed batch", "entities", len(batch.items))
	return previous, nil
}

// ResolveEpic returns the stored epic. found is false, with a nil
// error, when no epic has the identifier.
func (s *Store) ResolveEpic(ctx context.Context, id string) (epic rtm.Epic, found bool, err error) {
	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		stored, err := loadEpic(conn, id)
		if stored != nil {
			epic, found = *stored, true
		}
		return err
	})
	if err != nil {
		return rtm.Epic{}, false, fmt.Errorf("rtmstore: resolve epic %s: %w", id, err)
	}
	return epic, found, nil
}

// ResolveUserStory returns the stored story. found is false, with a
// nil error, when no story has the identifier. The Orphaned flag is
// computed against the same read transaction.
func (s *Store) ResolveUserStory(ctx context.Context, id string) (story rtm.UserStory, found bool, err error) {
	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		stored, err := loadUserStory(conn, id)
		if err != nil || stored == nil {
			return err
		}
		story, found = *stored, true
		parent, err := loadEpic(conn, story.EpicID)
		story.Orphaned = parent == nil
		return err
	})
	if err != nil {
		return rtm.UserStory{}, false, fmt.Errorf("rtmstore: resolve user story %s: %w", id, err)
	}
	return story, found, nil
}

// Snapshot reads every entity in one read transaction and returns the
// immutable view, with orphans computed.
func (s *Store) Snapshot(ctx context.Context) (*rtm.Snapshot, error) {
	var (
		epics   []rtm.Epic
		stories []rtm.UserStory
		tests   []rtm.Test
		defects []rtm.Defect
	)
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, selectEpics+" ORDER BY id", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				epics = append(epics, scanEpic(stmt))
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("epics: %w", err)
		}
		err = sqlitex.Execute(conn, selectUserStories+" ORDER BY id", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				story, err := scanUserStory(stmt)
				stories = append(stories, story)
				return err
			},
		})
		if err != nil {
			return fmt.Errorf("user stories: %w", err)
		}
		err = sqlitex.Execute(conn, selectTests+" ORDER BY id", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tests = append(tests, scanTest(stmt))
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("tests: %w", err)
		}
		err = sqlitex.Execute(conn, selectDefects+" ORDER BY id", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				defects = append(defects, scanDefect(stmt))
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("defects: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rtmstore: snapshot: %w", err)
	}
	return rtm.NewSnapshot(epics, stories, tests, defects), nil
}
