// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/rtmsync/lib/sqlitepool"
)

var testSchema = []string{
	`CREATE TABLE items (id TEXT PRIMARY KEY, value INTEGER NOT NULL);`,
	`ALTER TABLE items ADD COLUMN note TEXT NOT NULL DEFAULT '';`,
}

func TestOpenAppliesPragmas(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "test.db"), testSchema)

	err := pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		if got := queryText(t, conn, "PRAGMA journal_mode"); got != "wal" {
			t.Errorf("journal_mode = %q, want wal", got)
		}
		if got := queryText(t, conn, "PRAGMA synchronous"); got != "1" {
			t.Errorf("synchronous = %q, want 1 (NORMAL)", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestMigrationsRunOnceAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	pool := openTestPool(t, path, testSchema[:1])
	err := pool.Write(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO items (id, value) VALUES (?, ?)", &sqlitex.ExecOptions{
			Args: []any{"a", 1},
		})
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen with the second migration: existing rows survive and the
	// new column is present.
	pool = openTestPool(t, path, testSchema)
	err = pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		if got := queryText(t, conn, "PRAGMA user_version"); got != "2" {
			t.Errorf("user_version = %q, want 2", got)
		}
		if got := queryText(t, conn, "SELECT id || ':' || note FROM items"); got != "a:" {
			t.Errorf("row = %q, want %q", got, "a:")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestNewerSchemaIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	pool := openTestPool(t, path, testSchema)
	if err := pool.Read(context.Background(), func(*sqlite.Conn) error { return nil }); err != nil {
		t.Fatalf("Read: %v", err)
	}
	pool.Close()

	older := openTestPool(t, path, testSchema[:1])
	_, err := older.Take(context.Background())
	if err == nil || !strings.Contains(err.Error(), "newer than this binary") {
		t.Fatalf("Take on newer schema: err = %v", err)
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "test.db"), testSchema)
	sentinel := errors.New("abort")

	err := pool.Write(context.Background(), func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "INSERT INTO items (id, value) VALUES ('x', 1)", nil); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Write error = %v, want sentinel", err)
	}

	err = pool.Read(context.Background(), func(conn *sqlite.Conn) error {
		if got := queryText(t, conn, "SELECT count(*) FROM items"); got != "0" {
			t.Errorf("rows after rollback = %s, want 0", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestConcurrentWritersSerialize(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "test.db"), testSchema)
	ctx := context.Background()
	if err := pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO items (id, value) VALUES ('counter', 0)", nil)
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const writers = 8
	var waitGroup sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			errs <- pool.Write(ctx, func(conn *sqlite.Conn) error {
				return sqlitex.Execute(conn, "UPDATE items SET value = value + 1 WHERE id = 'counter'", nil)
			})
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("writer: %v", err)
		}
	}

	err := pool.Read(ctx, func(conn *sqlite.Conn) error {
		if got := queryText(t, conn, "SELECT value FROM items WHERE id = 'counter'"); got != "8" {
			t.Errorf("counter = %s, want 8", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("Open with empty path succeeded")
	}
}

func TestIsBusy(t *testing.T) {
	if sqlitepool.IsBusy(nil) {
		t.Error("IsBusy(nil) = true")
	}
	if sqlitepool.IsBusy(errors.New("plain")) {
		t.Error("IsBusy(plain error) = true")
	}
}

func openTestPool(t *testing.T, path string, schema []string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 4, Schema: schema})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func queryText(t *testing.T, conn *sqlite.Conn, query string) string {
	t.Helper()
	var result string
	err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return result
}
