// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool is the SQLite connection pool behind the
// traceability store.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers [Pool.Take]
// a connection, do their work, and [Pool.Put] it back; a connection
// belongs to one goroutine at a time. [Pool.Write] and [Pool.Read] wrap
// the take/transaction/put sequence for the common case.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: readers never block the writer and the writer
//     never blocks readers. A report can be projected while a sync
//     cycle commits.
//   - synchronous=NORMAL: committed transactions survive a process
//     crash. Power loss may drop the last few commits; the next cycle
//     re-derives them from the remote tracker.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock.
//   - foreign_keys=OFF: references between RTM entities may dangle
//     (orphaned stories are a modeled state), so SQLite must not
//     enforce them.
//   - cache_size=-8192 and temp_store=MEMORY.
//
// # Schema
//
// [Config.Schema] is a list of migration scripts. Script i brings the
// database from user_version i to i+1. Migrations run once, on the
// first connection, inside one IMMEDIATE transaction each.
package sqlitepool
