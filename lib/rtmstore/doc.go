// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtmstore is the Traceability Store: the only writer of
// canonical RTM state. It persists epics, user stories, tests, defects,
// sync records and the pull checkpoint in SQLite through
// [sqlitepool].
//
// Writes go through [Store.Commit], which applies a [Batch] of upserts
// in one IMMEDIATE transaction: every upsert lands or none does. The
// single-entity Upsert methods are one-item batches.
//
// Two mechanisms guard concurrent writers. A per-key lock arena gives
// one in-process writer per identifier, so two goroutines committing
// the same entity queue instead of racing. Every entity row carries a
// version column; an entity passed in with a non-zero Version is
// written only if the stored version still matches (compare-and-swap),
// which catches read-modify-write races across processes and across
// snapshot reads. A mismatch fails the whole batch with a
// [*TransactionError] whose Conflict field is set.
//
// Missing keys are not errors: [Store.ResolveEpic] and
// [Store.ResolveUserStory] report found == false.
package rtmstore
