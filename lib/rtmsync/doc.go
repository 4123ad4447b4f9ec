// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtmsync reconciles the traceability store with the remote
// issue tracker.
//
// A cycle ([Syncer.RunCycle]) loads the label vocabulary, the RTM
// snapshot and the sync records, then:
//
//  1. Pulls issues updated since the checkpoint. A mapped issue edited
//     after its last sync has its declared fields (title, priority,
//     epic reference, GDPR flags) merged into the store with a
//     compare-and-swap upsert, retried once.
//  2. Builds the work set: entities whose content hash differs from
//     the recorded one (or that have no record yet), entities merged
//     from the remote, and untracked issues filed through the RTM
//     issue form.
//  3. Runs each item in a bounded worker pool: fetch or create the
//     issue, evaluate the label rules, write labels only when the
//     delta is non-empty, then record the new hash.
//
// Only labels are ever written to an existing issue. Titles and bodies
// are read, never overwritten.
//
// Failures are isolated per item and collected in the [Summary]; a
// cycle only returns an error when it could not start at all. The
// checkpoint moves to the cycle's start time only when every pulled
// issue was processed, so a failed item is pulled again next cycle.
package rtmsync
