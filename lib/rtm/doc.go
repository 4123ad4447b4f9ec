// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtm defines the Requirements Traceability Matrix model shared
// by every rtmsync component: the four entity kinds (Epic, UserStory,
// Test, Defect), their enumerations, the immutable [Snapshot] the rule
// engine and report projector read from, the content hash that drives
// drift detection, and the failure kinds reported in sync summaries.
//
// Identifiers are stable strings with a kind prefix: EP-00004 (epic),
// US-00012 (user story), TC-00031 (test), DEF-00007 (defect).
//
// A user story belongs to exactly one epic. When that epic does not
// exist the story is orphaned: it stays in the model, is reported, and
// is labeled without inherited epic data. Orphaning is never an error.
package rtm
