// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package labelrules computes the label set of an issue from the
// issue's declared fields and an RTM snapshot.
//
// [Evaluate] is a pure function. Each rule stage (priority, epic and
// component, release, GDPR, status) reads the same immutable input and
// produces its own labels and warnings; the stage outputs are then
// sanitized against the platform vocabulary and merged with the labels
// already on the issue:
//
//   - A computed label in a single-valued category (priority, epic,
//     component, release, status) replaces any other label of that
//     category on the issue. The default status/backlog only applies
//     when the issue has no status label at all.
//   - GDPR labels are added; existing ones are kept.
//   - Labels outside the vocabulary are never returned.
//   - needs-triage is removed when an epic or component label was
//     assigned, and left alone otherwise.
//
// Running Evaluate again with the returned labels as the current
// labels yields the same set and an empty delta.
//
// [ParseIssueForm] reads the declared fields out of an issue-form body.
package labelrules
