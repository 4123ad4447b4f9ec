// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtm

// FailureKind classifies a warning or per-item failure in a sync
// summary.
type FailureKind string

const (
	// FailureNotFound: a referenced entity does not exist.
	FailureNotFound FailureKind = "NotFound"

	// FailureInvalidMapping: a reference is malformed, or a declared
	// relationship contradicts the RTM (a story filed under the wrong
	// epic, a component that disagrees with the epic's).
	FailureInvalidMapping FailureKind = "InvalidMapping"

	// FailureRemoteUnavailable: the tracker stayed unreachable or rate
	// limited after the retry budget was spent.
	FailureRemoteUnavailable FailureKind = "RemoteUnavailable"

	// FailureRemoteRejected: the tracker answered with a permanent
	// error (the issue was deleted, the request was invalid).
	FailureRemoteRejected FailureKind = "RemoteRejected"

	// FailureLabelVocabularyMismatch: a computed label does not exist
	// on the platform and was dropped.
	FailureLabelVocabularyMismatch FailureKind = "LabelVocabularyMismatch"

	// FailureStoreTransaction: a store transaction conflicted or failed
	// and the retry did not succeed.
	FailureStoreTransaction FailureKind = "StoreTransactionFailure"

	// FailureMissingPriority: no valid priority was declared. Warning
	// only.
	FailureMissingPriority FailureKind = "MissingPriority"
)
