// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmstore

import (
	"errors"
	"fmt"
)

// TransactionError reports a store transaction that did not commit.
// Conflict is set when a compare-and-swap found a different stored
// version than the caller expected; otherwise Err holds the underlying
// SQLite or context error.
type TransactionError struct {
	Op       string
	EntityID string

	Conflict bool
	Expected int64
	Actual   int64

	Err error
}

func (e *TransactionError) Error() string {
	if e.Conflict {
		return fmt.Sprintf("rtmstore: %s %s: version conflict: expected %d, stored %d",
			e.Op, e.EntityID, e.Expected, e.Actual)
	}
	if e.EntityID != "" {
		return fmt.Sprintf("rtmstore: %s %s: %v", e.Op, e.EntityID, e.Err)
	}
	return fmt.Sprintf("rtmstore: %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IsTransactionFailure reports whether err is (or wraps) a
// [*TransactionError].
func IsTransactionFailure(err error) bool {
	var txErr *TransactionError
	return errors.As(err, &txErr)
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	var txErr *TransactionError
	return errors.As(err, &txErr) && txErr.Conflict
}
