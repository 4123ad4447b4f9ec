// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracker is the Issue Client: the narrow view of the remote
// issue tracker that the synchronizer and the label tooling depend on.
//
// [GitHub] implements [Client] on top of lib/github. [Fake] is an
// in-memory implementation with failure injection for tests.
//
// Errors are classified for the sync summary: [IsRemoteUnavailable]
// for a tracker that stayed unreachable or rate limited after retries,
// [IsNotFound] for a missing issue. Anything else is a permanent
// rejection.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Issue is a remote issue as seen during one cycle. It is never
// persisted.
type Issue struct {
	Number    int
	Title     string
	Body      string
	Labels    []string
	UpdatedAt time.Time
	URL       string
}

// Label is a label defined in the remote repository.
type Label struct {
	Name        string
	Color       string
	Description string
}

// Client is the Issue Client. Implementations must be safe for
// concurrent use.
type Client interface {
	// FetchIssue returns one issue.
	FetchIssue(ctx context.Context, number int) (Issue, error)

	// ListIssuesUpdatedSince returns every issue (open or closed)
	// updated at or after since, oldest update first. A zero since
	// lists everything.
	ListIssuesUpdatedSince(ctx context.Context, since time.Time) ([]Issue, error)

	// SetLabels replaces the issue's labels with exactly labels.
	SetLabels(ctx context.Context, number int, labels []string) error

	// ListRepositoryLabels returns the label vocabulary.
	ListRepositoryLabels(ctx context.Context) ([]Label, error)

	// CreateLabel adds a label to the vocabulary.
	CreateLabel(ctx context.Context, label Label) error

	// CreateIssue opens an issue and returns it with its number.
	CreateIssue(ctx context.Context, title, body string, labels []string) (Issue, error)
}

// ErrNotFound is wrapped by errors for issues that do not exist.
var ErrNotFound = errors.New("issue not found")

// RemoteUnavailableError reports an operation that the tracker could
// not serve within the retry budget.
type RemoteUnavailableError struct {
	Op     string
	Number int

	// RetryAfter is the rate-limit wait the tracker asked for, if any.
	RetryAfter time.Duration

	Err error
}

func (e *RemoteUnavailableError) Error() string {
	target := e.Op
	if e.Number > 0 {
		target = fmt.Sprintf("%s #%d", e.Op, e.Number)
	}
	if e.Err == nil {
		return "tracker: " + target + ": remote unavailable"
	}
	return fmt.Sprintf("tracker: %s: remote unavailable: %v", target, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}

// IsRemoteUnavailable reports whether err is (or wraps) a
// [*RemoteUnavailableError].
func IsRemoteUnavailable(err error) bool {
	var unavailable *RemoteUnavailableError
	return errors.As(err, &unavailable)
}

// IsNotFound reports whether err wraps [ErrNotFound].
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
