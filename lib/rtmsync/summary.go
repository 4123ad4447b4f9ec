// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmsync

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/rtmsync/lib/labelrules"
	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// Outcome is what happened to one work item.
type Outcome string

const (
	// OutcomeUpdated: labels were written.
	OutcomeUpdated Outcome = "updated"

	// OutcomeUnchanged: the issue already had the computed labels.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeCreated: the issue was created and labeled.
	OutcomeCreated Outcome = "created"

	// OutcomeFailed: see the item's Failure.
	OutcomeFailed Outcome = "failed"

	// OutcomeNotReached: the cycle timed out or was cancelled before
	// the item started.
	OutcomeNotReached Outcome = "not-reached"
)

// Failure is one aggregated error.
type Failure struct {
	EntityID    string          `json:"entity_id,omitempty"`
	IssueNumber int             `json:"issue_number,omitempty"`
	Kind        rtm.FailureKind `json:"kind"`
	Reason      string          `json:"reason"`
}

// ItemResult is the outcome of one work item. EntityID is empty for an
// untracked issue triaged from its issue form.
type ItemResult struct {
	EntityID    string               `json:"entity_id,omitempty"`
	IssueNumber int                  `json:"issue_number,omitempty"`
	Outcome     Outcome              `json:"outcome"`
	Added       []string             `json:"added,omitempty"`
	Removed     []string             `json:"removed,omitempty"`
	Warnings    []labelrules.Warning `json:"warnings,omitempty"`
	Failure     *Failure             `json:"failure,omitempty"`
}

// Summary is the operator report of one cycle.
type Summary struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Pulled counts the remote issues listed since the checkpoint.
	Pulled int `json:"pulled"`

	// Merged lists entities updated from remote edits.
	Merged []string `json:"merged,omitempty"`

	Items []ItemResult `json:"items"`

	// Failures holds every item failure plus failures outside any
	// item (listing, merging).
	Failures []Failure `json:"failures,omitempty"`

	// Orphaned lists user stories whose epic does not exist.
	Orphaned []string `json:"orphaned,omitempty"`

	CheckpointAdvanced bool `json:"checkpoint_advanced"`
}

// Count returns the number of items with the outcome.
func (s *Summary) Count(outcome Outcome) int {
	var count int
	for _, item := range s.Items {
		if item.Outcome == outcome {
			count++
		}
	}
	return count
}

// Deferred counts items that must be retried in a later cycle.
func (s *Summary) Deferred() int {
	return s.Count(OutcomeFailed) + s.Count(OutcomeNotReached)
}

// Warnings counts rule-engine warnings across items.
func (s *Summary) Warnings() int {
	var count int
	for _, item := range s.Items {
		count += len(item.Warnings)
	}
	return count
}

func (s *Summary) fail(failure Failure) {
	s.Failures = append(s.Failures, failure)
}

// WriteText renders the summary as an aligned table followed by the
// failures and warnings.
func (s *Summary) WriteText(w io.Writer) error {
	table := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(table, "ITEM\tISSUE\tOUTCOME\tADDED\tREMOVED\n")
	for _, item := range s.Items {
		name := item.EntityID
		if name == "" {
			name = "(triage)"
		}
		issue := "-"
		if item.IssueNumber > 0 {
			issue = fmt.Sprintf("#%d", item.IssueNumber)
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%d\t%d\n", name, issue, item.Outcome, len(item.Added), len(item.Removed))
	}
	if err := table.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d item(s): %d updated, %d created, %d unchanged, %d failed, %d not reached; %d pulled, %d merged\n",
		len(s.Items), s.Count(OutcomeUpdated), s.Count(OutcomeCreated), s.Count(OutcomeUnchanged),
		s.Count(OutcomeFailed), s.Count(OutcomeNotReached), s.Pulled, len(s.Merged))

	for _, failure := range s.Failures {
		fmt.Fprintf(w, "error: %s %s: %s\n", subject(failure.EntityID, failure.IssueNumber), failure.Kind, failure.Reason)
	}
	for _, item := range s.Items {
		for _, warning := range item.Warnings {
			fmt.Fprintf(w, "warning: %s %s: %s\n", subject(item.EntityID, item.IssueNumber), warning.Kind, warning.Message)
		}
	}
	if len(s.Orphaned) > 0 {
		fmt.Fprintf(w, "orphaned user stories: %v\n", s.Orphaned)
	}
	if !s.CheckpointAdvanced {
		fmt.Fprintln(w, "checkpoint not advanced; pulled issues will be revisited")
	}
	_, err := fmt.Fprintf(w, "cycle took %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	return err
}

func subject(entityID string, number int) string {
	switch {
	case entityID != "" && number > 0:
		return fmt.Sprintf("%s (#%d)", entityID, number)
	case entityID != "":
		return entityID
	case number > 0:
		return fmt.Sprintf("#%d", number)
	}
	return "cycle"
}
