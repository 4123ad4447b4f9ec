// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmsync

import (
	"context"
	"fmt"
	"slices"

	"github.com/bureau-foundation/rtmsync/lib/labelrules"
)

// Preview is the label delta a cycle would write to one issue.
type Preview struct {
	IssueNumber int `json:"issue_number"`

	// EntityID is the tracked entity the issue mirrors, empty for an
	// untracked issue.
	EntityID string `json:"entity_id,omitempty"`

	// Form reports whether the body was recognized as an issue form.
	// Untracked issues without a form are left alone by a cycle.
	Form bool `json:"form"`

	Current  []string             `json:"current"`
	Labels   []string             `json:"labels"`
	Added    []string             `json:"added,omitempty"`
	Removed  []string             `json:"removed,omitempty"`
	Dropped  []string             `json:"dropped,omitempty"`
	Warnings []labelrules.Warning `json:"warnings,omitempty"`
	Orphaned bool                 `json:"orphaned,omitempty"`
}

// Preview evaluates the rules for one issue against the current store
// and vocabulary without writing anything.
func (s *Syncer) Preview(ctx context.Context, number int) (*Preview, error) {
	vocabulary, err := s.loadVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading snapshot: %w", err)
	}
	records, err := s.store.SyncRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading sync records: %w", err)
	}
	issue, err := s.tracker.FetchIssue(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: fetching issue #%d: %w", number, err)
	}

	form, isForm := labelrules.ParseIssueForm(issue.Body)
	preview := &Preview{IssueNumber: number, Form: isForm, Current: slices.Clone(issue.Labels)}
	for id, record := range records {
		if record.IssueNumber == number {
			preview.EntityID = id
			break
		}
	}
	if preview.EntityID == "" && isForm && slices.Contains(snapshot.Tracked(), form.Fields.EntityID) {
		preview.EntityID = form.Fields.EntityID
	}

	fields := form.Fields
	if preview.EntityID != "" {
		fields, _ = labelrules.FieldsFor(snapshot, preview.EntityID)
	} else if !isForm {
		preview.Labels = slices.Clone(issue.Labels)
		return preview, nil
	}

	evaluation := labelrules.Evaluate(labelrules.Input{
		Fields:        fields,
		Body:          issue.Body,
		CurrentLabels: issue.Labels,
	}, snapshot, vocabulary)
	preview.Labels = evaluation.Labels
	preview.Added = evaluation.Added
	preview.Removed = evaluation.Removed
	preview.Dropped = evaluation.Dropped
	preview.Warnings = evaluation.Warnings
	preview.Orphaned = evaluation.Orphaned
	return preview, nil
}
