// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package labelrules

import (
	"slices"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// Fields are the labeling-relevant declarations of one issue. They
// come either from a tracked RTM entity ([FieldsFor]) or from an
// issue-form body ([ParseIssueForm]).
type Fields struct {
	// EntityID is the RTM entity the issue mirrors. Empty for an
	// untracked issue.
	EntityID string

	// Kind is EntityID's kind. Empty for an untracked issue.
	Kind rtm.EntityKind

	// Priority is the declared priority as written, parsed by the
	// priority stage.
	Priority string

	// EpicRef is the declared epic identifier. For a tracked story it
	// is the story's parent; for an epic, the epic itself.
	EpicRef string

	// UserStoryRef is the declared story identifier of a defect or
	// form issue.
	UserStoryRef string

	// Component is a component the issue declares for itself. It must
	// agree with the epic's component.
	Component string

	// ComponentOverride and ReleaseOverride are a user story's own
	// values, which replace the epic's.
	ComponentOverride rtm.Component
	ReleaseOverride   string

	GDPR []rtm.GDPRFlag

	// Status is the RTM workflow status. Empty or backlog leaves the
	// status stage to the body's readiness marker and the default.
	Status rtm.Status
}

// FieldsFor returns the fields of a tracked entity in the snapshot.
// Returns false when the snapshot has no epic, story or defect with
// the identifier.
func FieldsFor(snapshot *rtm.Snapshot, id string) (Fields, bool) {
	if epic, ok := snapshot.Epic(id); ok {
		return Fields{
			EntityID: id,
			Kind:     rtm.KindEpic,
			Priority: string(epic.Priority),
			EpicRef:  id,
			Status:   epic.Status,
		}, true
	}
	if story, ok := snapshot.UserStory(id); ok {
		return Fields{
			EntityID:          id,
			Kind:              rtm.KindUserStory,
			Priority:          string(story.Priority),
			EpicRef:           story.EpicID,
			ComponentOverride: story.Component,
			ReleaseOverride:   story.Release,
			GDPR:              slices.Clone(story.GDPRFlags),
			Status:            story.Status,
		}, true
	}
	if defect, ok := snapshot.Defect(id); ok {
		return Fields{
			EntityID:     id,
			Kind:         rtm.KindDefect,
			Priority:     string(defect.Priority),
			EpicRef:      defect.EpicID,
			UserStoryRef: defect.UserStoryID,
			Status:       defect.Status,
		}, true
	}
	return Fields{}, false
}
