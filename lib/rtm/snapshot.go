// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtm

import (
	"slices"
	"strings"
)

// Snapshot is an immutable point-in-time view of the RTM. Readers may
// share one Snapshot across goroutines. The entity values returned by
// accessors are copies; slices inside them must not be modified.
type Snapshot struct {
	epics       map[string]Epic
	userStories map[string]UserStory
	tests       map[string]Test
	defects     map[string]Defect
	orphaned    []string
}

// NewSnapshot indexes the given entities by identifier and computes the
// orphan set: every user story whose EpicID does not resolve is marked
// Orphaned. Later duplicates of an identifier replace earlier ones.
func NewSnapshot(epics []Epic, userStories []UserStory, tests []Test, defects []Defect) *Snapshot {
	snapshot := &Snapshot{
		epics:       make(map[string]Epic, len(epics)),
		userStories: make(map[string]UserStory, len(userStories)),
		tests:       make(map[string]Test, len(tests)),
		defects:     make(map[string]Defect, len(defects)),
	}
	for _, epic := range epics {
		snapshot.epics[epic.ID] = epic
	}
	for _, story := range userStories {
		_, parentExists := snapshot.epics[story.EpicID]
		story.Orphaned = !parentExists
		story.GDPRFlags = slices.Clone(story.GDPRFlags)
		snapshot.userStories[story.ID] = story
	}
	for _, test := range tests {
		snapshot.tests[test.ID] = test
	}
	for _, defect := range defects {
		snapshot.defects[defect.ID] = defect
	}
	for id, story := range snapshot.userStories {
		if story.Orphaned {
			snapshot.orphaned = append(snapshot.orphaned, id)
		}
	}
	slices.Sort(snapshot.orphaned)
	return snapshot
}

// Epic returns the epic with the given identifier.
func (s *Snapshot) Epic(id string) (Epic, bool) {
	epic, ok := s.epics[id]
	return epic, ok
}

// UserStory returns the user story with the given identifier.
func (s *Snapshot) UserStory(id string) (UserStory, bool) {
	story, ok := s.userStories[id]
	return story, ok
}

// Test returns the test with the given identifier.
func (s *Snapshot) Test(id string) (Test, bool) {
	test, ok := s.tests[id]
	return test, ok
}

// Defect returns the defect with the given identifier.
func (s *Snapshot) Defect(id string) (Defect, bool) {
	defect, ok := s.defects[id]
	return defect, ok
}

// Epics returns every epic sorted by identifier.
func (s *Snapshot) Epics() []Epic { return sortedValues(s.epics) }

// UserStories returns every user story sorted by identifier.
func (s *Snapshot) UserStories() []UserStory { return sortedValues(s.userStories) }

// Tests returns every test sorted by identifier.
func (s *Snapshot) Tests() []Test { return sortedValues(s.tests) }

// Defects returns every defect sorted by identifier.
func (s *Snapshot) Defects() []Defect { return sortedValues(s.defects) }

// Orphaned returns the identifiers of orphaned user stories, sorted.
func (s *Snapshot) Orphaned() []string { return slices.Clone(s.orphaned) }

// Contains reports whether any entity has the given identifier.
func (s *Snapshot) Contains(id string) bool {
	_, epic := s.epics[id]
	_, story := s.userStories[id]
	_, test := s.tests[id]
	_, defect := s.defects[id]
	return epic || story || test || defect
}

// Tracked returns the identifiers of entities that are mirrored as
// remote issues (epics, user stories and defects), sorted. Tests are
// reported but never mirrored.
func (s *Snapshot) Tracked() []string {
	ids := make([]string, 0, len(s.epics)+len(s.userStories)+len(s.defects))
	for id := range s.epics {
		ids = append(ids, id)
	}
	for id := range s.userStories {
		ids = append(ids, id)
	}
	for id := range s.defects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Title returns the title of any entity.
func (s *Snapshot) Title(id string) (string, bool) {
	if epic, ok := s.epics[id]; ok {
		return epic.Title, true
	}
	if story, ok := s.userStories[id]; ok {
		return story.Title, true
	}
	if test, ok := s.tests[id]; ok {
		return test.Title, true
	}
	if defect, ok := s.defects[id]; ok {
		return defect.Title, true
	}
	return "", false
}

// EpicRef returns the epic identifier an entity is labeled under: the
// epic itself, a story's parent, a defect's declared epic (or its
// story's parent), a test's story's parent. Empty when the entity
// declares no epic. The returned epic may not exist.
func (s *Snapshot) EpicRef(id string) string {
	if _, ok := s.epics[id]; ok {
		return id
	}
	if story, ok := s.userStories[id]; ok {
		return story.EpicID
	}
	if defect, ok := s.defects[id]; ok {
		if defect.EpicID != "" {
			return defect.EpicID
		}
		if story, ok := s.userStories[defect.UserStoryID]; ok {
			return story.EpicID
		}
		return ""
	}
	if test, ok := s.tests[id]; ok {
		if story, ok := s.userStories[test.UserStoryID]; ok {
			return story.EpicID
		}
	}
	return ""
}

// EffectiveComponent returns the story's override, or its parent epic's
// component, or "" when the story is orphaned with no override.
func (s *Snapshot) EffectiveComponent(story UserStory) Component {
	if story.Component != "" {
		return story.Component
	}
	if epic, ok := s.epics[story.EpicID]; ok {
		return epic.Component
	}
	return ""
}

// EffectiveRelease returns the story's override, or its parent epic's
// release.
func (s *Snapshot) EffectiveRelease(story UserStory) string {
	if story.Release != "" {
		return story.Release
	}
	if epic, ok := s.epics[story.EpicID]; ok {
		return epic.Release
	}
	return ""
}

func sortedValues[T any](entities map[string]T) []T {
	ids := make([]string, 0, len(entities))
	for id := range entities {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, strings.Compare)
	values := make([]T, len(ids))
	for i, id := range ids {
		values[i] = entities[id]
	}
	return values
}
