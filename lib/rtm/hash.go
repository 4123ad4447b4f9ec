// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtm

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/rtmsync/lib/codec"
)

// labelingFields is the hash input. Field names are part of the
// encoding: renaming one changes every stored hash and forces a full
// relabel on the next cycle.
type labelingFields struct {
	Kind      EntityKind `cbor:"kind"`
	Priority  Priority   `cbor:"priority"`
	Status    Status     `cbor:"status"`
	Component Component  `cbor:"component"`
	Release   string     `cbor:"release"`
	GDPR      []GDPRFlag `cbor:"gdpr"`
	EpicID    string     `cbor:"epic_id"`
	EpicLabel string     `cbor:"epic_label"`
	Resolved  bool       `cbor:"resolved"`

	// A defect's story reference is checked against the story's epic,
	// so the story's existence and epic are inputs too.
	StoryID    string `cbor:"story_id,omitempty"`
	StoryFound bool   `cbor:"story_found,omitempty"`
	StoryEpic  string `cbor:"story_epic,omitempty"`
}

// ContentHash returns the hex BLAKE3 digest of the fields that
// influence an entity's labels: priority, effective component and
// release, status, GDPR flags, the resolved epic with its label, and
// for a defect the story it references.
// Titles and other descriptive text are excluded, so editing them never
// triggers a relabel. Returns false when no entity has the identifier.
func (s *Snapshot) ContentHash(id string) (string, bool) {
	fields, ok := s.labelingFields(id)
	if !ok {
		return "", false
	}
	encoded, err := codec.Marshal(fields)
	if err != nil {
		// Only strings, bools and string slices: encoding cannot fail.
		panic(fmt.Sprintf("rtm: encoding labeling fields for %s: %v", id, err))
	}
	sum := blake3.Sum256(encoded)
	return hex.EncodeToString(sum[:]), true
}

func (s *Snapshot) labelingFields(id string) (labelingFields, bool) {
	var fields labelingFields
	switch {
	case s.hasEpic(id):
		epic := s.epics[id]
		fields = labelingFields{
			Kind:      KindEpic,
			Priority:  epic.Priority,
			Status:    epic.Status,
			Component: epic.Component,
			Release:   epic.Release,
		}
	case s.hasUserStory(id):
		story := s.userStories[id]
		flags := slices.Clone(story.GDPRFlags)
		slices.Sort(flags)
		fields = labelingFields{
			Kind:      KindUserStory,
			Priority:  story.Priority,
			Status:    story.Status,
			Component: s.EffectiveComponent(story),
			Release:   s.EffectiveRelease(story),
			GDPR:      slices.Compact(flags),
		}
	case s.hasDefect(id):
		defect := s.defects[id]
		fields = labelingFields{
			Kind:     KindDefect,
			Priority: defect.Priority,
			Status:   defect.Status,
			StoryID:  defect.UserStoryID,
		}
		if story, ok := s.userStories[defect.UserStoryID]; ok {
			fields.StoryFound = true
			fields.StoryEpic = story.EpicID
		}
	case s.hasTest(id):
		test := s.tests[id]
		fields = labelingFields{Kind: KindTest, Status: Status(test.Status)}
	default:
		return labelingFields{}, false
	}

	fields.EpicID = s.EpicRef(id)
	if epic, ok := s.epics[fields.EpicID]; ok {
		fields.Resolved = true
		fields.EpicLabel = epic.EffectiveLabel()
		if fields.Kind == KindDefect {
			fields.Component = epic.Component
			fields.Release = epic.Release
		}
	}
	return fields, true
}

func (s *Snapshot) hasEpic(id string) bool      { _, ok := s.epics[id]; return ok }
func (s *Snapshot) hasUserStory(id string) bool { _, ok := s.userStories[id]; return ok }
func (s *Snapshot) hasTest(id string) bool      { _, ok := s.tests[id]; return ok }
func (s *Snapshot) hasDefect(id string) bool    { _, ok := s.defects[id]; return ok }
