// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtm

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode"
)

// EntityKind names one of the four RTM entity kinds.
type EntityKind string

const (
	KindEpic      EntityKind = "epic"
	KindUserStory EntityKind = "user-story"
	KindTest      EntityKind = "test"
	KindDefect    EntityKind = "defect"
)

var idPatterns = map[EntityKind]*regexp.Regexp{
	KindEpic:      regexp.MustCompile(`^EP-\d{3,}$`),
	KindUserStory: regexp.MustCompile(`^US-\d{3,}$`),
	KindTest:      regexp.MustCompile(`^TC-\d{3,}$`),
	KindDefect:    regexp.MustCompile(`^DEF-\d{3,}$`),
}

// KindOf reports which entity kind an identifier belongs to. Returns
// false when the identifier is malformed.
func KindOf(id string) (EntityKind, bool) {
	for _, kind := range []EntityKind{KindEpic, KindUserStory, KindTest, KindDefect} {
		if idPatterns[kind].MatchString(id) {
			return kind, true
		}
	}
	return "", false
}

// ValidID reports whether id is a well-formed identifier of the given
// kind.
func ValidID(kind EntityKind, id string) bool {
	pattern, ok := idPatterns[kind]
	return ok && pattern.MatchString(id)
}

// Epic is a large unit of work grouping user stories.
type Epic struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Priority  Priority  `json:"priority" yaml:"priority"`
	Component Component `json:"component" yaml:"component"`
	Release   string    `json:"release,omitempty" yaml:"release,omitempty"`
	Status    Status    `json:"status" yaml:"status"`

	// Label is the slug used in the epic/<label> issue label. Empty
	// means derived from Title; see [Epic.EffectiveLabel].
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Version is the stored optimistic-concurrency counter. Zero on an
	// entity passed to the store means "no expectation".
	Version int64 `json:"-" yaml:"-"`
}

// EffectiveLabel returns Label, or the slug of Title when Label is
// empty.
func (e Epic) EffectiveLabel() string {
	if e.Label != "" {
		return e.Label
	}
	return Slug(e.Title)
}

// Validate checks the identifier and enumerated fields.
func (e Epic) Validate() error {
	var errs []error
	if !ValidID(KindEpic, e.ID) {
		errs = append(errs, fmt.Errorf("invalid epic id %q", e.ID))
	}
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, fmt.Errorf("epic %s: title is required", e.ID))
	}
	if !isValid(e.Priority, Priorities) {
		errs = append(errs, fmt.Errorf("epic %s: invalid priority %q", e.ID, e.Priority))
	}
	if !isValid(e.Component, Components) {
		errs = append(errs, fmt.Errorf("epic %s: invalid component %q", e.ID, e.Component))
	}
	if !isValid(e.Status, Statuses) {
		errs = append(errs, fmt.Errorf("epic %s: invalid status %q", e.ID, e.Status))
	}
	if e.EffectiveLabel() == "" {
		errs = append(errs, fmt.Errorf("epic %s: label is empty and cannot be derived from the title", e.ID))
	}
	return errors.Join(errs...)
}

// UserStory is a unit of user-facing functionality under one epic.
type UserStory struct {
	ID        string     `json:"id" yaml:"id"`
	EpicID    string     `json:"epic_id" yaml:"epic_id"`
	Title     string     `json:"title" yaml:"title"`
	Priority  Priority   `json:"priority" yaml:"priority"`
	Status    Status     `json:"status" yaml:"status"`
	GDPRFlags []GDPRFlag `json:"gdpr_flags,omitempty" yaml:"gdpr_flags,omitempty"`

	// Component and Release override the parent epic's values when
	// non-empty.
	Component Component `json:"component,omitempty" yaml:"component,omitempty"`
	Release   string    `json:"release,omitempty" yaml:"release,omitempty"`

	Version int64 `json:"-" yaml:"-"`

	// Orphaned is computed by [NewSnapshot] and never stored.
	Orphaned bool `json:"orphaned,omitempty" yaml:"-"`
}

// Validate checks the identifier, the parent reference format and the
// enumerated fields. It does not check that the parent epic exists:
// a missing parent makes the story orphaned, not invalid.
func (s UserStory) Validate() error {
	var errs []error
	if !ValidID(KindUserStory, s.ID) {
		errs = append(errs, fmt.Errorf("invalid user story id %q", s.ID))
	}
	if !ValidID(KindEpic, s.EpicID) {
		errs = append(errs, fmt.Errorf("user story %s: invalid epic reference %q", s.ID, s.EpicID))
	}
	if strings.TrimSpace(s.Title) == "" {
		errs = append(errs, fmt.Errorf("user story %s: title is required", s.ID))
	}
	if !isValid(s.Priority, Priorities) {
		errs = append(errs, fmt.Errorf("user story %s: invalid priority %q", s.ID, s.Priority))
	}
	if !isValid(s.Status, Statuses) {
		errs = append(errs, fmt.Errorf("user story %s: invalid status %q", s.ID, s.Status))
	}
	if s.Component != "" && !isValid(s.Component, Components) {
		errs = append(errs, fmt.Errorf("user story %s: invalid component %q", s.ID, s.Component))
	}
	for _, flag := range s.GDPRFlags {
		if !isValid(flag, GDPRFlags) {
			errs = append(errs, fmt.Errorf("user story %s: invalid GDPR flag %q", s.ID, flag))
		}
	}
	return errors.Join(errs...)
}

// Test is a test case, optionally linked to the user story it covers.
// Tests with no story are infrastructure tests.
type Test struct {
	ID          string     `json:"id" yaml:"id"`
	UserStoryID string     `json:"user_story_id,omitempty" yaml:"user_story_id,omitempty"`
	Type        TestType   `json:"type" yaml:"type"`
	Status      TestStatus `json:"status" yaml:"status"`
	Title       string     `json:"title" yaml:"title"`
	Version     int64      `json:"-" yaml:"-"`
}

// Validate checks the identifier and enumerated fields.
func (t Test) Validate() error {
	var errs []error
	if !ValidID(KindTest, t.ID) {
		errs = append(errs, fmt.Errorf("invalid test id %q", t.ID))
	}
	if t.UserStoryID != "" && !ValidID(KindUserStory, t.UserStoryID) {
		errs = append(errs, fmt.Errorf("test %s: invalid user story reference %q", t.ID, t.UserStoryID))
	}
	if !isValid(t.Type, TestTypes) {
		errs = append(errs, fmt.Errorf("test %s: invalid type %q", t.ID, t.Type))
	}
	if !isValid(t.Status, TestStatuses) {
		errs = append(errs, fmt.Errorf("test %s: invalid status %q", t.ID, t.Status))
	}
	return errors.Join(errs...)
}

// Defect is a reported bug, optionally linked to an epic and story.
type Defect struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Priority    Priority `json:"priority" yaml:"priority"`
	Status      Status   `json:"status" yaml:"status"`
	EpicID      string   `json:"epic_id,omitempty" yaml:"epic_id,omitempty"`
	UserStoryID string   `json:"user_story_id,omitempty" yaml:"user_story_id,omitempty"`
	Version     int64    `json:"-" yaml:"-"`
}

// Validate checks the identifier, reference formats and enumerated
// fields.
func (d Defect) Validate() error {
	var errs []error
	if !ValidID(KindDefect, d.ID) {
		errs = append(errs, fmt.Errorf("invalid defect id %q", d.ID))
	}
	if strings.TrimSpace(d.Title) == "" {
		errs = append(errs, fmt.Errorf("defect %s: title is required", d.ID))
	}
	if d.EpicID != "" && !ValidID(KindEpic, d.EpicID) {
		errs = append(errs, fmt.Errorf("defect %s: invalid epic reference %q", d.ID, d.EpicID))
	}
	if d.UserStoryID != "" && !ValidID(KindUserStory, d.UserStoryID) {
		errs = append(errs, fmt.Errorf("defect %s: invalid user story reference %q", d.ID, d.UserStoryID))
	}
	if !isValid(d.Priority, Priorities) {
		errs = append(errs, fmt.Errorf("defect %s: invalid priority %q", d.ID, d.Priority))
	}
	if !isValid(d.Status, Statuses) {
		errs = append(errs, fmt.Errorf("defect %s: invalid status %q", d.ID, d.Status))
	}
	return errors.Join(errs...)
}

// Slug lowercases title and joins its letter and digit runs with
// hyphens: "Privacy Consent" becomes "privacy-consent". Non-ASCII
// letters are kept as-is.
func Slug(title string) string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, "-")
}

// SyncRecord links a local entity to its remote issue. The record alone
// decides whether the pair has been reconciled: a ContentHash equal to
// the entity's current [Snapshot.ContentHash] means the remote labels
// already reflect the entity.
type SyncRecord struct {
	EntityID     string    `json:"entity_id"`
	IssueNumber  int       `json:"issue_number"`
	ContentHash  string    `json:"content_hash,omitempty"`
	LastSyncedAt time.Time `json:"last_synced_at"`

	// Declared is what the issue declared when it was last synced. A
	// later remote edit is merged only for the declarations that differ
	// from it. Nil until the first completed sync.
	Declared *Declarations `json:"declared,omitempty"`
}

// Declarations are the entity fields an issue carries in its title and
// issue form.
type Declarations struct {
	Title    string   `cbor:"title,omitempty" json:"title,omitempty"`
	Priority Priority `cbor:"priority,omitempty" json:"priority,omitempty"`

	// HasEpic distinguishes a cleared epic section from an absent one.
	HasEpic bool   `cbor:"has_epic,omitempty" json:"has_epic,omitempty"`
	EpicRef string `cbor:"epic_ref,omitempty" json:"epic_ref,omitempty"`

	HasGDPR bool       `cbor:"has_gdpr,omitempty" json:"has_gdpr,omitempty"`
	GDPR    []GDPRFlag `cbor:"gdpr,omitempty" json:"gdpr,omitempty"`
}

// Since returns the declarations of d that differ from baseline. A
// declaration removed from the issue is not a change.
func (d Declarations) Since(baseline Declarations) Declarations {
	var changes Declarations
	if d.Title != baseline.Title {
		changes.Title = d.Title
	}
	if d.Priority != baseline.Priority {
		changes.Priority = d.Priority
	}
	if d.HasEpic && (!baseline.HasEpic || d.EpicRef != baseline.EpicRef) {
		changes.HasEpic, changes.EpicRef = true, d.EpicRef
	}
	if d.HasGDPR && (!baseline.HasGDPR || !slices.Equal(d.GDPR, baseline.GDPR)) {
		changes.HasGDPR, changes.GDPR = true, slices.Clone(d.GDPR)
	}
	return changes
}

// Empty reports whether d declares nothing.
func (d Declarations) Empty() bool {
	return d.Title == "" && d.Priority == "" && !d.HasEpic && !d.HasGDPR
}
