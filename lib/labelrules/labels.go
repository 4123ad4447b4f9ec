// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package labelrules

import (
	"sort"
	"strings"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// Label category prefixes and fixed labels.
const (
	PrefixPriority  = "priority/"
	PrefixEpic      = "epic/"
	PrefixComponent = "component/"
	PrefixRelease   = "release/"
	PrefixStatus    = "status/"
	PrefixGDPR      = "gdpr/"

	LabelNeedsTriage        = "needs-triage"
	LabelReleaseMVP         = "release/MVP"
	LabelReleaseUnscheduled = "release/unscheduled"
)

// singleValued lists the categories where a computed label replaces
// any other label of the same category.
var singleValued = []string{PrefixPriority, PrefixEpic, PrefixComponent, PrefixRelease, PrefixStatus}

func categoryOf(label string) string {
	lower := strings.ToLower(label)
	for _, prefix := range singleValued {
		if strings.HasPrefix(lower, prefix) {
			return prefix
		}
	}
	if strings.HasPrefix(lower, PrefixGDPR) {
		return PrefixGDPR
	}
	return ""
}

// PriorityLabel returns priority/<p>.
func PriorityLabel(priority rtm.Priority) string { return PrefixPriority + string(priority) }

// EpicLabel returns epic/<slug> for the epic.
func EpicLabel(epic rtm.Epic) string { return PrefixEpic + epic.EffectiveLabel() }

// ComponentLabel returns component/<c>.
func ComponentLabel(component rtm.Component) string { return PrefixComponent + string(component) }

// ReleaseLabel returns release/<r>.
func ReleaseLabel(release string) string { return PrefixRelease + release }

// StatusLabel returns status/<s>.
func StatusLabel(status rtm.Status) string { return PrefixStatus + string(status) }

// GDPRLabel returns the fixed label for a GDPR indicator.
func GDPRLabel(flag rtm.GDPRFlag) string { return PrefixGDPR + string(flag) }

// Vocabulary is the set of labels defined on the platform. GitHub
// compares label names case-insensitively, so lookups do too and
// return the platform's spelling.
type Vocabulary struct {
	canonical map[string]string
}

// NewVocabulary builds a Vocabulary from label names.
func NewVocabulary(names []string) Vocabulary {
	vocabulary := Vocabulary{canonical: make(map[string]string, len(names))}
	for _, name := range names {
		vocabulary.canonical[strings.ToLower(name)] = name
	}
	return vocabulary
}

// Lookup returns the platform spelling of name.
func (v Vocabulary) Lookup(name string) (string, bool) {
	canonical, ok := v.canonical[strings.ToLower(name)]
	return canonical, ok
}

// Len returns the number of labels.
func (v Vocabulary) Len() int { return len(v.canonical) }

// Names returns every label, sorted.
func (v Vocabulary) Names() []string {
	names := make([]string, 0, len(v.canonical))
	for _, name := range v.canonical {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition is a label the bootstrap command creates when missing.
type Definition struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// Canonical returns the label set the rule engine can produce for the
// snapshot: every priority, status, component and GDPR label, the
// release labels for MVP, unscheduled and each epic's release, one
// epic label per epic, and needs-triage.
func Canonical(snapshot *rtm.Snapshot) []Definition {
	var definitions []Definition
	for _, priority := range rtm.Priorities {
		definitions = append(definitions, Definition{PriorityLabel(priority), priorityColors[priority], "Priority: " + string(priority)})
	}
	for _, status := range rtm.Statuses {
		definitions = append(definitions, Definition{StatusLabel(status), "c5def5", "Workflow status"})
	}
	for _, component := range rtm.Components {
		definitions = append(definitions, Definition{ComponentLabel(component), "1d76db", "Component"})
	}
	for _, flag := range rtm.GDPRFlags {
		definitions = append(definitions, Definition{GDPRLabel(flag), "5319e7", "GDPR consideration"})
	}
	definitions = append(definitions,
		Definition{LabelReleaseMVP, "0e8a16", "Required for the minimum viable product"},
		Definition{LabelReleaseUnscheduled, "bfdadc", "No target release"},
		Definition{LabelNeedsTriage, "ededed", "Needs an epic or component"},
	)

	seen := map[string]bool{}
	for _, definition := range definitions {
		seen[strings.ToLower(definition.Name)] = true
	}
	add := func(definition Definition) {
		key := strings.ToLower(definition.Name)
		if seen[key] {
			return
		}
		seen[key] = true
		definitions = append(definitions, definition)
	}
	for _, epic := range snapshot.Epics() {
		if epic.Release != "" {
			add(Definition{ReleaseLabel(epic.Release), "0e8a16", "Target release"})
		}
	}
	for _, story := range snapshot.UserStories() {
		if story.Release != "" {
			add(Definition{ReleaseLabel(story.Release), "0e8a16", "Target release"})
		}
	}
	for _, epic := range snapshot.Epics() {
		add(Definition{EpicLabel(epic), "fbca04", limitRunes(epic.ID+": "+epic.Title, maxDescription)})
	}
	return definitions
}

// maxDescription is GitHub's limit on label descriptions, in
// characters.
const maxDescription = 100

func limitRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

var priorityColors = map[rtm.Priority]string{
	rtm.PriorityCritical: "b60205",
	rtm.PriorityHigh:     "d93f0b",
	rtm.PriorityMedium:   "fbca04",
	rtm.PriorityLow:      "0e8a16",
}
