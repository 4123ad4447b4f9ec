// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package labelrules

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// Input is one issue to evaluate.
type Input struct {
	Fields Fields

	// Body is the issue body, searched for readiness markers.
	Body string

	// CurrentLabels are the labels on the issue now.
	CurrentLabels []string
}

// Warning is a non-fatal finding of one stage.
type Warning struct {
	Kind    rtm.FailureKind `json:"kind"`
	Message string          `json:"message"`
}

// Result is the outcome of [Evaluate].
type Result struct {
	// Labels is the complete target label set, sorted. Every entry is
	// in the vocabulary.
	Labels []string

	// Added and Removed are the delta against Input.CurrentLabels.
	Added   []string
	Removed []string

	// Dropped lists computed labels missing from the vocabulary.
	Dropped []string

	Warnings []Warning

	// Orphaned is set for a user story whose parent epic does not
	// exist.
	Orphaned bool
}

// Changed reports whether applying the result would change the issue.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// stageOutput is what each rule stage contributes.
type stageOutput struct {
	labels   []string
	warnings []Warning

	// fallback marks a label that applies only when the issue has no
	// label of the same category yet.
	fallback bool
}

func warn(kind rtm.FailureKind, format string, args ...any) Warning {
	return Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Evaluate computes the target label set for one issue. It performs no
// I/O and does not retain its arguments.
func Evaluate(input Input, snapshot *rtm.Snapshot, vocabulary Vocabulary) Result {
	resolution := resolveEpic(input.Fields, snapshot)
	stages := []stageOutput{
		priorityStage(input.Fields),
		epicStage(input.Fields, resolution),
		releaseStage(input.Fields, resolution),
		gdprStage(input.Fields),
		statusStage(input.Fields, input.Body),
	}

	result := Result{Orphaned: resolution.orphaned}
	for _, stage := range stages {
		result.Warnings = append(result.Warnings, stage.warnings...)
	}

	final := make(map[string]string)
	current := make(map[string]bool)
	for _, label := range input.CurrentLabels {
		current[strings.ToLower(label)] = true
		if canonical, ok := vocabulary.Lookup(label); ok {
			final[strings.ToLower(canonical)] = canonical
		}
	}

	assigned := map[string]bool{}
	for _, stage := range stages {
		for _, label := range stage.labels {
			canonical, ok := vocabulary.Lookup(label)
			if !ok {
				result.Dropped = append(result.Dropped, label)
				result.Warnings = append(result.Warnings,
					warn(rtm.FailureLabelVocabularyMismatch, "label %q is not defined in the repository", label))
				continue
			}
			category := categoryOf(canonical)
			if stage.fallback && hasCategory(final, category) {
				continue
			}
			if slices.Contains(singleValued, category) {
				for key := range final {
					if categoryOf(key) == category {
						delete(final, key)
					}
				}
			}
			final[strings.ToLower(canonical)] = canonical
			assigned[category] = true
		}
	}
	if assigned[PrefixEpic] || assigned[PrefixComponent] {
		delete(final, LabelNeedsTriage)
	}

	for _, label := range final {
		result.Labels = append(result.Labels, label)
		if !current[strings.ToLower(label)] {
			result.Added = append(result.Added, label)
		}
	}
	for _, label := range input.CurrentLabels {
		if _, kept := final[strings.ToLower(label)]; !kept && !slices.Contains(result.Removed, label) {
			result.Removed = append(result.Removed, label)
		}
	}
	sort.Strings(result.Labels)
	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	return result
}

func hasCategory(labels map[string]string, category string) bool {
	for key := range labels {
		if categoryOf(key) == category {
			return true
		}
	}
	return false
}

func priorityStage(fields Fields) stageOutput {
	raw := strings.TrimSpace(fields.Priority)
	if raw == "" {
		return stageOutput{warnings: []Warning{warn(rtm.FailureMissingPriority, "no priority declared")}}
	}
	priority, ok := rtm.ParsePriority(raw)
	if !ok {
		return stageOutput{warnings: []Warning{warn(rtm.FailureMissingPriority, "invalid priority %q", raw)}}
	}
	return stageOutput{labels: []string{PriorityLabel(priority)}}
}

// epicResolution is the shared reading of the issue's epic reference.
// The epic/component and release stages both derive from it.
type epicResolution struct {
	// declared is set when the issue names an epic directly or
	// through a story.
	declared bool

	// resolved is set when the epic exists and every declared
	// relationship agrees with the RTM.
	resolved bool
	epic     rtm.Epic

	warning  *Warning
	orphaned bool
}

func resolveEpic(fields Fields, snapshot *rtm.Snapshot) epicResolution {
	invalid := func(format string, args ...any) epicResolution {
		w := warn(rtm.FailureInvalidMapping, format, args...)
		return epicResolution{declared: true, warning: &w}
	}

	ref := strings.TrimSpace(fields.EpicRef)
	if storyRef := strings.TrimSpace(fields.UserStoryRef); storyRef != "" {
		if !rtm.ValidID(rtm.KindUserStory, storyRef) {
			return invalid("malformed user story reference %q", storyRef)
		}
		story, found := snapshot.UserStory(storyRef)
		switch {
		case !found && ref == "":
			w := warn(rtm.FailureNotFound, "user story reference not found: %s", storyRef)
			return epicResolution{declared: true, warning: &w}
		case found && ref == "":
			ref = story.EpicID
		case found && ref != story.EpicID:
			return invalid("user story %s belongs to epic %s, not %s", storyRef, story.EpicID, ref)
		}
	}

	if ref == "" {
		return epicResolution{}
	}
	if !rtm.ValidID(rtm.KindEpic, ref) {
		return invalid("malformed epic reference %q", ref)
	}
	epic, found := snapshot.Epic(ref)
	if !found {
		w := warn(rtm.FailureNotFound, "epic reference not found: %s", ref)
		return epicResolution{declared: true, warning: &w, orphaned: fields.Kind == rtm.KindUserStory}
	}
	if declared := strings.TrimSpace(fields.Component); declared != "" {
		component, ok := rtm.ParseComponent(declared)
		if !ok {
			return invalid("unknown component %q", declared)
		}
		if component != epic.Component {
			return invalid("declared component %s does not match epic %s component %s", component, epic.ID, epic.Component)
		}
	}
	return epicResolution{declared: true, resolved: true, epic: epic}
}

func epicStage(fields Fields, resolution epicResolution) stageOutput {
	var output stageOutput
	if resolution.warning != nil {
		output.warnings = append(output.warnings, *resolution.warning)
	}
	if !resolution.resolved {
		return output
	}
	output.labels = append(output.labels, EpicLabel(resolution.epic))
	if component := componentOf(fields, resolution); component != "" {
		output.labels = append(output.labels, ComponentLabel(component))
	}
	return output
}

// componentOf is the effective component used for the component
// label: a story's own override wins over the epic's.
func componentOf(fields Fields, resolution epicResolution) rtm.Component {
	if fields.ComponentOverride != "" {
		return fields.ComponentOverride
	}
	return resolution.epic.Component
}

func releaseStage(fields Fields, resolution epicResolution) stageOutput {
	if priority, ok := rtm.ParsePriority(fields.Priority); ok && priority == rtm.PriorityCritical {
		return stageOutput{labels: []string{LabelReleaseMVP}}
	}
	if fields.ReleaseOverride != "" {
		return stageOutput{labels: []string{ReleaseLabel(fields.ReleaseOverride)}}
	}
	switch {
	case !resolution.declared:
		return stageOutput{labels: []string{LabelReleaseUnscheduled}}
	case !resolution.resolved:
		// A dangling or contradictory reference says nothing about
		// the schedule, so no release label, not even unscheduled: a
		// medium issue naming a missing epic ends up with exactly
		// needs-triage, priority/medium and status/backlog. See
		// TestEvaluateMissingEpicExample.
		return stageOutput{}
	case resolution.epic.Release == "":
		return stageOutput{labels: []string{LabelReleaseUnscheduled}}
	default:
		return stageOutput{labels: []string{ReleaseLabel(resolution.epic.Release)}}
	}
}

func gdprStage(fields Fields) stageOutput {
	var output stageOutput
	seen := map[rtm.GDPRFlag]bool{}
	for _, flag := range fields.GDPR {
		if seen[flag] {
			continue
		}
		seen[flag] = true
		output.labels = append(output.labels, GDPRLabel(flag))
	}
	sort.Strings(output.labels)
	return output
}

// readinessMarkers are the fixed body patterns that mark an issue as
// ready for development.
var readinessMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*[-*]\s*\[x\]\s*ready for development\b`),
	regexp.MustCompile(`(?i)\bdefinition of ready:\s*met\b`),
	regexp.MustCompile(`(?i)\bready-for-dev\b`),
}

// HasReadinessMarker reports whether body contains a readiness marker.
func HasReadinessMarker(body string) bool {
	for _, marker := range readinessMarkers {
		if marker.MatchString(body) {
			return true
		}
	}
	return false
}

func statusStage(fields Fields, body string) stageOutput {
	if fields.Status != "" && fields.Status != rtm.StatusBacklog {
		return stageOutput{labels: []string{StatusLabel(fields.Status)}}
	}
	if HasReadinessMarker(body) {
		return stageOutput{labels: []string{StatusLabel(rtm.StatusReady)}}
	}
	return stageOutput{labels: []string{StatusLabel(rtm.StatusBacklog)}, fallback: true}
}
