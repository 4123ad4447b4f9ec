// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report projects an RTM snapshot into the traceability
// report: epics with their user stories, tests and defects, an
// unassigned section, and coverage counts.
//
// [Project] is a pure function of the snapshot; nothing is cached
// between calls. [Write] serializes a report as JSON, optionally
// compressed.
package report

import (
	"time"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// Filter narrows the work items in a report. Zero fields match
// everything.
type Filter struct {
	Status    rtm.Status    `json:"status,omitempty"`
	Component rtm.Component `json:"component,omitempty"`
	Priority  rtm.Priority  `json:"priority,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

func (f Filter) matches(status rtm.Status, component rtm.Component, priority rtm.Priority) bool {
	return (f.Status == "" || f.Status == status) &&
		(f.Component == "" || f.Component == component) &&
		(f.Priority == "" || f.Priority == priority)
}

// Item is the common shape of every report entry.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
}

// Story is a user story entry.
type Story struct {
	Item
	Component rtm.Component  `json:"component,omitempty"`
	Release   string         `json:"release,omitempty"`
	GDPRFlags []rtm.GDPRFlag `json:"gdpr_flags,omitempty"`
	TestCount int            `json:"test_count"`
}

// Test is a test case entry.
type Test struct {
	Item
	Type        rtm.TestType `json:"type"`
	UserStoryID string       `json:"user_story_id,omitempty"`
}

// Defect is a defect entry.
type Defect struct {
	Item
	UserStoryID string `json:"user_story_id,omitempty"`
}

// Epic groups everything traced to one epic.
type Epic struct {
	Item
	Component   rtm.Component `json:"component"`
	Release     string        `json:"release,omitempty"`
	UserStories []Story       `json:"user_stories"`
	Tests       []Test        `json:"tests"`
	Defects     []Defect      `json:"defects"`
}

// Unassigned collects entities not traced to any epic.
type Unassigned struct {
	// UserStories are orphaned: their epic does not exist.
	UserStories []Story `json:"user_stories"`

	// Tests are infrastructure tests with no user story, and tests of
	// orphaned stories.
	Tests []Test `json:"tests"`

	// Defects reference neither an existing epic nor a story under
	// one.
	Defects []Defect `json:"defects"`
}

// Summary holds the report's counts.
type Summary struct {
	Epics            int `json:"epics"`
	UserStories      int `json:"user_stories"`
	Tests            int `json:"tests"`
	Defects          int `json:"defects"`
	OrphanedStories  int `json:"orphaned_stories"`
	TestsPassing     int `json:"tests_passing"`
	StoriesWithTests int `json:"stories_with_tests"`

	// StoryCoverage is StoriesWithTests / UserStories, or 0 with no
	// stories.
	StoryCoverage float64 `json:"story_coverage"`
}

// Report is the projected traceability matrix.
type Report struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Filter      Filter     `json:"filter"`
	Epics       []Epic     `json:"epics"`
	Unassigned  Unassigned `json:"unassigned"`
	Summary     Summary    `json:"summary"`
}

// Project builds the report for snapshot. Stories and defects are kept
// when they match filter; tests follow their story. An epic is listed
// when it matches filter itself or keeps at least one story or defect.
// Infrastructure tests are only listed in an unfiltered report.
func Project(snapshot *rtm.Snapshot, filter Filter, generatedAt time.Time) *Report {
	report := &Report{
		GeneratedAt: generatedAt.UTC(),
		Filter:      filter,
		Epics:       []Epic{},
		Unassigned: Unassigned{
			UserStories: []Story{},
			Tests:       []Test{},
			Defects:     []Defect{},
		},
	}

	epicIndex := make(map[string]int)
	var epics []Epic
	for _, epic := range snapshot.Epics() {
		epicIndex[epic.ID] = len(epics)
		epics = append(epics, Epic{
			Item:        Item{ID: epic.ID, Title: epic.Title, Status: string(epic.Status), Priority: string(epic.Priority)},
			Component:   epic.Component,
			Release:     epic.Release,
			UserStories: []Story{},
			Tests:       []Test{},
			Defects:     []Defect{},
		})
	}

	testsByStory := make(map[string][]rtm.Test)
	for _, test := range snapshot.Tests() {
		if _, ok := snapshot.UserStory(test.UserStoryID); !ok {
			if filter.IsZero() {
				report.Unassigned.Tests = append(report.Unassigned.Tests, testEntry(test))
			}
			continue
		}
		testsByStory[test.UserStoryID] = append(testsByStory[test.UserStoryID], test)
	}

	for _, story := range snapshot.UserStories() {
		component := snapshot.EffectiveComponent(story)
		if !filter.matches(story.Status, component, story.Priority) {
			continue
		}
		entry := Story{
			Item:      Item{ID: story.ID, Title: story.Title, Status: string(story.Status), Priority: string(story.Priority)},
			Component: component,
			Release:   snapshot.EffectiveRelease(story),
			GDPRFlags: story.GDPRFlags,
			TestCount: len(testsByStory[story.ID]),
		}
		tests := make([]Test, 0, len(testsByStory[story.ID]))
		for _, test := range testsByStory[story.ID] {
			tests = append(tests, testEntry(test))
		}

		index, traced := epicIndex[story.EpicID]
		if !traced {
			report.Unassigned.UserStories = append(report.Unassigned.UserStories, entry)
			report.Unassigned.Tests = append(report.Unassigned.Tests, tests...)
			continue
		}
		epics[index].UserStories = append(epics[index].UserStories, entry)
		epics[index].Tests = append(epics[index].Tests, tests...)
	}

	for _, defect := range snapshot.Defects() {
		epicID := snapshot.EpicRef(defect.ID)
		index, traced := epicIndex[epicID]
		var component rtm.Component
		if traced {
			component = epics[index].Component
		}
		if !filter.matches(defect.Status, component, defect.Priority) {
			continue
		}
		entry := Defect{
			Item:        Item{ID: defect.ID, Title: defect.Title, Status: string(defect.Status), Priority: string(defect.Priority)},
			UserStoryID: defect.UserStoryID,
		}
		if !traced {
			report.Unassigned.Defects = append(report.Unassigned.Defects, entry)
			continue
		}
		epics[index].Defects = append(epics[index].Defects, entry)
	}

	for _, epic := range epics {
		matchesItself := filter.matches(rtm.Status(epic.Status), epic.Component, rtm.Priority(epic.Priority))
		if matchesItself || len(epic.UserStories) > 0 || len(epic.Defects) > 0 {
			report.Epics = append(report.Epics, epic)
		}
	}

	report.Summary = summarize(report)
	return report
}

func testEntry(test rtm.Test) Test {
	return Test{
		Item:        Item{ID: test.ID, Title: test.Title, Status: string(test.Status)},
		Type:        test.Type,
		UserStoryID: test.UserStoryID,
	}
}

func summarize(report *Report) Summary {
	var summary Summary
	countStories := func(stories []Story) {
		for _, story := range stories {
			summary.UserStories++
			if story.TestCount > 0 {
				summary.StoriesWithTests++
			}
		}
	}
	countTests := func(tests []Test) {
		for _, test := range tests {
			summary.Tests++
			if test.Status == string(rtm.TestPass) {
				summary.TestsPassing++
			}
		}
	}

	summary.Epics = len(report.Epics)
	for _, epic := range report.Epics {
		countStories(epic.UserStories)
		countTests(epic.Tests)
		summary.Defects += len(epic.Defects)
	}
	countStories(report.Unassigned.UserStories)
	countTests(report.Unassigned.Tests)
	summary.Defects += len(report.Unassigned.Defects)
	summary.OrphanedStories = len(report.Unassigned.UserStories)
	if summary.UserStories > 0 {
		summary.StoryCoverage = float64(summary.StoriesWithTests) / float64(summary.UserStories)
	}
	return summary
}
