// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtm

import (
	"strings"
	"unicode"
)

// Priority is the urgency of an epic, story or defect.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists the valid priorities from most to least urgent.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority accepts the spellings that appear in issue forms and
// authoring files: "Critical", "critical", "🔴 Critical - blocks
// release", "P0". Returns false for anything else.
func ParsePriority(raw string) (Priority, bool) {
	switch firstWord(raw) {
	case "critical", "p0":
		return PriorityCritical, true
	case "high", "p1":
		return PriorityHigh, true
	case "medium", "p2":
		return PriorityMedium, true
	case "low", "p3":
		return PriorityLow, true
	}
	return "", false
}

// Status is the workflow state of an epic, story or defect.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusInReview   Status = "in-review"
	StatusTesting    Status = "testing"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
)

// Statuses lists every workflow status in board order.
var Statuses = []Status{
	StatusBacklog, StatusReady, StatusInProgress, StatusInReview,
	StatusTesting, StatusDone, StatusBlocked,
}

// ParseStatus normalizes "In Progress", "in_progress" and "in-progress"
// to the same value.
func ParseStatus(raw string) (Status, bool) {
	normalized := normalizeToken(raw)
	for _, status := range Statuses {
		if string(status) == normalized {
			return status, true
		}
	}
	return "", false
}

// Component is the product area an epic belongs to. The set is fixed.
type Component string

const (
	ComponentFrontend       Component = "frontend"
	ComponentBackend        Component = "backend"
	ComponentAPI            Component = "api"
	ComponentDatabase       Component = "database"
	ComponentAuth           Component = "auth"
	ComponentGDPR           Component = "gdpr"
	ComponentInfrastructure Component = "infrastructure"
	ComponentContent        Component = "content"
	ComponentAnalytics      Component = "analytics"
	ComponentTesting        Component = "testing"
	ComponentDocumentation  Component = "documentation"
)

// Components lists the component enumeration.
var Components = []Component{
	ComponentFrontend, ComponentBackend, ComponentAPI, ComponentDatabase,
	ComponentAuth, ComponentGDPR, ComponentInfrastructure, ComponentContent,
	ComponentAnalytics, ComponentTesting, ComponentDocumentation,
}

// ParseComponent matches a component name case-insensitively.
func ParseComponent(raw string) (Component, bool) {
	normalized := normalizeToken(raw)
	for _, component := range Components {
		if string(component) == normalized {
			return component, true
		}
	}
	return "", false
}

// TestType classifies a test case.
type TestType string

const (
	TestUnit        TestType = "unit"
	TestIntegration TestType = "integration"
	TestE2E         TestType = "e2e"
	TestBDD         TestType = "bdd"
	TestSecurity    TestType = "security"
	TestPerformance TestType = "performance"
)

// TestTypes lists the valid test types.
var TestTypes = []TestType{TestUnit, TestIntegration, TestE2E, TestBDD, TestSecurity, TestPerformance}

// TestStatus is the last known result of a test case.
type TestStatus string

const (
	TestPass    TestStatus = "pass"
	TestFail    TestStatus = "fail"
	TestSkipped TestStatus = "skipped"
	TestUnknown TestStatus = "unknown"
)

// TestStatuses lists the valid test results.
var TestStatuses = []TestStatus{TestPass, TestFail, TestSkipped, TestUnknown}

// GDPRFlag is a privacy-relevant indicator declared on a user story.
type GDPRFlag string

const (
	GDPRConsent           GDPRFlag = "consent"
	GDPRRetention         GDPRFlag = "retention"
	GDPRDataSubjectRights GDPRFlag = "data-subject-rights"
	GDPRPersonalData      GDPRFlag = "personal-data"
	GDPRThirdParty        GDPRFlag = "third-party-processor"
)

// GDPRFlags lists every indicator.
var GDPRFlags = []GDPRFlag{
	GDPRConsent, GDPRRetention, GDPRDataSubjectRights, GDPRPersonalData, GDPRThirdParty,
}

// ParseGDPRFlag matches an indicator name.
func ParseGDPRFlag(raw string) (GDPRFlag, bool) {
	normalized := normalizeToken(raw)
	for _, flag := range GDPRFlags {
		if string(flag) == normalized {
			return flag, true
		}
	}
	return "", false
}

func isValid[T comparable](value T, valid []T) bool {
	for _, candidate := range valid {
		if candidate == value {
			return true
		}
	}
	return false
}

// normalizeToken lowercases and turns runs of spaces and underscores
// into single hyphens.
func normalizeToken(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-'
	})
	return strings.Join(fields, "-")
}

// firstWord returns the first run of letters and digits, lowercased.
func firstWord(raw string) string {
	lower := strings.ToLower(raw)
	start := strings.IndexFunc(lower, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	})
	if start < 0 {
		return ""
	}
	rest := lower[start:]
	end := strings.IndexFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if end < 0 {
		return rest
	}
	return rest[:end]
}
