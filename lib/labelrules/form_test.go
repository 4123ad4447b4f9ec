// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package labelrules

import (
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

const submittedForm = `### Priority

🟠 High

### Epic

EP-00001 - User Authentication

### User Story

_No response_

### GDPR Considerations

- [X] Processes personal data
- [ ] Requires user consent
- [x] Shares data with a third-party processor

### Additional context

- [x] Consent
`

func TestParseIssueForm(t *testing.T) {
	form, ok := ParseIssueForm(submittedForm)
	if !ok {
		t.Fatal("ParseIssueForm did not recognize the form")
	}
	fields := form.Fields
	if priority, _ := rtm.ParsePriority(fields.Priority); priority != rtm.PriorityHigh {
		t.Errorf("Priority = %q, want a high priority", fields.Priority)
	}
	if fields.EpicRef != "EP-00001" {
		t.Errorf("EpicRef = %q, want EP-00001", fields.EpicRef)
	}
	if fields.UserStoryRef != "" {
		t.Errorf("UserStoryRef = %q, want empty for _No response_", fields.UserStoryRef)
	}
	wantFlags := []rtm.GDPRFlag{rtm.GDPRPersonalData, rtm.GDPRThirdParty}
	if !slices.Equal(fields.GDPR, wantFlags) {
		t.Errorf("GDPR = %v, want %v", fields.GDPR, wantFlags)
	}
	wantSections := []Section{SectionPriority, SectionEpic, SectionUserStory, SectionGDPR}
	if !slices.Equal(form.Sections, wantSections) {
		t.Errorf("Sections = %v, want %v", form.Sections, wantSections)
	}
	if !form.Has(SectionUserStory) || form.Has(SectionRelease) {
		t.Error("Has does not reflect the sections present")
	}
	if fields.EntityID != "" || fields.Kind != "" {
		t.Errorf("untracked form got entity %q kind %q", fields.EntityID, fields.Kind)
	}
}

func TestParseIssueFormFeedsEngine(t *testing.T) {
	snapshot := testSnapshot()
	form, _ := ParseIssueForm(submittedForm)
	result := Evaluate(Input{Fields: form.Fields, Body: submittedForm, CurrentLabels: []string{"needs-triage"}},
		snapshot, testVocabulary(snapshot))

	assertLabels(t, "Labels", result.Labels,
		"component/auth", "epic/user-authentication", "gdpr/personal-data", "gdpr/third-party-processor",
		"priority/high", "release/1.0", "status/backlog")
}

func TestParseIssueFormMalformedReference(t *testing.T) {
	form, ok := ParseIssueForm("### Epic\n\nEP-3\n\n### Component\n\nGDPR\n")
	if !ok {
		t.Fatal("form not recognized")
	}
	if form.Fields.EpicRef != "EP-3" {
		t.Errorf("EpicRef = %q, want the raw malformed value", form.Fields.EpicRef)
	}
	if form.Fields.Component != "GDPR" {
		t.Errorf("Component = %q, want GDPR", form.Fields.Component)
	}
}

func TestParseIssueFormNotAForm(t *testing.T) {
	for _, body := range []string{
		"",
		"The login page loops forever.\n\n## Steps\n\n1. open /login",
		"### Steps to reproduce\n\nclick things",
	} {
		if _, ok := ParseIssueForm(body); ok {
			t.Errorf("ParseIssueForm(%q) recognized a form", body)
		}
	}
}

func TestParseIssueFormMarkerOnly(t *testing.T) {
	form, ok := ParseIssueForm("Free text.\n\n<!-- rtm:DEF-00001 -->\n")
	if !ok {
		t.Fatal("marker not recognized")
	}
	if form.Fields.EntityID != "DEF-00001" || form.Fields.Kind != rtm.KindDefect {
		t.Errorf("entity = %q kind %q, want DEF-00001 defect", form.Fields.EntityID, form.Fields.Kind)
	}

	if form, _ := ParseIssueForm("<!-- rtm:XX-1 -->"); form.Fields.EntityID != "" {
		t.Errorf("malformed marker produced entity %q", form.Fields.EntityID)
	}
}

func TestRenderIssueRoundTrip(t *testing.T) {
	snapshot := testSnapshot()
	title, body, ok := RenderIssue(snapshot, "US-00001")
	if !ok {
		t.Fatal("RenderIssue found nothing")
	}
	if title != "[US-00001] Login with email" {
		t.Errorf("title = %q", title)
	}
	if !strings.HasPrefix(body, "<!-- rtm:US-00001 -->") {
		t.Errorf("body does not start with the entity marker:\n%s", body)
	}

	form, ok := ParseIssueForm(body)
	if !ok {
		t.Fatalf("rendered body not recognized:\n%s", body)
	}
	fields := form.Fields
	if fields.EntityID != "US-00001" || fields.Kind != rtm.KindUserStory {
		t.Errorf("entity = %q kind %q", fields.EntityID, fields.Kind)
	}
	if fields.Priority != "high" || fields.EpicRef != "EP-00001" || fields.Status != rtm.StatusBacklog {
		t.Errorf("fields = %+v", fields)
	}
	wantFlags := []rtm.GDPRFlag{rtm.GDPRConsent, rtm.GDPRPersonalData}
	if !slices.Equal(fields.GDPR, wantFlags) {
		t.Errorf("GDPR = %v, want %v", fields.GDPR, wantFlags)
	}
	if fields.Component != "" || fields.ReleaseOverride != "" {
		t.Errorf("empty overrides read back as component %q release %q", fields.Component, fields.ReleaseOverride)
	}

	if _, _, ok := RenderIssue(snapshot, "TC-00001"); ok {
		t.Error("RenderIssue rendered a test case")
	}
}

func TestRenderIssueEpic(t *testing.T) {
	snapshot := testSnapshot()
	_, body, ok := RenderIssue(snapshot, "EP-00001")
	if !ok {
		t.Fatal("RenderIssue found nothing")
	}
	form, _ := ParseIssueForm(body)
	if form.Has(SectionEpic) || form.Has(SectionGDPR) {
		t.Errorf("epic body has story sections: %v", form.Sections)
	}
	if form.Fields.Component != "auth" || form.Fields.ReleaseOverride != "1.0" {
		t.Errorf("component %q release %q, want auth 1.0", form.Fields.Component, form.Fields.ReleaseOverride)
	}
}

func TestParseIssueTitle(t *testing.T) {
	tests := []struct {
		title  string
		id     string
		rest   string
		parsed bool
	}{
		{"[US-00001] Login with email", "US-00001", "Login with email", true},
		{"  [EP-00003]   Privacy Consent ", "EP-00003", "Privacy Consent", true},
		{"[DEF-00002]", "DEF-00002", "", true},
		{"Login with email", "", "", false},
		{"US-00001 Login", "", "", false},
	}
	for _, test := range tests {
		id, rest, ok := ParseIssueTitle(test.title)
		if id != test.id || rest != test.rest || ok != test.parsed {
			t.Errorf("ParseIssueTitle(%q) = (%q, %q, %v), want (%q, %q, %v)",
				test.title, id, rest, ok, test.id, test.rest, test.parsed)
		}
	}
	if got := IssueTitle("US-00001", "Login"); got != "[US-00001] Login" {
		t.Errorf("IssueTitle = %q", got)
	}
}
