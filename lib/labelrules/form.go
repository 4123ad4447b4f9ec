// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package labelrules

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// Section is a heading of the RTM issue form.
type Section string

const (
	SectionPriority  Section = "Priority"
	SectionEpic      Section = "Epic"
	SectionUserStory Section = "User Story"
	SectionComponent Section = "Component"
	SectionRelease   Section = "Release"
	SectionGDPR      Section = "GDPR Considerations"
	SectionStatus    Section = "Status"
)

var formSections = []Section{
	SectionPriority, SectionEpic, SectionUserStory, SectionComponent,
	SectionRelease, SectionGDPR, SectionStatus,
}

// IssueForm is what an issue body declares.
type IssueForm struct {
	Fields Fields

	// Sections lists the recognized headings present in the body, in
	// order of appearance.
	Sections []Section
}

// Has reports whether the body contained the section, even when the
// section was left empty.
func (f IssueForm) Has(section Section) bool {
	return slices.Contains(f.Sections, section)
}

var formParser = sync.OnceValue(func() parser.Parser {
	return goldmark.New(goldmark.WithExtensions(extension.TaskList)).Parser()
})

var (
	markerPattern = regexp.MustCompile(`<!--\s*rtm:\s*([A-Z]+-\d+)\s*-->`)
	idPattern     = regexp.MustCompile(`\b(?:EP|US|TC|DEF)-\d+\b`)
	titlePattern  = regexp.MustCompile(`^\s*\[([A-Z]+-\d+)\]\s*(.*)$`)
)

// formEntry is one line of section content. Checkbox items record
// their state; other lines count as checked.
type formEntry struct {
	text    string
	checked bool
}

// ParseIssueForm reads the declared fields out of an issue body in the
// RTM issue-form layout: "### Heading" sections holding a value line
// or a task list. An entity marker comment (<!-- rtm:US-00001 -->)
// sets EntityID and Kind. Returns false when the body has neither a
// marker nor any recognized section.
func ParseIssueForm(body string) (IssueForm, bool) {
	var form IssueForm
	if match := markerPattern.FindStringSubmatch(body); match != nil {
		if kind, ok := rtm.KindOf(match[1]); ok {
			form.Fields.EntityID = match[1]
			form.Fields.Kind = kind
		}
	}

	source := []byte(body)
	document := formParser().Parse(text.NewReader(source))
	entries := map[Section][]formEntry{}
	var current Section
	for node := document.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok {
			current = sectionOf(plainText(heading, source))
			if current != "" && !form.Has(current) {
				form.Sections = append(form.Sections, current)
			}
			continue
		}
		if current == "" {
			continue
		}
		switch block := node.(type) {
		case *ast.List:
			for item := block.FirstChild(); item != nil; item = item.NextSibling() {
				checked, isTask := taskState(item)
				entries[current] = append(entries[current], formEntry{
					text:    plainText(item, source),
					checked: checked || !isTask,
				})
			}
		case *ast.Paragraph, *ast.TextBlock:
			for line := range strings.SplitSeq(plainText(block, source), "\n") {
				entries[current] = append(entries[current], formEntry{text: line, checked: true})
			}
		}
	}

	value := func(section Section) string {
		for _, entry := range entries[section] {
			line := strings.TrimSpace(entry.text)
			if line == "" || strings.EqualFold(line, "No response") {
				continue
			}
			return line
		}
		return ""
	}

	form.Fields.Priority = value(SectionPriority)
	form.Fields.EpicRef = extractID(value(SectionEpic), "EP-")
	form.Fields.UserStoryRef = extractID(value(SectionUserStory), "US-")
	form.Fields.Component = value(SectionComponent)
	form.Fields.ReleaseOverride = value(SectionRelease)
	if status, ok := rtm.ParseStatus(value(SectionStatus)); ok {
		form.Fields.Status = status
	}
	for _, entry := range entries[SectionGDPR] {
		if !entry.checked {
			continue
		}
		for part := range strings.SplitSeq(entry.text, ",") {
			if flag, ok := matchGDPR(part); ok && !slices.Contains(form.Fields.GDPR, flag) {
				form.Fields.GDPR = append(form.Fields.GDPR, flag)
			}
		}
	}

	return form, form.Fields.EntityID != "" || len(form.Sections) > 0
}

func sectionOf(heading string) Section {
	for _, section := range formSections {
		if strings.EqualFold(strings.TrimSpace(heading), string(section)) {
			return section
		}
	}
	return ""
}

// extractID returns the first identifier with the prefix in value. A
// value without one is returned as its first field so the rule engine
// reports it as malformed.
func extractID(value, prefix string) string {
	for _, id := range idPattern.FindAllString(value, -1) {
		if strings.HasPrefix(id, prefix) {
			return id
		}
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// taskState reports whether a list item starts with a task checkbox
// and whether it is checked.
func taskState(item ast.Node) (checked, isTask bool) {
	block := item.FirstChild()
	if block == nil {
		return false, false
	}
	checkbox, ok := block.FirstChild().(*extast.TaskCheckBox)
	if !ok {
		return false, false
	}
	return checkbox.IsChecked, true
}

// plainText concatenates the text under node. Line breaks and block
// boundaries become newlines.
func plainText(node ast.Node, source []byte) string {
	var builder strings.Builder
	ast.Walk(node, func(current ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if current != node && current.Type() == ast.TypeBlock {
				builder.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch inline := current.(type) {
		case *ast.Text:
			builder.Write(inline.Segment.Value(source))
			if inline.SoftLineBreak() || inline.HardLineBreak() {
				builder.WriteByte('\n')
			}
		case *ast.String:
			builder.Write(inline.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(builder.String())
}

// gdprKeywords maps checkbox wording to indicators. Earlier entries
// win.
var gdprKeywords = []struct {
	flag     rtm.GDPRFlag
	keywords []string
}{
	{rtm.GDPRThirdParty, []string{"third-party", "third party", "processor"}},
	{rtm.GDPRDataSubjectRights, []string{"data subject", "data-subject", "erasure", "right to access"}},
	{rtm.GDPRConsent, []string{"consent"}},
	{rtm.GDPRRetention, []string{"retention", "retain"}},
	{rtm.GDPRPersonalData, []string{"personal data", "personal-data", "pii"}},
}

func matchGDPR(raw string) (rtm.GDPRFlag, bool) {
	if flag, ok := rtm.ParseGDPRFlag(raw); ok {
		return flag, true
	}
	lower := strings.ToLower(raw)
	for _, candidate := range gdprKeywords {
		for _, keyword := range candidate.keywords {
			if strings.Contains(lower, keyword) {
				return candidate.flag, true
			}
		}
	}
	return "", false
}

var gdprCaptions = map[rtm.GDPRFlag]string{
	rtm.GDPRConsent:           "Requires user consent",
	rtm.GDPRRetention:         "Subject to retention rules",
	rtm.GDPRDataSubjectRights: "Affects data subject rights",
	rtm.GDPRPersonalData:      "Processes personal data",
	rtm.GDPRThirdParty:        "Shares data with a third-party processor",
}

// IssueTitle returns the title of the issue mirroring an entity.
func IssueTitle(id, title string) string {
	return fmt.Sprintf("[%s] %s", id, title)
}

// ParseIssueTitle splits "[US-00001] Title" into its identifier and
// title. Returns false when the title has no identifier prefix.
func ParseIssueTitle(title string) (id, rest string, ok bool) {
	match := titlePattern.FindStringSubmatch(title)
	if match == nil {
		return "", "", false
	}
	return match[1], strings.TrimSpace(match[2]), true
}

// RenderIssue returns the title and body of a new issue for a tracked
// entity. The body carries the entity marker and the form sections,
// so [ParseIssueForm] reads back the same declarations.
func RenderIssue(snapshot *rtm.Snapshot, id string) (title, body string, ok bool) {
	fields, ok := FieldsFor(snapshot, id)
	if !ok {
		return "", "", false
	}
	entityTitle, _ := snapshot.Title(id)

	var builder strings.Builder
	fmt.Fprintf(&builder, "<!-- rtm:%s -->\n\n", id)
	section := func(heading Section, value string) {
		if value == "" {
			value = "_No response_"
		}
		fmt.Fprintf(&builder, "### %s\n\n%s\n\n", heading, value)
	}

	section(SectionPriority, fields.Priority)
	if fields.Kind != rtm.KindEpic {
		section(SectionEpic, fields.EpicRef)
	}
	if fields.Kind == rtm.KindDefect {
		section(SectionUserStory, fields.UserStoryRef)
	}
	if fields.Kind == rtm.KindUserStory {
		if story, found := snapshot.UserStory(id); found {
			section(SectionComponent, string(story.Component))
		}
		section(SectionRelease, fields.ReleaseOverride)
		builder.WriteString("### " + string(SectionGDPR) + "\n\n")
		for _, flag := range rtm.GDPRFlags {
			mark := " "
			if slices.Contains(fields.GDPR, flag) {
				mark = "x"
			}
			fmt.Fprintf(&builder, "- [%s] %s\n", mark, gdprCaptions[flag])
		}
		builder.WriteString("\n")
	}
	if epic, found := snapshot.Epic(id); found {
		section(SectionComponent, string(epic.Component))
		section(SectionRelease, epic.Release)
	}
	section(SectionStatus, string(fields.Status))

	return IssueTitle(id, entityTitle), strings.TrimRight(builder.String(), "\n") + "\n", true
}
