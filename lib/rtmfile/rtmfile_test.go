// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
	"github.com/bureau-foundation/rtmsync/lib/rtmstore"
)

const yamlFile = `
epics:
  - id: EP-00003
    title: Privacy Consent
    priority: critical
    component: gdpr
    status: backlog
user_stories:
  - id: US-00002
    epic_id: EP-00003
    title: Cookie banner
    priority: medium
    status: ready
    gdpr_flags: [consent, personal-data]
tests:
  - id: TC-00100
    type: performance
    status: pass
    title: database load
defects:
  - id: DEF-00002
    title: Banner overlaps
    priority: low
    status: backlog
    epic_id: EP-00003
`

const jsoncFile = `{
  // Authored by hand.
  "epics": [
    {"id": "EP-00003", "title": "Privacy Consent", "priority": "critical",
     "component": "gdpr", "status": "backlog",},
  ],
  /* Stories follow. */
  "user_stories": [
    {"id": "US-00002", "epic_id": "EP-00003", "title": "Cookie banner",
     "priority": "medium", "status": "ready", "gdpr_flags": ["consent", "personal-data"]},
  ],
  "tests": [{"id": "TC-00100", "type": "performance", "status": "pass", "title": "database load"}],
  "defects": [{"id": "DEF-00002", "title": "Banner overlaps", "priority": "low", "status": "backlog", "epic_id": "EP-00003"}],
}`

func TestParseFormats(t *testing.T) {
	for format, data := range map[Format]string{FormatYAML: yamlFile, FormatJSONC: jsoncFile} {
		t.Run(string(format), func(t *testing.T) {
			file, err := Parse([]byte(data), format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if file.Len() != 4 {
				t.Fatalf("Len = %d, want 4", file.Len())
			}
			if err := file.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
			story := file.UserStories[0]
			if story.EpicID != "EP-00003" || len(story.GDPRFlags) != 2 || story.GDPRFlags[1] != rtm.GDPRPersonalData {
				t.Errorf("story = %+v", story)
			}
			if file.Epics[0].Component != rtm.ComponentGDPR {
				t.Errorf("epic component = %q", file.Epics[0].Component)
			}
		})
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("epics:\n  - id: EP-00001\n    titel: typo\n"), FormatYAML); err == nil {
		t.Error("YAML with an unknown field parsed")
	}
	if _, err := Parse([]byte(`{"epcis": []}`), FormatJSONC); err == nil {
		t.Error("JSONC with an unknown field parsed")
	}
}

func TestValidateReportsEverything(t *testing.T) {
	file := &File{
		Epics: []rtm.Epic{
			{ID: "EP-00001", Title: "A", Priority: rtm.PriorityHigh, Component: rtm.ComponentAuth, Status: rtm.StatusBacklog},
			{ID: "EP-00001", Title: "B", Priority: "urgent", Component: rtm.ComponentAuth, Status: rtm.StatusBacklog},
		},
		UserStories: []rtm.UserStory{
			{ID: "US-1", EpicID: "EP-00001", Title: "x", Priority: rtm.PriorityLow, Status: rtm.StatusBacklog},
		},
	}
	err := file.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid file")
	}
	for _, fragment := range []string{"duplicate identifier EP-00001", `invalid priority "urgent"`, `invalid user story id "US-1"`} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q does not mention %q", err, fragment)
		}
	}
}

func TestReadFileAndImport(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "rtm.yaml")
	if err := os.WriteFile(path, []byte(yamlFile), 0o644); err != nil {
		t.Fatal(err)
	}
	file, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	store, err := rtmstore.Open(rtmstore.Config{Path: filepath.Join(directory, "rtm.db")})
	if err != nil {
		t.Fatalf("rtmstore.Open: %v", err)
	}
	defer store.Close()
	if _, err := store.Commit(context.Background(), file.Batch()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	snapshot, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snapshot.Contains("TC-00100") || !snapshot.Contains("DEF-00002") || len(snapshot.Orphaned()) != 0 {
		t.Errorf("imported snapshot missing entities: tracked %v", snapshot.Tracked())
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{"a.yaml": FormatYAML, "b.YML": FormatYAML, "c.json": FormatJSONC, "d.jsonc": FormatJSONC}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Errorf("FormatFromPath(%q) = %q, %v", path, got, err)
		}
	}
	if _, err := FormatFromPath("rtm.toml"); err == nil {
		t.Error("FormatFromPath accepted .toml")
	}
}
