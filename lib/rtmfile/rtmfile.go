// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtmfile reads RTM authoring files: YAML, or JSONC (JSON
// with // and /* */ comments and trailing commas). A file lists epics,
// user stories, tests and defects and is imported into the store as
// one batch.
//
//	epics:
//	  - id: EP-00003
//	    title: Privacy Consent
//	    priority: critical
//	    component: gdpr
//	    status: backlog
//	user_stories:
//	  - id: US-00002
//	    epic_id: EP-00003
//	    ...
package rtmfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
	"github.com/bureau-foundation/rtmsync/lib/rtmstore"
)

// Format is the syntax of an authoring file.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONC Format = "jsonc"
)

// FormatFromPath picks the format from the file extension: .yaml and
// .yml are YAML, .json and .jsonc are JSONC.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSONC, nil
	}
	return "", fmt.Errorf("rtmfile: %s: unrecognized extension (want .yaml, .yml, .json or .jsonc)", path)
}

// File is the content of one authoring file.
type File struct {
	Epics       []rtm.Epic      `yaml:"epics" json:"epics"`
	UserStories []rtm.UserStory `yaml:"user_stories" json:"user_stories"`
	Tests       []rtm.Test      `yaml:"tests" json:"tests"`
	Defects     []rtm.Defect    `yaml:"defects" json:"defects"`
}

// Len returns the number of entities in the file.
func (f *File) Len() int {
	return len(f.Epics) + len(f.UserStories) + len(f.Tests) + len(f.Defects)
}

// Parse decodes data. Unknown fields are errors, so a misspelled key
// is caught instead of silently dropped.
func Parse(data []byte, format Format) (*File, error) {
	var file File
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rtmfile: parsing YAML: %w", err)
		}
	case FormatJSONC:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rtmfile: parsing JSONC: %w", err)
		}
	default:
		return nil, fmt.Errorf("rtmfile: unknown format %q", format)
	}
	return &file, nil
}

// ReadFile reads and parses the file at path, choosing the format from
// its extension.
func ReadFile(path string) (*File, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rtmfile: reading %s: %w", path, err)
	}
	file, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Validate reports every invalid entity and every identifier that
// appears twice. References to entities outside the file are not
// checked: they may already be in the store, and a story whose epic
// is missing is orphaned rather than invalid.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	check := func(id string, err error) {
		if err != nil {
			errs = append(errs, err)
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("duplicate identifier %s", id))
		}
		seen[id] = true
	}
	for _, epic := range f.Epics {
		check(epic.ID, epic.Validate())
	}
	for _, story := range f.UserStories {
		check(story.ID, story.Validate())
	}
	for _, test := range f.Tests {
		check(test.ID, test.Validate())
	}
	for _, defect := range f.Defects {
		check(defect.ID, defect.Validate())
	}
	return errors.Join(errs...)
}

// Batch returns the file's entities as one store batch, epics first.
func (f *File) Batch() *rtmstore.Batch {
	batch := &rtmstore.Batch{}
	for _, epic := range f.Epics {
		batch.PutEpic(epic)
	}
	for _, story := range f.UserStories {
		batch.PutUserStory(story)
	}
	for _, test := range f.Tests {
		batch.PutTest(test)
	}
	for _, defect := range f.Defects {
		batch.PutDefect(defect)
	}
	return batch
}
