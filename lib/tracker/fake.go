// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracker

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/rtmsync/lib/clock"
)

// Fake is an in-memory [Client]. Unlike GitHub, SetLabels and
// CreateIssue reject labels missing from the vocabulary, so a test
// fails loudly if the caller ever sends one.
type Fake struct {
	clock clock.Clock

	mu          sync.Mutex
	issues      map[int]Issue
	vocabulary  map[string]Label
	nextNumber  int
	labelWrites int
	calls       map[string]int

	issueFailures map[int]error
	opFailures    map[string]error
}

// NewFake returns an empty tracker whose timestamps come from clk.
func NewFake(clk clock.Clock) *Fake {
	return &Fake{
		clock:         clk,
		issues:        make(map[int]Issue),
		vocabulary:    make(map[string]Label),
		nextNumber:    1,
		calls:         make(map[string]int),
		issueFailures: make(map[int]error),
		opFailures:    make(map[string]error),
	}
}

// DefineLabels adds names to the vocabulary.
func (f *Fake) DefineLabels(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		f.vocabulary[name] = Label{Name: name}
	}
}

// AddIssue stores an issue as if someone had filed it remotely. A zero
// Number is assigned; a zero UpdatedAt becomes the clock's now.
func (f *Fake) AddIssue(issue Issue) Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.Number == 0 {
		issue.Number = f.nextNumber
	}
	f.nextNumber = max(f.nextNumber, issue.Number+1)
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = f.clock.Now()
	}
	issue.Labels = slices.Clone(issue.Labels)
	f.issues[issue.Number] = issue
	return issue
}

// EditIssue applies a remote edit and bumps UpdatedAt.
func (f *Fake) EditIssue(number int, edit func(*Issue)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[number]
	if !ok {
		panic(fmt.Sprintf("tracker.Fake: EditIssue on unknown issue #%d", number))
	}
	edit(&issue)
	issue.UpdatedAt = f.clock.Now()
	f.issues[number] = issue
}

// Issue returns the stored issue.
func (f *Fake) Issue(number int) (Issue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[number]
	issue.Labels = slices.Clone(issue.Labels)
	return issue, ok
}

// FailIssue makes every operation on the issue return err until
// cleared with a nil err.
func (f *Fake) FailIssue(number int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.issueFailures, number)
		return
	}
	f.issueFailures[number] = err
}

// FailOperation makes every call of the named operation return err
// until cleared with a nil err. Names are the Client method names.
func (f *Fake) FailOperation(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.opFailures, op)
		return
	}
	f.opFailures[op] = err
}

// LabelWrites counts successful SetLabels calls.
func (f *Fake) LabelWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labelWrites
}

// Calls counts invocations of the named operation, failed or not.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records a call and returns any injected failure. Caller holds
// f.mu.
func (f *Fake) enter(op string, number int) error {
	f.calls[op]++
	if err, ok := f.opFailures[op]; ok {
		return err
	}
	if number > 0 {
		if err, ok := f.issueFailures[number]; ok {
			return err
		}
	}
	return nil
}

func (f *Fake) checkVocabulary(labels []string) error {
	for _, label := range labels {
		if _, ok := f.vocabulary[label]; !ok {
			return fmt.Errorf("tracker.Fake: label %q is not in the vocabulary", label)
		}
	}
	return nil
}

// FetchIssue implements [Client].
func (f *Fake) FetchIssue(ctx context.Context, number int) (Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("FetchIssue", number); err != nil {
		return Issue{}, err
	}
	issue, ok := f.issues[number]
	if !ok {
		return Issue{}, fmt.Errorf("tracker: fetch issue #%d: %w", number, ErrNotFound)
	}
	issue.Labels = slices.Clone(issue.Labels)
	return issue, nil
}

// ListIssuesUpdatedSince implements [Client].
func (f *Fake) ListIssuesUpdatedSince(ctx context.Context, since time.Time) ([]Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListIssuesUpdatedSince", 0); err != nil {
		return nil, err
	}
	var issues []Issue
	for _, issue := range f.issues {
		if issue.UpdatedAt.Before(since) {
			continue
		}
		issue.Labels = slices.Clone(issue.Labels)
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		if !issues[i].UpdatedAt.Equal(issues[j].UpdatedAt) {
			return issues[i].UpdatedAt.Before(issues[j].UpdatedAt)
		}
		return issues[i].Number < issues[j].Number
	})
	return issues, nil
}

// SetLabels implements [Client]. Like GitHub, a label write bumps
// UpdatedAt.
func (f *Fake) SetLabels(ctx context.Context, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("SetLabels", number); err != nil {
		return err
	}
	issue, ok := f.issues[number]
	if !ok {
		return fmt.Errorf("tracker: set labels #%d: %w", number, ErrNotFound)
	}
	if err := f.checkVocabulary(labels); err != nil {
		return err
	}
	issue.Labels = slices.Clone(labels)
	issue.UpdatedAt = f.clock.Now()
	f.issues[number] = issue
	f.labelWrites++
	return nil
}

// ListRepositoryLabels implements [Client].
func (f *Fake) ListRepositoryLabels(ctx context.Context) ([]Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListRepositoryLabels", 0); err != nil {
		return nil, err
	}
	labels := make([]Label, 0, len(f.vocabulary))
	for _, label := range f.vocabulary {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels, nil
}

// CreateLabel implements [Client].
func (f *Fake) CreateLabel(ctx context.Context, label Label) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateLabel", 0); err != nil {
		return err
	}
	if _, exists := f.vocabulary[label.Name]; exists {
		return fmt.Errorf("tracker.Fake: label %q already exists", label.Name)
	}
	f.vocabulary[label.Name] = label
	return nil
}

// CreateIssue implements [Client].
func (f *Fake) CreateIssue(ctx context.Context, title, body string, labels []string) (Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateIssue", 0); err != nil {
		return Issue{}, err
	}
	if err := f.checkVocabulary(labels); err != nil {
		return Issue{}, err
	}
	issue := Issue{
		Number:    f.nextNumber,
		Title:     title,
		Body:      body,
		Labels:    slices.Clone(labels),
		UpdatedAt: f.clock.Now(),
	}
	f.nextNumber++
	f.issues[issue.Number] = issue
	return issue, nil
}
