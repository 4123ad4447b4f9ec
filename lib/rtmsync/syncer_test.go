// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/rtmsync/lib/clock"
	"github.com/bureau-foundation/rtmsync/lib/labelrules"
	"github.com/bureau-foundation/rtmsync/lib/rtm"
	"github.com/bureau-foundation/rtmsync/lib/rtmstore"
	"github.com/bureau-foundation/rtmsync/lib/testutil"
	"github.com/bureau-foundation/rtmsync/lib/tracker"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type harness struct {
	store  *rtmstore.Store
	remote *tracker.Fake
	clock  *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := rtmstore.Open(rtmstore.Config{Path: filepath.Join(t.TempDir(), "rtm.db")})
	if err != nil {
		t.Fatalf("rtmstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	batch := &rtmstore.Batch{}
	batch.PutEpic(rtm.Epic{ID: "EP-00001", Title: "User Authentication", Priority: rtm.PriorityHigh, Component: rtm.ComponentAuth, Release: "1.0", Status: rtm.StatusInProgress})
	batch.PutEpic(rtm.Epic{ID: "EP-00003", Title: "Privacy Consent", Priority: rtm.PriorityCritical, Component: rtm.ComponentGDPR, Status: rtm.StatusBacklog})
	batch.PutUserStory(rtm.UserStory{ID: "US-00001", EpicID: "EP-00001", Title: "Login with email", Priority: rtm.PriorityHigh, Status: rtm.StatusBacklog})
	batch.PutUserStory(rtm.UserStory{ID: "US-00002", EpicID: "EP-00003", Title: "Cookie banner", Priority: rtm.PriorityMedium, Status: rtm.StatusReady, GDPRFlags: []rtm.GDPRFlag{rtm.GDPRConsent}})
	batch.PutUserStory(rtm.UserStory{ID: "US-00010", EpicID: "EP-00404", Title: "Lost story", Priority: rtm.PriorityLow, Status: rtm.StatusBacklog})
	batch.PutTest(rtm.Test{ID: "TC-00001", UserStoryID: "US-00001", Type: rtm.TestUnit, Status: rtm.TestPass, Title: "login succeeds"})
	batch.PutDefect(rtm.Defect{ID: "DEF-00001", Title: "Login loops", Priority: rtm.PriorityHigh, Status: rtm.StatusBacklog, UserStoryID: "US-00001"})
	if _, err := store.Commit(context.Background(), batch); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	clk := clock.Fake(epoch)
	remote := tracker.NewFake(clk)
	snapshot, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	for _, definition := range labelrules.Canonical(snapshot) {
		remote.DefineLabels(definition.Name)
	}
	return &harness{store: store, remote: remote, clock: clk}
}

func (h *harness) syncer(t *testing.T, configure func(*Config)) *Syncer {
	t.Helper()
	cfg := Config{Store: h.store, Tracker: h.remote, Clock: h.clock, Workers: 3}
	if configure != nil {
		configure(&cfg)
	}
	syncer, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return syncer
}

func (h *harness) cycle(t *testing.T, syncer *Syncer) *Summary {
	t.Helper()
	summary, err := syncer.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return summary
}

func (h *harness) issueOf(t *testing.T, id string) tracker.Issue {
	t.Helper()
	record, found, err := h.store.SyncRecord(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("SyncRecord(%s) = found %v, err %v", id, found, err)
	}
	issue, ok := h.remote.Issue(record.IssueNumber)
	if !ok {
		t.Fatalf("issue #%d for %s does not exist", record.IssueNumber, id)
	}
	return issue
}

func itemFor(summary *Summary, id string) (ItemResult, bool) {
	for _, item := range summary.Items {
		if item.EntityID == id {
			return item, true
		}
	}
	return ItemResult{}, false
}

func sortedLabels(issue tracker.Issue) []string {
	return slices.Sorted(slices.Values(issue.Labels))
}

var trackedIDs = []string{"DEF-00001", "EP-00001", "EP-00003", "US-00001", "US-00002", "US-00010"}

func TestFirstCycleCreatesAndLabels(t *testing.T) {
	h := newHarness(t)
	summary := h.cycle(t, h.syncer(t, nil))

	if got := summary.Count(OutcomeCreated); got != len(trackedIDs) {
		t.Fatalf("created %d issues, want %d: %+v", got, len(trackedIDs), summary.Items)
	}
	if h.remote.LabelWrites() != len(trackedIDs) {
		t.Errorf("LabelWrites = %d, want %d", h.remote.LabelWrites(), len(trackedIDs))
	}
	if !summary.CheckpointAdvanced {
		t.Error("checkpoint not advanced after a clean cycle")
	}
	if !slices.Equal(summary.Orphaned, []string{"US-00010"}) {
		t.Errorf("Orphaned = %v, want [US-00010]", summary.Orphaned)
	}

	snapshot, err := h.store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	for _, id := range trackedIDs {
		issue := h.issueOf(t, id)
		if !strings.HasPrefix(issue.Title, "["+id+"] ") {
			t.Errorf("%s: title %q lacks the identifier prefix", id, issue.Title)
		}
		record, _, _ := h.store.SyncRecord(context.Background(), id)
		hash, _ := snapshot.ContentHash(id)
		if record.ContentHash != hash {
			t.Errorf("%s: recorded hash %q, want %q", id, record.ContentHash, hash)
		}
	}

	want := []string{"component/gdpr", "epic/privacy-consent", "priority/critical", "release/MVP", "status/backlog"}
	if got := sortedLabels(h.issueOf(t, "EP-00003")); !slices.Equal(got, want) {
		t.Errorf("EP-00003 labels = %v, want %v", got, want)
	}
	want = []string{"gdpr/consent", "priority/medium", "status/ready"}
	if got := sortedLabels(h.issueOf(t, "US-00002")); !slices.Contains(got, "epic/privacy-consent") || !containsAll(got, want) {
		t.Errorf("US-00002 labels = %v, want epic/privacy-consent and %v", got, want)
	}
	if _, found, _ := h.store.SyncRecord(context.Background(), "TC-00001"); found {
		t.Error("a test case was synced to an issue")
	}
}

func containsAll(have, want []string) bool {
	for _, label := range want {
		if !slices.Contains(have, label) {
			return false
		}
	}
	return true
}

func TestSecondCycleWritesNothing(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	writes := h.remote.LabelWrites()
	creates := h.remote.Calls("CreateIssue")

	h.clock.Advance(time.Minute)
	summary := h.cycle(t, syncer)

	if len(summary.Items) != 0 {
		t.Errorf("second cycle processed %d items: %+v", len(summary.Items), summary.Items)
	}
	if got := h.remote.LabelWrites(); got != writes {
		t.Errorf("second cycle made %d SetLabels calls, want 0", got-writes)
	}
	if got := h.remote.Calls("CreateIssue"); got != creates {
		t.Errorf("second cycle created %d issues, want 0", got-creates)
	}
}

func TestFullCycleStillSkipsUnchangedLabels(t *testing.T) {
	h := newHarness(t)
	h.cycle(t, h.syncer(t, nil))
	writes := h.remote.LabelWrites()

	summary := h.cycle(t, h.syncer(t, func(cfg *Config) { cfg.Full = true }))
	if summary.Count(OutcomeUnchanged) != len(trackedIDs) {
		t.Errorf("full cycle outcomes: %+v", summary.Items)
	}
	if h.remote.LabelWrites() != writes {
		t.Error("full cycle rewrote unchanged labels")
	}
}

func TestRemoteUnavailableIsolated(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	ctx := context.Background()

	for _, id := range []string{"US-00001", "US-00002"} {
		story, _, err := h.store.ResolveUserStory(ctx, id)
		if err != nil {
			t.Fatalf("ResolveUserStory: %v", err)
		}
		story.Priority = rtm.PriorityLow
		if _, err := h.store.UpsertUserStory(ctx, story); err != nil {
			t.Fatalf("UpsertUserStory: %v", err)
		}
	}
	broken := h.issueOf(t, "US-00001").Number
	h.remote.FailIssue(broken, &tracker.RemoteUnavailableError{
		Op: "fetch issue", Number: broken, Err: errors.New("503 Service Unavailable"),
	})

	summary := h.cycle(t, syncer)
	failedItem, _ := itemFor(summary, "US-00001")
	if failedItem.Outcome != OutcomeFailed || failedItem.Failure == nil || failedItem.Failure.Kind != rtm.FailureRemoteUnavailable {
		t.Errorf("US-00001 result = %+v, want RemoteUnavailable failure", failedItem)
	}
	if updated, _ := itemFor(summary, "US-00002"); updated.Outcome != OutcomeUpdated {
		t.Errorf("US-00002 outcome = %s, want updated", updated.Outcome)
	}
	if !slices.Contains(h.issueOf(t, "US-00002").Labels, "priority/low") {
		t.Error("US-00002 labels not updated while US-00001 failed")
	}
	if len(summary.Failures) != 1 || summary.Deferred() != 1 {
		t.Errorf("Failures = %+v, Deferred = %d, want exactly one", summary.Failures, summary.Deferred())
	}

	h.remote.FailIssue(broken, nil)
	summary = h.cycle(t, syncer)
	if retried, _ := itemFor(summary, "US-00001"); retried.Outcome != OutcomeUpdated {
		t.Errorf("retry outcome = %s, want updated", retried.Outcome)
	}
	if !slices.Contains(h.issueOf(t, "US-00001").Labels, "priority/low") {
		t.Error("US-00001 labels not updated on retry")
	}
}

// slowTracker charges fake time for every label write.
type slowTracker struct {
	*tracker.Fake
	clock *clock.FakeClock
	cost  time.Duration
}

func (s slowTracker) SetLabels(ctx context.Context, number int, labels []string) error {
	s.clock.Advance(s.cost)
	return s.Fake.SetLabels(ctx, number, labels)
}

func TestCycleTimeoutLeavesItemsNotReached(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, func(cfg *Config) {
		cfg.Tracker = slowTracker{Fake: h.remote, clock: h.clock, cost: time.Minute}
		cfg.Workers = 1
		cfg.CycleTimeout = 90 * time.Second
	})

	summary := h.cycle(t, syncer)
	if got := summary.Count(OutcomeCreated); got != 2 {
		t.Errorf("created %d items before the deadline, want 2", got)
	}
	if got := summary.Count(OutcomeNotReached); got != len(trackedIDs)-2 {
		t.Errorf("not reached = %d, want %d", got, len(trackedIDs)-2)
	}
	for _, item := range summary.Items[2:] {
		if item.Outcome != OutcomeNotReached {
			t.Errorf("%s outcome = %s, want not-reached", item.EntityID, item.Outcome)
		}
		if _, found, _ := h.store.SyncRecord(context.Background(), item.EntityID); found {
			t.Errorf("%s has a sync record but was never started", item.EntityID)
		}
	}

	// The next cycle picks the rest up.
	summary = h.cycle(t, h.syncer(t, nil))
	if got := summary.Count(OutcomeCreated); got != len(trackedIDs)-2 {
		t.Errorf("follow-up cycle created %d, want %d", got, len(trackedIDs)-2)
	}
}

func TestPullMergesRemoteEdit(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	ctx := context.Background()

	number := h.issueOf(t, "US-00001").Number
	h.clock.Advance(time.Minute)
	h.remote.EditIssue(number, func(issue *tracker.Issue) {
		issue.Title = "[US-00001] Sign in with email"
		issue.Body = strings.Replace(issue.Body, "### Priority\n\nhigh\n", "### Priority\n\n🔴 Critical\n", 1)
	})
	bodyBefore := h.issueOf(t, "US-00001").Body

	summary := h.cycle(t, syncer)
	if !slices.Equal(summary.Merged, []string{"US-00001"}) {
		t.Fatalf("Merged = %v, want [US-00001]", summary.Merged)
	}
	story, _, err := h.store.ResolveUserStory(ctx, "US-00001")
	if err != nil {
		t.Fatalf("ResolveUserStory: %v", err)
	}
	if story.Title != "Sign in with email" || story.Priority != rtm.PriorityCritical {
		t.Errorf("merged story = %q %s, want the remote title and critical", story.Title, story.Priority)
	}

	issue := h.issueOf(t, "US-00001")
	if !containsAll(issue.Labels, []string{"priority/critical", "release/MVP"}) || slices.Contains(issue.Labels, "priority/high") {
		t.Errorf("labels after merge = %v", issue.Labels)
	}
	if issue.Title != "[US-00001] Sign in with email" || issue.Body != bodyBefore {
		t.Error("synchronizer rewrote the issue title or body")
	}
	if len(summary.Items) != 1 {
		t.Errorf("work set = %+v, want only US-00001", summary.Items)
	}
}

// flakyStore fails PutSyncRecord for chosen entities.
type flakyStore struct {
	*rtmstore.Store

	mu       sync.Mutex
	failures map[string]int
}

func (f *flakyStore) PutSyncRecord(ctx context.Context, record rtm.SyncRecord) error {
	f.mu.Lock()
	if f.failures[record.EntityID] > 0 {
		f.failures[record.EntityID]--
		f.mu.Unlock()
		return &rtmstore.TransactionError{Op: "put sync record", EntityID: record.EntityID, Err: errors.New("database is locked")}
	}
	f.mu.Unlock()
	return f.Store.PutSyncRecord(ctx, record)
}

func TestStoreFailureRetriedOnceThenAdopted(t *testing.T) {
	h := newHarness(t)
	flaky := &flakyStore{Store: h.store, failures: map[string]int{"EP-00001": 1, "EP-00003": 2}}
	syncer := h.syncer(t, func(cfg *Config) { cfg.Store = flaky })

	summary := h.cycle(t, syncer)
	if item, _ := itemFor(summary, "EP-00001"); item.Outcome != OutcomeCreated {
		t.Errorf("EP-00001 outcome = %s, want created after one retry", item.Outcome)
	}
	item, _ := itemFor(summary, "EP-00003")
	if item.Outcome != OutcomeFailed || item.Failure.Kind != rtm.FailureStoreTransaction {
		t.Fatalf("EP-00003 result = %+v, want StoreTransactionFailure", item)
	}
	orphanIssue := item.IssueNumber
	creates := h.remote.Calls("CreateIssue")

	// The issue exists without a mapping; its marker lets the next
	// cycle adopt it instead of creating a duplicate.
	h.clock.Advance(time.Minute)
	summary = h.cycle(t, syncer)
	if got := h.remote.Calls("CreateIssue"); got != creates {
		t.Errorf("follow-up cycle created %d issues, want 0", got-creates)
	}
	if adopted := h.issueOf(t, "EP-00003"); adopted.Number != orphanIssue {
		t.Errorf("EP-00003 mapped to #%d, want adopted #%d", adopted.Number, orphanIssue)
	}
	if item, _ := itemFor(summary, "EP-00003"); item.Outcome != OutcomeUpdated {
		t.Errorf("adopted item outcome = %s, want updated", item.Outcome)
	}
}

func TestDeletedIssueReportedNotFound(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	ctx := context.Background()

	epic, _, _ := h.store.ResolveEpic(ctx, "EP-00001")
	epic.Release = "2.0"
	if _, err := h.store.UpsertEpic(ctx, epic); err != nil {
		t.Fatalf("UpsertEpic: %v", err)
	}
	number := h.issueOf(t, "EP-00001").Number
	h.remote.FailIssue(number, fmt.Errorf("tracker: fetch issue #%d: %w", number, tracker.ErrNotFound))

	summary := h.cycle(t, syncer)
	item, _ := itemFor(summary, "EP-00001")
	if item.Failure == nil || item.Failure.Kind != rtm.FailureNotFound {
		t.Errorf("EP-00001 result = %+v, want NotFound", item)
	}
}

func TestTriageUntrackedIssues(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []string
		warning rtm.FailureKind
	}{
		{
			name: "critical_epic",
			body: "### Priority\n\nCritical\n\n### Epic\n\nEP-00003\n",
			want: []string{"component/gdpr", "epic/privacy-consent", "priority/critical", "release/MVP", "status/backlog"},
		},
		{
			name:    "missing_epic",
			body:    "### Priority\n\nMedium\n\n### Epic\n\nEP-99999\n",
			want:    []string{"needs-triage", "priority/medium", "status/backlog"},
			warning: rtm.FailureNotFound,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			filed := h.remote.AddIssue(tracker.Issue{Title: "Reported problem", Body: test.body, Labels: []string{"needs-triage"}})
			plain := h.remote.AddIssue(tracker.Issue{Title: "Free text", Body: "something broke"})

			summary := h.cycle(t, h.syncer(t, nil))
			issue, _ := h.remote.Issue(filed.Number)
			if got := sortedLabels(issue); !slices.Equal(got, test.want) {
				t.Errorf("labels = %v, want %v", got, test.want)
			}
			if untouched, _ := h.remote.Issue(plain.Number); len(untouched.Labels) != 0 {
				t.Errorf("issue without a form was labeled: %v", untouched.Labels)
			}

			var triaged *ItemResult
			for i := range summary.Items {
				if summary.Items[i].IssueNumber == filed.Number {
					triaged = &summary.Items[i]
				}
			}
			if triaged == nil || triaged.EntityID != "" {
				t.Fatalf("triage item = %+v", triaged)
			}
			if test.warning != "" && (len(triaged.Warnings) == 0 || triaged.Warnings[0].Kind != test.warning) {
				t.Errorf("warnings = %+v, want %s", triaged.Warnings, test.warning)
			}

			snapshot, _ := h.store.Snapshot(context.Background())
			if len(snapshot.Tracked()) != len(trackedIDs) {
				t.Error("a triaged issue was imported into the store")
			}
		})
	}
}

func TestListingFailureHoldsCheckpoint(t *testing.T) {
	h := newHarness(t)
	h.remote.FailOperation("ListIssuesUpdatedSince", &tracker.RemoteUnavailableError{Op: "list issues", Err: errors.New("timeout")})

	summary := h.cycle(t, h.syncer(t, nil))
	if summary.CheckpointAdvanced {
		t.Error("checkpoint advanced although listing failed")
	}
	if summary.Count(OutcomeCreated) != len(trackedIDs) {
		t.Errorf("push side did not run: %+v", summary.Items)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Kind != rtm.FailureRemoteUnavailable {
		t.Errorf("Failures = %+v", summary.Failures)
	}
	if _, found, _ := h.store.Checkpoint(context.Background()); found {
		t.Error("checkpoint stored")
	}
}

func TestVocabularyFailureAbortsCycle(t *testing.T) {
	h := newHarness(t)
	h.remote.FailOperation("ListRepositoryLabels", errors.New("boom"))
	if _, err := h.syncer(t, nil).RunCycle(context.Background()); err == nil {
		t.Fatal("RunCycle succeeded without a vocabulary")
	}
	if h.remote.Calls("CreateIssue") != 0 {
		t.Error("cycle created issues without a vocabulary")
	}
}

func TestStates(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	ctx := context.Background()

	states, err := syncer.States(ctx)
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	for _, state := range states {
		if state.State != StateUnsynced {
			t.Errorf("%s before any cycle: %s, want unsynced", state.EntityID, state.State)
		}
	}

	h.cycle(t, syncer)
	story, _, _ := h.store.ResolveUserStory(ctx, "US-00002")
	story.Status = rtm.StatusDone
	if _, err := h.store.UpsertUserStory(ctx, story); err != nil {
		t.Fatalf("UpsertUserStory: %v", err)
	}

	states, err = syncer.States(ctx)
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	var ids []string
	for _, state := range states {
		ids = append(ids, state.EntityID)
		want := StateSynced
		if state.EntityID == "US-00002" {
			want = StateDrifted
		}
		if state.State != want {
			t.Errorf("%s: %s, want %s", state.EntityID, state.State, want)
		}
		if state.IssueNumber == 0 {
			t.Errorf("%s: no issue number", state.EntityID)
		}
	}
	if !slices.Equal(ids, trackedIDs) {
		t.Errorf("listed %v, want %v", ids, trackedIDs)
	}
}

func TestRunLoop(t *testing.T) {
	h := newHarness(t)
	cycles := make(chan *Summary, 4)
	syncer := h.syncer(t, func(cfg *Config) {
		cfg.OnCycle = func(summary *Summary, err error) {
			if err != nil {
				t.Errorf("cycle error: %v", err)
			}
			cycles <- summary
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- syncer.Run(ctx, 15*time.Minute) }()

	first := testutil.RequireReceive(t, cycles, 5*time.Second, "first cycle")
	if first.Count(OutcomeCreated) != len(trackedIDs) {
		t.Errorf("first cycle created %d", first.Count(OutcomeCreated))
	}

	h.clock.WaitForTimers(1)
	h.clock.Advance(15 * time.Minute)
	second := testutil.RequireReceive(t, cycles, 5*time.Second, "second cycle")
	if len(second.Items) != 0 {
		t.Errorf("second cycle items = %+v", second.Items)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run to return"); err != nil {
		t.Errorf("Run returned %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	h := newHarness(t)
	for _, cfg := range []Config{
		{Tracker: h.remote},
		{Store: h.store},
		{Store: h.store, Tracker: h.remote, Workers: -1},
	} {
		if _, err := New(cfg); err == nil {
			t.Errorf("New(%+v) succeeded", cfg)
		}
	}
	syncer := h.syncer(t, nil)
	if err := syncer.Run(context.Background(), 0); err == nil {
		t.Error("Run accepted a zero interval")
	}
}

func TestSummaryWriteText(t *testing.T) {
	summary := &Summary{
		StartedAt:  epoch,
		FinishedAt: epoch.Add(1500 * time.Millisecond),
		Pulled:     2,
		Items: []ItemResult{
			{EntityID: "EP-00001", IssueNumber: 4, Outcome: OutcomeUpdated, Added: []string{"priority/high"}},
			{IssueNumber: 9, Outcome: OutcomeUnchanged, Warnings: []labelrules.Warning{{Kind: rtm.FailureNotFound, Message: "epic reference not found: EP-09999"}}},
			{EntityID: "US-00003", Outcome: OutcomeNotReached},
		},
		Failures: []Failure{{EntityID: "US-00004", IssueNumber: 7, Kind: rtm.FailureRemoteUnavailable, Reason: "fetching issue: 503"}},
	}
	var builder strings.Builder
	if err := summary.WriteText(&builder); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	output := builder.String()
	for _, fragment := range []string{
		"EP-00001", "#4", "(triage)",
		"3 item(s): 1 updated, 0 created, 1 unchanged, 0 failed, 1 not reached; 2 pulled, 0 merged",
		"error: US-00004 (#7) RemoteUnavailable: fetching issue: 503",
		"warning: #9 NotFound: epic reference not found: EP-09999",
		"checkpoint not advanced",
		"cycle took 1.5s",
	} {
		if !strings.Contains(output, fragment) {
			t.Errorf("output missing %q:\n%s", fragment, output)
		}
	}
}

func TestRemoteTouchKeepsLocalEdit(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	ctx := context.Background()

	// A comment moves the issue's update time without touching the form.
	number := h.issueOf(t, "EP-00001").Number
	h.clock.Advance(time.Minute)
	h.remote.EditIssue(number, func(*tracker.Issue) {})

	epic, _, err := h.store.ResolveEpic(ctx, "EP-00001")
	if err != nil {
		t.Fatalf("ResolveEpic: %v", err)
	}
	epic.Priority = rtm.PriorityLow
	if _, err := h.store.UpsertEpic(ctx, epic); err != nil {
		t.Fatalf("UpsertEpic: %v", err)
	}

	summary := h.cycle(t, syncer)
	if len(summary.Merged) != 0 {
		t.Errorf("Merged = %v, want nothing from an unchanged form", summary.Merged)
	}
	epic, _, err = h.store.ResolveEpic(ctx, "EP-00001")
	if err != nil {
		t.Fatalf("ResolveEpic: %v", err)
	}
	if epic.Priority != rtm.PriorityLow {
		t.Errorf("local priority = %s after the cycle, want low", epic.Priority)
	}
	labels := h.issueOf(t, "EP-00001").Labels
	if !slices.Contains(labels, "priority/low") || slices.Contains(labels, "priority/high") {
		t.Errorf("labels = %v, want priority/low only", labels)
	}
}

func TestConflictingEditsKeepLocal(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	ctx := context.Background()

	number := h.issueOf(t, "US-00001").Number
	h.clock.Advance(time.Minute)
	h.remote.EditIssue(number, func(issue *tracker.Issue) {
		issue.Body = strings.Replace(issue.Body, "### Priority\n\nhigh\n", "### Priority\n\ncritical\n", 1)
	})
	story, _, err := h.store.ResolveUserStory(ctx, "US-00001")
	if err != nil {
		t.Fatalf("ResolveUserStory: %v", err)
	}
	story.Priority = rtm.PriorityLow
	if _, err := h.store.UpsertUserStory(ctx, story); err != nil {
		t.Fatalf("UpsertUserStory: %v", err)
	}

	summary := h.cycle(t, syncer)
	if len(summary.Merged) != 0 {
		t.Errorf("Merged = %v, want the local edit to win", summary.Merged)
	}
	story, _, err = h.store.ResolveUserStory(ctx, "US-00001")
	if err != nil {
		t.Fatalf("ResolveUserStory: %v", err)
	}
	if story.Priority != rtm.PriorityLow {
		t.Errorf("priority = %s, want low", story.Priority)
	}
	if labels := h.issueOf(t, "US-00001").Labels; !slices.Contains(labels, "priority/low") {
		t.Errorf("labels = %v, want priority/low", labels)
	}
	item, _ := itemFor(summary, "US-00001")
	if !slices.ContainsFunc(item.Warnings, func(w labelrules.Warning) bool { return w.Kind == rtm.FailureInvalidMapping }) {
		t.Errorf("warnings = %+v, want an invalid mapping warning for the conflict", item.Warnings)
	}

	// The conflict is settled: the next cycle neither warns nor writes.
	writes := h.remote.LabelWrites()
	h.clock.Advance(time.Minute)
	summary = h.cycle(t, syncer)
	if len(summary.Items) != 0 || h.remote.LabelWrites() != writes {
		t.Errorf("cycle after conflict: items %+v, %d writes", summary.Items, h.remote.LabelWrites()-writes)
	}
}

func TestLabelWriteTimestampsMergeNothing(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	ctx := context.Background()

	// GitHub's updated_at for a label write can land after the record's
	// sync time.
	h.clock.Advance(time.Second)
	for _, id := range trackedIDs {
		issue := h.issueOf(t, id)
		if err := h.remote.SetLabels(ctx, issue.Number, issue.Labels); err != nil {
			t.Fatalf("SetLabels: %v", err)
		}
	}
	writes := h.remote.LabelWrites()

	h.clock.Advance(time.Minute)
	summary := h.cycle(t, syncer)
	if len(summary.Merged) != 0 {
		t.Errorf("Merged = %v after label writes only", summary.Merged)
	}
	if summary.Count(OutcomeUnchanged) != len(summary.Items) {
		t.Errorf("outcomes = %+v, want all unchanged", summary.Items)
	}
	if got := h.remote.LabelWrites(); got != writes {
		t.Errorf("cycle made %d SetLabels calls, want 0", got-writes)
	}
}

func TestDefectRelabeledWhenStoryChangesEpic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	moveStory := func(epicID string) {
		t.Helper()
		story, _, err := h.store.ResolveUserStory(ctx, "US-00001")
		if err != nil {
			t.Fatalf("ResolveUserStory: %v", err)
		}
		story.EpicID = epicID
		if _, err := h.store.UpsertUserStory(ctx, story); err != nil {
			t.Fatalf("UpsertUserStory: %v", err)
		}
	}

	// The defect names EP-00001 while its story sits under EP-00003:
	// the mismatch leaves it without epic labels.
	snapshot, err := h.store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defect, _ := snapshot.Defect("DEF-00001")
	defect.EpicID = "EP-00001"
	if _, err := h.store.UpsertDefect(ctx, defect); err != nil {
		t.Fatalf("UpsertDefect: %v", err)
	}
	moveStory("EP-00003")

	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	if labels := h.issueOf(t, "DEF-00001").Labels; slices.Contains(labels, "epic/user-authentication") {
		t.Fatalf("labels = %v, want no epic label while the story is elsewhere", labels)
	}

	moveStory("EP-00001")
	h.clock.Advance(time.Minute)
	summary := h.cycle(t, syncer)
	if _, ok := itemFor(summary, "DEF-00001"); !ok {
		t.Fatalf("DEF-00001 not in the work set after its story moved: %+v", summary.Items)
	}
	labels := h.issueOf(t, "DEF-00001").Labels
	if !containsAll(labels, []string{"epic/user-authentication", "component/auth"}) {
		t.Errorf("labels = %v, want the epic and component of EP-00001", labels)
	}
}

func TestRemoteEpicRenameKeepsLabel(t *testing.T) {
	h := newHarness(t)
	syncer := h.syncer(t, nil)
	h.cycle(t, syncer)
	ctx := context.Background()

	number := h.issueOf(t, "EP-00003").Number
	h.clock.Advance(time.Minute)
	h.remote.EditIssue(number, func(issue *tracker.Issue) { issue.Title = "[EP-00003] Consent Management" })

	summary := h.cycle(t, syncer)
	if !slices.Equal(summary.Merged, []string{"EP-00003"}) {
		t.Fatalf("Merged = %v, want [EP-00003]", summary.Merged)
	}
	epic, _, err := h.store.ResolveEpic(ctx, "EP-00003")
	if err != nil {
		t.Fatalf("ResolveEpic: %v", err)
	}
	if epic.Title != "Consent Management" || epic.EffectiveLabel() != "privacy-consent" {
		t.Errorf("epic = %q with label %q, want the new title and the old label", epic.Title, epic.EffectiveLabel())
	}
	for _, id := range []string{"EP-00003", "US-00002"} {
		if labels := h.issueOf(t, id).Labels; !slices.Contains(labels, "epic/privacy-consent") {
			t.Errorf("%s labels = %v, want epic/privacy-consent kept", id, labels)
		}
	}
}
