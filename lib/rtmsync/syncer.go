// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/rtmsync/lib/clock"
	"github.com/bureau-foundation/rtmsync/lib/labelrules"
	"github.com/bureau-foundation/rtmsync/lib/rtm"
	"github.com/bureau-foundation/rtmsync/lib/rtmstore"
	"github.com/bureau-foundation/rtmsync/lib/tracker"
)

// Store is the part of the traceability store the synchronizer uses.
// *rtmstore.Store implements it.
type Store interface {
	Snapshot(ctx context.Context) (*rtm.Snapshot, error)
	UpsertEpic(ctx context.Context, epic rtm.Epic) (*rtm.Epic, error)
	UpsertUserStory(ctx context.Context, story rtm.UserStory) (*rtm.UserStory, error)
	UpsertDefect(ctx context.Context, defect rtm.Defect) (*rtm.Defect, error)
	SyncRecords(ctx context.Context) (map[string]rtm.SyncRecord, error)
	PutSyncRecord(ctx context.Context, record rtm.SyncRecord) error
	Checkpoint(ctx context.Context) (time.Time, bool, error)
	SetCheckpoint(ctx context.Context, checkpoint time.Time) error
}

// DefaultWorkers is the worker pool size when Config.Workers is zero.
const DefaultWorkers = 4

// Config holds the dependencies of a [Syncer].
type Config struct {
	Store   Store
	Tracker tracker.Client

	// Clock drives cycle timeouts and the periodic loop. Nil means
	// the real clock.
	Clock clock.Clock

	Logger *slog.Logger

	// Workers bounds the number of items processed concurrently.
	Workers int

	// CycleTimeout stops dispatching new items once a cycle has run
	// this long. Zero disables the limit.
	CycleTimeout time.Duration

	// Full puts every tracked entity in the work set, regardless of
	// its recorded hash. Use it after the vocabulary changed.
	Full bool

	// OnCycle, when set, receives the result of every cycle started
	// by [Syncer.Run].
	OnCycle func(*Summary, error)
}

// Syncer runs reconciliation cycles. Cycles never overlap.
type Syncer struct {
	store   Store
	tracker tracker.Client
	clock   clock.Clock
	logger  *slog.Logger
	workers int
	timeout time.Duration
	full    bool
	onCycle func(*Summary, error)

	cycleMu sync.Mutex

	// reconciling holds the entities in the running cycle's work set.
	reconcilingMu sync.Mutex
	reconciling   map[string]bool
}

// New validates cfg and returns a Syncer.
func New(cfg Config) (*Syncer, error) {
	if cfg.Store == nil {
		return nil, errors.New("rtmsync: Store is required")
	}
	if cfg.Tracker == nil {
		return nil, errors.New("rtmsync: Tracker is required")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("rtmsync: Workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{
		store:       cfg.Store,
		tracker:     cfg.Tracker,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		workers:     cfg.Workers,
		timeout:     cfg.CycleTimeout,
		full:        cfg.Full,
		onCycle:     cfg.OnCycle,
		reconciling: make(map[string]bool),
	}, nil
}

// Run performs a cycle immediately and then one per interval until
// ctx is cancelled. Cycle errors are logged and reported to OnCycle;
// they do not stop the loop.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("rtmsync: interval must be positive, got %s", interval)
	}

	s.runAndReport(ctx)

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runAndReport(ctx)
		}
	}
}

func (s *Syncer) runAndReport(ctx context.Context) {
	summary, err := s.RunCycle(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error("sync cycle failed", "error", err)
	}
	if s.onCycle != nil {
		s.onCycle(summary, err)
	}
}

// workItem is one unit of cycle work: a tracked entity, or an
// untracked issue to triage.
type workItem struct {
	entityID string
	record   rtm.SyncRecord
	mapped   bool

	// issue is the copy listed during pull, if any. It saves a fetch.
	issue *tracker.Issue

	// warnings were raised while merging the issue's remote edit.
	warnings []labelrules.Warning
}

// cycleState is what every worker reads. It is not modified once
// dispatch starts.
type cycleState struct {
	snapshot   *rtm.Snapshot
	vocabulary labelrules.Vocabulary
}

// RunCycle performs one reconciliation cycle. It returns an error only
// when the cycle could not start: the vocabulary, snapshot, records or
// checkpoint could not be loaded. Item failures are in the Summary.
func (s *Syncer) RunCycle(ctx context.Context) (*Summary, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := s.clock.Now()
	summary := &Summary{StartedAt: started}

	vocabulary, err := s.loadVocabulary(ctx)
	if err != nil {
		return nil, err
	}
	state := cycleState{vocabulary: vocabulary}

	state.snapshot, err = s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading snapshot: %w", err)
	}
	records, err := s.store.SyncRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading sync records: %w", err)
	}
	checkpoint, _, err := s.store.Checkpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading checkpoint: %w", err)
	}

	pull := s.pull(ctx, state.snapshot, records, checkpoint, summary)
	if len(pull.merged) > 0 {
		refreshed, err := s.store.Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("rtmsync: reloading snapshot after merge: %w", err)
		}
		state.snapshot = refreshed
	}
	for id, record := range pull.adopted {
		records[id] = record
	}
	summary.Orphaned = state.snapshot.Orphaned()

	items := s.workSet(state.snapshot, records, pull)
	s.markReconciling(items)
	defer s.clearReconciling()

	summary.Items = s.dispatch(ctx, state, items, started)
	for _, item := range summary.Items {
		if item.Failure != nil {
			summary.fail(*item.Failure)
		}
	}

	if pull.complete && allProcessed(summary.Items, pull.numbers) {
		if err := s.store.SetCheckpoint(context.WithoutCancel(ctx), started); err != nil {
			summary.fail(Failure{Kind: rtm.FailureStoreTransaction, Reason: "advancing checkpoint: " + err.Error()})
		} else {
			summary.CheckpointAdvanced = true
		}
	}

	summary.FinishedAt = s.clock.Now()
	s.logger.Info("sync cycle finished",
		"items", len(summary.Items),
		"updated", summary.Count(OutcomeUpdated),
		"created", summary.Count(OutcomeCreated),
		"failed", summary.Count(OutcomeFailed),
		"not_reached", summary.Count(OutcomeNotReached),
		"pulled", summary.Pulled,
		"merged", len(summary.Merged),
		"checkpoint_advanced", summary.CheckpointAdvanced,
		"duration", summary.FinishedAt.Sub(started),
	)
	return summary, nil
}

func (s *Syncer) loadVocabulary(ctx context.Context) (labelrules.Vocabulary, error) {
	labels, err := s.tracker.ListRepositoryLabels(ctx)
	if err != nil {
		return labelrules.Vocabulary{}, fmt.Errorf("rtmsync: loading label vocabulary: %w", err)
	}
	names := make([]string, len(labels))
	for i, label := range labels {
		names[i] = label.Name
	}
	return labelrules.NewVocabulary(names), nil
}

// workSet lists tracked entities in identifier order, then untracked
// issues in issue order.
func (s *Syncer) workSet(snapshot *rtm.Snapshot, records map[string]rtm.SyncRecord, pull pullResult) []workItem {
	var items []workItem
	for _, id := range snapshot.Tracked() {
		if pull.deferred[id] {
			continue
		}
		record, mapped := records[id]
		hash, _ := snapshot.ContentHash(id)
		issue, pulled := pull.mapped[id]
		if !s.full && mapped && record.ContentHash == hash && !pulled {
			continue
		}
		item := workItem{entityID: id, record: record, mapped: mapped, warnings: pull.warnings[id]}
		if pulled {
			item.issue = &issue
		}
		items = append(items, item)
	}
	for i := range pull.triage {
		items = append(items, workItem{issue: &pull.triage[i]})
	}
	return items
}

// dispatch runs items on the worker pool. Once the cycle deadline
// passes or ctx ends, unstarted items are reported as not reached
// while started ones finish.
func (s *Syncer) dispatch(ctx context.Context, state cycleState, items []workItem, started time.Time) []ItemResult {
	results := make([]ItemResult, len(items))
	var group errgroup.Group
	group.SetLimit(s.workers)

	for i, item := range items {
		if s.expired(ctx, started) {
			for j := i; j < len(items); j++ {
				results[j] = notReached(items[j])
			}
			break
		}
		group.Go(func() error {
			// Go blocks while the pool is full, so the deadline may
			// have passed by the time this worker starts.
			if s.expired(ctx, started) {
				results[i] = notReached(item)
				return nil
			}
			results[i] = s.process(ctx, state, item)
			return nil
		})
	}
	group.Wait()
	return results
}

func (s *Syncer) expired(ctx context.Context, started time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.timeout > 0 && !s.clock.Now().Before(started.Add(s.timeout))
}

func notReached(item workItem) ItemResult {
	result := ItemResult{EntityID: item.entityID, Outcome: OutcomeNotReached}
	if item.mapped {
		result.IssueNumber = item.record.IssueNumber
	} else if item.issue != nil && item.entityID == "" {
		result.IssueNumber = item.issue.Number
	}
	return result
}

func (s *Syncer) process(ctx context.Context, state cycleState, item workItem) ItemResult {
	if item.entityID == "" {
		return s.triage(ctx, state, *item.issue)
	}
	return s.syncEntity(ctx, state, item)
}

// syncEntity reconciles one tracked entity with its issue.
func (s *Syncer) syncEntity(ctx context.Context, state cycleState, item workItem) ItemResult {
	id := item.entityID
	result := ItemResult{EntityID: id, Outcome: OutcomeUnchanged}
	logger := s.logger.With("entity_id", id)
	hash, _ := state.snapshot.ContentHash(id)
	record := item.record

	var issue tracker.Issue
	switch {
	case !item.mapped:
		title, body, _ := labelrules.RenderIssue(state.snapshot, id)
		created, err := s.tracker.CreateIssue(ctx, title, body, nil)
		if err != nil {
			return failed(result, classify(err), "creating issue: "+err.Error())
		}
		issue = created
		result.IssueNumber = created.Number
		result.Outcome = OutcomeCreated
		logger.Info("created issue", "issue", created.Number)

		// The mapping is persisted before any label write so a crash
		// cannot leave an issue nobody owns. The empty hash keeps the
		// entity in the next work set until labeling completes.
		record = rtm.SyncRecord{EntityID: id, IssueNumber: created.Number, LastSyncedAt: s.clock.Now()}
		if err := s.putRecord(ctx, record); err != nil {
			return failed(result, rtm.FailureStoreTransaction, "recording new issue: "+err.Error())
		}

	case item.issue != nil:
		issue = *item.issue
		result.IssueNumber = issue.Number

	default:
		result.IssueNumber = record.IssueNumber
		fetched, err := s.tracker.FetchIssue(ctx, record.IssueNumber)
		if err != nil {
			if tracker.IsNotFound(err) {
				return failed(result, rtm.FailureNotFound, fmt.Sprintf("issue #%d no longer exists", record.IssueNumber))
			}
			return failed(result, classify(err), "fetching issue: "+err.Error())
		}
		issue = fetched
	}

	fields, _ := labelrules.FieldsFor(state.snapshot, id)
	evaluation := labelrules.Evaluate(labelrules.Input{
		Fields:        fields,
		Body:          issue.Body,
		CurrentLabels: issue.Labels,
	}, state.snapshot, state.vocabulary)
	result.Warnings = append(slices.Clone(item.warnings), evaluation.Warnings...)

	if evaluation.Changed() {
		if err := s.tracker.SetLabels(ctx, issue.Number, evaluation.Labels); err != nil {
			return failed(result, classify(err), "writing labels: "+err.Error())
		}
		result.Added = evaluation.Added
		result.Removed = evaluation.Removed
		if result.Outcome == OutcomeUnchanged {
			result.Outcome = OutcomeUpdated
		}
		logger.Info("labels written", "issue", issue.Number, "added", evaluation.Added, "removed", evaluation.Removed)
	}

	form, _ := labelrules.ParseIssueForm(issue.Body)
	declared := declarations(id, issue, form)
	record.ContentHash = hash
	record.Declared = &declared
	record.LastSyncedAt = s.clock.Now()
	if err := s.putRecord(ctx, record); err != nil {
		return failed(result, rtm.FailureStoreTransaction, "recording sync: "+err.Error())
	}
	return result
}

// triage labels an untracked issue from its issue form. It never
// imports the issue.
func (s *Syncer) triage(ctx context.Context, state cycleState, issue tracker.Issue) ItemResult {
	result := ItemResult{IssueNumber: issue.Number, Outcome: OutcomeUnchanged}
	form, _ := labelrules.ParseIssueForm(issue.Body)
	evaluation := labelrules.Evaluate(labelrules.Input{
		Fields:        form.Fields,
		Body:          issue.Body,
		CurrentLabels: issue.Labels,
	}, state.snapshot, state.vocabulary)
	result.Warnings = evaluation.Warnings
	if !evaluation.Changed() {
		return result
	}
	if err := s.tracker.SetLabels(ctx, issue.Number, evaluation.Labels); err != nil {
		return failed(result, classify(err), "writing labels: "+err.Error())
	}
	result.Outcome = OutcomeUpdated
	result.Added = evaluation.Added
	result.Removed = evaluation.Removed
	s.logger.Info("triaged issue", "issue", issue.Number, "added", evaluation.Added, "removed", evaluation.Removed)
	return result
}

// putRecord stores a record after a remote write has completed. It
// runs detached from ctx so a cancelled cycle still records what it
// wrote, and retries a transaction failure once.
func (s *Syncer) putRecord(ctx context.Context, record rtm.SyncRecord) error {
	detached := context.WithoutCancel(ctx)
	err := s.store.PutSyncRecord(detached, record)
	if err != nil && rtmstore.IsTransactionFailure(err) {
		s.logger.Warn("retrying sync record write", "entity_id", record.EntityID, "error", err)
		err = s.store.PutSyncRecord(detached, record)
	}
	return err
}

func failed(result ItemResult, kind rtm.FailureKind, reason string) ItemResult {
	result.Outcome = OutcomeFailed
	result.Failure = &Failure{
		EntityID:    result.EntityID,
		IssueNumber: result.IssueNumber,
		Kind:        kind,
		Reason:      reason,
	}
	return result
}

// classify maps an error to the failure kind reported for it.
func classify(err error) rtm.FailureKind {
	switch {
	case tracker.IsRemoteUnavailable(err):
		return rtm.FailureRemoteUnavailable
	case tracker.IsNotFound(err):
		return rtm.FailureNotFound
	case rtmstore.IsTransactionFailure(err):
		return rtm.FailureStoreTransaction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return rtm.FailureRemoteUnavailable
	}
	return rtm.FailureRemoteRejected
}

// allProcessed reports whether every pulled issue number finished
// without failure.
func allProcessed(results []ItemResult, numbers map[int]bool) bool {
	for _, result := range results {
		if result.Outcome != OutcomeFailed && result.Outcome != OutcomeNotReached {
			continue
		}
		if numbers[result.IssueNumber] {
			return false
		}
	}
	return true
}

func (s *Syncer) markReconciling(items []workItem) {
	s.reconcilingMu.Lock()
	defer s.reconcilingMu.Unlock()
	for _, item := range items {
		if item.entityID != "" {
			s.reconciling[item.entityID] = true
		}
	}
}

func (s *Syncer) clearReconciling() {
	s.reconcilingMu.Lock()
	defer s.reconcilingMu.Unlock()
	clear(s.reconciling)
}
