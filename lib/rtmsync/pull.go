// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmsync

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/rtmsync/lib/labelrules"
	"github.com/bureau-foundation/rtmsync/lib/rtm"
	"github.com/bureau-foundation/rtmsync/lib/rtmstore"
	"github.com/bureau-foundation/rtmsync/lib/tracker"
)

// pullResult is what the pull phase hands to the work set.
type pullResult struct {
	// complete is false when listing failed or a merge was deferred.
	// The checkpoint must not move past a cycle with an incomplete
	// pull.
	complete bool

	// mapped holds the tracked entities whose issue was edited after
	// the entity's last sync.
	mapped map[string]tracker.Issue

	// triage holds untracked issues filed through the issue form.
	triage []tracker.Issue

	// adopted holds records created for issues that carry an entity
	// marker but had no mapping, such as an issue whose creation was
	// interrupted before the mapping was stored.
	adopted map[string]rtm.SyncRecord

	// deferred holds entities whose merge failed twice. They sit out
	// the rest of the cycle.
	deferred map[string]bool

	// numbers holds the issues that must be processed before the
	// checkpoint may advance.
	numbers map[int]bool

	// warnings holds merge warnings to report with the entity's item.
	warnings map[string][]labelrules.Warning

	merged []string
}

// pull lists issues updated since checkpoint and merges remote edits
// of mapped issues into the store.
func (s *Syncer) pull(ctx context.Context, snapshot *rtm.Snapshot, records map[string]rtm.SyncRecord, checkpoint time.Time, summary *Summary) pullResult {
	result := pullResult{
		complete: true,
		mapped:   make(map[string]tracker.Issue),
		adopted:  make(map[string]rtm.SyncRecord),
		deferred: make(map[string]bool),
		numbers:  make(map[int]bool),
		warnings: make(map[string][]labelrules.Warning),
	}

	issues, err := s.tracker.ListIssuesUpdatedSince(ctx, checkpoint)
	if err != nil {
		summary.fail(Failure{Kind: classify(err), Reason: "listing updated issues: " + err.Error()})
		result.complete = false
		return result
	}
	summary.Pulled = len(issues)

	byNumber := make(map[int]string, len(records))
	for id, record := range records {
		byNumber[record.IssueNumber] = id
	}

	for _, issue := range issues {
		form, isForm := labelrules.ParseIssueForm(issue.Body)
		id, mapped := byNumber[issue.Number]
		if !mapped && isForm && form.Fields.EntityID != "" {
			record, ok := s.adopt(ctx, snapshot, records, form.Fields.EntityID, issue, summary)
			if !ok {
				continue
			}
			result.adopted[record.EntityID] = record
			byNumber[issue.Number] = record.EntityID
			id, mapped = record.EntityID, true
		}

		switch {
		case mapped:
			record, ok := records[id]
			if !ok {
				record = result.adopted[id]
			}
			if !issue.UpdatedAt.After(record.LastSyncedAt) {
				continue
			}
			result.numbers[issue.Number] = true
			s.mergeRemote(ctx, snapshot, record, issue, declarations(id, issue, form), summary, &result)

		case isForm && form.Fields.EntityID == "":
			result.numbers[issue.Number] = true
			result.triage = append(result.triage, issue)
		}
	}
	summary.Merged = result.merged
	return result
}

// adopt maps an issue carrying an entity marker to its entity when the
// entity has no mapping yet.
func (s *Syncer) adopt(ctx context.Context, snapshot *rtm.Snapshot, records map[string]rtm.SyncRecord, id string, issue tracker.Issue, summary *Summary) (rtm.SyncRecord, bool) {
	if _, exists := records[id]; exists {
		return rtm.SyncRecord{}, false
	}
	if !slices.Contains(snapshot.Tracked(), id) {
		return rtm.SyncRecord{}, false
	}
	record := rtm.SyncRecord{EntityID: id, IssueNumber: issue.Number}
	if err := s.putRecord(ctx, record); err != nil {
		summary.fail(Failure{EntityID: id, IssueNumber: issue.Number, Kind: rtm.FailureStoreTransaction,
			Reason: "adopting issue: " + err.Error()})
		return rtm.SyncRecord{}, false
	}
	s.logger.Info("adopted issue with entity marker", "entity_id", id, "issue", issue.Number)
	return record, true
}

// mergeRemote applies the declarations the issue changed since the
// entity's last sync. Comments and label writes also move the issue's
// update time, so an unchanged form merges nothing. When the entity
// changed locally too, the local entity wins and the item carries an
// InvalidMapping warning. A store transaction failure is retried once
// against a fresh snapshot; a second failure defers the entity.
func (s *Syncer) mergeRemote(ctx context.Context, snapshot *rtm.Snapshot, record rtm.SyncRecord, issue tracker.Issue, remote rtm.Declarations, summary *Summary, result *pullResult) {
	id := record.EntityID
	result.mapped[id] = issue
	if record.Declared == nil {
		// Never fully synced: nothing to compare against.
		return
	}
	changes := remote.Since(*record.Declared)
	if changes.Empty() {
		return
	}

	entity, changed, err := mergedEntity(snapshot, id, changes)
	if err != nil || !changed {
		return
	}
	if hash, _ := snapshot.ContentHash(id); hash != record.ContentHash {
		result.warnings[id] = append(result.warnings[id], labelrules.Warning{
			Kind:    rtm.FailureInvalidMapping,
			Message: fmt.Sprintf("issue #%d was edited while %s changed locally; keeping the local entity", issue.Number, id),
		})
		s.logger.Warn("remote edit conflicts with local change", "entity_id", id, "issue", issue.Number)
		return
	}

	err = s.upsert(ctx, entity)
	if err != nil && rtmstore.IsTransactionFailure(err) {
		s.logger.Warn("retrying merge", "entity_id", id, "error", err)
		var fresh *rtm.Snapshot
		fresh, err = s.store.Snapshot(ctx)
		if err == nil {
			entity, changed, err = mergedEntity(fresh, id, changes)
			if err == nil && changed {
				err = s.upsert(ctx, entity)
			}
		}
	}

	switch {
	case err == nil:
		result.merged = append(result.merged, id)
		s.logger.Info("merged remote edit", "entity_id", id, "issue", issue.Number)

	case rtmstore.IsTransactionFailure(err):
		summary.fail(Failure{EntityID: id, IssueNumber: issue.Number, Kind: rtm.FailureStoreTransaction,
			Reason: "merging remote edit: " + err.Error()})
		delete(result.mapped, id)
		result.deferred[id] = true
		result.complete = false

	default:
		// The remote declarations do not form a valid entity. Keep the
		// stored one and still reconcile the labels.
		summary.fail(Failure{EntityID: id, IssueNumber: issue.Number, Kind: rtm.FailureInvalidMapping,
			Reason: "merging remote edit: " + err.Error()})
	}
}

// declarations reads what issue declares for entity id.
func declarations(id string, issue tracker.Issue, form labelrules.IssueForm) rtm.Declarations {
	declared := rtm.Declarations{Title: remoteTitle(id, issue.Title)}
	if form.Has(labelrules.SectionPriority) {
		declared.Priority, _ = rtm.ParsePriority(form.Fields.Priority)
	}
	if form.Has(labelrules.SectionEpic) {
		declared.HasEpic, declared.EpicRef = true, form.Fields.EpicRef
	}
	if form.Has(labelrules.SectionGDPR) {
		flags := slices.Clone(form.Fields.GDPR)
		slices.Sort(flags)
		declared.HasGDPR, declared.GDPR = true, slices.Compact(flags)
	}
	return declared
}

// mergedEntity returns the entity with changes applied, its version
// taken from the snapshot as the expected stored version.
func mergedEntity(snapshot *rtm.Snapshot, id string, changes rtm.Declarations) (any, bool, error) {
	if epic, ok := snapshot.Epic(id); ok {
		updated := epic
		if changes.Title != "" && changes.Title != epic.Title && epic.Label == "" {
			// Renaming the issue must not rename epic/<label>.
			updated.Label = epic.EffectiveLabel()
		}
		mergeCommon(&updated.Title, &updated.Priority, changes)
		return updated, updated != epic, nil
	}

	if story, ok := snapshot.UserStory(id); ok {
		updated := story
		updated.GDPRFlags = slices.Clone(story.GDPRFlags)
		mergeCommon(&updated.Title, &updated.Priority, changes)
		if changes.HasEpic && changes.EpicRef != "" {
			updated.EpicID = changes.EpicRef
		}
		if changes.HasGDPR {
			updated.GDPRFlags = slices.Clone(changes.GDPR)
		}
		return updated, !sameStory(story, updated), nil
	}

	if defect, ok := snapshot.Defect(id); ok {
		updated := defect
		mergeCommon(&updated.Title, &updated.Priority, changes)
		if changes.HasEpic {
			updated.EpicID = changes.EpicRef
		}
		return updated, updated != defect, nil
	}

	return nil, false, fmt.Errorf("entity %s is not an epic, user story or defect", id)
}

func (s *Syncer) upsert(ctx context.Context, entity any) error {
	var err error
	switch entity := entity.(type) {
	case rtm.Epic:
		_, err = s.store.UpsertEpic(ctx, entity)
	case rtm.UserStory:
		_, err = s.store.UpsertUserStory(ctx, entity)
	case rtm.Defect:
		_, err = s.store.UpsertDefect(ctx, entity)
	default:
		err = fmt.Errorf("rtmsync: cannot store %T", entity)
	}
	return err
}

func mergeCommon(title *string, priority *rtm.Priority, changes rtm.Declarations) {
	if changes.Title != "" {
		*title = changes.Title
	}
	if changes.Priority != "" {
		*priority = changes.Priority
	}
}

// remoteTitle strips the "[ID] " prefix the issue was created with.
func remoteTitle(id, title string) string {
	if prefixID, rest, ok := labelrules.ParseIssueTitle(title); ok && prefixID == id {
		return rest
	}
	return strings.TrimSpace(title)
}

func sameStory(a, b rtm.UserStory) bool {
	flagsA := slices.Sorted(slices.Values(a.GDPRFlags))
	flagsB := slices.Sorted(slices.Values(b.GDPRFlags))
	return a.ID == b.ID && a.EpicID == b.EpicID && a.Title == b.Title &&
		a.Priority == b.Priority && a.Status == b.Status &&
		a.Component == b.Component && a.Release == b.Release &&
		slices.Equal(slices.Compact(flagsA), slices.Compact(flagsB))
}
