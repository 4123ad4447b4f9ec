// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmsync

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// State is the sync state of one tracked entity.
//
//	Unsynced -> Reconciling -> Synced -> Drifted -> Reconciling
type State string

const (
	// StateUnsynced: no issue yet, or an issue that was never labeled.
	StateUnsynced State = "unsynced"

	// StateReconciling: in the work set of the running cycle.
	StateReconciling State = "reconciling"

	// StateSynced: the recorded hash matches the entity.
	StateSynced State = "synced"

	// StateDrifted: the entity changed since its last sync.
	StateDrifted State = "drifted"
)

// EntityState is one line of the operator state listing.
type EntityState struct {
	EntityID     string         `json:"entity_id"`
	Kind         rtm.EntityKind `json:"kind"`
	State        State          `json:"state"`
	IssueNumber  int            `json:"issue_number,omitempty"`
	LastSyncedAt time.Time      `json:"last_synced_at,omitzero"`
}

// States lists every tracked entity with its state, in identifier
// order.
func (s *Syncer) States(ctx context.Context) ([]EntityState, error) {
	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading snapshot: %w", err)
	}
	records, err := s.store.SyncRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("rtmsync: loading sync records: %w", err)
	}

	s.reconcilingMu.Lock()
	defer s.reconcilingMu.Unlock()

	tracked := snapshot.Tracked()
	states := make([]EntityState, 0, len(tracked))
	for _, id := range tracked {
		kind, _ := rtm.KindOf(id)
		record, mapped := records[id]
		hash, _ := snapshot.ContentHash(id)
		state := EntityState{
			EntityID:     id,
			Kind:         kind,
			IssueNumber:  record.IssueNumber,
			LastSyncedAt: record.LastSyncedAt,
		}
		switch {
		case s.reconciling[id]:
			state.State = StateReconciling
		case !mapped || record.ContentHash == "":
			state.State = StateUnsynced
		case record.ContentHash == hash:
			state.State = StateSynced
		default:
			state.State = StateDrifted
		}
		states = append(states, state)
	}
	return states, nil
}
