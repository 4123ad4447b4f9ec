// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmstore

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/rtmsync/lib/codec"
	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

const selectSyncRecords = "SELECT local_entity_id, remote_issue_id, content_hash, last_synced_at, declared FROM sync_records"

func scanSyncRecord(stmt *sqlite.Stmt) (rtm.SyncRecord, error) {
	record := rtm.SyncRecord{
		EntityID:    stmt.ColumnText(0),
		IssueNumber: stmt.ColumnInt(1),
		ContentHash: stmt.ColumnText(2),
	}
	syncedAt, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(3))
	if err != nil {
		return record, fmt.Errorf("sync record %s: parsing last_synced_at: %w", record.EntityID, err)
	}
	record.LastSyncedAt = syncedAt
	if length := stmt.ColumnLen(4); length > 0 {
		blob := make([]byte, length)
		stmt.ColumnBytes(4, blob)
		record.Declared = new(rtm.Declarations)
		if err := codec.Unmarshal(blob, record.Declared); err != nil {
			return record, fmt.Errorf("sync record %s: decoding declarations: %w", record.EntityID, err)
		}
	}
	return record, nil
}

// SyncRecord returns the record for an entity. found is false when the
// entity has never been mirrored.
func (s *Store) SyncRecord(ctx context.Context, entityID string) (record rtm.SyncRecord, found bool, err error) {
	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, selectSyncRecords+" WHERE local_entity_id = ?", &sqlitex.ExecOptions{
			Args: []any{entityID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err = scanSyncRecord(stmt)
				found = err == nil
				return err
			},
		})
	})
	if err != nil {
		return rtm.SyncRecord{}, false, fmt.Errorf("rtmstore: sync record %s: %w", entityID, err)
	}
	return record, found, nil
}

// SyncRecords returns every record keyed by entity identifier.
func (s *Store) SyncRecords(ctx context.Context) (map[string]rtm.SyncRecord, error) {
	records := make(map[string]rtm.SyncRecord)
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, selectSyncRecords, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, err := scanSyncRecord(stmt)
				if err != nil {
					return err
				}
				records[record.EntityID] = record
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("rtmstore: sync records: %w", err)
	}
	return records, nil
}

// PutSyncRecord inserts or replaces the record for record.EntityID.
// Two entities cannot map to the same issue number; attempting it is a
// [*TransactionError].
func (s *Store) PutSyncRecord(ctx context.Context, record rtm.SyncRecord) error {
	if record.EntityID == "" || record.IssueNumber <= 0 {
		return fmt.Errorf("rtmstore: sync record needs an entity id and a positive issue number, got %q/#%d",
			record.EntityID, record.IssueNumber)
	}

	var declared any
	if record.Declared != nil {
		encoded, err := codec.Marshal(record.Declared)
		if err != nil {
			return fmt.Errorf("rtmstore: encoding declarations of %s: %w", record.EntityID, err)
		}
		declared = encoded
	}

	release := s.locks.acquire([]string{"sync:" + record.EntityID})
	defer release()

	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO sync_records (local_entity_id, remote_issue_id, content_hash, last_synced_at, declared)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (local_entity_id) DO UPDATE SET
				remote_issue_id = excluded.remote_issue_id,
				content_hash = excluded.content_hash,
				last_synced_at = excluded.last_synced_at,
				declared = excluded.declared`,
			&sqlitex.ExecOptions{Args: []any{
				record.EntityID, record.IssueNumber, record.ContentHash,
				record.LastSyncedAt.UTC().Format(time.RFC3339Nano), declared,
			}})
	})
	if err != nil {
		return &TransactionError{Op: "put sync record", EntityID: record.EntityID, Err: err}
	}
	return nil
}

// Checkpoint returns the pull checkpoint: the start time of the last
// cycle that processed every pulled issue. found is false before the
// first such cycle.
func (s *Store) Checkpoint(ctx context.Context) (checkpoint time.Time, found bool, err error) {
	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT updated_since FROM sync_checkpoint WHERE id = 1", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				checkpoint, err = time.Parse(time.RFC3339Nano, stmt.ColumnText(0))
				found = err == nil
				return err
			},
		})
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rtmstore: checkpoint: %w", err)
	}
	return checkpoint, found, nil
}

// SetCheckpoint stores the pull checkpoint.
func (s *Store) SetCheckpoint(ctx context.Context, checkpoint time.Time) error {
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO sync_checkpoint (id, updated_since) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET updated_since = excluded.updated_since`,
			&sqlitex.ExecOptions{Args: []any{checkpoint.UTC().Format(time.RFC3339Nano)}})
	})
	if err != nil {
		return &TransactionError{Op: "set checkpoint", Err: err}
	}
	return nil
}
