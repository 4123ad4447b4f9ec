// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmstore

import (
	"errors"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/rtmsync/lib/rtm"
)

// Batch is an ordered list of upserts committed together by
// [Store.Commit]. The zero value is an empty batch.
type Batch struct {
	items []batchItem
}

type batchItem struct {
	id       string
	validate func() error
	apply    func(*sqlite.Conn) (Previous, error)
}

// Previous is the stored state an upsert replaced. Exactly one of the
// entity pointers matches Kind; it is nil when the entity was new.
type Previous struct {
	ID   string
	Kind rtm.EntityKind

	Epic      *rtm.Epic
	UserStory *rtm.UserStory
	Test      *rtm.Test
	Defect    *rtm.Defect
}

// Existed reports whether the upsert replaced a stored entity.
func (p Previous) Existed() bool {
	return p.Epic != nil || p.UserStory != nil || p.Test != nil || p.Defect != nil
}

// PutEpic appends an epic upsert.
func (b *Batch) PutEpic(epic rtm.Epic) {
	b.items = append(b.items, batchItem{
		id:       epic.ID,
		validate: epic.Validate,
		apply: func(conn *sqlite.Conn) (Previous, error) {
			previous, err := writeEpic(conn, epic)
			return Previous{ID: epic.ID, Kind: rtm.KindEpic, Epic: previous}, err
		},
	})
}

// PutUserStory appends a user story upsert.
func (b *Batch) PutUserStory(story rtm.UserStory) {
	b.items = append(b.items, batchItem{
		id:       story.ID,
		validate: story.Validate,
		apply: func(conn *sqlite.Conn) (Previous, error) {
			previous, err := writeUserStory(conn, story)
			return Previous{ID: story.ID, Kind: rtm.KindUserStory, UserStory: previous}, err
		},
	})
}

// PutTest appends a test upsert.
func (b *Batch) PutTest(test rtm.Test) {
	b.items = append(b.items, batchItem{
		id:       test.ID,
		validate: test.Validate,
		apply: func(conn *sqlite.Conn) (Previous, error) {
			previous, err := writeTest(conn, test)
			return Previous{ID: test.ID, Kind: rtm.KindTest, Test: previous}, err
		},
	})
}

// PutDefect appends a defect upsert.
func (b *Batch) PutDefect(defect rtm.Defect) {
	b.items = append(b.items, batchItem{
		id:       defect.ID,
		validate: defect.Validate,
		apply: func(conn *sqlite.Conn) (Previous, error) {
			previous, err := writeDefect(conn, defect)
			return Previous{ID: defect.ID, Kind: rtm.KindDefect, Defect: previous}, err
		},
	})
}

// Len returns the number of upserts in the batch.
func (b *Batch) Len() int {
	return len(b.items)
}

func (b *Batch) ids() []string {
	ids := make([]string, len(b.items))
	for i, item := range b.items {
		ids[i] = item.id
	}
	return ids
}

func (b *Batch) validate() error {
	var errs []error
	for _, item := range b.items {
		if err := item.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
