// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtmstore

import (
	"slices"
	"sync"
)

// keyLocks is an arena of per-identifier mutexes. Entries exist only
// while some goroutine holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// acquire locks every key and returns the function that unlocks them.
// Keys are locked in sorted order so two batches with overlapping keys
// cannot deadlock.
func (k *keyLocks) acquire(keys []string) (release func()) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]*keyLock, 0, len(sorted))
	for _, key := range sorted {
		lock := k.reference(key)
		lock.mu.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.dereference(sorted[i], held[i])
		}
	}
}

func (k *keyLocks) reference(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyLock{}
		k.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (k *keyLocks) dereference(key string, lock *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
