// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"container/list"
	"sync"
)

// defaultETagEntries bounds the cache. A sync cycle touches one URL per
// mirrored issue plus the label and list pages.
const defaultETagEntries = 4096

type etagEntry struct {
	url  string
	etag string
	body []byte
}

// etagCache remembers the ETag and body of GET responses so a repeated
// GET can send If-None-Match and reuse the body on 304 Not Modified,
// which does not count against the rate limit. Least recently used
// entries are evicted past the capacity.
type etagCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

func newETagCache(capacity int) *etagCache {
	return &etagCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (cache *etagCache) lookup(url string) *etagEntry {
	element, ok := cache.entries[url]
	if !ok {
		return nil
	}
	cache.order.MoveToFront(element)
	return element.Value.(*etagEntry)
}

func (cache *etagCache) get(url string) string {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if entry := cache.lookup(url); entry != nil {
		return entry.etag
	}
	return ""
}

func (cache *etagCache) body(url string) []byte {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if entry := cache.lookup(url); entry != nil {
		return entry.body
	}
	return nil
}

func (cache *etagCache) put(url, etag string, body []byte) {
	if etag == "" {
		return
	}
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if element, ok := cache.entries[url]; ok {
		element.Value = &etagEntry{url: url, etag: etag, body: body}
		cache.order.MoveToFront(element)
		return
	}
	cache.entries[url] = cache.order.PushFront(&etagEntry{url: url, etag: etag, body: body})
	for cache.order.Len() > cache.capacity {
		oldest := cache.order.Back()
		cache.order.Remove(oldest)
		delete(cache.entries, oldest.Value.(*etagEntry).url)
	}
}

// invalidate drops the entry for url. Writes call it so the next GET
// does not revalidate against an ETag the write made stale.
func (cache *etagCache) invalidate(url string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if element, ok := cache.entries[url]; ok {
		cache.order.Remove(element)
		delete(cache.entries, url)
	}
}
