package store

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// TextCache bounds both the number of cached entries and their total byte
// size; an insert that would violate either bound evicts least-recently-used
// entries until both hold, using the same LRU promote-on-get semantics the
// embedding cache uses for vectors.
type TextCache struct {
	entries  *lru.Cache[string, string]
	maxBytes int
	curBytes int
	sizes    map[string]int
}

// NewTextCache creates a cache bounded by maxEntries and maxBytes. A
// maxEntries <= 0 is raised to 1, so the cache then holds a single entry;
// values <= 0 for maxBytes disable the byte bound.
func NewTextCache(maxEntries, maxBytes int) (*TextCache, error) {
	if maxEntries <= 0 {
		maxEntries = 1
	}

	tc := &TextCache{
		maxBytes: maxBytes,
		sizes:    make(map[string]int),
	}

	cache, err := lru.NewWithEvict(maxEntries, func(key, _ string) {
		tc.curBytes -= tc.sizes[key]
		delete(tc.sizes, key)
	})
	if err != nil {
		return nil, err
	}
	tc.entries = cache

	return tc, nil
}

// Get returns the cached text for id, promoting it to most-recently-used.
func (tc *TextCache) Get(id string) (string, bool) {
	return tc.entries.Get(id)
}

// Put inserts or replaces the cached text for id, evicting
// least-recently-used entries until the byte bound is satisfied.
func (tc *TextCache) Put(id, text string) {
	if old, ok := tc.sizes[id]; ok {
		tc.curBytes -= old
	}

	size := len(text)
	tc.sizes[id] = size
	tc.curBytes += size
	tc.entries.Add(id, text)

	if tc.maxBytes > 0 {
		for tc.curBytes > tc.maxBytes && tc.entries.Len() > 0 {
			oldestKey, _, ok := tc.entries.GetOldest()
			if !ok {
				break
			}
			tc.entries.Remove(oldestKey)
		}
	}
}

// Remove evicts id from the cache, if present.
func (tc *TextCache) Remove(id string) {
	tc.entries.Remove(id)
}

// Clear empties the cache.
func (tc *TextCache) Clear() {
	tc.entries.Purge()
	tc.curBytes = 0
	tc.sizes = make(map[string]int)
}

// Len returns the number of cached entries.
func (tc *TextCache) Len() int {
	return tc.entries.Len()
}

// Bytes returns the total size in bytes of cached text.
func (tc *TextCache) Bytes() int {
	return tc.curBytes
}
