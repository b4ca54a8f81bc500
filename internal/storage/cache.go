package storage

import (
	"container/list"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FetchCache is an LRU cache of fetched bundle directories. Entries are
// tracked by trace ID and evicted least-recently-used when the total
// cached size exceeds the configured maximum.
type FetchCache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64

	// items maps traceID to list element (whose value is *cacheEntry)
	items map[string]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	traceID   string
	localDir  string
	sizeBytes int64
}

// NewFetchCache creates an LRU fetch cache. maxBytes bounds the total
// size of cached bundle directories (default 10GB).
func NewFetchCache(maxBytes int64) *FetchCache {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024 * 1024
	}
	return &FetchCache{
		maxBytes: maxBytes,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the local directory of a cached bundle, or "" on a miss.
// A hit promotes the entry to most-recently-used. Entries whose
// directory disappeared underneath the cache are dropped.
func (c *FetchCache) Get(traceID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[traceID]
	if !ok {
		return ""
	}

	entry := elem.Value.(*cacheEntry)
	if info, err := os.Stat(entry.localDir); err != nil || !info.IsDir() {
		c.removeLocked(elem)
		return ""
	}

	c.order.MoveToFront(elem)
	return entry.localDir
}

// Put records a fetched bundle directory. If the addition exceeds
// maxBytes, LRU entries are evicted and their directories deleted.
func (c *FetchCache) Put(traceID, localDir string) {
	sizeBytes, err := dirSize(localDir)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[traceID]; ok {
		old := elem.Value.(*cacheEntry)
		c.curBytes -= old.sizeBytes
		old.localDir = localDir
		old.sizeBytes = sizeBytes
		c.curBytes += sizeBytes
		c.order.MoveToFront(elem)
	} else {
		entry := &cacheEntry{
			traceID:   traceID,
			localDir:  localDir,
			sizeBytes: sizeBytes,
		}
		elem := c.order.PushFront(entry)
		c.items[traceID] = elem
		c.curBytes += sizeBytes
	}

	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the least-recently-used entry. Caller must
// hold c.mu.
func (c *FetchCache) evictOldestLocked() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.removeLocked(back)
}

// removeLocked drops an entry and deletes its directory. Caller must
// hold c.mu.
func (c *FetchCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.traceID)
	c.curBytes -= entry.sizeBytes

	os.RemoveAll(entry.localDir)
}

// Remove drops a cached bundle and deletes its directory.
func (c *FetchCache) Remove(traceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[traceID]; ok {
		c.removeLocked(elem)
	}
}

// Size returns the current total cached size in bytes.
func (c *FetchCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

// Len returns the number of cached bundles.
func (c *FetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries and deletes the cached directories.
func (c *FetchCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.order.Len() > 0 {
		c.evictOldestLocked()
	}
}

// dirSize sums the regular file sizes under dir.
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
