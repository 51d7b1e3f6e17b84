package cache

import (
	"container/list"
	"fmt"
	"os"
	"sync"
)

// handleEntry is one cached open SSTable file, tracked in the LRU list so
// the least recently used handle is the one closed on eviction.
type handleEntry struct {
	path    string
	file    *os.File
	element *list.Element
}

// FileHandlePool bounds the number of simultaneously open SSTable file
// descriptors. Ground truth for the shape (capacity-bounded map plus a
// container/list LRU ordering, mutex-guarded, with hit/miss/eviction
// counters) is the teacher's pkg/cache/lru.go LRUCache; the entries here
// are open *os.File handles keyed by SSTable path instead of cached query
// results, and eviction closes the handle instead of merely dropping a
// value, per spec.md §5's note that an implementation may lazily
// open/close SSTable files to stay under file-descriptor limits.
type FileHandlePool struct {
	mu        sync.Mutex
	capacity  int
	items     map[string]*handleEntry
	lruList   *list.List
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewFileHandlePool creates a pool that keeps at most capacity SSTable
// files open at once.
func NewFileHandlePool(capacity int) *FileHandlePool {
	if capacity <= 0 {
		capacity = 1
	}
	return &FileHandlePool{
		capacity: capacity,
		items:    make(map[string]*handleEntry),
		lruList:  list.New(),
	}
}

// Acquire returns an open *os.File for path, reusing a cached handle when
// present. The caller must not close the returned file directly; use
// Release or let the pool evict it.
func (p *FileHandlePool) Acquire(path string) (*os.File, error) {
	p.mu.Lock()
	if entry, ok := p.items[path]; ok {
		p.lruList.MoveToFront(entry.element)
		p.hits++
		f := entry.file
		p.mu.Unlock()
		return f, nil
	}
	p.misses++
	p.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sstable file %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have opened and cached path while this one
	// was blocked on os.Open; prefer the winner's handle.
	if entry, ok := p.items[path]; ok {
		p.lruList.MoveToFront(entry.element)
		f.Close()
		return entry.file, nil
	}

	entry := &handleEntry{path: path, file: f}
	entry.element = p.lruList.PushFront(entry)
	p.items[path] = entry

	if p.lruList.Len() > p.capacity {
		p.evictOldestLocked()
	}

	return f, nil
}

// Release invalidates and closes the cached handle for path, if any. Call
// this when an SSTable file is deleted or replaced out from under the
// pool (e.g. during Clear).
func (p *FileHandlePool) Release(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.items[path]
	if !ok {
		return
	}
	p.lruList.Remove(entry.element)
	delete(p.items, path)
	entry.file.Close()
}

// evictOldestLocked closes and drops the least recently used handle. The
// caller must hold p.mu.
func (p *FileHandlePool) evictOldestLocked() {
	oldest := p.lruList.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*handleEntry)
	p.lruList.Remove(oldest)
	delete(p.items, entry.path)
	entry.file.Close()
	p.evictions++
}

// CloseAll closes every cached handle and empties the pool.
func (p *FileHandlePool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, entry := range p.items {
		if err := entry.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.items = make(map[string]*handleEntry)
	p.lruList = list.New()
	return firstErr
}

// Size returns the current number of open handles held by the pool.
func (p *FileHandlePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Stats returns pool statistics.
func (p *FileHandlePool) Stats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.hits + p.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(p.hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"capacity":  p.capacity,
		"size":      len(p.items),
		"hits":      p.hits,
		"misses":    p.misses,
		"evictions": p.evictions,
		"hit_rate":  fmt.Sprintf("%.2f%%", hitRate),
	}
}
