package lsm

import "sync"

// MemTable is the in-memory write buffer: an ordered key→value mapping
// backed by a skip list, guarded by a membership filter used purely as an
// O(1) "definitely absent" fast path ahead of Get/Remove's skip-list
// descent. Unlike the teacher's pkg/lsm/memtable.go, the filter never
// gates Set — resolving spec.md §9 open question #3 in favor of option
// (a), since the skip list already gives unique-key upsert semantics for
// free and a filter false positive must never turn into a spurious
// rejection of a legitimate write.
type MemTable struct {
	mu       sync.RWMutex
	list     *SkipList
	filter   *BloomFilter
	byteSize int64
	capacity int64
}

// MemTableEntry is the logical (key, value, tombstone-bit, timestamp)
// tuple spec.md §3 defines. A tombstone entry carries no value payload.
type MemTableEntry struct {
	Key       []byte
	Value     []byte
	Timestamp Timestamp
	Deleted   bool
}

// accountedSize returns the number of bytes this entry contributes to its
// MemTable's byte_size accounting, per spec.md §3: a live entry costs
// len(key)+len(value)+16+1, a tombstone omits the value length.
func (e *MemTableEntry) accountedSize() int64 {
	size := int64(len(e.Key)) + timestampSize + 1
	if !e.Deleted {
		size += int64(len(e.Value))
	}
	return size
}

// filterFalsePositiveRate is the target false-positive rate of the
// MemTable's membership filter. NewMemTable and Clear derive the filter's
// expected-element count from a heuristic based on the smallest plausible
// entry (a 1-byte key, no value) fitting in capacity bytes — generous
// enough that the filter stays well under its target false-positive rate
// for realistic entry sizes.
const filterFalsePositiveRate = 0.01

// NewMemTable creates an empty MemTable with the given capacity, in
// bytes, before a flush is triggered.
func NewMemTable(capacity int64) *MemTable {
	expected := int(capacity / (timestampSize + 2))
	if expected < 64 {
		expected = 64
	}
	return &MemTable{
		list:     NewSkipList(),
		filter:   NewBloomFilter(expected, filterFalsePositiveRate),
		capacity: capacity,
	}
}

// Set inserts or updates key's value, always upserting — see the type
// doc comment for why the membership filter never rejects a Set.
func (mt *MemTable) Set(key, value []byte) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.upsertLocked(&MemTableEntry{Key: key, Value: value, Timestamp: now()})
}

// SetTombstone records a tombstone for key without requiring it to
// currently be present, used by the orchestrator's Remove to propagate a
// deletion marker into the active MemTable (spec.md §9 open question #5).
func (mt *MemTable) SetTombstone(key []byte) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.upsertLocked(&MemTableEntry{Key: key, Timestamp: now(), Deleted: true})
}

// upsertLocked installs entry into the skip list, adjusting byte_size by
// the delta against whatever entry (if any) previously occupied the key,
// and populates the membership filter. Callers must hold mt.mu.
func (mt *MemTable) upsertLocked(entry *MemTableEntry) {
	if old, ok := mt.list.Search(entry.Key); ok {
		mt.byteSize -= old.accountedSize()
	}
	mt.list.Insert(entry.Key, entry)
	mt.byteSize += entry.accountedSize()
	mt.filter.Insert(entry.Key)
}

// Lookup returns the raw entry for key, tombstone or live, distinguishing
// "not present in this MemTable" from "present and deleted" so the
// orchestrator's Get can decide whether to fall through to the SSTables.
func (mt *MemTable) Lookup(key []byte) (*MemTableEntry, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	if !mt.filter.MayContain(key) {
		return nil, false
	}

	value, found := mt.list.Search(key)
	if !found {
		return nil, false
	}
	return value, true
}

// Get returns key's live value, or found=false if the key is absent or
// tombstoned.
func (mt *MemTable) Get(key []byte) ([]byte, bool) {
	entry, ok := mt.Lookup(key)
	if !ok || entry.Deleted {
		return nil, false
	}
	return entry.Value, true
}

// Remove deletes key from the ordered map outright and decrements
// counters, per spec.md §4.5's literal MemTable-level contract. It
// short-circuits via the membership filter the same way Get does.
func (mt *MemTable) Remove(key []byte) (*MemTableEntry, bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if !mt.filter.MayContain(key) {
		return nil, false
	}

	entry, found := mt.list.Search(key)
	if !found {
		return nil, false
	}

	mt.list.Delete(key)
	mt.byteSize -= entry.accountedSize()
	return entry, true
}

// Clear empties the ordered map and resets counters; the membership
// filter is implicitly reset because it is reconstructed from scratch.
func (mt *MemTable) Clear() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	expected := int(mt.capacity / (timestampSize + 2))
	if expected < 64 {
		expected = 64
	}
	mt.list = NewSkipList()
	mt.filter = NewBloomFilter(expected, filterFalsePositiveRate)
	mt.byteSize = 0
}

// SnapshotOrderedEntries returns every entry, live and tombstoned, in
// ascending key order, for the flush protocol to drain into a new
// SSTable.
func (mt *MemTable) SnapshotOrderedEntries() []*MemTableEntry {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	entries := make([]*MemTableEntry, 0, mt.list.Size())
	for node := mt.list.head.forward[0]; node != nil; node = node.forward[0] {
		entries = append(entries, node.value)
	}
	return entries
}

// ByteSize returns the current accounted size in bytes.
func (mt *MemTable) ByteSize() int64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.byteSize
}

// Filter returns the MemTable's membership filter, for callers (the
// orchestrator's metrics instrumentation) that want to observe the
// fast-path verdict independently of Lookup.
func (mt *MemTable) Filter() *BloomFilter {
	return mt.filter
}

// Capacity returns the configured flush threshold in bytes.
func (mt *MemTable) Capacity() int64 {
	return mt.capacity
}

// IsFull reports whether byte_size has reached capacity, the flush
// trigger condition spec.md §4.6 names.
func (mt *MemTable) IsFull() bool {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.byteSize >= mt.capacity
}
