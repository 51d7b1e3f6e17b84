package lsm

import "encoding/binary"

// defaultBlockCapacity is the default capacity B, in bytes, of a Block's
// data buffer.
const defaultBlockCapacity = 4096

// blockEntryHeaderSize is the size, in bytes, of an entry's fixed header:
// a tombstone flag followed by a u32 key-length and a u32 value-length.
// The key/value length prefixes are the self-describing production format
// spec.md §6 recommends in place of the narrative baseline's bare
// value-length prefix, so a Block can rebuild its key→offset index from
// raw bytes alone; the leading flag byte is this module's resolution of
// open question #5 (deletion-marker propagation across SSTables) — it
// lets a flushed tombstone stay indexed and readable after a restart
// instead of living only in the in-memory MemTable it was written from.
const blockEntryHeaderSize = 9

// blockEntry records where a logical entry lives inside a Block's data
// buffer, so Tombstone can zero-fill exactly the bytes it occupies.
type blockEntry struct {
	offset int
	length int
}

// Block is a fixed-capacity, append-only byte buffer holding a contiguous
// run of key-value entries plus an in-memory key→offset index for O(1)
// average lookup. Blocks do not reclaim space: tombstoning an entry zeroes
// its key and value bytes, rewrites its header, and drops it from the
// index without shrinking the buffer.
type Block struct {
	capacity int
	data     []byte
	used     int
	index    map[string]blockEntry
}

// newBlock allocates a Block with the given capacity.
func newBlock(capacity int) *Block {
	if capacity <= 0 {
		capacity = defaultBlockCapacity
	}
	return &Block{
		capacity: capacity,
		data:     make([]byte, 0, capacity),
		index:    make(map[string]blockEntry),
	}
}

// entrySize returns the serialized size of a (key, value) entry under this
// block's self-describing framing.
func entrySize(key, value []byte) int {
	return blockEntryHeaderSize + len(key) + len(value)
}

// Fits reports whether an entry for (key, value) can be appended without
// exceeding the block's capacity.
func (b *Block) Fits(key, value []byte) bool {
	return b.used+entrySize(key, value) <= b.capacity
}

// Insert appends a framed (key, value) entry to the data buffer and
// records its offset in the index. When deleted is true, value is ignored
// and a zero-length tombstone marker is written instead, so the entry
// remains indexed (and therefore visible to Lookup) rather than erased —
// distinct from Tombstone, which removes an already-published entry
// entirely. Insert returns ErrBlockFull if the entry would overflow the
// block's remaining capacity; the caller must open a new block in that
// case.
func (b *Block) Insert(key, value []byte, deleted bool) error {
	if deleted {
		value = nil
	}
	size := entrySize(key, value)
	if b.used+size > b.capacity {
		return ErrBlockFull
	}

	offset := len(b.data)

	var header [blockEntryHeaderSize]byte
	if deleted {
		header[0] = 1
	}
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(key)))
	binary.LittleEndian.PutUint32(header[5:9], uint32(len(value)))

	b.data = append(b.data, header[:]...)
	b.data = append(b.data, key...)
	b.data = append(b.data, value...)
	b.used += size

	b.index[string(key)] = blockEntry{offset: offset, length: size}
	return nil
}

// Lookup returns a copy of the value slice for key, and whether the entry
// is a tombstone marker, if key is present in the block's index.
func (b *Block) Lookup(key []byte) (value []byte, deleted bool, found bool) {
	entry, ok := b.index[string(key)]
	if !ok {
		return nil, false, false
	}

	deleted = b.data[entry.offset] != 0
	keyLen := binary.LittleEndian.Uint32(b.data[entry.offset+1 : entry.offset+5])
	valLen := binary.LittleEndian.Uint32(b.data[entry.offset+5 : entry.offset+9])
	valStart := entry.offset + blockEntryHeaderSize + int(keyLen)

	value = make([]byte, valLen)
	copy(value, b.data[valStart:valStart+int(valLen)])
	return value, deleted, true
}

// Tombstone zero-fills key's payload bytes and removes it from the index,
// returning true. It returns false if the key is not present; the block's
// capacity accounting is unaffected either way. This is spec.md §4.3's
// literal block-level erase operation, distinct from the in-band
// tombstone marker Insert can write.
//
// The header is not zeroed along with the payload: keyLen is rewritten to
// 0 (so rebuildIndex never re-indexes the erased entry, the same rule it
// already applies to any zero-key-length record) and valLen is rewritten
// to the entry's original combined key+value length, so the header still
// encodes the entry's true total size. Without this, rebuildIndex would
// read a zeroed keyLen/valLen pair and derive a bogus (too-short) size,
// misaligning its scan into the middle of the next entry's header.
func (b *Block) Tombstone(key []byte) bool {
	entry, ok := b.index[string(key)]
	if !ok {
		return false
	}

	payloadLen := entry.length - blockEntryHeaderSize
	header := b.data[entry.offset : entry.offset+blockEntryHeaderSize]
	header[0] = 0
	binary.LittleEndian.PutUint32(header[1:5], 0)
	binary.LittleEndian.PutUint32(header[5:9], uint32(payloadLen))

	for i := entry.offset + blockEntryHeaderSize; i < entry.offset+entry.length; i++ {
		b.data[i] = 0
	}
	delete(b.index, string(key))
	return true
}

// rebuildIndex reconstructs the key→offset index by scanning the raw data
// buffer from the start, used when an SSTable's blocks are read back from
// disk. It relies on the self-describing key/value length prefixes and
// skips zero-filled (hard-erased) entries, which decode with a zero key
// length and are therefore never re-indexed.
func (b *Block) rebuildIndex() {
	b.index = make(map[string]blockEntry)
	offset := 0
	for offset+blockEntryHeaderSize <= len(b.data) {
		keyLen := binary.LittleEndian.Uint32(b.data[offset+1 : offset+5])
		valLen := binary.LittleEndian.Uint32(b.data[offset+5 : offset+9])
		size := blockEntryHeaderSize + int(keyLen) + int(valLen)
		if offset+size > len(b.data) {
			break
		}
		if keyLen > 0 {
			keyStart := offset + blockEntryHeaderSize
			key := make([]byte, keyLen)
			copy(key, b.data[keyStart:keyStart+int(keyLen)])
			b.index[string(key)] = blockEntry{offset: offset, length: size}
		}
		offset += size
	}
	b.used = offset
}
