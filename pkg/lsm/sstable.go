package lsm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mnohosten/lsmdb/pkg/compression"
)

// sstableLengthPrefixSize is the size, in bytes, of the u32 length field
// this module prefixes each serialized Block with inside an SSTable file.
// This on-disk block-sequencing framing is not part of spec.md's
// per-entry wire format; it is this module's own choice for packing a
// variable number of Blocks into a single file.
const sstableLengthPrefixSize = 4

// SSTable is an ordered, immutable-after-publication sequence of Blocks
// materialized as one file per flush, named sstable_<unix-millis>.dat.
// It is grounded directly on
// _examples/original_source/src/sst/sstable.rs::SSTable (the set/get/
// remove triplet operating over a Vec<Block>) and on the teacher's
// pkg/lsm/sstable.go for the surrounding Go file-I/O idiom.
type SSTable struct {
	path          string
	createdMillis int64
	blocks        []*Block
	blockCapacity int
	codec         *compression.BlockCodec
}

// newSSTable creates an empty, not-yet-materialized SSTable at path.
func newSSTable(path string, createdMillis int64, blockCapacity int, codec *compression.BlockCodec) *SSTable {
	if blockCapacity <= 0 {
		blockCapacity = defaultBlockCapacity
	}
	return &SSTable{
		path:          path,
		createdMillis: createdMillis,
		blockCapacity: blockCapacity,
		codec:         codec,
	}
}

// Path returns the file path this SSTable is (or will be) materialized
// at.
func (s *SSTable) Path() string {
	return s.path
}

// CreatedMillis returns the creation timestamp embedded in the SSTable's
// filename, used by the orchestrator to order SSTables newest-first.
func (s *SSTable) CreatedMillis() int64 {
	return s.createdMillis
}

// Insert appends to the last block, or opens a new one if the last block
// cannot fit the entry (or none exists yet). Keys are expected to arrive
// in sorted order during flush, which preserves within-file key ordering.
func (s *SSTable) Insert(key, value []byte, deleted bool) error {
	effectiveValue := value
	if deleted {
		effectiveValue = nil
	}

	if len(s.blocks) == 0 || !s.blocks[len(s.blocks)-1].Fits(key, effectiveValue) {
		s.blocks = append(s.blocks, newBlock(s.blockCapacity))
	}

	return s.blocks[len(s.blocks)-1].Insert(key, value, deleted)
}

// Lookup scans blocks oldest-to-newest, returning the first hit. This is
// correct because the MemTable enforces key uniqueness before flush, so a
// key appears in at most one block of a given SSTable.
func (s *SSTable) Lookup(key []byte) (value []byte, deleted bool, found bool) {
	for _, block := range s.blocks {
		if v, del, ok := block.Lookup(key); ok {
			return v, del, true
		}
	}
	return nil, false, false
}

// Tombstone scans blocks newest-first; the first block containing key has
// its entry zeroed. It returns false if the key is absent from every
// block.
func (s *SSTable) Tombstone(key []byte) bool {
	for i := len(s.blocks) - 1; i >= 0; i-- {
		if s.blocks[i].Tombstone(key) {
			return true
		}
	}
	return false
}

// NumBlocks returns the number of blocks currently held in memory.
func (s *SSTable) NumBlocks() int {
	return len(s.blocks)
}

// Finalize writes every block to disk as a sequence of
// [u32 payload_len][payload] frames, one per block, optionally passing
// each block's raw buffer through the SSTable's BlockCodec first.
func (s *SSTable) Finalize() error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create sstable file: %w", err)
	}
	defer f.Close()

	for _, block := range s.blocks {
		payload := block.data
		if s.codec != nil {
			payload, err = s.codec.EncodeBlock(block.data)
			if err != nil {
				return fmt.Errorf("compress block: %w", err)
			}
		}

		var lenBuf [sstableLengthPrefixSize]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return fmt.Errorf("write block length: %w", err)
		}
		if _, err := f.Write(payload); err != nil {
			return fmt.Errorf("write block payload: %w", err)
		}
	}

	return f.Sync()
}

// OpenSSTable reads an SSTable file back from disk, rebuilding each
// block's key→offset index from its raw (decompressed) bytes.
func OpenSSTable(path string, blockCapacity int, codec *compression.BlockCodec) (*SSTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sstable file: %w", err)
	}
	return parseSSTableData(data, path, blockCapacity, codec)
}

// ParseSSTableData rebuilds an SSTable from the raw bytes of a
// sstable_<unix-millis>.dat file already read into memory, e.g. via a
// pooled file handle. It performs the same parsing OpenSSTable does
// after its own os.ReadFile.
func ParseSSTableData(data []byte, path string, blockCapacity int, codec *compression.BlockCodec) (*SSTable, error) {
	return parseSSTableData(data, path, blockCapacity, codec)
}

func parseSSTableData(data []byte, path string, blockCapacity int, codec *compression.BlockCodec) (*SSTable, error) {
	createdMillis, err := parseSSTableTimestamp(path)
	if err != nil {
		return nil, err
	}

	sst := newSSTable(path, createdMillis, blockCapacity, codec)

	offset := 0
	for offset+sstableLengthPrefixSize <= len(data) {
		payloadLen := int(binary.LittleEndian.Uint32(data[offset : offset+sstableLengthPrefixSize]))
		offset += sstableLengthPrefixSize
		if offset+payloadLen > len(data) {
			return nil, fmt.Errorf("read sstable file %s: %w", path, ErrCorruptWAL)
		}
		payload := data[offset : offset+payloadLen]
		offset += payloadLen

		raw := payload
		if codec != nil {
			raw, err = codec.DecodeBlock(payload)
			if err != nil {
				return nil, fmt.Errorf("decompress block in %s: %w", path, err)
			}
		}

		block := newBlock(blockCapacity)
		block.data = append(block.data[:0], raw...)
		block.rebuildIndex()
		sst.blocks = append(sst.blocks, block)
	}

	return sst, nil
}

// parseSSTableTimestamp extracts the embedded millisecond timestamp from
// a filename shaped sstable_<unix-millis>.dat.
func parseSSTableTimestamp(path string) (int64, error) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".dat")
	name = strings.TrimPrefix(name, "sstable_")

	millis, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse sstable timestamp from %q: %w", path, err)
	}
	return millis, nil
}
