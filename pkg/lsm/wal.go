package lsm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// Record kind tags for a WAL entry.
const (
	WALInsert byte = 1
	WALRemove byte = 2
)

// walHeaderSize is the fixed-width header every record starts with:
// entry-length (u32), kind (u8), key-length (u32), value-length (u32).
const walHeaderSize = 13

// WALEntry is a single record recovered by Replay.
type WALEntry struct {
	Kind  byte
	Key   []byte
	Value []byte
}

// WAL is an append-only, framed binary log of mutations. Every Append
// flushes to the OS before returning, so a record is never considered
// durable until the write call itself has succeeded — the teacher's
// pkg/storage/wal.go follows the same discipline with its own record
// shape.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// openWAL opens (creating if necessary) the WAL file at path in
// read+append mode and keeps a single persistent handle for the engine's
// lifetime.
func openWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal file: %w", err)
	}
	return &WAL{file: f, path: path}, nil
}

// encodeRecord serializes a single WAL record per spec.md §3/§4.2:
// [u32 entry_len][u8 kind][u32 key_len][u32 val_len][key][val], where
// entry_len = 13 + len(key) + len(value).
func encodeRecord(kind byte, key, value []byte) []byte {
	entryLen := uint32(walHeaderSize + len(key) + len(value))
	buf := make([]byte, entryLen)

	binary.LittleEndian.PutUint32(buf[0:4], entryLen)
	buf[4] = kind
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(key)))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(len(value)))
	copy(buf[13:13+len(key)], key)
	copy(buf[13+len(key):], value)

	return buf
}

// decodeRecord parses a single record from the front of buf, applying the
// bit-exact validation spec.md §4.2 requires. It returns the decoded
// entry and the number of bytes consumed.
func decodeRecord(buf []byte) (WALEntry, int, error) {
	if len(buf) < walHeaderSize {
		return WALEntry{}, 0, ErrCorruptWAL
	}

	entryLen := binary.LittleEndian.Uint32(buf[0:4])
	kind := buf[4]
	keyLen := binary.LittleEndian.Uint32(buf[5:9])
	valLen := binary.LittleEndian.Uint32(buf[9:13])

	if kind != WALInsert && kind != WALRemove {
		return WALEntry{}, 0, ErrCorruptWAL
	}
	if uint32(walHeaderSize)+keyLen+valLen != entryLen {
		return WALEntry{}, 0, ErrCorruptWAL
	}
	total := walHeaderSize + int(keyLen) + int(valLen)
	if len(buf) < total {
		return WALEntry{}, 0, ErrCorruptWAL
	}

	key := make([]byte, keyLen)
	copy(key, buf[walHeaderSize:walHeaderSize+int(keyLen)])
	value := make([]byte, valLen)
	copy(value, buf[walHeaderSize+int(keyLen):total])

	return WALEntry{Kind: kind, Key: key, Value: value}, total, nil
}

// Append serializes and writes a record, flushing it to the OS before
// returning. The caller's MemTable must not be mutated unless Append
// returns nil.
func (w *WAL) Append(kind byte, key, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	record := encodeRecord(kind, key, value)

	n, err := w.file.Write(record)
	if err != nil {
		return fmt.Errorf("write wal record: %w", err)
	}
	if n != len(record) {
		return fmt.Errorf("write wal record: %w", io.ErrShortWrite)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync wal file: %w", err)
	}
	return nil
}

// Replay reads the WAL file from the beginning and returns every record in
// file order. A trailing incomplete record at EOF, or any frame that fails
// validation, is treated as corruption and halts replay at the last valid
// record per spec.md §8 scenario S5.
func (w *WAL) Replay() ([]WALEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("read wal file: %w", err)
	}

	var entries []WALEntry
	offset := 0
	for offset < len(data) {
		entry, consumed, err := decodeRecord(data[offset:])
		if err != nil {
			return entries, fmt.Errorf("replay wal at offset %d: %w", offset, ErrCorruptWAL)
		}
		entries = append(entries, entry)
		offset += consumed
	}

	return entries, nil
}

// Truncate sets the WAL file's length to 0 and resets the write position,
// used by Clear and by the flush protocol after a successful flush.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate wal file: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek wal file: %w", err)
	}
	return nil
}

// Close closes the underlying file handle.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
