package lsm

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
)

func TestSSTableInsertAndLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_1000.dat")
	sst := newSSTable(path, 1000, defaultBlockCapacity, nil)

	entries := []struct{ key, value string }{
		{"apple", "red"},
		{"banana", "yellow"},
		{"cherry", "dark-red"},
	}

	for _, e := range entries {
		if err := sst.Insert([]byte(e.key), []byte(e.value), false); err != nil {
			t.Fatalf("insert %s: %v", e.key, err)
		}
	}

	for _, e := range entries {
		got, deleted, found := sst.Lookup([]byte(e.key))
		if !found {
			t.Fatalf("key %s not found", e.key)
		}
		if deleted {
			t.Fatalf("key %s should not be a tombstone", e.key)
		}
		if !bytes.Equal(got, []byte(e.value)) {
			t.Fatalf("key %s: expected %s, got %s", e.key, e.value, got)
		}
	}
}

func TestSSTableFinalizeAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_2000.dat")
	sst := newSSTable(path, 2000, defaultBlockCapacity, nil)

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		value := []byte(fmt.Sprintf("value-%04d", i))
		if err := sst.Insert(key, value, false); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if err := sst.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	reopened, err := OpenSSTable(path, defaultBlockCapacity, nil)
	if err != nil {
		t.Fatalf("open sstable: %v", err)
	}

	if reopened.CreatedMillis() != 2000 {
		t.Fatalf("expected created millis 2000, got %d", reopened.CreatedMillis())
	}

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		expected := []byte(fmt.Sprintf("value-%04d", i))

		got, deleted, found := reopened.Lookup(key)
		if !found {
			t.Fatalf("key %s not found after reopen", key)
		}
		if deleted {
			t.Fatalf("key %s should not be a tombstone", key)
		}
		if !bytes.Equal(got, expected) {
			t.Fatalf("key %s: expected %s, got %s", key, expected, got)
		}
	}
}

func TestSSTableOpensMultipleBlocksWhenFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_3000.dat")
	sst := newSSTable(path, 3000, 64, nil) // tiny blocks to force a split

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		value := []byte("0123456789")
		if err := sst.Insert(key, value, false); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if sst.NumBlocks() < 2 {
		t.Fatalf("expected multiple blocks, got %d", sst.NumBlocks())
	}

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		if _, _, found := sst.Lookup(key); !found {
			t.Fatalf("key %s not found", key)
		}
	}
}

func TestSSTableLookupMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_4000.dat")
	sst := newSSTable(path, 4000, defaultBlockCapacity, nil)
	sst.Insert([]byte("a"), []byte("1"), false)

	if _, _, found := sst.Lookup([]byte("nonexistent")); found {
		t.Fatal("nonexistent key should not be found")
	}
}

func TestSSTableTombstoneRemovesKeyFromItsBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_5000.dat")
	sst := newSSTable(path, 5000, 64, nil)

	// Force the same logical key into two different blocks is impossible
	// since MemTable enforces uniqueness before flush; instead verify
	// Tombstone removes the one block that actually holds the key.
	sst.Insert([]byte("a"), []byte("1"), false)
	for i := 0; i < 10; i++ {
		sst.Insert([]byte(fmt.Sprintf("filler-%02d", i)), []byte("0123456789"), false)
	}

	if !sst.Tombstone([]byte("a")) {
		t.Fatal("expected tombstone of existing key to succeed")
	}
	if _, _, found := sst.Lookup([]byte("a")); found {
		t.Fatal("tombstoned key should no longer be found")
	}
	if sst.Tombstone([]byte("a")) {
		t.Fatal("tombstoning an already-removed key should return false")
	}
}

func TestSSTableInsertWithDeletedFlagPublishesMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_6000.dat")
	sst := newSSTable(path, 6000, defaultBlockCapacity, nil)

	if err := sst.Insert([]byte("ghost"), nil, true); err != nil {
		t.Fatalf("insert tombstone marker: %v", err)
	}

	value, deleted, found := sst.Lookup([]byte("ghost"))
	if !found {
		t.Fatal("tombstone marker should remain discoverable")
	}
	if !deleted {
		t.Fatal("expected deleted flag to be set")
	}
	if len(value) != 0 {
		t.Fatalf("expected empty value for tombstone marker, got %q", value)
	}
}

func TestSSTableTombstoneMarkerSurvivesFinalizeAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_7000.dat")
	sst := newSSTable(path, 7000, defaultBlockCapacity, nil)

	sst.Insert([]byte("live"), []byte("v"), false)
	sst.Insert([]byte("ghost"), nil, true)

	if err := sst.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	reopened, err := OpenSSTable(path, defaultBlockCapacity, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, deleted, found := reopened.Lookup([]byte("ghost"))
	if !found || !deleted {
		t.Fatalf("expected tombstone marker to survive reopen, found=%v deleted=%v", found, deleted)
	}
}

func TestParseSSTableTimestamp(t *testing.T) {
	millis, err := parseSSTableTimestamp("/some/dir/sstable_1717000000000.dat")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if millis != 1717000000000 {
		t.Fatalf("expected 1717000000000, got %d", millis)
	}
}
