package lsm

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func smallConfig(dir string) *Config {
	cfg := DefaultConfig(dir)
	cfg.MemTableCapacity = 256
	cfg.BlockCapacity = 128
	return cfg
}

// S1: Open(empty dir) -> put -> get -> Some. Restart -> get -> Some.
func TestEngineScenarioS1_PutGetSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := e.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, found, err := e.Get([]byte("a")); err != nil || !found || !bytes.Equal(v, []byte("1")) {
		t.Fatalf("get after put: value=%q found=%v err=%v", v, found, err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if v, found, err := reopened.Get([]byte("a")); err != nil || !found || !bytes.Equal(v, []byte("1")) {
		t.Fatalf("get after restart: value=%q found=%v err=%v", v, found, err)
	}
}

// S2: put a, put b, remove a -> a absent, b present. Restart -> same.
func TestEngineScenarioS2_RemoveSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustPut(t, e, "a", "1")
	mustPut(t, e, "b", "2")
	if err := e.Remove([]byte("a")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, found, _ := e.Get([]byte("a")); found {
		t.Fatal("expected a to be absent after remove")
	}
	if v, found, _ := e.Get([]byte("b")); !found || !bytes.Equal(v, []byte("2")) {
		t.Fatalf("expected b=2, got %q found=%v", v, found)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, found, _ := reopened.Get([]byte("a")); found {
		t.Fatal("expected a to remain absent after restart")
	}
	if v, found, _ := reopened.Get([]byte("b")); !found || !bytes.Equal(v, []byte("2")) {
		t.Fatalf("expected b=2 after restart, got %q found=%v", v, found)
	}
}

// S3: put k=v1, update k=v2 -> get k = Some(v2).
func TestEngineScenarioS3_UpdateOverwrites(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	mustPut(t, e, "k", "v1")
	if err := e.Update([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("update: %v", err)
	}

	v, found, err := e.Get([]byte("k"))
	if err != nil || !found || !bytes.Equal(v, []byte("v2")) {
		t.Fatalf("expected k=v2, got %q found=%v err=%v", v, found, err)
	}
}

// S4: filling the MemTable to capacity triggers a flush; an SSTable file
// appears on disk; flushed keys remain gettable.
func TestEngineScenarioS4_FlushOnCapacity(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(smallConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		value := []byte(fmt.Sprintf("value-%03d", i))
		if err := e.Put(key, value); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "sst", "sstable_*.dat"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one sstable file after filling memtable past capacity")
	}

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		expected := []byte(fmt.Sprintf("value-%03d", i))
		v, found, err := e.Get(key)
		if err != nil || !found {
			t.Fatalf("get %s: found=%v err=%v", key, found, err)
		}
		if !bytes.Equal(v, expected) {
			t.Fatalf("get %s: expected %q, got %q", key, expected, v)
		}
	}
}

// S5: an externally truncated (mid-record) WAL halts replay at the last
// valid record rather than silently continuing.
func TestEngineScenarioS5_CorruptWALHaltsReplay(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 5; i++ {
		mustPut(t, e, fmt.Sprintf("k%d", i), fmt.Sprintf("v%d", i))
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	walPath := filepath.Join(dir, "wal", walFileName)
	info, err := os.Stat(walPath)
	if err != nil {
		t.Fatalf("stat wal: %v", err)
	}
	if err := os.Truncate(walPath, info.Size()-2); err != nil {
		t.Fatalf("truncate wal: %v", err)
	}

	if _, err := Open(DefaultConfig(dir)); err == nil {
		t.Fatal("expected reopen to surface a replay error for a truncated trailing record")
	}
}

// S6: clear() on a non-empty engine zeroes the WAL and deletes every
// SSTable; no previously inserted key is found afterward.
func TestEngineScenarioS6_ClearRemovesEverything(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(smallConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	for i := 0; i < 30; i++ {
		mustPut(t, e, fmt.Sprintf("k%02d", i), "v")
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "sst", "sstable_*.dat"))
	if len(matches) == 0 {
		t.Fatal("expected sstables to exist before clear")
	}

	cleared, err := e.Clear()
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	walPath := filepath.Join(dir, "wal", walFileName)
	info, err := os.Stat(walPath)
	if err != nil {
		t.Fatalf("stat wal: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected wal size 0 after clear, got %d", info.Size())
	}

	matches, _ = filepath.Glob(filepath.Join(dir, "sst", "sstable_*.dat"))
	if len(matches) != 0 {
		t.Fatalf("expected no sstable files after clear, got %v", matches)
	}

	for i := 0; i < 30; i++ {
		if _, found, _ := cleared.Get([]byte(fmt.Sprintf("k%02d", i))); found {
			t.Fatalf("key k%02d should not be found after clear", i)
		}
	}
}

func TestEngineRemoveAbsentKeyIsNoop(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	if err := e.Remove([]byte("nonexistent")); err != nil {
		t.Fatalf("remove of absent key should be a no-op success, got %v", err)
	}
}

func TestEnginePutRejectsEmptyKey(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	if err := e.Put(nil, []byte("v")); err != ErrKeyEmpty {
		t.Fatalf("expected ErrKeyEmpty, got %v", err)
	}
}

func TestEngineOperationsFailAfterClose(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := e.Put([]byte("a"), []byte("1")); err != ErrClosed {
		t.Fatalf("expected ErrClosed on put, got %v", err)
	}
	if _, _, err := e.Get([]byte("a")); err != ErrClosed {
		t.Fatalf("expected ErrClosed on get, got %v", err)
	}
}

func TestEngineLoadsExistingSSTablesOnReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(smallConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 40; i++ {
		mustPut(t, e, fmt.Sprintf("x%03d", i), fmt.Sprintf("y%03d", i))
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(smallConfig(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("x%03d", i)
		expected := fmt.Sprintf("y%03d", i)
		v, found, err := reopened.Get([]byte(key))
		if err != nil || !found || string(v) != expected {
			t.Fatalf("key %s: expected %s, got %q found=%v err=%v", key, expected, v, found, err)
		}
	}
}

func TestEngineStatsReportsOperationCounts(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer e.Close()

	mustPut(t, e, "a", "1")
	e.Get([]byte("a"))
	e.Remove([]byte("a"))

	stats := e.Stats()
	puts := stats["puts"].(map[string]interface{})
	gets := stats["gets"].(map[string]interface{})
	removes := stats["removes"].(map[string]interface{})

	if puts["total"].(uint64) != 1 {
		t.Errorf("expected 1 put, got %v", puts["total"])
	}
	if gets["total"].(uint64) != 1 {
		t.Errorf("expected 1 get, got %v", gets["total"])
	}
	if removes["total"].(uint64) != 1 {
		t.Errorf("expected 1 remove, got %v", removes["total"])
	}
}

func mustPut(t *testing.T, e *Engine, key, value string) {
	t.Helper()
	if err := e.Put([]byte(key), []byte(value)); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}
