package lsm

import (
	"fmt"
	"os"
	"path/filepath"
)

// layout resolves and creates the root/wal/sst directory structure an
// engine instance owns.
type layout struct {
	root string
	wal  string
	sst  string
}

const walFileName = "lsmdb_wal.bin"

// newLayout resolves the wal/ and sst/ subdirectories under root and
// creates them (and root itself) if they do not already exist.
func newLayout(root string) (*layout, error) {
	l := &layout{
		root: root,
		wal:  filepath.Join(root, "wal"),
		sst:  filepath.Join(root, "sst"),
	}

	if err := os.MkdirAll(l.wal, 0755); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}
	if err := os.MkdirAll(l.sst, 0755); err != nil {
		return nil, fmt.Errorf("create sst directory: %w", err)
	}

	return l, nil
}

// walPath returns the path of the single WAL file this layout owns.
func (l *layout) walPath() string {
	return filepath.Join(l.wal, walFileName)
}

// sstPath returns the path an SSTable created at the given millisecond
// timestamp would be written to.
func (l *layout) sstPath(unixMillis int64) string {
	return filepath.Join(l.sst, fmt.Sprintf("sstable_%d.dat", unixMillis))
}
