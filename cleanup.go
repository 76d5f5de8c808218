package reftable

import (
	"os"
	"path/filepath"
	"strings"
)

// Clean removes table files on disk that are not referenced by the
// current manifest. It is explicit, not automatic: callers invoke it
// after a known-unclean shutdown to recover disk space
// held by crash leftovers or tables superseded by a compaction that
// finished after this process stopped watching the directory.
func (s *Stack) Clean() error {
	lock, err := acquireLock(s.manifestPath)
	if err != nil {
		return err
	}
	defer lock.abort()

	if err := s.load(); err != nil {
		return err
	}

	live := make(map[string]bool, len(s.names))
	for _, n := range s.names {
		live[n] = true
	}
	live[manifestFileName] = true

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if live[name] {
			continue
		}
		if strings.HasSuffix(name, ".lock") {
			// Owned by another in-progress operation; leave it alone.
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
