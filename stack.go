// Package reftable implements the stack manager of a log-structured
// reference storage engine: it appends immutable, content-addressed
// tables to a directory, tracks their order via a single manifest file,
// compacts contiguous runs of tables, and garbage-collects orphaned
// table files, all coordinated across cooperating processes through
// filesystem locks.
package reftable

import (
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dolthub/reftable-stack/internal/table"
)

// Stack is the owning aggregate: a directory of tables, the manifest
// that orders them, and the reader cache mirroring it.
type Stack struct {
	dir          string
	manifestPath string
	opts         Options
	logger       *zap.Logger

	footerCache *table.FooterCache
	loadGroup   singleflight.Group

	manifestStatCache    manifestStat
	readers              []*table.Reader
	names                []string
	merged               *table.Merged
	hashFormat           table.HashFormat
	hashAdopted          bool
	nextUpdateIndexCache uint64

	Stats Stats
}

// Open opens or creates a stack rooted at dir, reading tables.list if
// present and opening each named table as a reader. dir must already
// exist.
func Open(dir string, opts Options) (*Stack, error) {
	opts = opts.normalized()
	s := &Stack{
		dir:                  dir,
		manifestPath:         filepath.Join(dir, manifestFileName),
		opts:                 opts,
		logger:               opts.Logger,
		footerCache:          table.NewFooterCache(opts.FooterCacheSize),
		hashFormat:           opts.HashID,
		hashAdopted:          opts.HashID != 0,
		nextUpdateIndexCache: 1,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the stack's open readers. The on-disk state is
// independent of the Stack object's lifetime.
func (s *Stack) Close() {
	for _, rd := range s.readers {
		rd.Close()
	}
	s.readers = nil
	s.names = nil
	s.merged = nil
}

// Reload forces a reconciliation with the on-disk manifest, returning
// immediately if nothing has changed since the last load.
func (s *Stack) Reload() error { return s.load() }

// NextUpdateIndex returns one past the maximum max_update_index
// currently in the stack (1 if empty).
func (s *Stack) NextUpdateIndex() uint64 { return s.nextUpdateIndexCache }

// Len reports the number of tables currently in the stack.
func (s *Stack) Len() int { return len(s.readers) }

// HashFormat reports the stack's adopted hash format. Zero means no
// table has been opened or written yet and Options.HashID was zero.
func (s *Stack) HashFormat() table.HashFormat { return s.hashFormat }

// ReadRef resolves name against the merged view over all tables. found
// is false both for "no such reference" and for a tombstone.
func (s *Stack) ReadRef(name string) (table.RefRecord, bool) {
	return s.merged.ReadRef(name)
}

// ReadLog resolves name's most recent surviving log entry against the
// merged view over all tables.
func (s *Stack) ReadLog(name string) (table.LogRecord, bool) {
	return s.merged.ReadLog(name)
}

// Add is sugar for starting an addition, contributing exactly one write,
// and committing it. It retries on ErrOutdated by reloading and replaying
// the callback, up to two extra attempts with a constant backoff.
func (s *Stack) Add(writeCb WriteFunc) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 2)
	return backoff.Retry(func() error {
		err := s.tryAdd(writeCb)
		if err == nil {
			return nil
		}
		if !IsOutdated(err) {
			return backoff.Permanent(err)
		}
		if rerr := s.load(); rerr != nil {
			return backoff.Permanent(rerr)
		}
		return err
	}, b)
}

func (s *Stack) tryAdd(writeCb WriteFunc) error {
	add, err := s.NewAddition()
	if err != nil {
		return err
	}
	defer add.Destroy()
	if err := add.Add(writeCb); err != nil {
		return err
	}
	return add.Commit()
}
