package reftable

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dolthub/reftable-stack/internal/table"
)

// WriteFunc is the caller-supplied capability that populates a fresh
// table: it must call w.SetLimits, then contribute records. Callers
// wanting to pass extra arguments close over them.
type WriteFunc func(w *table.Writer) error

// Addition is a scoped append transaction holding the manifest lock. It
// is not safe for concurrent use.
type Addition struct {
	stack *Stack
	lock  *fileLock

	baseNames    []string
	pendingNames []string
	pendingPaths []string

	nextIndex    uint64
	lastRangeMax uint64
	hasRange     bool

	lastEmpty bool
	done      bool
}

// NewAddition reloads the stack, acquires the manifest lock, and
// re-verifies the on-disk manifest still matches what was just loaded.
func (s *Stack) NewAddition() (*Addition, error) {
	if err := s.load(); err != nil {
		return nil, err
	}

	lock, err := acquireLock(s.manifestPath)
	if err != nil {
		return nil, err
	}

	onDisk, err := readManifestNames(s.manifestPath)
	if err != nil {
		lock.abort()
		return nil, err
	}
	if !sameNames(onDisk, s.names) {
		lock.abort()
		return nil, errors.Wrap(ErrOutdated, "manifest changed between load and lock")
	}

	return &Addition{
		stack:     s,
		lock:      lock,
		baseNames: append([]string(nil), s.names...),
		nextIndex: s.NextUpdateIndex(),
	}, nil
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Add invokes writeCb against a fresh table and, if it produced any
// records, stages the resulting file for the next Commit. A callback
// error discards the provisional file and is propagated unchanged, except
// that the writer's out-of-order-key and multi-line-message rejections
// are returned wrapped as ErrAPI. A
// callback that contributes zero records is silently discarded, making
// the append a no-op; callers that require at least one record use
// AddRequired instead.
func (a *Addition) Add(writeCb WriteFunc) error {
	a.lastEmpty = false

	// 0666 before umask, so tables track the umask default when
	// Options.DefaultPermissions is unset, the same way the manifest
	// does via its lock file.
	suffix := uuid.NewString()
	tmpPath := filepath.Join(a.stack.dir, "tmp-table-"+suffix)
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	discard := func() { tmp.Close(); os.Remove(tmpPath) }

	wr := table.NewWriter(tmp, table.WriterOptions{
		HashFormat:      a.effectiveHashFormat(),
		ExactLogMessage: a.stack.opts.ExactLogMessage,
	})

	if err := writeCb(wr); err != nil {
		discard()
		if errors.Is(err, table.ErrOutOfOrder) || errors.Is(err, table.ErrMultilineMessage) {
			return errors.Wrapf(ErrAPI, "writer callback: %v", err)
		}
		return err
	}

	if wr.RefCount()+wr.LogCount() == 0 {
		discard()
		a.lastEmpty = true
		return nil
	}

	if wr.MinUpdateIndex() < a.nextIndex {
		discard()
		return errors.Wrapf(ErrAPI, "contribution min_update_index %d overlaps established next index %d", wr.MinUpdateIndex(), a.nextIndex)
	}
	if a.hasRange && wr.MinUpdateIndex() <= a.lastRangeMax {
		discard()
		return errors.Wrap(ErrAPI, "contribution overlaps a previous contribution in this addition")
	}

	if err := wr.Close(); err != nil {
		discard()
		return err
	}
	if err := tmp.Sync(); err != nil {
		discard()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	lo := a.nextIndex
	hi := wr.MaxUpdateIndex()
	finalName := formatTableName(lo, hi, suffix)
	finalPath := filepath.Join(a.stack.dir, finalName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	a.pendingNames = append(a.pendingNames, finalName)
	a.pendingPaths = append(a.pendingPaths, finalPath)
	a.nextIndex = hi + 1
	a.lastRangeMax = hi
	a.hasRange = true
	return nil
}

// LastContributionEmpty reports whether the most recent Add call's
// callback produced zero records.
func (a *Addition) LastContributionEmpty() bool { return a.lastEmpty }

// AddRequired is Add for callers that require at least one record: a
// callback that contributes nothing returns ErrEmptyTable instead of
// quietly turning the append into a no-op.
func (a *Addition) AddRequired(writeCb WriteFunc) error {
	if err := a.Add(writeCb); err != nil {
		return err
	}
	if a.lastEmpty {
		return errors.Wrap(ErrEmptyTable, "writer callback contributed no records")
	}
	return nil
}

func (a *Addition) effectiveHashFormat() table.HashFormat {
	if a.stack.hashAdopted {
		return a.stack.hashFormat
	}
	return table.FormatXXHash64
}

// Commit publishes the pending tables by atomically replacing the
// manifest. An addition with no pending tables commits as a successful
// no-op. On success, auto-compaction runs (unless disabled) and the
// stack's readers are reloaded.
func (a *Addition) Commit() error {
	if a.done {
		return nil
	}
	defer func() { a.done = true }()

	if len(a.pendingNames) == 0 {
		a.lock.abort()
		return nil
	}

	allNames := append(append([]string(nil), a.baseNames...), a.pendingNames...)
	if err := a.lock.write(encodeManifest(allNames)); err != nil {
		a.cleanupPending()
		a.lock.abort()
		return err
	}

	perm := a.stack.opts.perm(0)
	if perm != 0 {
		for _, p := range a.pendingPaths {
			if err := os.Chmod(p, perm); err != nil {
				a.cleanupPending()
				a.lock.abort()
				return err
			}
		}
	}

	if err := a.lock.commit(perm); err != nil {
		a.cleanupPending()
		a.lock.abort()
		return err
	}
	a.pendingNames = nil
	a.pendingPaths = nil

	// Reload first so auto-compaction plans against the manifest that
	// was just published, not the pre-commit snapshot.
	if err := a.stack.load(); err != nil {
		return err
	}

	if !a.stack.opts.DisableAutoCompact {
		if err := a.stack.AutoCompact(); err != nil {
			a.stack.logger.Warn("auto-compact after commit failed", zap.Error(err))
		}
	}

	return nil
}

func (a *Addition) cleanupPending() {
	for _, p := range a.pendingPaths {
		os.Remove(p)
	}
	a.pendingPaths = nil
	a.pendingNames = nil
}

// Destroy releases the lock if still held and removes any orphaned
// pending files. Safe to call on a never-committed addition and safe to
// call twice.
func (a *Addition) Destroy() {
	if a.done {
		return
	}
	a.cleanupPending()
	a.lock.abort()
	a.done = true
}
