package reftable

import (
	"os"

	"github.com/pkg/errors"
)

// fileLock is a scoped mutual-exclusion token for a single target path:
// acquired by exclusive-create of "<target>.lock", released either by
// renaming over the target (commit) or unlinking (abort). Reentrant
// locking is not supported; acquiring twice for the same target from
// the same process returns ErrLock just as it would across processes.
type fileLock struct {
	target string
	path   string
	f      *os.File
	open   bool
}

// acquireLock attempts to exclusively create target+".lock". It never
// blocks: a pre-existing lock file returns ErrLock immediately. The
// lock file is created 0666 before umask, so a file published by
// committing the lock carries the umask default unless the owner
// chmods it first.
func acquireLock(target string) (*fileLock, error) {
	path := target + ".lock"
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.Wrapf(ErrLock, "acquire %s", path)
		}
		return nil, err
	}
	return &fileLock{target: target, path: path, f: f, open: true}, nil
}

// write stages content into the lock file. Callers must call write
// before commit for every byte that should land in the published file.
func (l *fileLock) write(content []byte) error {
	if _, err := l.f.Write(content); err != nil {
		return err
	}
	return l.f.Sync()
}

// commit closes the lock file, optionally chmods it, and renames it over
// the target, publishing it atomically. After commit succeeds the lock
// is released; abort becomes a no-op.
func (l *fileLock) commit(perm os.FileMode) error {
	if !l.open {
		return nil
	}
	if err := l.f.Close(); err != nil {
		return err
	}
	if perm != 0 {
		if err := os.Chmod(l.path, perm); err != nil {
			return err
		}
	}
	if err := os.Rename(l.path, l.target); err != nil {
		return err
	}
	l.open = false
	return nil
}

// abort closes and unlinks the lock file without publishing it. Safe to
// call after commit (no-op) and safe to call twice.
func (l *fileLock) abort() {
	if !l.open {
		return
	}
	l.f.Close()
	os.Remove(l.path)
	l.open = false
}
