package reftable

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dolthub/reftable-stack/internal/table"
)

const manifestFileName = "tables.list"

// manifestStat is the cheap stat-identity snapshot used to decide
// whether the on-disk manifest has advanced since it was last loaded.
// The manifest is only ever replaced by rename, never rewritten in
// place, so the inode is the field that reliably changes on every
// publish: size can collide (a single-table compaction swaps one
// fixed-width name for another) and mtime granularity can be as coarse
// as a second on some filesystems. The stat check is an optimization
// over re-reading the file, not a correctness mechanism; mutating paths
// still lock and re-read.
type manifestStat struct {
	exists  bool
	dev     uint64
	ino     uint64
	size    int64
	modTime int64
}

func statManifest(path string) (manifestStat, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return manifestStat{}, nil
	}
	if err != nil {
		return manifestStat{}, err
	}
	st := manifestStat{exists: true, size: info.Size(), modTime: info.ModTime().UnixNano()}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		st.dev = uint64(sys.Dev)
		st.ino = uint64(sys.Ino)
	}
	return st, nil
}

// readManifestNames reads and parses tables.list: one filename per
// line, LF-terminated, blank lines (including a trailing empty line)
// ignored, CR tolerated.
func readManifestNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(line) == 0 {
			continue
		}
		names = append(names, string(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func encodeManifest(names []string) []byte {
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// load reconciles in-memory readers with the on-disk manifest. It is a
// no-op if the cached manifestStat still matches what's on disk.
// Concurrent in-process callers collapse onto one physical reload via
// loadGroup.
func (s *Stack) load() error {
	_, err, _ := s.loadGroup.Do("load", func() (any, error) {
		return nil, s.loadLocked()
	})
	return err
}

func (s *Stack) loadLocked() error {
	st, err := statManifest(s.manifestPath)
	if err != nil {
		return err
	}
	if st == s.manifestStatCache {
		return nil
	}

	names, err := readManifestNames(s.manifestPath)
	if err != nil {
		return err
	}

	existing := make(map[string]*table.Reader, len(s.names))
	for i, n := range s.names {
		existing[n] = s.readers[i]
	}

	opened := make([]*table.Reader, len(names))
	fresh := make([]*table.Reader, 0, len(names))
	var freshMu freshSlice
	var g errgroup.Group
	for i, n := range names {
		i, n := i, n
		if rd, ok := existing[n]; ok {
			opened[i] = rd
			delete(existing, n)
			continue
		}
		g.Go(func() error {
			rd, err := table.OpenCached(filepath.Join(s.dir, n), n, s.footerCache)
			if err != nil {
				return errors.Wrapf(err, "open table %s", n)
			}
			opened[i] = rd
			freshMu.add(&fresh, rd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll(fresh)
		return err
	}

	if err := s.validateRanges(names, opened); err != nil {
		closeAll(fresh)
		return err
	}

	// success: adopt, close stragglers from the old generation that
	// are no longer referenced.
	s.readers = opened
	s.names = names
	s.merged = table.NewMerged(opened)
	s.manifestStatCache = st
	s.nextUpdateIndexCache = nextUpdateIndexOf(opened)

	for _, rd := range existing {
		rd.Close()
	}
	return nil
}

// freshSlice serializes appends to the fresh-readers slice from the
// errgroup's concurrent goroutines.
type freshSlice struct {
	mu sync.Mutex
}

func (f *freshSlice) add(s *[]*table.Reader, rd *table.Reader) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*s = append(*s, rd)
}

func closeAll(readers []*table.Reader) {
	for _, rd := range readers {
		rd.Close()
	}
}

// validateRanges requires non-overlapping, strictly ascending
// update-index ranges and a single shared hash format across all
// readers, adopting the stack's format from the first reader ever
// opened if Options.HashID was zero.
func (s *Stack) validateRanges(names []string, readers []*table.Reader) error {
	var lastMax uint64
	haveLast := false
	for i, rd := range readers {
		if !s.hashAdopted {
			s.hashFormat = rd.HashFormat()
			s.hashAdopted = true
		} else if rd.HashFormat() != s.hashFormat {
			return errors.Wrapf(ErrFormat, "table %s has format %s, stack uses %s", names[i], rd.HashFormat(), s.hashFormat)
		}
		if haveLast && rd.MinUpdateIndex() <= lastMax {
			return errors.Wrapf(ErrAPI, "table %s overlaps previous range (min %d <= prior max %d)", names[i], rd.MinUpdateIndex(), lastMax)
		}
		lastMax = rd.MaxUpdateIndex()
		haveLast = true
	}
	return nil
}

func nextUpdateIndexOf(readers []*table.Reader) uint64 {
	if len(readers) == 0 {
		return 1
	}
	return readers[len(readers)-1].MaxUpdateIndex() + 1
}
