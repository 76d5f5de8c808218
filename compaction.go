package reftable

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dolthub/reftable-stack/internal/table"
)

// ExpiryPolicy controls which log records CompactAll drops. A log record
// is dropped if its Time is less than policy.Time, or if its UpdateIndex
// is less than policy.MinUpdateIndex; a threshold left at zero never
// triggers. The zero value drops nothing.
type ExpiryPolicy = table.ExpiryPolicy

// segment is a contiguous, sealed candidate range for compaction.
type segment struct {
	start, end int // end exclusive
	total      uint64
}

func (sg segment) length() int { return sg.end - sg.start }

// suggestCompactionSegment proposes a contiguous range of tables to
// compact: scanning from the youngest (highest-index) table backward, a
// candidate suffix is extended while the next older table is still small
// relative to what has already been accumulated (sizes[i] < factor*S).
// Among all sealed suffixes of length >= 2, the smallest-total one wins,
// ties broken toward the younger (larger end) suffix. An empty
// {start,end} (both zero) means decline.
func suggestCompactionSegment(sizes []uint64, factor uint64) (start, end int) {
	n := len(sizes)
	if n == 0 {
		return 0, 0
	}

	var segments []segment
	i := n - 1
	for i >= 0 {
		cur := segment{start: i, end: i + 1, total: sizes[i]}
		i--
		for i >= 0 && sizes[i] < factor*cur.total {
			cur.total += sizes[i]
			cur.start = i
			i--
		}
		segments = append(segments, cur)
	}

	var best segment
	haveBest := false
	for _, sg := range segments {
		if sg.length() < 2 {
			continue
		}
		if !haveBest || sg.total < best.total || (sg.total == best.total && sg.end > best.end) {
			best = sg
			haveBest = true
		}
	}
	if !haveBest {
		return 0, 0
	}
	return best.start, best.end
}

// tableSizesForCompaction returns the current table sizes, eldest first,
// matching s.readers' order. Table names are never reused, so a footer
// once cached for a name is valid for the life of the
// process; sizes are served from the cache where possible instead of
// re-deriving them from the open reader every time the planner runs.
func (s *Stack) tableSizesForCompaction() []uint64 {
	sizes := make([]uint64, len(s.readers))
	for i, rd := range s.readers {
		name := s.names[i]
		if f, ok := s.footerCache.Get(name); ok {
			sizes[i] = uint64(f.Size)
			continue
		}
		sizes[i] = uint64(rd.Size())
		s.footerCache.Put(name, table.Footer{
			Size:           rd.Size(),
			HashFormat:     rd.HashFormat(),
			MinUpdateIndex: rd.MinUpdateIndex(),
			MaxUpdateIndex: rd.MaxUpdateIndex(),
			RefCount:       rd.RefCount(),
			LogCount:       rd.LogCount(),
		})
	}
	return sizes
}

// CompactAll compacts the entire current stack into a single table,
// using the explicit (non-narrowing) locking variant: any lock
// contention aborts the whole operation.
func (s *Stack) CompactAll(expiry ExpiryPolicy) error {
	if len(s.readers) == 0 {
		return nil
	}
	_, err := s.compactRange(0, len(s.readers)-1, false, expiry)
	return err
}

// AutoCompact consults the planner and, if it proposes a range, runs the
// narrowing (auto) locking variant over it. It is a no-op if the planner
// declines.
func (s *Stack) AutoCompact() error {
	sizes := s.tableSizesForCompaction()
	start, end := suggestCompactionSegment(sizes, s.opts.CompactionFactor)
	if start == end {
		return nil
	}
	_, err := s.compactRange(start, end-1, true, ExpiryPolicy{})
	return err
}

// compactRange runs one compaction attempt over the inclusive table
// index range [first,last] of the currently loaded manifest. auto
// selects the narrowing-on-lock-failure variant: instead of failing the
// whole attempt when a table in the range is locked by another process,
// the range shrinks to the longest locked prefix.
func (s *Stack) compactRange(first, last int, auto bool, expiry ExpiryPolicy) (done bool, err error) {
	s.Stats.attempts.Add(1)
	narrowed := false
	defer func() {
		if err != nil || narrowed {
			s.Stats.failures.Add(1)
		}
	}()

	// A single-table range is still worth compacting when an expiry
	// policy can drop records from it; only an empty range is a no-op.
	if first > last {
		return true, nil
	}

	manifestLock, err := acquireLock(s.manifestPath)
	if err != nil {
		return false, err
	}
	defer manifestLock.abort()

	onDisk, err := readManifestNames(s.manifestPath)
	if err != nil {
		return false, err
	}
	if !sameNames(onDisk, s.names) {
		return false, errors.Wrap(ErrOutdated, "manifest changed before compaction")
	}

	names := s.names
	tableLocks := make([]*fileLock, 0, last-first+1)
	defer func() {
		for _, l := range tableLocks {
			l.abort()
		}
	}()

	lockFailed := false
	narrowedLast := first - 1
	for i := first; i <= last; i++ {
		tl, lerr := acquireLock(filepath.Join(s.dir, names[i]))
		if lerr != nil {
			if IsLockFailure(lerr) {
				lockFailed = true
				break
			}
			return false, lerr
		}
		tableLocks = append(tableLocks, tl)
		narrowedLast = i
	}

	if lockFailed {
		if !auto {
			return false, ErrLock
		}
		narrowed = true
		if narrowedLast-first+1 < 2 {
			return true, nil
		}
		last = narrowedLast
	}

	readers := s.readers[first : last+1]
	dropTombstones := first == 0
	refs := table.MergeRefs(readers, dropTombstones)
	logs := table.MergeLogs(readers, expiry)

	beforeNames := append([]string(nil), names[:first]...)
	afterNames := append([]string(nil), names[last+1:]...)

	var newNames []string
	newNames = append(newNames, beforeNames...)

	if len(refs)+len(logs) > 0 {
		newName, werr := s.writeCompactedTable(readers, refs, logs)
		if werr != nil {
			return false, werr
		}
		newNames = append(newNames, newName)
	}
	newNames = append(newNames, afterNames...)

	if err := manifestLock.write(encodeManifest(newNames)); err != nil {
		return false, err
	}
	if err := manifestLock.commit(s.opts.perm(0)); err != nil {
		return false, err
	}

	s.Stats.entriesWritten.Add(int64(len(refs) + len(logs)))
	s.logger.Info("compacted tables",
		zap.Int("first", first), zap.Int("last", last),
		zap.Int("count", last-first+1),
		zap.String("size", humanize.Bytes(sumSizes(readers))),
	)

	return true, s.load()
}

func sumSizes(readers []*table.Reader) uint64 {
	var total uint64
	for _, rd := range readers {
		total += uint64(rd.Size())
	}
	return total
}

func (s *Stack) writeCompactedTable(readers []*table.Reader, refs []table.RefRecord, logs []table.LogRecord) (string, error) {
	min := readers[0].MinUpdateIndex()
	max := readers[len(readers)-1].MaxUpdateIndex()

	// 0666 before umask, matching the addition path's table creation.
	suffix := uuid.NewString()
	tmpPath := filepath.Join(s.dir, "tmp-compact-"+suffix)
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		return "", err
	}
	discard := func() { tmp.Close(); os.Remove(tmpPath) }

	wr := table.NewWriter(tmp, table.WriterOptions{
		HashFormat:      s.hashFormat,
		ExactLogMessage: true, // already-normalized records from merge
	})
	wr.SetLimits(min, max)
	for _, rec := range refs {
		if err := wr.AddRef(rec); err != nil {
			discard()
			return "", err
		}
	}
	for _, rec := range logs {
		if err := wr.AddLog(rec); err != nil {
			discard()
			return "", err
		}
	}
	if err := wr.Close(); err != nil {
		discard()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		discard()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	name := formatTableName(min, max, suffix)
	dest := filepath.Join(s.dir, name)
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if perm := s.opts.perm(0); perm != 0 {
		if err := os.Chmod(dest, perm); err != nil {
			return "", err
		}
	}
	return name, nil
}
