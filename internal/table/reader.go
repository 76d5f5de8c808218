package table

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/golang/snappy"
)

// Reader is a fully decoded, immutable view of one table file. Tables are
// small enough in this implementation to load entirely into memory; there
// is no lazy block fetch.
type Reader struct {
	name           string
	size           int64
	hashFormat     HashFormat
	minUpdateIndex uint64
	maxUpdateIndex uint64

	refs []RefRecord // sorted by Name ascending, newest UpdateIndex first per name
	logs []LogRecord // sorted by Name ascending, newest UpdateIndex first per name
}

// Open parses the table file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	header := make([]byte, 24)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("table: short header in %s: %w", path, err)
	}
	if string(header[:4]) != fileMagic {
		return nil, fmt.Errorf("table: bad magic in %s", path)
	}
	hashFormat := HashFormat(binary.LittleEndian.Uint32(header[4:8]))
	minIdx := binary.LittleEndian.Uint64(header[8:16])
	maxIdx := binary.LittleEndian.Uint64(header[16:24])
	// refCount/logCount fields follow but are informational only; the
	// gob payload is self-describing.
	counts := make([]byte, 8)
	if _, err := io.ReadFull(f, counts); err != nil {
		return nil, fmt.Errorf("table: short counts in %s: %w", path, err)
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	sumSize, err := sumLen(hashFormat)
	if err != nil {
		return nil, fmt.Errorf("table: %s: %w", path, err)
	}
	if len(rest) < sumSize {
		return nil, fmt.Errorf("table: truncated checksum in %s", path)
	}
	compressed, wantSum := rest[:len(rest)-sumSize], rest[len(rest)-sumSize:]
	gotSum, err := Sum(hashFormat, compressed)
	if err != nil {
		return nil, fmt.Errorf("table: %s: %w", path, err)
	}
	if !bytes.Equal(gotSum, wantSum) {
		return nil, fmt.Errorf("table: %s: %w", path, ErrChecksumMismatch)
	}

	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("table: decompress %s: %w", path, err)
	}

	dec := gob.NewDecoder(bytes.NewReader(payload))
	var refs []RefRecord
	var logs []LogRecord
	if err := dec.Decode(&refs); err != nil && err != io.EOF {
		return nil, fmt.Errorf("table: decode refs in %s: %w", path, err)
	}
	if err := dec.Decode(&logs); err != nil && err != io.EOF {
		return nil, fmt.Errorf("table: decode logs in %s: %w", path, err)
	}

	return &Reader{
		name:           info.Name(),
		size:           info.Size(),
		hashFormat:     hashFormat,
		minUpdateIndex: minIdx,
		maxUpdateIndex: maxIdx,
		refs:           refs,
		logs:           logs,
	}, nil
}

func (r *Reader) Name() string             { return r.name }
func (r *Reader) Size() int64              { return r.size }
func (r *Reader) HashFormat() HashFormat   { return r.hashFormat }
func (r *Reader) MinUpdateIndex() uint64   { return r.minUpdateIndex }
func (r *Reader) MaxUpdateIndex() uint64   { return r.maxUpdateIndex }
func (r *Reader) RefCount() int            { return len(r.refs) }
func (r *Reader) LogCount() int            { return len(r.logs) }

// Close releases resources held by the reader. This implementation holds
// no open file descriptor after Open returns, so Close is a no-op, kept
// for interface symmetry with on-disk-backed readers.
func (r *Reader) Close() error { return nil }

// Refs returns the reader's ref records in ascending-name order.
func (r *Reader) Refs() []RefRecord { return r.refs }

// Logs returns the reader's log records in ascending-name order.
func (r *Reader) Logs() []LogRecord { return r.logs }

// SeekRef returns the first ref record (newest UpdateIndex) for name, if
// present in this table.
func (r *Reader) SeekRef(name string) (RefRecord, bool) {
	i := sort.Search(len(r.refs), func(i int) bool { return r.refs[i].Name >= name })
	if i < len(r.refs) && r.refs[i].Name == name {
		return r.refs[i], true
	}
	return RefRecord{}, false
}

// SeekLog returns the first log record (newest UpdateIndex) for name, if
// present in this table.
func (r *Reader) SeekLog(name string) (LogRecord, bool) {
	i := sort.Search(len(r.logs), func(i int) bool { return r.logs[i].Name >= name })
	if i < len(r.logs) && r.logs[i].Name == name {
		return r.logs[i], true
	}
	return LogRecord{}, false
}
