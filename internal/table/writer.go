package table

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/google/btree"
)

const fileMagic = "RFTB"

// WriterOptions configures how a Writer validates contributed records.
type WriterOptions struct {
	HashFormat HashFormat
	// ExactLogMessage, when false, requires single-line log messages
	// and normalizes them by appending "\n"; multi-line messages are
	// rejected. When true, messages are written verbatim.
	ExactLogMessage bool
}

// ErrOutOfOrder is returned when a caller contributes a record whose name
// sorts before the previously contributed record of the same kind.
var ErrOutOfOrder = fmt.Errorf("table: records contributed out of key order")

// ErrMultilineMessage is returned when a log message contains embedded
// newlines and WriterOptions.ExactLogMessage is not set.
var ErrMultilineMessage = fmt.Errorf("table: multi-line log message requires ExactLogMessage")

// ErrLimitsNotSet is returned when a caller contributes a record before
// calling SetLimits.
var ErrLimitsNotSet = fmt.Errorf("table: SetLimits must be called before adding records")

type refItem struct{ RefRecord }

func (a refItem) Less(than btree.Item) bool {
	b := than.(refItem)
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.UpdateIndex > b.UpdateIndex // newest-first within a name
}

type logItem struct{ LogRecord }

func (a logItem) Less(than btree.Item) bool {
	b := than.(logItem)
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.UpdateIndex > b.UpdateIndex
}

// Writer accumulates records for a single, not-yet-published table. A
// Writer is not safe for concurrent use.
type Writer struct {
	w    io.Writer
	opts WriterOptions

	minUpdateIndex uint64
	maxUpdateIndex uint64
	limitsSet      bool

	refs    *btree.BTree
	logs    *btree.BTree
	lastRef string
	lastLog string
	hasLast bool
	hasLog  bool
}

// NewWriter returns a Writer that will serialize records into w when
// Close is called.
func NewWriter(w io.Writer, opts WriterOptions) *Writer {
	if opts.HashFormat == 0 {
		opts.HashFormat = FormatXXHash64
	}
	return &Writer{
		w:    w,
		opts: opts,
		refs: btree.New(16),
		logs: btree.New(16),
	}
}

// SetLimits declares the update-index bounds this table will advertise.
// Must be called before any Add* call.
func (wr *Writer) SetLimits(min, max uint64) {
	wr.minUpdateIndex = min
	wr.maxUpdateIndex = max
	wr.limitsSet = true
}

// MinUpdateIndex returns the bound declared via SetLimits.
func (wr *Writer) MinUpdateIndex() uint64 { return wr.minUpdateIndex }

// MaxUpdateIndex returns the bound declared via SetLimits.
func (wr *Writer) MaxUpdateIndex() uint64 { return wr.maxUpdateIndex }

// AddRef contributes a reference record. Names must be added in
// non-decreasing order across calls; duplicate names must be in
// non-increasing UpdateIndex order.
func (wr *Writer) AddRef(rec RefRecord) error {
	if !wr.limitsSet {
		return ErrLimitsNotSet
	}
	if wr.hasLast && rec.Name < wr.lastRef {
		return ErrOutOfOrder
	}
	wr.lastRef = rec.Name
	wr.hasLast = true
	wr.refs.ReplaceOrInsert(refItem{rec})
	return nil
}

// AddLog contributes a log record, normalizing or rejecting embedded
// newlines in the message per WriterOptions.ExactLogMessage.
func (wr *Writer) AddLog(rec LogRecord) error {
	if !wr.limitsSet {
		return ErrLimitsNotSet
	}
	if wr.hasLog && rec.Name < wr.lastLog {
		return ErrOutOfOrder
	}
	if !wr.opts.ExactLogMessage {
		if n := bytes.IndexByte([]byte(rec.Message), '\n'); n >= 0 && n != len(rec.Message)-1 {
			return ErrMultilineMessage
		}
		if len(rec.Message) == 0 || rec.Message[len(rec.Message)-1] != '\n' {
			rec.Message = rec.Message + "\n"
		}
	}
	wr.lastLog = rec.Name
	wr.hasLog = true
	wr.logs.ReplaceOrInsert(logItem{rec})
	return nil
}

// RefCount reports the number of ref records staged so far.
func (wr *Writer) RefCount() int { return wr.refs.Len() }

// LogCount reports the number of log records staged so far.
func (wr *Writer) LogCount() int { return wr.logs.Len() }

// Close serializes all staged records to the underlying writer. It does
// not fsync; callers that need durability (the stack's addition and
// compaction paths) fsync the underlying *os.File themselves after Close
// returns.
func (wr *Writer) Close() error {
	var refs []RefRecord
	wr.refs.Ascend(func(item btree.Item) bool {
		refs = append(refs, item.(refItem).RefRecord)
		return true
	})
	var logs []LogRecord
	wr.logs.Ascend(func(item btree.Item) bool {
		logs = append(logs, item.(logItem).LogRecord)
		return true
	})

	var payload bytes.Buffer
	enc := gob.NewEncoder(&payload)
	if err := enc.Encode(refs); err != nil {
		return err
	}
	if err := enc.Encode(logs); err != nil {
		return err
	}
	compressed := snappy.Encode(nil, payload.Bytes())

	header := make([]byte, 0, 32)
	header = append(header, []byte(fileMagic)...)
	header = binary.LittleEndian.AppendUint32(header, uint32(wr.opts.HashFormat))
	header = binary.LittleEndian.AppendUint64(header, wr.minUpdateIndex)
	header = binary.LittleEndian.AppendUint64(header, wr.maxUpdateIndex)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(refs)))
	header = binary.LittleEndian.AppendUint32(header, uint32(len(logs)))

	sum, err := Sum(wr.opts.HashFormat, compressed)
	if err != nil {
		return err
	}

	if _, err := wr.w.Write(header); err != nil {
		return err
	}
	if _, err := wr.w.Write(compressed); err != nil {
		return err
	}
	_, err = wr.w.Write(sum)
	return err
}

// FsyncFile is a convenience for callers holding the underlying *os.File.
func FsyncFile(f *os.File) error {
	return f.Sync()
}
