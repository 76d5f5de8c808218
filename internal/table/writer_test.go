package table

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterRequiresLimits(t *testing.T) {
	var buf bytes.Buffer
	wr := NewWriter(&buf, WriterOptions{})
	err := wr.AddRef(RefRecord{Name: "a", UpdateIndex: 1})
	require.ErrorIs(t, err, ErrLimitsNotSet)
}

func TestWriterOutOfOrderRefs(t *testing.T) {
	var buf bytes.Buffer
	wr := NewWriter(&buf, WriterOptions{})
	wr.SetLimits(1, 2)
	require.NoError(t, wr.AddRef(RefRecord{Name: "b", UpdateIndex: 1}))
	err := wr.AddRef(RefRecord{Name: "a", UpdateIndex: 2})
	require.ErrorIs(t, err, ErrOutOfOrder)
}

func TestWriterMultilineMessageRejected(t *testing.T) {
	var buf bytes.Buffer
	wr := NewWriter(&buf, WriterOptions{})
	wr.SetLimits(1, 1)
	err := wr.AddLog(LogRecord{Name: "a", UpdateIndex: 1, Message: "first\nsecond"})
	require.ErrorIs(t, err, ErrMultilineMessage)
}

func TestWriterMultilineMessageAllowedWhenExact(t *testing.T) {
	var buf bytes.Buffer
	wr := NewWriter(&buf, WriterOptions{ExactLogMessage: true})
	wr.SetLimits(1, 1)
	require.NoError(t, wr.AddLog(LogRecord{Name: "a", UpdateIndex: 1, Message: "first\nsecond"}))
}

func TestWriterNormalizesSinglelineMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t")
	f, err := os.Create(path)
	require.NoError(t, err)

	wr := NewWriter(f, WriterOptions{})
	wr.SetLimits(1, 1)
	require.NoError(t, wr.AddLog(LogRecord{Name: "a", UpdateIndex: 1, Message: "no newline"}))
	require.NoError(t, wr.Close())
	require.NoError(t, f.Close())

	rd, err := Open(path)
	require.NoError(t, err)
	defer rd.Close()

	require.Len(t, rd.Logs(), 1)
	require.Equal(t, "no newline\n", rd.Logs()[0].Message)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t")
	f, err := os.Create(path)
	require.NoError(t, err)

	wr := NewWriter(f, WriterOptions{HashFormat: FormatBLAKE3})
	wr.SetLimits(5, 9)
	require.NoError(t, wr.AddRef(RefRecord{Name: "refs/heads/a", UpdateIndex: 5, Value: RefValue{Hash: []byte("aaaaaaaaaaaaaaaaaaaa")}}))
	require.NoError(t, wr.AddRef(RefRecord{Name: "refs/heads/b", UpdateIndex: 9, Value: RefValue{Symref: "refs/heads/a"}}))
	require.Equal(t, 2, wr.RefCount())
	require.Equal(t, 0, wr.LogCount())
	require.EqualValues(t, 5, wr.MinUpdateIndex())
	require.EqualValues(t, 9, wr.MaxUpdateIndex())
	require.NoError(t, wr.Close())
	require.NoError(t, f.Close())

	rd, err := Open(path)
	require.NoError(t, err)
	defer rd.Close()

	require.Equal(t, FormatBLAKE3, rd.HashFormat())
	require.EqualValues(t, 5, rd.MinUpdateIndex())
	require.EqualValues(t, 9, rd.MaxUpdateIndex())
	require.Equal(t, 2, rd.RefCount())

	rec, ok := rd.SeekRef("refs/heads/a")
	require.True(t, ok)
	require.Equal(t, []byte("aaaaaaaaaaaaaaaaaaaa"), rec.Value.Hash)

	rec, ok = rd.SeekRef("refs/heads/b")
	require.True(t, ok)
	require.Equal(t, "refs/heads/a", rec.Value.Symref)

	_, ok = rd.SeekRef("refs/heads/missing")
	require.False(t, ok)
}

func TestOpenDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t")
	f, err := os.Create(path)
	require.NoError(t, err)

	wr := NewWriter(f, WriterOptions{})
	wr.SetLimits(1, 1)
	require.NoError(t, wr.AddRef(RefRecord{Name: "a", UpdateIndex: 1, Value: RefValue{Hash: []byte("x")}}))
	require.NoError(t, wr.Close())
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0644))

	_, err = Open(path)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestHashFormatSumRoundTrip(t *testing.T) {
	h1, err := Sum(FormatXXHash64, []byte("hello"))
	require.NoError(t, err)
	require.Len(t, h1, 8)

	h2, err := Sum(FormatBLAKE3, []byte("hello"))
	require.NoError(t, err)
	require.Len(t, h2, 32)

	_, err = Sum(HashFormat(99), []byte("hello"))
	require.Error(t, err)
}

func TestHashFormatString(t *testing.T) {
	require.Equal(t, "xxhash64", FormatXXHash64.String())
	require.Equal(t, "blake3", FormatBLAKE3.String())
	require.Contains(t, HashFormat(77).String(), "unknown")
}
