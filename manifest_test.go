package reftable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadManifestNamesSkipsBlankLinesAndCR(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.list")
	require.NoError(t, os.WriteFile(path, []byte("one\r\n\ntwo\n"), 0644))

	names, err := readManifestNames(path)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, names)
}

func TestReadManifestNamesMissingFileIsEmpty(t *testing.T) {
	names, err := readManifestNames(filepath.Join(t.TempDir(), "tables.list"))
	require.NoError(t, err)
	require.Nil(t, names)
}

func TestStatManifestMissingFile(t *testing.T) {
	st, err := statManifest(filepath.Join(t.TempDir(), "tables.list"))
	require.NoError(t, err)
	require.False(t, st.exists)
}

// The manifest is only ever replaced by rename. A replacement of equal
// size must still change the stat identity (via the inode), even when
// the filesystem's mtime granularity is too coarse to tell the two
// writes apart.
func TestStatManifestChangesOnSameSizeRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.list")
	require.NoError(t, os.WriteFile(path, []byte("aaaa\n"), 0644))

	before, err := statManifest(path)
	require.NoError(t, err)

	staged := filepath.Join(dir, "tables.list.lock")
	require.NoError(t, os.WriteFile(staged, []byte("bbbb\n"), 0644))
	require.NoError(t, os.Rename(staged, path))

	after, err := statManifest(path)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestHashFormatMismatchOnLoad(t *testing.T) {
	dir := t.TempDir()

	st1, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, st1.Add(writeRef("a", 1, []byte("a"))))
	st1.Close()

	_, err = Open(dir, Options{HashID: 99})
	require.Error(t, err)
	require.True(t, IsFormatError(err))
}

func TestOverlappingRangesRejectedOnLoad(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, Options{DisableAutoCompact: true})
	require.NoError(t, err)

	require.NoError(t, st.Add(writeRef("a", 1, []byte("a"))))
	require.NoError(t, st.Add(writeRef("b", 2, []byte("b"))))
	require.Len(t, st.names, 2)
	st.Close()

	// Corrupt the manifest by duplicating the first table's name twice,
	// so the loader sees two ranges that overlap (both min=1).
	manifest := filepath.Join(dir, manifestFileName)
	names, err := readManifestNames(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, encodeManifest([]string{names[0], names[0]}), 0644))

	_, err = Open(dir, Options{})
	require.Error(t, err)
	require.True(t, IsAPIError(err))
}
