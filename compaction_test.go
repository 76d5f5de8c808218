package reftable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactAllFailsHardUnderLockContention(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	st, err := Open(dir, Options{DisableAutoCompact: true})
	require.NoError(err)
	defer st.Close()

	require.NoError(st.Add(writeRef("a", 1, []byte("a"))))
	require.NoError(st.Add(writeRef("b", 2, []byte("b"))))
	require.Len(st.names, 2)

	lockPath := filepath.Join(dir, st.names[0]+".lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	require.NoError(err)
	f.Close()
	defer os.Remove(lockPath)

	err = st.CompactAll(ExpiryPolicy{})
	require.Error(err)
	require.True(IsLockFailure(err))
	require.Equal(2, st.Len())
}

func TestCompactAllNoopOnEmptyStack(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	st, err := Open(dir, Options{})
	require.NoError(err)
	defer st.Close()

	require.NoError(st.CompactAll(ExpiryPolicy{}))
	require.Equal(0, st.Len())
}

func TestAutoCompactDeclinesWithoutWork(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	st, err := Open(dir, Options{})
	require.NoError(err)
	defer st.Close()

	require.NoError(st.AutoCompact())
	require.Equal(0, st.Len())
}
