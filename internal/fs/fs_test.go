package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, Default.MkdirAll(dir, 0o755))

	f, err := Default.CreateTemp(dir, "blob-*")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	dst := filepath.Join(dir, "blob")
	require.NoError(t, Default.Rename(f.Name(), dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, Default.Remove(dst))
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_FailAfterBytes(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("entries", Fault{FailAfterBytes: 4})

	f, err := ffs.CreateTemp(dir, "entries-*")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = f.Write([]byte("e"))
	assert.ErrorIs(t, err, ErrInjected)

	other, err := ffs.CreateTemp(dir, "index-*")
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Write(make([]byte, 1024))
	require.NoError(t, err)
}

func TestFaultyFS_SyncCloseRename(t *testing.T) {
	dir := t.TempDir()
	custom := errors.New("disk gone")
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("blob", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnClose: true, FailOnRename: true, Err: custom})

	f, err := ffs.CreateTemp(dir, "blob-*")
	require.NoError(t, err)
	assert.ErrorIs(t, f.Sync(), custom)
	assert.ErrorIs(t, f.Close(), custom)
	assert.ErrorIs(t, ffs.Rename(f.Name(), filepath.Join(dir, "blob")), custom)

	ffs.ClearRules()
	require.NoError(t, ffs.Rename(f.Name(), filepath.Join(dir, "blob")))
	require.NoError(t, ffs.Remove(filepath.Join(dir, "blob")))
}
