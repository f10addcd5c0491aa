package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "paper.md")

	require.NoError(t, WriteAtomic(path, []byte("# Exam")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Exam", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteAtomicOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.md")
	require.NoError(t, WriteAtomic(path, []byte("first version")))
	require.NoError(t, WriteAtomic(path, []byte("second")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestCopyAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.7"), 0o644))

	n, err := CopyAtomic(src, filepath.Join(dir, "out", "dst.pdf"))
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)

	got, err := os.ReadFile(filepath.Join(dir, "out", "dst.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(got))
}

func TestCopyAtomicMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyAtomic(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, statErr := os.Stat(filepath.Join(dir, "dst"))
	assert.True(t, os.IsNotExist(statErr))
}
