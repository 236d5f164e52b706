package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.md")

	err := AtomicWriteFile(path, []byte("hello"), 0644)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestAtomicWriteFile_Overwrite(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.md")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0644))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestAtomicWriteFile_CreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "a", "b", "out.md")

	require.NoError(t, AtomicWriteFile(path, []byte("nested"), 0644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
}

func TestAtomicWriteFile_NoTempLeftovers(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.md")

	require.NoError(t, AtomicWriteFile(path, []byte("data"), 0644))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the target file should remain")
}
