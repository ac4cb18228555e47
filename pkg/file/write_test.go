package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "out.srt")

	require.NoError(t, WriteText(path, "first"))
	require.NoError(t, WriteText(path, "second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWriteTextRelativePath(t *testing.T) {
	t.Chdir(t.TempDir())

	require.NoError(t, WriteText("out.txt", "hi"))
	data, err := os.ReadFile("out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestWriteTextParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := WriteText(filepath.Join(blocker, "out.srt"), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create directory")
}
