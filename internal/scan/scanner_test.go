package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
}

func TestScanRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "sg095", "comm.log"))
	touch(t, filepath.Join(root, "sg095", "history.log"))
	touch(t, filepath.Join(root, "base", "comm.log"))
	touch(t, filepath.Join(root, "sg171", "plots", "comm.log"))
	touch(t, filepath.Join(root, "sg171", "notes.txt"))

	files, err := ScanRoot(root)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byDir := map[string]FileInfo{}
	for _, f := range files {
		byDir[filepath.Base(f.MissionDir)] = f
	}

	sg := byDir["sg095"]
	assert.Equal(t, 95, sg.GliderID)
	assert.Equal(t, filepath.Join(root, "sg095", "history.log"), sg.HistoryLog)
	assert.Equal(t, int64(2), sg.Size)

	other := byDir["base"]
	assert.Equal(t, 0, other.GliderID)
	assert.Empty(t, other.HistoryLog)
}

func TestScanRootMissing(t *testing.T) {
	files, err := ScanRoot(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, files)
}
