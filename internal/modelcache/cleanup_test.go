package modelcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_RemovesIncompleteUnconditionally(t *testing.T) {
	root := t.TempDir()
	blobs := filepath.Join(root, "blobs")
	require.NoError(t, os.MkdirAll(blobs, 0o755))
	incomplete := filepath.Join(blobs, "weights.bin.incomplete")
	require.NoError(t, os.WriteFile(incomplete, []byte("partial"), 0o644))

	c := New(root)
	res := c.Sweep()

	assert.Equal(t, 1, res.IncompleteRemoved)
	_, err := os.Stat(incomplete)
	assert.True(t, os.IsNotExist(err))
}

func TestSweep_RemovesStaleLock(t *testing.T) {
	root := t.TempDir()
	blobs := filepath.Join(root, "blobs")
	require.NoError(t, os.MkdirAll(blobs, 0o755))
	lockPath := filepath.Join(blobs, "abc.lock")
	require.NoError(t, os.WriteFile(lockPath, nil, 0o644))
	old := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	c := New(root)
	res := c.Sweep()

	assert.Equal(t, 1, res.LocksRemoved)
}

func TestSweep_EmptyDirsAreNotErrors(t *testing.T) {
	root := t.TempDir()
	c := New(root)
	res := c.Sweep()
	assert.Empty(t, res.Errors)
}
