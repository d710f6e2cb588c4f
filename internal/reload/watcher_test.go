package reload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherDetectsModification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rampd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("axes: []\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	require.False(t, w.Changed(), "unmodified file should not report a change")

	// Size change is enough even when mtime granularity is coarse.
	require.NoError(t, os.WriteFile(path, []byte("axes: []\nhot_reload: true\n"), 0o644))
	require.True(t, w.Changed())
	require.False(t, w.Changed(), "change should be consumed")
}

func TestWatcherDetectsMtimeOnlyChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rampd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("axes: []\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
	require.True(t, w.Changed())
}

func TestWatcherDetectsRemovalAndReturn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rampd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("axes: []\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.True(t, w.Changed(), "removal is a change")
	require.False(t, w.Changed())

	require.NoError(t, os.WriteFile(path, []byte("axes: []\n"), 0o644))
	require.True(t, w.Changed(), "reappearance is a change")
}

func TestWatcherOnMissingFile(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.False(t, w.Changed())
}
