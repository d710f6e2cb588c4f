// Package reload detects configuration file changes for hot reload.
package reload

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher tracks a configuration file and detects modifications by polling
// mtime and size.
type Watcher struct {
	mu    sync.Mutex
	path  string
	state fileState
	known bool
}

// NewWatcher builds a watcher for the given configuration file.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: abs}
	w.refresh()
	return w, nil
}

// Path returns the absolute path of the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// Changed reports whether the file was modified (or appeared/disappeared)
// since the last call, and re-arms the watcher.
func (w *Watcher) Changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, prevKnown := w.state, w.known
	w.refreshLocked()

	if w.known != prevKnown {
		return true
	}
	if !w.known {
		return false
	}
	return w.state != prev
}

func (w *Watcher) refresh() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshLocked()
}

func (w *Watcher) refreshLocked() {
	info, err := os.Stat(w.path)
	if err != nil || info.IsDir() {
		w.known = false
		w.state = fileState{}
		return
	}
	w.known = true
	w.state = fileState{modTime: info.ModTime(), size: info.Size()}
}
