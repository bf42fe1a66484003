package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ignoreRepo(rel string) bool {
	return rel == ".tally" || strings.HasPrefix(rel, ".tally/")
}

func setupWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".tally", "db"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	w, err := New(root, ignoreRepo, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, root
}

func TestWatcher_Relevant(t *testing.T) {
	w, root := setupWatcher(t)

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: filepath.Join(root, "a.txt"), Op: fsnotify.Write}, true},
		{"create nested", fsnotify.Event{Name: filepath.Join(root, "src", "b.go"), Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: filepath.Join(root, "a.txt"), Op: fsnotify.Remove}, true},
		{"chmod only", fsnotify.Event{Name: filepath.Join(root, "a.txt"), Op: fsnotify.Chmod}, false},
		{"repository files", fsnotify.Event{Name: filepath.Join(root, ".tally", "db", "000001.vlog"), Op: fsnotify.Write}, false},
		{"root itself", fsnotify.Event{Name: root, Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Relevant(tt.event))
		})
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w, _ := setupWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := w.Run(ctx, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWatcher_RunReactsToChanges(t *testing.T) {
	w, root := setupWatcher(t)
	w.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() error {
			calls.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.txt"), []byte("a"), 0o644))
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
