// Package watch re-runs a callback whenever the working tree changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 200 * time.Millisecond

// Watcher follows every non-ignored directory below Root.
type Watcher struct {
	Root     string
	Debounce time.Duration

	ignore  func(rel string) bool
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// New starts watching root. ignore receives root-relative slash paths.
func New(root string, ignore func(rel string) bool, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		Root:     root,
		Debounce: DefaultDebounce,
		ignore:   ignore,
		watcher:  fw,
		logger:   logger,
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// addTree adds dir and its non-ignored subdirectories to the watcher.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && rel != "." && w.ignore(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Relevant reports whether event can change what status shows.
func (w *Watcher) Relevant(event fsnotify.Event) bool {
	rel, ok := w.rel(event.Name)
	if !ok || rel == "." || w.ignore(rel) {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// Run calls onChange once, then again after each burst of relevant events,
// until ctx is done or onChange fails.
func (w *Watcher) Run(ctx context.Context, onChange func() error) error {
	if err := onChange(); err != nil {
		return err
	}

	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.Relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories need their own watches.
				if err := w.addTree(event.Name); err != nil {
					w.logger.Debug("not watching new path", zap.String("path", event.Name), zap.Error(err))
				}
			}
			timer.Reset(w.Debounce)

		case <-timer.C:
			if err := onChange(); err != nil {
				return err
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
