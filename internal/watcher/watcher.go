// Package watcher observes a repository tree and emits debounced change
// batches that drive incremental rebuilds in watch mode.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nsearch/ns/internal/config"
)

// Watcher wraps fsnotify with recursive directory registration and a
// debouncer.
type Watcher struct {
	root      string
	fs        *fsnotify.Watcher
	debouncer *Debouncer
}

// New creates a watcher over root with the given debounce window.
func New(root string, window time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:      root,
		fs:        fsw,
		debouncer: NewDebouncer(window),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Batches returns the debounced change batches. Paths are repo-relative.
func (w *Watcher) Batches() <-chan []string {
	return w.debouncer.Batches()
}

// Run pumps fsnotify events into the debouncer until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// handle filters one event and feeds the debouncer.
func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	// Changes inside the index directory are our own writes.
	if rel == config.DataDirName || strings.HasPrefix(rel, config.DataDirName+"/") {
		return
	}
	if base := filepath.Base(rel); base == ".git" || strings.HasPrefix(rel, ".git/") {
		return
	}

	// Newly created directories need registration for further events.
	if event.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
		w.debouncer.Add(rel)
	}
}

// addRecursive registers dir and all subdirectories, skipping the index
// and VCS directories.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base == config.DataDirName || base == ".git" {
			return filepath.SkipDir
		}
		if addErr := w.fs.Add(path); addErr != nil {
			slog.Debug("watch_add_failed",
				slog.String("path", path),
				slog.String("error", addErr.Error()))
		}
		return nil
	})
}

// Close stops the watcher and the debouncer.
func (w *Watcher) Close() error {
	w.debouncer.Stop()
	return w.fs.Close()
}
