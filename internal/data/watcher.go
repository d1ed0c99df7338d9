package data

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change to
// the database file before reloading it.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store when its database file changes on disk.
//
// The parent directory is watched rather than the file itself so that
// atomic replacement by rename is noticed.
type Watcher struct {
	store    *Store
	file     string
	debounce time.Duration
	fs       *fsnotify.Watcher
}

// NewWatcher starts watching the file behind store. Call Run to process
// events and Close when done.
func NewWatcher(store *Store, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	file, err := filepath.Abs(store.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(file)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(file), err)
	}

	return &Watcher{store: store, file: file, debounce: debounce, fs: fs}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var reload <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.file {
				continue
			}
			slog.Debug("database file event", "path", ev.Name, "op", ev.Op.String())

			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
				reload = time.After(w.debounce)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				slog.Warn("database file removed, keeping loaded copy", "path", w.file)
			}

		case <-reload:
			reload = nil
			if err := w.store.Reload(); err != nil {
				slog.Error("database reload failed", "path", w.file, "error", err)
				continue
			}
			meta := w.store.Metadata()
			slog.Info("database reloaded",
				"path", w.file,
				"database_type", meta.DatabaseType,
				"build_time", meta.BuildTime,
			)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Error("file watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
