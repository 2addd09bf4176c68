package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/siherrmann/ragbot/helper"
)

// Ingester is the part of the knowledge base the watcher feeds.
type Ingester interface {
	// ReplaceFile swaps the chunks of displayName for the content at path,
	// keeping the previous chunks when loading fails.
	ReplaceFile(ctx context.Context, path string, displayName string) (int, error)
	DeleteSource(ctx context.Context, source string) (int64, error)
}

// Watcher keeps the knowledge base in sync with folders. Files are cited by
// their path relative to the watched folder. Changes to one file within the
// debounce interval are ingested once.
type Watcher struct {
	ingester Ingester
	supports func(name string) bool
	debounce time.Duration
	log      *slog.Logger

	fs    *fsnotify.Watcher
	ready chan string
	done  chan struct{}

	mu     sync.Mutex
	roots  []string
	timers map[string]*time.Timer
}

// New creates a watcher. supports filters the files worth ingesting, nil
// accepts every file.
func New(ingester Ingester, supports func(name string) bool, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if ingester == nil {
		return nil, helper.NewKindError(helper.ErrConfig, "new watcher", errors.New("ingester is nil"))
	}
	if supports == nil {
		supports = func(string) bool { return true }
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, helper.NewError("create fsnotify watcher", err)
	}

	return &Watcher{
		ingester: ingester,
		supports: supports,
		debounce: debounce,
		log:      logger,
		fs:       fsWatcher,
		ready:    make(chan string, 64),
		done:     make(chan struct{}),
		timers:   map[string]*time.Timer{},
	}, nil
}

// Add watches dir and all its visible subdirectories.
func (w *Watcher) Add(dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return helper.NewError("watch directory", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return helper.NewError("watch directory", err)
	}
	if !info.IsDir() {
		return helper.NewError("watch directory", errors.New(root+" is not a directory"))
	}

	w.mu.Lock()
	w.roots = append(w.roots, root)
	w.mu.Unlock()

	return w.addTree(root)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return helper.NewError("watch directory", err)
		}
		return nil
	})
}

// Sync ingests every supported file already present in the watched
// folders, replacing earlier chunks of the same file.
func (w *Watcher) Sync(ctx context.Context) error {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && isHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !w.supports(path) {
				return nil
			}
			w.handle(ctx, path)
			return ctx.Err()
		})
		if err != nil {
			return helper.NewError("sync directory", err)
		}
	}
	return nil
}

// Run processes file system events until ctx is cancelled. It must be
// called at most once.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	defer w.stopTimers()
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.onEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Watcher error", slog.Any("error", err))
		case path := <-w.ready:
			w.handle(ctx, path)
		}
	}
}

func (w *Watcher) onEvent(event fsnotify.Event) {
	path := event.Name
	if isHidden(path) || event.Op == fsnotify.Chmod {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addTree(path); err != nil {
				w.log.Warn("Failed to watch new directory", slog.String("path", path), slog.Any("error", err))
			}
			return
		}
	}
	if !w.supports(path) {
		return
	}

	w.schedule(path)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A timer that already fired is replaced, resetting it would run the
	// callback a second time.
	if timer, ok := w.timers[path]; ok && timer.Stop() {
		timer.Reset(w.debounce)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.timers[path] == timer {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
	w.timers[path] = timer
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

// handle replaces the chunks of path with its current content, or removes
// them when the file is gone. A failed re-ingestion keeps the old chunks.
func (w *Watcher) handle(ctx context.Context, path string) {
	source := w.sourceName(path)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		deleted, err := w.ingester.DeleteSource(ctx, source)
		if err != nil {
			w.log.Warn("Failed to delete previous chunks", slog.String("source", source), slog.Any("error", err))
			return
		}
		if deleted > 0 {
			w.log.Info("Removed deleted file", slog.String("source", source), slog.Int64("chunks", deleted))
		}
		return
	}

	n, err := w.ingester.ReplaceFile(ctx, path, source)
	if err != nil {
		w.log.Warn("Failed to ingest file", slog.String("source", source), slog.Any("error", err))
		return
	}
	w.log.Info("Ingested watched file", slog.String("source", source), slog.Int("chunks", n))
}

func (w *Watcher) sourceName(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(path)
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
