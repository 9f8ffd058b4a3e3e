package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when New is given a non-positive debounce.
const DefaultDebounce = 300 * time.Millisecond

// Event is a wrapper around fsnotify.Event
type Event struct {
	Name string
	Op   fsnotify.Op
}

// Watcher reports debounced filesystem changes under Dirs (recursively)
// and to the individual Files.
type Watcher struct {
	watcher  *fsnotify.Watcher
	Dirs     []string
	Files    []string
	OnEvent  func(Event)
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a new watcher for the specified directories and files
func New(dirs, files []string, debounce time.Duration, onEvent func(Event)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		watcher:  w,
		Dirs:     cleanAll(dirs),
		Files:    cleanAll(files),
		OnEvent:  onEvent,
		debounce: debounce,
		logger:   slog.Default(),
	}, nil
}

// SetLogger replaces the logger used for watcher diagnostics.
func (w *Watcher) SetLogger(l *slog.Logger) {
	if l != nil {
		w.logger = l
	}
}

func cleanAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Clean(p))
	}
	return out
}

// Start registers the watches and blocks until ctx is done or the
// underlying watcher fails. The watcher is closed on return.
func (w *Watcher) Start(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("Failed to close file watcher", "error", err)
		}
	}()

	for _, dir := range w.Dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			w.logger.Info("Watch directory does not exist yet, waiting for it", "dir", dir)
		}
		if err := w.track(dir); err != nil {
			w.logger.Warn("Error walking watch directory", "dir", dir, "error", err)
		}
	}
	for _, file := range w.Files {
		if err := w.watcher.Add(filepath.Dir(file)); err != nil {
			w.logger.Warn("Failed to watch file", "file", file, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Removed mid-walk, e.g. during a clean
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		// Skip hidden directories like .git
		if path != dir && strings.HasPrefix(filepath.Base(path), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// track watches dir recursively once it exists. Until then the nearest
// existing ancestor is watched so its creation is noticed.
func (w *Watcher) track(dir string) error {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return w.addRecursive(dir)
		}

		parent, err := existingAncestor(dir)
		if err != nil {
			return err
		}
		if err := w.watcher.Add(parent); err != nil {
			return err
		}

		// The next level may have appeared before the watch was registered
		rel, err := filepath.Rel(parent, dir)
		if err != nil {
			return err
		}
		next := filepath.Join(parent, strings.SplitN(rel, string(filepath.Separator), 2)[0])
		if info, err := os.Stat(next); err != nil || !info.IsDir() {
			return nil
		}
	}
}

func existingAncestor(dir string) (string, error) {
	for p := filepath.Dir(dir); ; p = filepath.Dir(p) {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}
		if filepath.Dir(p) == p {
			return "", fmt.Errorf("no existing parent for %s", dir)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// Ignore chmod and other meta events
	if event.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Clean(event.Name)
	if !w.relevant(name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.watchCreated(name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// The kernel drops watches on removed directories
		w.retrack(name)
	}

	ev := Event{Name: event.Name, Op: event.Op}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.OnEvent != nil {
			w.OnEvent(ev)
		}
	})
}

// watchCreated starts watching a new directory inside a watched dir, or
// moves a pending dir's watch one level closer.
func (w *Watcher) watchCreated(name string) {
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	for _, dir := range w.Dirs {
		var err error
		switch {
		case within(name, dir):
			err = w.addRecursive(name)
		case within(dir, name):
			err = w.track(dir)
		default:
			continue
		}
		if err != nil {
			w.logger.Warn("Failed to watch new directory", "dir", name, "error", err)
		}
	}
}

func (w *Watcher) retrack(name string) {
	for _, dir := range w.Dirs {
		if !within(dir, name) {
			continue
		}
		if err := w.track(dir); err != nil {
			w.logger.Warn("Failed to re-watch directory", "dir", dir, "error", err)
		}
	}
}

// relevant filters out siblings of watched files in their parent directory
// and unrelated entries next to a pending dir.
func (w *Watcher) relevant(name string) bool {
	name = filepath.Clean(name)
	for _, dir := range w.Dirs {
		if within(name, dir) || within(dir, name) {
			return true
		}
	}
	for _, file := range w.Files {
		if name == file {
			return true
		}
	}
	return false
}

// within reports whether name is dir or lies below it.
func within(name, dir string) bool {
	return name == dir || strings.HasPrefix(name, dir+string(filepath.Separator))
}
