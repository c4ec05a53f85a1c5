// Package watcher feeds new documents dropped into a folder to a handler.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zombor/expense-ledger/internal/expense"
)

// DefaultDebounce is how long a path must stay quiet before it is handled.
// Document writes are rarely atomic.
const DefaultDebounce = 2 * time.Second

// Handler processes one settled document
type Handler func(ctx context.Context, path string)

// Config controls what is watched
type Config struct {
	Dir       string
	Recursive bool
	Debounce  time.Duration
}

// Watcher debounces filesystem events per path and hands settled documents
// to a single consumer, one at a time.
type Watcher struct {
	cfg    Config
	fs     *fsnotify.Watcher
	ready  chan string
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New starts watching cfg.Dir
func New(cfg Config) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:    cfg,
		fs:     fsw,
		ready:  make(chan string, 64),
		timers: make(map[string]*time.Timer),
	}
	if err := w.addDir(cfg.Dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addDir(root string) error {
	if !w.cfg.Recursive {
		if err := w.fs.Add(root); err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run dispatches settled documents to handle until ctx is cancelled.
// Pending timers are dropped on shutdown.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-w.ready:
				if _, err := os.Stat(path); err != nil {
					// moved away or deleted while settling
					continue
				}
				handle(ctx, path)
			}
		}
	}()

	defer func() {
		w.stopTimers()
		w.fs.Close()
		wg.Wait()
	}()

	slog.Info("Watching for documents", "dir", w.cfg.Dir, "recursive", w.cfg.Recursive, "debounce", w.cfg.Debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("Watcher event queue overflowed, some documents may need a manual run", "error", err)
				continue
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) && w.cfg.Recursive {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDir(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !expense.IsSupported(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// schedule (re)starts the debounce timer of a path
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		current := w.timers[path] == t
		if current {
			delete(w.timers, path)
		}
		w.mu.Unlock()
		if !current {
			return
		}

		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
	w.timers[path] = t
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
