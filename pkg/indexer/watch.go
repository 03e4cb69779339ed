package indexer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a Move source tree for .move file changes and calls a
// handler once per debounce window, batching rapid edits (e.g. a save that
// touches several files, or an editor's atomic-rename-on-save) into a
// single re-index trigger rather than one per filesystem event. Grounded
// on jinterlante1206-AleutianLocal's graph.FileWatcher debounce shape,
// narrowed to the one event this CLI's --watch mode needs: "something
// changed, re-audit".
type Watcher struct {
	root     string
	debounce time.Duration
	handler  func()

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// DefaultDebounce matches AleutianLocal's FileWatcher default.
const DefaultDebounce = 300 * time.Millisecond

// NewWatcher creates a Watcher rooted at root. handler is invoked (from a
// dedicated goroutine, never concurrently) after the debounce window
// elapses following the last observed .move file change.
func NewWatcher(root string, handler func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		handler:  handler,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching root and all its subdirectories. It returns once
// the initial directory walk completes; event processing continues in a
// background goroutine until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != w.root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		return err
	}

	go w.loop(ctx)
	return nil
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time
	pending := false

	reset := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".move") {
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						_ = w.fsw.Add(ev.Name)
					}
				}
				continue
			}
			pending = true
			reset()
		case <-timerC:
			if pending {
				pending = false
				w.handler()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}
