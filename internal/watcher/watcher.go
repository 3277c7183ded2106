// Package watcher reports board files removed from the boards directory
// behind the server's back.
package watcher

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/boardwalk/internal/log"
)

// Watcher monitors a directory and sends batches of removed file paths.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	dir        string
	extensions map[string]bool
	debounce   time.Duration
	onRemove   chan []string
	done       chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Dir         string
	Extensions  []string
	DebounceDur time.Duration
}

// DefaultConfig watches dir for removed .png and .svg boards.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		Extensions:  []string{".png", ".svg"},
		DebounceDur: 200 * time.Millisecond,
	}
}

// New creates a new directory watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Watcher{
		fsWatcher:  fsw,
		dir:        cfg.Dir,
		extensions: exts,
		debounce:   cfg.DebounceDur,
		onRemove:   make(chan []string, 1),
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching the directory. The returned channel receives the
// absolute paths removed or renamed away since the previous batch, sorted.
func (w *Watcher) Start() (<-chan []string, error) {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", w.dir, err)
	}
	log.Debug(log.CatWatcher, "watching boards directory", "dir", w.dir)

	go w.loop()

	return w.onRemove, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop collects removals and flushes them once the directory goes quiet.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending = make(map[string]struct{})
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}

			path, err := filepath.Abs(event.Name)
			if err != nil {
				path = event.Name
			}
			pending[path] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)

			select {
			case w.onRemove <- batch:
				pending = make(map[string]struct{})
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatWatcher, "watch error", "dir", w.dir, "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent keeps removals and renames of board image files.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if len(w.extensions) == 0 {
		return true
	}
	return w.extensions[strings.ToLower(filepath.Ext(event.Name))]
}
