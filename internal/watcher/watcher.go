// Package watcher observes the configuration file for mutation and
// triggers a debounced, coalescing reload signal (spec.md §4.6).
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounce coalesces bursts of filesystem events into a single reload
// (spec.md §4.6 "~250 ms").
const debounce = 250 * time.Millisecond

// Watcher watches one configuration file and emits a reload signal on
// Reload() whenever its content may have changed.
type Watcher struct {
	path    string
	logger  *zap.Logger
	fsw     *fsnotify.Watcher
	reload  chan struct{}
	done    chan struct{}
}

// New starts watching path. The parent directory is watched (not the
// file itself) so editors that replace the file via rename-into-place
// are still observed.
func New(path string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		path:   path,
		logger: logger.Named("watcher"),
		fsw:    fsw,
		reload: make(chan struct{}, 1), // capacity 1: coalescing (spec.md §4.6)
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Reload returns the channel a reload is signaled on. A receive that
// drains a pending signal is the only way to clear it; repeated
// bursts before a receive collapse into one signal.
func (w *Watcher) Reload() <-chan struct{} {
	return w.reload
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			select {
			case w.reload <- struct{}{}:
			default:
				// a reload is already pending; the burst that just
				// settled collapses into it (coalescing).
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
