// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package program

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces editor write bursts into one reload.
const watchDebounce = 500 * time.Millisecond

// ErrNoWatchDir is returned when watching a cache without an override
// directory.
var ErrNoWatchDir = errors.New("program: no override directory to watch")

// Watcher watches a cache's override directory and marks the cache stale
// when a WGSL source changes. Reloading is pulled, not pushed: the
// renderer calls ReloadIfChanged between frames, so programs are never
// swapped under an in-flight frame.
type Watcher struct {
	fw    *fsnotify.Watcher
	cache *Cache
	done  chan struct{}

	mu    sync.Mutex
	dirty bool
}

// Watch starts watching the cache's override directory.
func Watch(cache *Cache) (*Watcher, error) {
	if cache.dir == "" {
		return nil, ErrNoWatchDir
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(cache.dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{fw: fw, cache: cache, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".wgsl" {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			name := ev.Name
			debounce = time.AfterFunc(watchDebounce, func() {
				slogger().Debug("shader source changed", "file", name)
				w.mu.Lock()
				w.dirty = true
				w.mu.Unlock()
			})
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Not fatal; the next explicit reload still picks up changes.
			slogger().Warn("shader watch error", "err", err)
		case <-w.done:
			return
		}
	}
}

// ReloadIfChanged invalidates the cache if sources changed since the last
// call. Returns true when a reload happened. Must only be called between
// frames.
func (w *Watcher) ReloadIfChanged() bool {
	w.mu.Lock()
	dirty := w.dirty
	w.dirty = false
	w.mu.Unlock()
	if dirty {
		w.cache.Invalidate()
	}
	return dirty
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fw.Close()
}
