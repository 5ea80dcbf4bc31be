// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the event bursts editors produce when
// saving a file.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher follows a config file and delivers validated reloads. A save
// that fails to parse or validate is logged and ignored; the last good
// configuration stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config)

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	done   chan struct{}
}

// NewWatcher starts watching the given config file. onChange runs on
// the watcher's goroutine for every successful reload.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	// Watch the directory, not the file: atomic saves replace the file
	// and a direct watch would die with the old inode.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	w := &Watcher{
		path:     path,
		debounce: DefaultWatchDebounce,
		onChange: onChange,
		watcher:  fsw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}

// relevant filters directory events down to ones touching our file.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}

// scheduleReload arms the debounce timer, resetting it if a burst is
// still in progress.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadFrom(w.path)
	if err != nil {
		log.Printf("config: reload of %s failed, keeping previous config: %v", w.path, err)
		return
	}
	log.Printf("config: reloaded %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
