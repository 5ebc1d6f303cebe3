// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package indexer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher supplements webhook/poll-driven sync with an fsnotify watch over
// a project's local root_path, for projects with no remote provider. File
// writes are debounced before triggering a re-index so a burst of saves
// (editor autosave, `go generate`) collapses into one IndexFile call.
type Watcher struct {
	ix        *Indexer
	projectID string
	slug      string
	rootPath  string
	debounce  time.Duration
	fsWatcher *fsnotify.Watcher
	mu        sync.Mutex
	timers    map[string]*time.Timer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher creates (but does not start) a watcher for one project root.
func NewWatcher(ix *Indexer, projectID, slug, rootPath string) *Watcher {
	return &Watcher{
		ix:        ix,
		projectID: projectID,
		slug:      slug,
		rootPath:  rootPath,
		debounce:  500 * time.Millisecond,
		timers:    make(map[string]*time.Timer),
	}
}

// Start begins watching rootPath and all subdirectories, recursively.
// Returns once the initial watch set is established; events are processed
// in a background goroutine until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsWatcher = fw

	err = filepath.Walk(w.rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			rel, rerr := filepath.Rel(w.rootPath, path)
			if rerr == nil && rel != "." && isDotComponent(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
			if werr := fw.Add(path); werr != nil {
				log.Printf("indexer: watch: failed to watch %s: %v", path, werr)
			}
		}
		return nil
	})
	if err != nil {
		fw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
	w.wg.Wait()
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsWatcher.Add(event.Name); err != nil {
						log.Printf("indexer: watch: failed to watch new directory %s: %v", event.Name, err)
					}
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.trigger(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("indexer: watch: error for %s: %v", w.rootPath, err)
		}
	}
}

func (w *Watcher) trigger(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, exists := w.timers[path]; exists {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.processChangedFile(path)
	})
}

func (w *Watcher) processChangedFile(path string) {
	rel, err := filepath.Rel(w.rootPath, path)
	if err != nil {
		return
	}
	relSlash := filepath.ToSlash(rel)
	if isDotComponent(relSlash) {
		return
	}
	if _, err := w.ix.IndexFile(context.Background(), w.projectID, w.slug, w.rootPath, relSlash, w.ix.cacheFor(w.slug)); err != nil {
		log.Printf("indexer: watch: index %s failed: %v", relSlash, err)
	}
}
