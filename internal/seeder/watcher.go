package seeder

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SeedWatcher watches a directory for new files and auto-ingests them into
// a Seeder's ChunkMap, supplementing the manual ingest step named in §4.3.2
// with the directory-level automation the teacher builds for its own
// ingest path (internal/watcher.Watcher), adapted here from DCP-file
// triggers to "any regular file appeared or was rewritten".
type SeedWatcher struct {
	fsWatcher     *fsnotify.Watcher
	seeder        *Seeder
	scanPath      string
	chunkSize     int
	hashWorkers   int
	debounceTime  time.Duration
	pendingEvents map[string]time.Time
	eventMutex    sync.Mutex
	stopChan      chan struct{}
}

// NewSeedWatcher returns a watcher that ingests new/changed files under
// scanPath into seeder, using chunkSize/hashWorkers for each ingest.
func NewSeedWatcher(seeder *Seeder, scanPath string, chunkSize, hashWorkers int) (*SeedWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SeedWatcher{
		fsWatcher:     fsWatcher,
		seeder:        seeder,
		scanPath:      scanPath,
		chunkSize:     chunkSize,
		hashWorkers:   hashWorkers,
		debounceTime:  2 * time.Second,
		pendingEvents: make(map[string]time.Time),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start begins watching scanPath.
func (w *SeedWatcher) Start() error {
	if err := w.fsWatcher.Add(w.scanPath); err != nil {
		return err
	}
	log.Printf("[seeder] seed watcher started for %s", w.scanPath)
	go w.processEvents()
	go w.processPendingEvents()
	return nil
}

// Stop stops the watcher.
func (w *SeedWatcher) Stop() {
	close(w.stopChan)
	w.fsWatcher.Close()
}

func (w *SeedWatcher) processEvents() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("[seeder] watcher error: %v", err)
		case <-w.stopChan:
			return
		}
	}
}

func (w *SeedWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	w.eventMutex.Lock()
	w.pendingEvents[event.Name] = time.Now()
	w.eventMutex.Unlock()
}

func (w *SeedWatcher) processPendingEvents() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.checkPendingEvents()
		case <-w.stopChan:
			return
		}
	}
}

func (w *SeedWatcher) checkPendingEvents() {
	now := time.Now()
	w.eventMutex.Lock()
	var ready []string
	for path, eventTime := range w.pendingEvents {
		if now.Sub(eventTime) >= w.debounceTime {
			ready = append(ready, path)
			delete(w.pendingEvents, path)
		}
	}
	w.eventMutex.Unlock()

	for _, path := range ready {
		fileName := filepath.Base(path)
		log.Printf("[seeder] auto-ingesting %s", path)
		if err := w.seeder.IngestAndRegister(fileName, path, w.chunkSize, w.hashWorkers); err != nil {
			log.Printf("[seeder] auto-ingest %s: %v", path, err)
		}
	}
}
