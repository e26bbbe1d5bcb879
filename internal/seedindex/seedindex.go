// Package seedindex maintains a live infohash -> file path index for a
// peer's seed directory, so serving a GET_PIECE never needs to rescan the
// directory. The index is kept current by watching the directory for
// filesystem events rather than polling.
package seedindex

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/p2pswarm/p2pswarm/internal/meta"
)

// debounce absorbs the burst of events a single file write produces (e.g. a
// truncate followed by several writes) before the index re-derives meta, so
// a large file isn't hashed once per event.
const debounce = 2 * time.Second

// Entry is one file currently being seeded.
type Entry struct {
	Infohash string
	Path     string
	Meta     meta.Meta
}

// Index is a live directory -> infohash mapping for one seed directory.
type Index struct {
	dir       string
	pieceSize int64
	onUpdate  func(Entry)

	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	byPath  map[string]Entry
	byHash  map[string]string // infohash -> path
	pending map[string]time.Time
}

// New builds an Index over dir, doing an initial synchronous scan, and
// starts watching dir for changes. onUpdate, if non-nil, is called
// whenever a file is (re)indexed — callers use it to re-announce OWN to the
// tracker.
func New(dir string, pieceSize int64, onUpdate func(Entry)) (*Index, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	idx := &Index{
		dir:       dir,
		pieceSize: pieceSize,
		onUpdate:  onUpdate,
		watcher:   w,
		byPath:    make(map[string]Entry),
		byHash:    make(map[string]string),
		pending:   make(map[string]time.Time),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx.indexFile(filepath.Join(dir, e.Name()))
	}

	return idx, nil
}

// Close stops watching the directory.
func (idx *Index) Close() error {
	return idx.watcher.Close()
}

// Run blocks, processing filesystem events and debounced re-indexing until
// stop is closed. Call it in its own goroutine.
func (idx *Index) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			idx.markPending(ev.Name)
		case err, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[seedindex] watch error: %v", err)
		case <-ticker.C:
			idx.flushDue()
		}
	}
}

func (idx *Index) markPending(path string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.pending[path] = time.Now().Add(debounce)
}

func (idx *Index) flushDue() {
	now := time.Now()

	idx.mu.Lock()
	var due []string
	for path, at := range idx.pending {
		if now.After(at) {
			due = append(due, path)
			delete(idx.pending, path)
		}
	}
	idx.mu.Unlock()

	for _, path := range due {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			idx.removeFile(path)
			continue
		}
		idx.indexFile(path)
	}
}

func (idx *Index) indexFile(path string) {
	ih, m, err := meta.BuildMeta(path, idx.pieceSize)
	if err != nil {
		log.Printf("[seedindex] skipping %s: %v", path, err)
		return
	}

	entry := Entry{Infohash: ih, Path: path, Meta: m}

	idx.mu.Lock()
	if old, ok := idx.byPath[path]; ok && old.Infohash != ih {
		delete(idx.byHash, old.Infohash)
	}
	idx.byPath[path] = entry
	idx.byHash[ih] = path
	idx.mu.Unlock()

	log.Printf("[seedindex] indexed %s ih=%s", path, ih)
	if idx.onUpdate != nil {
		idx.onUpdate(entry)
	}
}

func (idx *Index) removeFile(path string) {
	idx.mu.Lock()
	entry, ok := idx.byPath[path]
	if ok {
		delete(idx.byPath, path)
		delete(idx.byHash, entry.Infohash)
	}
	idx.mu.Unlock()

	if ok {
		log.Printf("[seedindex] removed %s ih=%s", path, entry.Infohash)
	}
}

// Lookup returns the local path serving infohash ih, if currently indexed.
func (idx *Index) Lookup(ih string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	path, ok := idx.byHash[ih]
	return path, ok
}

// LookupEntry returns the full indexed entry for infohash ih.
func (idx *Index) LookupEntry(ih string) (Entry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	path, ok := idx.byHash[ih]
	if !ok {
		return Entry{}, false
	}
	entry, ok := idx.byPath[path]
	return entry, ok
}

// Entries returns a snapshot of every currently indexed file.
func (idx *Index) Entries() []Entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]Entry, 0, len(idx.byPath))
	for _, e := range idx.byPath {
		out = append(out, e)
	}
	return out
}
