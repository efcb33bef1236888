package vfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for quiet before emitting
// a batch.
const DefaultDebounce = 100 * time.Millisecond

// Change is one changed source file. Removed is set for deletions and
// renames away.
type Change struct {
	Path    string
	Removed bool
}

// Batch is a set of changes observed together. Versions increase by one
// per batch, starting at 1.
type Batch struct {
	Version uint64
	Changes []Change
}

// Watcher reports changes to a Loader's source files. It watches the
// operating system filesystem regardless of the Loader's afero.Fs.
type Watcher struct {
	loader   *Loader
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	version uint64

	flush chan struct{}
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a batch is emitted.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over l's root.
func NewWatcher(l *Loader, opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		loader:   l,
		debounce: DefaultDebounce,
		watcher:  fw,
		pending:  make(map[string]bool),
		flush:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching. The returned channel is closed when ctx is done;
// the underlying fsnotify watcher is closed with it.
func (w *Watcher) Start(ctx context.Context) (<-chan Batch, error) {
	if _, err := w.addRecursive(w.loader.root); err != nil {
		w.watcher.Close()
		return nil, err
	}
	out := make(chan Batch)
	go w.run(ctx, out)
	return out, nil
}

// addRecursive watches root and the directories below it, and returns the
// source files it passed on the way.
func (w *Watcher) addRecursive(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if rel, ok := w.loader.Rel(p); ok {
				files = append(files, rel)
			}
			return nil
		}
		if rel, ok := w.loader.rel(p); ok && rel != "." && w.loader.Excluded(rel) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
	return files, err
}

func (w *Watcher) run(ctx context.Context, out chan<- Batch) {
	defer close(out)
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.loader.logger.Warn("watch error", "error", err)
		case <-w.flush:
			b, ok := w.take()
			if !ok {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files written before the directory was watched produce no
			// events of their own.
			files, err := w.addRecursive(ev.Name)
			if err != nil {
				w.loader.logger.Warn("watch directory", "path", ev.Name, "error", err)
			}
			w.queue(files, false)
			return
		}
	}
	rel, ok := w.loader.Rel(ev.Name)
	if !ok {
		return
	}
	w.queue([]string{rel}, ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename))
}

// queue adds changes to the pending batch and restarts the debounce timer.
func (w *Watcher) queue(rels []string, removed bool) {
	if len(rels) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, rel := range rels {
		w.pending[rel] = removed
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flush <- struct{}{}:
		default:
		}
	})
}

// take drains the pending changes into the next batch.
func (w *Watcher) take() (Batch, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) == 0 {
		return Batch{}, false
	}
	w.version++
	b := Batch{Version: w.version, Changes: make([]Change, 0, len(w.pending))}
	for p, removed := range w.pending {
		b.Changes = append(b.Changes, Change{Path: p, Removed: removed})
	}
	sort.Slice(b.Changes, func(i, j int) bool { return b.Changes[i].Path < b.Changes[j].Path })
	w.pending = make(map[string]bool)
	return b, true
}

func (w *Watcher) stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
}
