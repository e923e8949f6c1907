package transcript

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// debounceWindow suppresses re-parses of a file seen within the
	// window. Transcripts get many small appends in quick bursts.
	debounceWindow = 3 * time.Second

	// maxDebounceEntries caps the per-file debounce map.
	maxDebounceEntries = 1024
)

// Watcher re-reconciles transcript files as they change on disk.
// fsnotify does not watch recursively, so directories are added as they
// are discovered: the initial walk registers the existing tree, and
// directory-create events register new session directories as Claude
// Code makes them.
type Watcher struct {
	rec *Reconciler
	dir string
	log *slog.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewWatcher returns a watcher over dir feeding rec.
func NewWatcher(rec *Reconciler, dir string, log *slog.Logger) *Watcher {
	return &Watcher{
		rec:      rec,
		dir:      dir,
		log:      log,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Run watches until ctx is cancelled. A missing transcripts directory
// is not an error; the watcher just never starts.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil || !info.IsDir() {
		w.log.Info("transcripts directory not found, skipping watcher", "dir", w.dir)
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := addRecursive(fw, w.dir); err != nil {
		return err
	}
	w.log.Info("watching for transcript changes", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fw, ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addRecursive(fw, ev.Name); err != nil {
				w.log.Warn("could not watch new directory", "dir", ev.Name, "error", err)
			}
			return
		}
	}

	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	if filepath.Ext(ev.Name) != ".jsonl" {
		return
	}
	if !w.shouldProcess(ev.Name) {
		return
	}

	if err := w.rec.ReconcileFile(ctx, ev.Name); err != nil {
		w.log.Warn("could not reconcile transcript", "path", ev.Name, "error", err)
	}
}

// shouldProcess applies the per-file debounce: at most one parse per
// file per window. On the map growing past its cap, entries older than
// the window are pruned; debounce history that old is dead weight.
func (w *Watcher) shouldProcess(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if last, ok := w.lastSeen[path]; ok && now.Sub(last) < debounceWindow {
		return false
	}
	w.lastSeen[path] = now

	if len(w.lastSeen) > maxDebounceEntries {
		for p, t := range w.lastSeen {
			if now.Sub(t) >= debounceWindow {
				delete(w.lastSeen, p)
			}
		}
	}
	return true
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(path)
	})
}
