// Package watch feeds file system changes under the sweep roots to the
// background scanner.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

const metaExt = ".meta"

// Enqueuer receives project-relative paths that changed.
type Enqueuer interface {
	Enqueue(paths ...string)
}

// Watcher watches the sweep roots recursively. Events for one path are
// coalesced until the path has been quiet for the debounce interval.
type Watcher struct {
	enq         Enqueuer
	root        string
	roots       []string
	ignoreGlobs []string
	debounce    time.Duration
	log         logrus.FieldLogger

	ready chan struct{}

	mu      sync.Mutex
	pending map[string]time.Time
}

// New returns a Watcher for cfg.ProjectRoot. Nothing is watched until Run.
func New(enq Enqueuer, cfg types.Config, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg = cfg.WithDefaults()
	return &Watcher{
		enq:         enq,
		root:        cfg.ProjectRoot,
		roots:       cfg.SweepRoots,
		ignoreGlobs: cfg.IgnoreGlobs,
		debounce:    cfg.WatchDebounce,
		log:         log,
		ready:       make(chan struct{}),
		pending:     make(map[string]time.Time),
	}
}

// Ready is closed once the initial watches are in place.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, r := range w.roots {
		if err := w.addRecursive(fsw, filepath.Join(w.root, filepath.FromSlash(r)), false); err != nil {
			w.log.WithError(err).WithField("dir", r).Warn("watching sweep root")
		}
	}
	close(w.ready)

	interval := max(w.debounce/4, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(time.Time{})
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
		case now := <-ticker.C:
			w.flush(now)
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	rel, ok := w.rel(ev.Name)
	if !ok || w.ignored(rel) {
		return
	}
	fi, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.addRecursive(fsw, ev.Name, true); err != nil {
				w.log.WithError(err).WithField("dir", rel).Warn("watching new directory")
			}
		}
		return
	}
	w.touch(rel)
}

// touch marks rel changed. A metadata change marks its asset instead.
func (w *Watcher) touch(rel string) {
	rel = strings.TrimSuffix(rel, metaExt)
	w.mu.Lock()
	w.pending[rel] = time.Now()
	w.mu.Unlock()
}

// flush hands paths quiet since before now-debounce to the scanner. A zero
// now flushes everything.
func (w *Watcher) flush(now time.Time) {
	w.mu.Lock()
	var ready []string
	for p, t := range w.pending {
		if now.IsZero() || now.Sub(t) >= w.debounce {
			ready = append(ready, p)
			delete(w.pending, p)
		}
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	slices.Sort(ready)
	w.log.WithField("count", len(ready)).Debug("changes queued")
	w.enq.Enqueue(ready...)
}

// addRecursive watches dir and its subdirectories. When files is set the
// files found are marked changed, which covers directories moved in whole.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string, files bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		rel, ok := w.rel(p)
		if !ok {
			return nil
		}
		if p != dir && w.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if files {
				w.touch(rel)
			}
			return nil
		}
		if err := fsw.Add(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.log.WithError(err).WithField("dir", rel).Warn("adding watch")
		}
		return nil
	})
}

func (w *Watcher) rel(abs string) (string, bool) {
	r, err := filepath.Rel(w.root, abs)
	if err != nil || r == "." || strings.HasPrefix(r, "..") {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// ignored reports hidden names and paths matching an ignore glob.
func (w *Watcher) ignored(rel string) bool {
	name := rel[strings.LastIndexByte(rel, '/')+1:]
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return true
	}
	for _, g := range w.ignoreGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
