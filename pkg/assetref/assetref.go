// Package assetref is the caller API of the asset reference index. A
// Service owns the cache, the background scanner and the search engine for
// one project.
package assetref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/assetref/internal/index"
	"github.com/mesh-intelligence/assetref/internal/library"
	"github.com/mesh-intelligence/assetref/internal/remap"
	"github.com/mesh-intelligence/assetref/internal/scanner"
	"github.com/mesh-intelligence/assetref/internal/search"
	"github.com/mesh-intelligence/assetref/internal/sqlite"
	"github.com/mesh-intelligence/assetref/internal/watch"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

// Re-exported search types.
type (
	Options   = search.Options
	Match     = search.Match
	MatchFunc = search.MatchFunc
)

// Option configures Open.
type Option func(*settings)

type settings struct {
	searcher search.Searcher
}

// WithSearcher replaces the ripgrep runner.
func WithSearcher(s search.Searcher) Option {
	return func(st *settings) { st.searcher = s }
}

// Status is a snapshot of background activity.
type Status struct {
	QueueLen  int       `json:"queue_len"`
	Scanning  bool      `json:"scanning"`
	Paused    bool      `json:"paused"`
	Sweeping  bool      `json:"sweeping"`
	Searching bool      `json:"searching"`
	LastSweep time.Time `json:"last_sweep"`
}

// Service is safe for concurrent use.
type Service struct {
	cfg     types.Config
	log     logrus.FieldLogger
	store   *sqlite.Store
	index   *index.Index
	scanner *scanner.Scanner
	engine  *search.Engine

	closeOnce sync.Once
	closeErr  error
}

// Open validates cfg, opens the cache and starts nothing until work
// arrives.
func Open(cfg types.Config, log logrus.FieldLogger, opts ...Option) (*Service, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var st settings
	for _, o := range opts {
		o(&st)
	}

	store, err := sqlite.Open(cfg.CacheFile())
	if err != nil {
		return nil, err
	}

	meta := library.NewReader(cfg.ProjectRoot, cfg.LibraryDir, log)
	ix := index.New(store, meta, cfg, log)
	sc := scanner.New(ix, cfg, log)
	if st.searcher == nil {
		st.searcher = search.NewRipgrep(cfg.RipgrepPath, cfg.ProjectRoot, log)
	}
	eng := search.New(ix, sc, st.searcher, cfg, log)

	log.WithFields(logrus.Fields{"project": cfg.ProjectRoot, "cache": store.Path()}).Debug("index opened")
	return &Service{
		cfg:     cfg,
		log:     log,
		store:   store,
		index:   ix,
		scanner: sc,
		engine:  eng,
	}, nil
}

// Config returns the effective configuration.
func (s *Service) Config() types.Config {
	return s.cfg
}

// ResolveIdentifier returns the identifier of the asset at p.
func (s *Service) ResolveIdentifier(p string) (string, error) {
	return s.index.ResolveIdentifier(p, true)
}

// ResolvePath returns the current path of the asset with guid.
func (s *Service) ResolvePath(guid string) (string, error) {
	return s.index.ResolvePath(guid, true)
}

// GetReferences returns the cached referrers of the asset at p.
func (s *Service) GetReferences(p string) ([]string, error) {
	return s.index.GetReferences(p)
}

// Dependencies returns the identifiers the asset at p was last seen
// referencing.
func (s *Service) Dependencies(p string) ([]string, error) {
	return s.index.Dependencies(p)
}

// Start begins a streaming search; see search.Engine.Start.
func (s *Service) Start(p string, opts Options, onMatch MatchFunc) (string, error) {
	return s.engine.Start(p, opts, onMatch)
}

// Search runs a query to completion and returns its matches in discovery
// order. When ctx ends first the query is canceled and the matches found so
// far are returned with ctx's error.
func (s *Service) Search(ctx context.Context, p string, opts Options) ([]Match, error) {
	var (
		mu      sync.Mutex
		matches []Match
	)
	_, err := s.engine.Start(p, opts, func(m Match) {
		mu.Lock()
		matches = append(matches, m)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	if err := s.engine.Wait(ctx); err != nil {
		s.engine.Cancel()
		mu.Lock()
		defer mu.Unlock()
		return matches, err
	}
	mu.Lock()
	defer mu.Unlock()
	return matches, nil
}

// Wait blocks until the active search has drained or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.engine.Wait(ctx)
}

// Cancel stops the active search.
func (s *Service) Cancel() {
	s.engine.Cancel()
}

// Sweep walks the sweep roots and scans every new or changed asset.
func (s *Service) Sweep(ctx context.Context) (scanner.SweepStats, error) {
	return s.scanner.Sweep(ctx)
}

// Scan queues paths and waits for the scanner to drain.
func (s *Service) Scan(ctx context.Context, paths ...string) error {
	s.scanner.Enqueue(paths...)
	return s.scanner.WaitIdle(ctx)
}

// Watch feeds file changes under the sweep roots to the scanner until ctx
// is done. ready, when non-nil, is closed once watching has begun.
func (s *Service) Watch(ctx context.Context, ready chan<- struct{}) error {
	w := watch.New(s.scanner, s.cfg, s.log)
	if ready != nil {
		go func() {
			select {
			case <-w.Ready():
				close(ready)
			case <-ctx.Done():
			}
		}()
	}
	return w.Run(ctx)
}

// Truncate empties the cache. The next sweep visits every directory.
func (s *Service) Truncate() error {
	return s.index.Truncate()
}

// Export writes the cache as JSON lines.
func (s *Service) Export(w io.Writer) error {
	return s.store.WriteJSONL(w)
}

// ExportFile atomically writes the cache as JSON lines to path.
func (s *Service) ExportFile(path string) error {
	return s.store.ExportJSONL(path)
}

// Status reports scanner and search activity.
func (s *Service) Status() (Status, error) {
	last, err := s.store.LastSweep()
	if err != nil {
		return Status{}, err
	}
	return Status{
		QueueLen:  s.scanner.QueueLen(),
		Scanning:  s.scanner.IsRunning(),
		Paused:    s.scanner.Paused(),
		Sweeping:  s.scanner.IsSweeping(),
		Searching: s.engine.IsSearching(),
		LastSweep: last,
	}, nil
}

// ReplaceIdentifier rewrites references to before so they point at after.
// When files is empty the cached referrers of before's asset are used. For
// model assets the sub-object ids are remapped through the two assets'
// metadata. Rewritten files are queued for rescanning and returned.
func (s *Service) ReplaceIdentifier(before, after string, files []string) ([]string, error) {
	if !types.IsGUID(before) || !types.IsGUID(after) {
		return nil, types.ErrInvalidGUID
	}
	if len(files) == 0 {
		refs, err := s.referrersOf(before)
		if err != nil {
			return nil, err
		}
		files = refs
	}
	fileIDs, err := s.fileIDsFor(before, after)
	if err != nil {
		return nil, err
	}
	return s.rewrite(files, func(abs string) (bool, error) {
		return remap.ReplaceIdentifiers(abs, before, after, fileIDs)
	})
}

// RemoveIdentifier nulls every inline reference to guid. When files is
// empty the cached referrers of guid's asset are used.
func (s *Service) RemoveIdentifier(guid string, files []string) ([]string, error) {
	if !types.IsGUID(guid) {
		return nil, types.ErrInvalidGUID
	}
	if len(files) == 0 {
		refs, err := s.referrersOf(guid)
		if err != nil {
			return nil, err
		}
		files = refs
	}
	return s.rewrite(files, func(abs string) (bool, error) {
		return remap.RemoveIdentifier(abs, guid)
	})
}

// FileIDMap pairs the sub-object ids of two model assets by name.
func (s *Service) FileIDMap(src, dest string) (map[int64]int64, error) {
	return remap.FileIDMap(s.index.Abs(src)+".meta", s.index.Abs(dest)+".meta")
}

func (s *Service) referrersOf(guid string) ([]string, error) {
	p, err := s.index.ResolvePath(guid, true)
	if err != nil {
		return nil, err
	}
	return s.index.GetReferences(p)
}

// fileIDsFor returns the id table between two model assets, or nil when
// either is unknown or not a model.
func (s *Service) fileIDsFor(before, after string) (map[int64]int64, error) {
	src, err := s.index.ResolvePath(before, true)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dest, err := s.index.ResolvePath(after, true)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !isModel(src) || !isModel(dest) {
		return nil, nil
	}
	return s.FileIDMap(src, dest)
}

func isModel(p string) bool {
	switch path.Ext(p) {
	case ".fbx", ".FBX":
		return true
	}
	return false
}

func (s *Service) rewrite(files []string, fn func(abs string) (bool, error)) ([]string, error) {
	var changed []string
	var errs []error
	for _, f := range files {
		ok, err := fn(s.index.Abs(f))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		if ok {
			changed = append(changed, f)
		}
	}
	if len(changed) > 0 {
		s.scanner.Enqueue(changed...)
		s.log.WithField("count", len(changed)).Info("rewrote references")
	}
	return changed, errors.Join(errs...)
}

// Close stops the search engine and the scanner, then closes the cache.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.engine.Close()
		s.scanner.Close()
		s.closeErr = s.store.Close()
	})
	return s.closeErr
}
