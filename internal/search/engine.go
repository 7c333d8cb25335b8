package search

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

// packagesRoot holds read-only package content that is never searched.
const packagesRoot = "Packages"

// Options control one query.
type Options struct {
	// Recursive also reports the referrers of every referrer found through
	// the queried identifier.
	Recursive bool

	// MatchPath additionally matches the path stem of each target as a
	// whole word. Stem matches are reported but never recorded as edges.
	MatchPath bool
}

// Match is one reported referrer.
type Match struct {
	// Path is the referring asset.
	Path string `json:"path"`

	// Target is the asset it references.
	Target string `json:"target"`

	// ByIdentifier is false for matches made only through a path stem.
	ByIdentifier bool `json:"by_identifier"`
}

// MatchFunc receives matches in discovery order, each path at most once per
// query. It must not call Start or Cancel synchronously.
type MatchFunc func(Match)

// Index is the subset of the identifier and edge stores the engine uses.
type Index interface {
	ResolveIdentifier(path string, validate bool) (string, error)
	GetReferences(path string) ([]string, error)
	InsertEdge(target, dependency string) error
}

// ScanControl is the subset of the background scanner the engine drives.
type ScanControl interface {
	Enqueue(paths ...string)
	SetPaused(paused bool)
}

// query is one logical search started by Start.
type query struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	opts    Options
	onMatch MatchFunc

	mu       sync.Mutex
	seen     map[string]bool
	canceled bool
}

type invKey struct {
	dir     string
	exclude string
}

// invocation is one queued external search scope.
type invocation struct {
	q       *query
	key     invKey
	targets []target
	done    chan struct{}
}

// Engine runs reference queries. At most one query is active; starting a
// new one cancels the previous one first.
type Engine struct {
	ix           Index
	scan         ScanControl
	searcher     Searcher
	settingsRoot string
	threshold    int
	ignoreExt    []string
	log          logrus.FieldLogger

	mu      sync.Mutex
	query   *query
	queue   []*invocation
	keyed   map[invKey]*invocation
	current *invocation
	running bool
	idle    chan struct{}
	wg      sync.WaitGroup
}

// New returns an Engine. cfg supplies the settings root, the ignored
// extensions and the unpause threshold.
func New(ix Index, scan ScanControl, searcher Searcher, cfg types.Config, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg = cfg.WithDefaults()
	idle := make(chan struct{})
	close(idle)
	return &Engine{
		ix:           ix,
		scan:         scan,
		searcher:     searcher,
		settingsRoot: cfg.SettingsRoot,
		threshold:    cfg.UnpauseThreshold,
		ignoreExt:    cfg.IgnoreExtensions,
		log:          log,
		keyed:        make(map[invKey]*invocation),
		idle:         idle,
	}
}

// Start begins a query for the referrers of the asset at p. Cached
// referrers are reported before Start returns; the rest arrive from a
// background goroutine. It returns ErrNotFound when p has no identifier
// and opts.MatchPath is unset. Paths under Packages are ignored.
func (e *Engine) Start(p string, opts Options, onMatch MatchFunc) (string, error) {
	if p == packagesRoot || strings.HasPrefix(p, packagesRoot+"/") {
		return "", nil
	}
	e.detach()

	guid, err := e.ix.ResolveIdentifier(p, true)
	if err != nil && !(errors.Is(err, types.ErrNotFound) && opts.MatchPath) {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &query{
		id:      id.String(),
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		onMatch: onMatch,
		seen:    make(map[string]bool),
	}

	e.mu.Lock()
	e.query = q
	e.scan.SetPaused(true)
	e.seedLocked(q, target{path: p, guid: guid, stem: pathStem(p)})
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{"query": q.id, "path": p, "recursive": opts.Recursive}).Debug("search started")

	e.emitCached(q, p)

	e.mu.Lock()
	if e.query == q {
		e.startLocked()
	}
	e.mu.Unlock()

	e.scan.Enqueue(p)
	return q.id, nil
}

// Cancel stops the active query. No further matches are delivered once
// Cancel returns, and the scanner is unpaused.
func (e *Engine) Cancel() {
	e.detach()
	e.scan.SetPaused(false)
}

// Wait blocks until the search queue is drained or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	idle := e.idle
	e.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsSearching reports whether invocations are queued or running.
func (e *Engine) IsSearching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Close cancels the active query and waits for the worker to exit.
func (e *Engine) Close() {
	e.Cancel()
	e.wg.Wait()
}

// detach cancels the active query, drops its queued invocations and waits
// for the running one to finish.
func (e *Engine) detach() {
	e.mu.Lock()
	if q := e.query; q != nil {
		// Set before cancel: a searcher woken by ctx may still emit.
		q.mu.Lock()
		q.canceled = true
		q.mu.Unlock()
		q.cancel()
		e.query = nil
	}
	e.queue = nil
	clear(e.keyed)
	var done chan struct{}
	if e.current != nil {
		done = e.current.done
	}
	e.mu.Unlock()

	if done != nil {
		<-done
	}
}

// seedLocked queues one invocation per ancestor directory of t, innermost
// first, each excluding the directory already searched, then the settings
// root. Scopes already queued for q gain t as another target.
func (e *Engine) seedLocked(q *query, t target) {
	dir := path.Dir(t.path)
	exclude := ""
	for {
		e.addLocked(q, invKey{dir: dir, exclude: exclude}, t)
		if dir == "." || !strings.Contains(dir, "/") {
			break
		}
		exclude = dir
		dir = path.Dir(dir)
	}
	if dir != e.settingsRoot {
		e.addLocked(q, invKey{dir: e.settingsRoot}, t)
	}
}

func (e *Engine) addLocked(q *query, key invKey, t target) {
	if inv, ok := e.keyed[key]; ok && inv.q == q {
		inv.targets = append(inv.targets, t)
		return
	}
	inv := &invocation{q: q, key: key, targets: []target{t}}
	e.keyed[key] = inv
	e.queue = append(e.queue, inv)
}

func (e *Engine) startLocked() {
	if e.running || len(e.queue) == 0 {
		return
	}
	e.running = true
	e.idle = make(chan struct{})
	e.wg.Add(1)
	go e.run()
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		inv := e.pop()
		if inv == nil {
			return
		}
		e.invoke(inv)
		close(inv.done)

		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}
}

// pop returns the next invocation, or nil after marking the engine idle
// and releasing the scanner.
func (e *Engine) pop() *invocation {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		e.running = false
		e.scan.SetPaused(false)
		close(e.idle)
		return nil
	}
	inv := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	if e.keyed[inv.key] == inv {
		delete(e.keyed, inv.key)
	}
	inv.done = make(chan struct{})
	e.current = inv
	return inv
}

func (e *Engine) invoke(inv *invocation) {
	q := inv.q
	if q.ctx.Err() != nil {
		return
	}
	req := Request{
		Dir:              inv.key.dir,
		Exclude:          inv.key.exclude,
		Pattern:          buildPattern(inv.targets, q.opts.MatchPath),
		IgnoreExtensions: e.ignoreExt,
	}
	err := e.searcher.Search(q.ctx, req, func(h Hit) {
		e.handleHit(q, inv.targets, h)
	})
	if err != nil && q.ctx.Err() == nil {
		e.log.WithError(err).WithFields(logrus.Fields{"query": q.id, "dir": req.Dir}).Warn("search failed")
	}
}

// handleHit attributes a hit to the target whose identifier it contains,
// or to the first target when only a path stem matched.
func (e *Engine) handleHit(q *query, targets []target, h Hit) {
	for _, m := range h.Matches {
		for _, t := range targets {
			if t.guid != "" && m == t.guid {
				e.report(q, Match{Path: h.Path, Target: t.path, ByIdentifier: true}, true)
				return
			}
		}
	}
	if q.opts.MatchPath && len(targets) > 0 {
		e.report(q, Match{Path: h.Path, Target: targets[0].path}, true)
	}
}

// report delivers m once per query and applies its side effects. fresh is
// false for referrers that came from the edge store.
func (e *Engine) report(q *query, m Match, fresh bool) {
	if m.Path == m.Target {
		return
	}
	q.mu.Lock()
	if q.canceled || q.seen[m.Path] {
		q.mu.Unlock()
		return
	}
	q.seen[m.Path] = true
	count := len(q.seen)
	if q.onMatch != nil {
		q.onMatch(m)
	}
	q.mu.Unlock()

	if m.ByIdentifier {
		if fresh {
			if err := e.ix.InsertEdge(m.Path, m.Target); err != nil {
				e.log.WithError(err).WithField("path", m.Path).Warn("recording edge")
			}
		}
		if q.opts.Recursive && !e.isSettings(m.Path) {
			e.expand(q, m.Path)
		}
	}
	if count > e.threshold {
		e.scan.SetPaused(false)
	}
	e.scan.Enqueue(m.Path)
}

// expand makes p another target of q.
func (e *Engine) expand(q *query, p string) {
	guid, err := e.ix.ResolveIdentifier(p, true)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			e.log.WithError(err).WithField("path", p).Warn("resolving referrer")
		}
		return
	}
	e.mu.Lock()
	if e.query != q {
		e.mu.Unlock()
		return
	}
	e.seedLocked(q, target{path: p, guid: guid, stem: pathStem(p)})
	e.startLocked()
	e.mu.Unlock()

	e.emitCached(q, p)
}

func (e *Engine) emitCached(q *query, p string) {
	refs, err := e.ix.GetReferences(p)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			e.log.WithError(err).WithField("path", p).Warn("reading cached references")
		}
		return
	}
	for _, r := range refs {
		e.report(q, Match{Path: r, Target: p, ByIdentifier: true}, false)
	}
}

func (e *Engine) isSettings(p string) bool {
	return p == e.settingsRoot || strings.HasPrefix(p, e.settingsRoot+"/")
}
