// Package scanner keeps the dependency edge store warm. A single background
// worker pulls project-relative paths from a FIFO queue, reads each text
// asset, extracts the identifiers it mentions and records them as edges. The
// worker can be paused cooperatively while a search needs the disk.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/assetref/internal/index"
	"github.com/mesh-intelligence/assetref/internal/minyaml"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

const headSize = 16

// Scanner is safe for concurrent use.
type Scanner struct {
	ix         *index.Index
	ignoreExt  map[string]struct{}
	ignoreGlob []string
	minSize    int64
	signature  string
	sweepRoots []string
	log        logrus.FieldLogger
	now        func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	paused  bool
	running bool
	closed  bool
	wg      sync.WaitGroup

	sweeping atomic.Bool

	// Owned by the single worker.
	buf []byte
	ids []string
}

// New returns a Scanner writing through ix. The worker starts on the first
// Enqueue.
func New(ix *index.Index, cfg types.Config, log logrus.FieldLogger) *Scanner {
	cfg = cfg.WithDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	ext := make(map[string]struct{}, len(cfg.IgnoreExtensions))
	for _, e := range cfg.IgnoreExtensions {
		ext[strings.ToLower(e)] = struct{}{}
	}
	s := &Scanner{
		ix:         ix,
		ignoreExt:  ext,
		ignoreGlob: cfg.IgnoreGlobs,
		minSize:    cfg.MinScanSize,
		signature:  cfg.DocumentSignature,
		sweepRoots: cfg.SweepRoots,
		log:        log,
		now:        time.Now,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Enqueue appends paths to the queue and starts the worker when none is
// alive and the scanner is not paused. Calling Enqueue with no paths only
// (re)starts the worker.
func (s *Scanner) Enqueue(paths ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.queue = append(s.queue, paths...)
	s.startLocked()
}

// SetPaused pauses or resumes the worker. A paused worker finishes the file
// in hand and then waits; resuming wakes it or starts a new one when work is
// queued.
func (s *Scanner) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused == paused {
		return
	}
	s.paused = paused
	if !paused {
		s.cond.Broadcast()
		s.startLocked()
	}
}

// Paused reports whether the scanner is paused.
func (s *Scanner) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// QueueLen returns the number of paths waiting to be scanned.
func (s *Scanner) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IsRunning reports whether a worker is alive.
func (s *Scanner) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// WaitIdle blocks until the queue is empty and no worker is alive, or ctx is
// done. A worker that stopped on an error while work remains is replaced.
// While the scanner is paused WaitIdle keeps waiting.
func (s *Scanner) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.queue) > 0 || s.running {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.closed && !s.running {
			return types.ErrScannerClosed
		}
		s.startLocked()
		s.cond.Wait()
	}
	if s.closed {
		return types.ErrScannerClosed
	}
	return nil
}

// Close drops pending work and waits for the worker to exit. Close is
// idempotent.
func (s *Scanner) Close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

// startLocked starts a worker if none is alive, the scanner is neither
// paused nor closed, and work is queued. The caller must hold s.mu.
func (s *Scanner) startLocked() {
	if s.running || s.paused || s.closed || len(s.queue) == 0 {
		return
	}
	s.running = true
	s.wg.Add(1)
	go s.run()
}

func (s *Scanner) run() {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("scan worker stopped")
		}
		s.mu.Lock()
		s.running = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	for {
		p, ok := s.next()
		if !ok {
			return
		}
		if err := s.scan(p); err != nil {
			s.log.WithError(err).WithField("path", p).Error("scan worker stopped")
			return
		}
	}
}

// next blocks while paused and pops the head of the queue.
func (s *Scanner) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.paused && !s.closed {
		s.cond.Wait()
	}
	if s.closed || len(s.queue) == 0 {
		return "", false
	}
	p := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return p, true
}

// candidate is a file that passed the cheap checks.
type candidate struct {
	rec types.AssetRecord
	fp  types.Fingerprint
}

// needsScan applies the extension, glob, size and freshness checks. The
// returned record carries the cached identifier when one exists.
func (s *Scanner) needsScan(p string) (candidate, bool, error) {
	if s.ignored(p) {
		return candidate{}, false, nil
	}
	fp, ok := s.ix.Stat(p)
	if !ok || fp.Size < s.minSize {
		return candidate{}, false, nil
	}

	rec, err := s.ix.Store().AssetByPath(p)
	switch {
	case err == nil:
		if rec.Fingerprint.Equal(fp) && rec.Scanned() {
			return candidate{}, false, nil
		}
	case errors.Is(err, types.ErrNotFound):
		rec = types.AssetRecord{Path: p}
	default:
		return candidate{}, false, err
	}
	return candidate{rec: rec, fp: fp}, true, nil
}

// ignored reports whether p is excluded by extension or glob.
func (s *Scanner) ignored(p string) bool {
	if _, ok := s.ignoreExt[strings.ToLower(path.Ext(p))]; ok {
		return true
	}
	return s.globIgnored(p)
}

// scan processes one file. Only store failures are returned; I/O problems
// are logged and the file skipped.
func (s *Scanner) scan(p string) error {
	c, ok, err := s.needsScan(p)
	if err != nil || !ok {
		return err
	}

	guid := c.rec.GUID
	if guid == "" {
		guid, err = s.ix.ResolveIdentifier(p, false)
		switch {
		case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrInvalidPath):
			return nil
		case errors.Is(err, types.ErrStoreClosed):
			return err
		case err != nil:
			s.log.WithError(err).WithField("path", p).Warn("reading identifier")
			return nil
		}
	}

	data, err := s.read(p, c.fp.Size)
	if err != nil {
		s.log.WithError(err).WithField("path", p).Warn("reading asset")
		return nil
	}
	if data == nil {
		return nil
	}

	s.ids = minyaml.AppendIdentifiers(s.ids[:0], data)

	now := s.now()
	rec := c.rec
	rec.GUID = guid
	rec.Path = p
	rec.Fingerprint = c.fp
	rec.ScannedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if err := s.ix.Store().RecordScan(rec, s.ids); err != nil {
		return fmt.Errorf("recording scan: %w", err)
	}
	s.log.WithFields(logrus.Fields{"path": p, "guid": guid, "references": len(s.ids)}).Debug("scanned")
	return nil
}

// read returns the file content when it starts with the document signature,
// or nil when it does not. The returned slice aliases the worker buffer.
func (s *Scanner) read(p string, size int64) ([]byte, error) {
	f, err := os.Open(s.ix.Abs(p))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := headSize
	if len(s.signature)+3 > n {
		n = len(s.signature) + 3
	}
	head := make([]byte, n)
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if !minyaml.HasSignature(head, s.signature) {
		return nil, nil
	}

	s.resize(int(size))
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	read, err := io.ReadFull(f, s.buf[:size])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return s.buf[:read], nil
}

// resize grows the buffer when it is shorter than n and halves it when it
// is more than twice n.
func (s *Scanner) resize(n int) {
	switch {
	case len(s.buf) < n:
		s.buf = make([]byte, n)
	case len(s.buf) > 2*n:
		s.buf = make([]byte, len(s.buf)/2)
	}
}
