package scanner

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/assetref/pkg/types"
)

// SweepStats summarises one Sweep.
type SweepStats struct {
	DirsVisited   int           `json:"dirs_visited"`
	DirsPruned    int           `json:"dirs_pruned"`
	FilesEnqueued int           `json:"files_enqueued"`
	Full          bool          `json:"full"`
	Duration      time.Duration `json:"duration"`
}

// IsSweeping reports whether a Sweep is in progress.
func (s *Scanner) IsSweeping() bool {
	return s.sweeping.Load()
}

// Sweep walks the sweep roots breadth first and enqueues every asset that
// needs a scan, then waits for the queue to drain. Directories not modified
// since the previous completed sweep are skipped with their subtrees. The
// start time is stored only when the sweep completes, so an interrupted
// sweep is repeated in full. Returns ErrSweepRunning when another sweep is
// in progress.
func (s *Scanner) Sweep(ctx context.Context) (SweepStats, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return SweepStats{}, types.ErrSweepRunning
	}
	defer s.sweeping.Store(false)

	start := s.now()
	store := s.ix.Store()
	last, err := store.LastSweep()
	if err != nil {
		return SweepStats{}, err
	}
	stats := SweepStats{Full: last.IsZero()}
	log := s.log.WithField("since", last)
	log.Info("sweep started")

	queue := append([]string(nil), s.sweepRoots...)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		dir := queue[0]
		queue = queue[1:]

		fi, err := os.Stat(s.ix.Abs(dir))
		if err != nil || !fi.IsDir() {
			continue
		}
		if !last.IsZero() && fi.ModTime().Unix() < last.Unix() {
			stats.DirsPruned++
			continue
		}
		entries, err := os.ReadDir(s.ix.Abs(dir))
		if err != nil {
			log.WithError(err).WithField("dir", dir).Warn("listing directory")
			continue
		}
		stats.DirsVisited++

		var files []string
		for _, e := range entries {
			name := e.Name()
			if hidden(name) {
				continue
			}
			rel := path.Join(dir, name)
			if s.globIgnored(rel) {
				continue
			}
			if e.IsDir() {
				queue = append(queue, rel)
				continue
			}
			if strings.HasSuffix(strings.ToLower(name), ".meta") {
				continue
			}
			if _, err := os.Stat(s.ix.Abs(rel) + ".meta"); err != nil {
				continue
			}
			_, ok, err := s.needsScan(rel)
			if err != nil {
				return stats, err
			}
			if ok {
				files = append(files, rel)
			}
		}
		if len(files) > 0 {
			s.Enqueue(files...)
			stats.FilesEnqueued += len(files)
		}
	}

	if err := s.WaitIdle(ctx); err != nil {
		return stats, err
	}
	if err := store.SetLastSweep(start); err != nil {
		return stats, err
	}
	stats.Duration = s.now().Sub(start)
	log.WithFields(logrus.Fields{
		"visited":  stats.DirsVisited,
		"pruned":   stats.DirsPruned,
		"enqueued": stats.FilesEnqueued,
		"duration": stats.Duration,
	}).Info("sweep finished")
	return stats, nil
}

func (s *Scanner) globIgnored(p string) bool {
	for _, g := range s.ignoreGlob {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
	}
	return false
}

// hidden reports names the host editor never imports.
func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}
