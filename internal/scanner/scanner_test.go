package scanner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/assetref/internal/index"
	"github.com/mesh-intelligence/assetref/internal/library"
	"github.com/mesh-intelligence/assetref/internal/projecttest"
	"github.com/mesh-intelligence/assetref/internal/sqlite"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

const (
	guidA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	guidB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	guidC = "cccccccccccccccccccccccccccccccc"
)

type fixture struct {
	p     *projecttest.Project
	store *sqlite.Store
	ix    *index.Index
	s     *Scanner
	hook  *test.Hook
}

func setupScanner(t *testing.T, mutate ...func(*types.Config)) *fixture {
	t.Helper()
	p := projecttest.New(t)
	store, err := sqlite.Open(filepath.Join(p.Root, "Library", "cache.db"))
	require.NoError(t, err)

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	cfg := types.DefaultConfig(p.Root)
	for _, m := range mutate {
		m(&cfg)
	}
	ix := index.New(store, library.NewReader(p.Root, cfg.LibraryDir, log), cfg, log)
	s := New(ix, cfg, log)
	t.Cleanup(func() {
		s.Close()
		store.Close()
	})
	return &fixture{p: p, store: store, ix: ix, s: s, hook: hook}
}

func (f *fixture) scanAll(t *testing.T, paths ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	f.s.Enqueue(paths...)
	require.NoError(t, f.s.WaitIdle(ctx))
}

func (f *fixture) deps(t *testing.T, guid string) []string {
	t.Helper()
	edges, err := f.store.EdgesFrom(guid)
	require.NoError(t, err)
	out := []string{}
	for _, e := range edges {
		out = append(out, e.DependencyGUID)
	}
	return out
}

func TestScanRecordsEdges(t *testing.T) {
	f := setupScanner(t)
	f.p.WriteAsset("Assets/B.asset", guidB)
	f.p.WriteAsset("Assets/C.asset", guidC)
	f.p.WriteAsset("Assets/A.asset", guidA, guidB, guidC, guidB, guidA)

	f.scanAll(t, "Assets/A.asset")

	assert.Equal(t, []string{guidB, guidC}, f.deps(t, guidA), "deduplicated, self reference skipped")

	rec, err := f.store.AssetByPath("Assets/A.asset")
	require.NoError(t, err)
	assert.Equal(t, guidA, rec.GUID)
	assert.False(t, rec.ScannedAt.IsZero())

	edges, err := f.store.EdgesFrom(guidA)
	require.NoError(t, err)
	fp, _ := f.ix.Stat("Assets/A.asset")
	for _, e := range edges {
		assert.True(t, fp.Equal(e.Fingerprint), "edge carries the target fingerprint")
	}
}

func TestScanWithoutReferencesMarksScanned(t *testing.T) {
	f := setupScanner(t)
	f.p.WriteAsset("Assets/A.asset", guidA)
	f.p.Age("Assets/A.asset", time.Hour)

	f.scanAll(t, "Assets/A.asset")

	rec, err := f.store.AssetByPath("Assets/A.asset")
	require.NoError(t, err)
	assert.True(t, rec.Scanned())
	assert.Empty(t, f.deps(t, guidA))
}

func TestScanSkips(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *projecttest.Project) string
	}{
		{
			name: "ignored extension",
			setup: func(p *projecttest.Project) string {
				p.WriteFile("Assets/A.PNG", projecttest.Document(guidB))
				p.WriteMeta("Assets/A.PNG", guidA)
				return "Assets/A.PNG"
			},
		},
		{
			name: "ignore glob",
			setup: func(p *projecttest.Project) string {
				p.WriteAsset("Assets/Generated/A.asset", guidA, guidB)
				return "Assets/Generated/A.asset"
			},
		},
		{
			name: "too small",
			setup: func(p *projecttest.Project) string {
				p.WriteFile("Assets/A.asset", "%YAML 1.1\nshort: 1\n")
				p.WriteMeta("Assets/A.asset", guidA)
				return "Assets/A.asset"
			},
		},
		{
			name: "no document signature",
			setup: func(p *projecttest.Project) string {
				p.WriteFile("Assets/A.txt", "plain text mentioning "+guidB+" and more padding")
				p.WriteMeta("Assets/A.txt", guidA)
				return "Assets/A.txt"
			},
		},
		{
			name: "no companion metadata",
			setup: func(p *projecttest.Project) string {
				p.WriteFile("Assets/A.asset", projecttest.Document(guidB))
				return "Assets/A.asset"
			},
		},
		{
			name: "missing file",
			setup: func(p *projecttest.Project) string {
				return "Assets/Nope.asset"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupScanner(t, func(c *types.Config) {
				c.IgnoreGlobs = []string{"Assets/Generated/**"}
			})
			p := tt.setup(f.p)

			f.scanAll(t, p)

			edges, err := f.store.Edges()
			require.NoError(t, err)
			assert.Empty(t, edges)
			rec, err := f.store.AssetByPath(p)
			if err == nil {
				assert.False(t, rec.Scanned())
			}
		})
	}
}

func TestScanAcceptsByteOrderMark(t *testing.T) {
	f := setupScanner(t)
	f.p.WriteFile("Assets/A.asset", "\xef\xbb\xbf"+projecttest.Document(guidB))
	f.p.WriteMeta("Assets/A.asset", guidA)

	f.scanAll(t, "Assets/A.asset")
	assert.Equal(t, []string{guidB}, f.deps(t, guidA))
}

func TestScanIsIncremental(t *testing.T) {
	f := setupScanner(t)
	f.p.WriteAsset("Assets/A.asset", guidA, guidB)
	f.p.Age("Assets/A.asset", time.Hour)

	f.scanAll(t, "Assets/A.asset")
	first, err := f.store.AssetByPath("Assets/A.asset")
	require.NoError(t, err)

	f.s.now = func() time.Time { return time.Now().Add(time.Minute) }
	f.scanAll(t, "Assets/A.asset")
	second, err := f.store.AssetByPath("Assets/A.asset")
	require.NoError(t, err)
	assert.Equal(t, first.ScannedAt, second.ScannedAt, "unchanged file not rescanned")

	f.p.WriteAsset("Assets/A.asset", guidA, guidC)
	f.p.Age("Assets/A.asset", 30*time.Minute)
	f.scanAll(t, "Assets/A.asset")

	third, err := f.store.AssetByPath("Assets/A.asset")
	require.NoError(t, err)
	assert.True(t, third.ScannedAt.After(first.ScannedAt))
	assert.Equal(t, []string{guidB, guidC}, f.deps(t, guidA), "edges upserted, never removed by a rescan")
}

func TestPausedScannerHoldsQueue(t *testing.T) {
	f := setupScanner(t)
	f.p.WriteAsset("Assets/A.asset", guidA, guidB)

	f.s.SetPaused(true)
	assert.True(t, f.s.Paused())
	f.s.Enqueue("Assets/A.asset")
	assert.False(t, f.s.IsRunning(), "no worker while paused")
	assert.Equal(t, 1, f.s.QueueLen())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.s.WaitIdle(ctx), context.DeadlineExceeded)

	f.s.SetPaused(false)
	f.scanAll(t)
	assert.Equal(t, 0, f.s.QueueLen())
	assert.Equal(t, []string{guidB}, f.deps(t, guidA))
}

func TestWorkerStopsOnStoreError(t *testing.T) {
	f := setupScanner(t)
	f.p.WriteAsset("Assets/A.asset", guidA, guidB)
	require.NoError(t, f.store.Close())

	f.scanAll(t, "Assets/A.asset")

	var stopped bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "scan worker stopped" {
			stopped = true
		}
	}
	assert.True(t, stopped)
	assert.False(t, f.s.IsRunning())
}

func TestCloseStopsWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	f := setupScanner(t)
	for i := 0; i < 20; i++ {
		f.p.WriteAsset("Assets/Many/"+string(rune('a'+i))+".asset", guidA, guidB)
	}
	f.s.SetPaused(true)
	f.s.Enqueue("Assets/Many/a.asset", "Assets/Many/b.asset")
	f.s.SetPaused(false)
	f.s.Close()

	assert.False(t, f.s.IsRunning())
	f.s.Enqueue("Assets/Many/c.asset")
	assert.Equal(t, 0, f.s.QueueLen(), "closed scanner accepts no work")
	assert.ErrorIs(t, f.s.WaitIdle(context.Background()), types.ErrScannerClosed)
}

func TestResize(t *testing.T) {
	s := &Scanner{}
	s.resize(100)
	assert.Len(t, s.buf, 100)

	s.resize(60)
	assert.Len(t, s.buf, 100, "kept while within twice the need")

	s.resize(10)
	assert.Len(t, s.buf, 50, "halved when more than twice the need")

	s.resize(200)
	assert.Len(t, s.buf, 200)
}
