package watch

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/assetref/internal/projecttest"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) Enqueue(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, paths...)
}

func (c *collector) Has(p string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.paths, p)
}

func startWatcher(t *testing.T, p *projecttest.Project, globs ...string) *collector {
	t.Helper()
	cfg := types.DefaultConfig(p.Root)
	cfg.WatchDebounce = 20 * time.Millisecond
	cfg.IgnoreGlobs = globs

	log, _ := test.NewNullLogger()
	c := &collector{}
	w := New(c, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	select {
	case <-w.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
	return c
}

func TestWatcherQueuesChangedAssets(t *testing.T) {
	p := projecttest.New(t)
	p.MkdirAll("Assets/Sub")
	c := startWatcher(t, p)

	p.WriteFile("Assets/Sub/A.asset", projecttest.Header)
	require.Eventually(t, func() bool { return c.Has("Assets/Sub/A.asset") }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherMapsMetaToAsset(t *testing.T) {
	p := projecttest.New(t)
	c := startWatcher(t, p)

	p.WriteFile("Assets/B.prefab.meta", projecttest.MetaContent("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"))
	require.Eventually(t, func() bool { return c.Has("Assets/B.prefab") }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, c.Has("Assets/B.prefab.meta"))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	p := projecttest.New(t)
	c := startWatcher(t, p)

	p.MkdirAll("Assets/New")
	time.Sleep(50 * time.Millisecond)
	p.WriteFile("Assets/New/C.asset", projecttest.Header)
	require.Eventually(t, func() bool { return c.Has("Assets/New/C.asset") }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnores(t *testing.T) {
	p := projecttest.New(t)
	c := startWatcher(t, p, "Assets/Generated/**")

	p.WriteFile("Assets/.hidden.asset", projecttest.Header)
	p.WriteFile("Assets/Generated/G.asset", projecttest.Header)
	p.WriteFile("Assets/Kept.asset", projecttest.Header)

	require.Eventually(t, func() bool { return c.Has("Assets/Kept.asset") }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, c.Has("Assets/.hidden.asset"))
	assert.False(t, c.Has("Assets/Generated/G.asset"))
}

func TestWatcherStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := projecttest.New(t)
	log, _ := test.NewNullLogger()
	w := New(&collector{}, types.DefaultConfig(p.Root), log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	<-w.Ready()
	cancel()
	require.NoError(t, <-done)
}
