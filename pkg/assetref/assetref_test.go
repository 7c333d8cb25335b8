package assetref

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mesh-intelligence/assetref/internal/projecttest"
	"github.com/mesh-intelligence/assetref/internal/search"
	"github.com/mesh-intelligence/assetref/pkg/types"
)

const (
	guidA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	guidB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	guidC = "cccccccccccccccccccccccccccccccc"
)

// fileSearcher greps the project files directly.
type fileSearcher struct {
	p *projecttest.Project

	mu   sync.Mutex
	dirs []string
}

func (f *fileSearcher) Search(ctx context.Context, req search.Request, emit func(search.Hit)) error {
	f.mu.Lock()
	f.dirs = append(f.dirs, req.Dir)
	f.mu.Unlock()

	for _, rel := range []string{"Assets/A.asset", "Assets/B.asset", "Assets/Sub/C.asset"} {
		if !strings.HasPrefix(rel, req.Dir+"/") || (req.Exclude != "" && strings.HasPrefix(rel, req.Exclude+"/")) {
			continue
		}
		data, err := os.ReadFile(f.p.Abs(rel))
		if err != nil {
			continue
		}
		for _, g := range strings.Split(req.Pattern, "|") {
			if bytes.Contains(data, []byte(g)) {
				emit(search.Hit{Path: rel, Matches: []string{g}})
				break
			}
		}
	}
	return ctx.Err()
}

func setupService(t *testing.T) (*Service, *projecttest.Project) {
	t.Helper()
	p := projecttest.New(t)
	log, _ := test.NewNullLogger()
	svc, err := Open(types.DefaultConfig(p.Root), log, WithSearcher(&fileSearcher{p: p}))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, p
}

func ctxTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(types.Config{}, nil)
	assert.ErrorIs(t, err, types.ErrProjectRootEmpty)
}

func TestSweepThenDelete(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/A.asset", guidA, guidB)
	p.WriteAsset("Assets/B.asset", guidB)

	_, err := svc.Sweep(ctxTimeout(t))
	require.NoError(t, err)

	refs, err := svc.GetReferences("Assets/B.asset")
	require.NoError(t, err)
	assert.Equal(t, []string{"Assets/A.asset"}, refs)

	deps, err := svc.Dependencies("Assets/A.asset")
	require.NoError(t, err)
	assert.Equal(t, []string{guidB}, deps)

	p.Remove("Assets/A.asset")
	p.Remove("Assets/A.asset.meta")

	refs, err = svc.GetReferences("Assets/B.asset")
	require.NoError(t, err)
	assert.Empty(t, refs)

	edges, err := svc.store.Edges()
	require.NoError(t, err)
	assert.Empty(t, edges, "stale edge collected on read")
}

func TestResolveRoundTrip(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/B.asset", guidB)

	guid, err := svc.ResolveIdentifier("Assets/B.asset")
	require.NoError(t, err)
	assert.Equal(t, guidB, guid)

	got, err := svc.ResolvePath(guidB)
	require.NoError(t, err)
	assert.Equal(t, "Assets/B.asset", got)

	_, err = svc.ResolvePath(guidC)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSearchRecordsEdges(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/A.asset", guidA)
	p.WriteAsset("Assets/Sub/C.asset", guidC, guidA)

	matches, err := svc.Search(ctxTimeout(t), "Assets/A.asset", Options{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, Match{Path: "Assets/Sub/C.asset", Target: "Assets/A.asset", ByIdentifier: true}, matches[0])

	refs, err := svc.GetReferences("Assets/A.asset")
	require.NoError(t, err)
	assert.Equal(t, []string{"Assets/Sub/C.asset"}, refs)

	_, err = svc.Search(ctxTimeout(t), "Assets/Missing.asset", Options{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestReplaceIdentifier(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/A.asset", guidA, guidB)
	p.WriteAsset("Assets/B.asset", guidB)

	_, err := svc.Sweep(ctxTimeout(t))
	require.NoError(t, err)

	changed, err := svc.ReplaceIdentifier(guidB, guidC, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Assets/A.asset"}, changed)

	data, err := os.ReadFile(p.Abs("Assets/A.asset"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "guid: "+guidC)
	assert.NotContains(t, string(data), guidB)

	_, err = svc.ReplaceIdentifier("bad", guidC, nil)
	assert.ErrorIs(t, err, types.ErrInvalidGUID)
}

func TestReplaceIdentifierRemapLookup(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/A.asset", guidA, guidB)

	changed, err := svc.ReplaceIdentifier(guidB, guidC, []string{"Assets/A.asset"})
	require.NoError(t, err, "unknown assets mean no id remap")
	assert.Equal(t, []string{"Assets/A.asset"}, changed)

	require.NoError(t, svc.store.Close())
	changed, err = svc.ReplaceIdentifier(guidC, guidB, []string{"Assets/A.asset"})
	assert.ErrorIs(t, err, types.ErrStoreClosed)
	assert.Empty(t, changed)

	data, err := os.ReadFile(p.Abs("Assets/A.asset"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "guid: "+guidC, "file untouched after lookup failure")
}

func TestRemoveIdentifier(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/A.asset", guidA, guidB)

	changed, err := svc.RemoveIdentifier(guidB, []string{"Assets/A.asset"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Assets/A.asset"}, changed)

	data, err := os.ReadFile(p.Abs("Assets/A.asset"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ref0: {fileID: 0}")
}

func TestTruncateAndExport(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/A.asset", guidA, guidB)
	require.NoError(t, svc.Scan(ctxTimeout(t), "Assets/A.asset"))

	var buf bytes.Buffer
	require.NoError(t, svc.Export(&buf))
	assert.Contains(t, buf.String(), guidB)

	require.NoError(t, svc.Truncate())
	buf.Reset()
	require.NoError(t, svc.Export(&buf))
	assert.Empty(t, buf.String())

	st, err := svc.Status()
	require.NoError(t, err)
	assert.True(t, st.LastSweep.IsZero())
	assert.False(t, st.Searching)
}

func TestWatchFeedsScanner(t *testing.T) {
	svc, p := setupService(t)
	p.WriteAsset("Assets/B.asset", guidB)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx, ready) }()
	<-ready

	p.WriteAsset("Assets/A.asset", guidA, guidB)
	require.Eventually(t, func() bool {
		refs, err := svc.GetReferences("Assets/B.asset")
		return err == nil && len(refs) == 1
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestCloseReleasesWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	p := projecttest.New(t)
	p.WriteAsset("Assets/A.asset", guidA, guidB)
	log, _ := test.NewNullLogger()
	svc, err := Open(types.DefaultConfig(p.Root), log, WithSearcher(&fileSearcher{p: p}))
	require.NoError(t, err)

	_, err = svc.Start("Assets/A.asset", Options{Recursive: true}, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
}
