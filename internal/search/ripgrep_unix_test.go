//go:build unix

package search

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRipgrep writes a script that records its pid, prints one match record
// and then sleeps in place of the real binary.
func fakeRipgrep(t *testing.T) (bin, pidFile string) {
	t.Helper()
	dir := t.TempDir()
	pidFile = filepath.Join(dir, "pid")
	record := `{"type":"match","data":{"path":{"text":"./B.asset"},"submatches":[{"match":{"text":"` + guidA + `"}}]}}`
	script := "#!/bin/sh\n" +
		"echo $$ > " + pidFile + "\n" +
		"echo '" + record + "'\n" +
		"exec sleep 30\n"
	bin = filepath.Join(dir, "rg")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, pidFile
}

func TestRipgrepCancelKillsProcess(t *testing.T) {
	bin, pidFile := fakeRipgrep(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Assets"), 0o755))

	log, _ := test.NewNullLogger()
	r := NewRipgrep(bin, root, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hits []Hit
	start := time.Now()
	err := r.Search(ctx, Request{Dir: "Assets", Pattern: guidA}, func(h Hit) {
		hits = append(hits, h)
		cancel()
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, []Hit{{Path: "Assets/B.asset", Matches: []string{guidA}}}, hits)

	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH, "process reaped")
}
