package search

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// benignStderr is printed by ripgrep when every file in scope was filtered
// out, which is normal for narrow scopes.
const benignStderr = "No files were searched"

const maxRecordSize = 16 << 20

// Ripgrep runs the ripgrep executable with --json output.
type Ripgrep struct {
	// Bin is the executable name or path.
	Bin string

	// Root is the absolute project root.
	Root string

	Log logrus.FieldLogger
}

var _ Searcher = (*Ripgrep)(nil)

// NewRipgrep returns a Searcher for the project at root.
func NewRipgrep(bin, root string, log logrus.FieldLogger) *Ripgrep {
	if bin == "" {
		bin = "rg"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Ripgrep{Bin: bin, Root: root, Log: log}
}

// Args returns the command line for req, excluding the executable. The
// search runs with req.Dir as the working directory.
func (r *Ripgrep) Args(req Request) []string {
	args := []string{"--json", "--no-config"}
	for _, ext := range req.IgnoreExtensions {
		args = append(args, "-g", "!*"+ext)
	}
	if req.Exclude != "" {
		child := strings.TrimPrefix(req.Exclude, req.Dir+"/")
		if req.Dir == "." {
			child = req.Exclude
		}
		args = append(args, "-g", "!/"+child+"/")
	}
	return append(args, "-e", req.Pattern, ".")
}

// Search implements Searcher.
func (r *Ripgrep) Search(ctx context.Context, req Request, emit func(Hit)) error {
	cmd := exec.CommandContext(ctx, r.Bin, r.Args(req)...)
	cmd.Dir = filepath.Join(r.Root, filepath.FromSlash(req.Dir))
	cmd.WaitDelay = time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("opening stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("opening stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.Bin, err)
	}

	log := r.Log.WithField("dir", req.Dir)
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			line := sc.Text()
			if line == "" || strings.HasPrefix(line, benignStderr) {
				continue
			}
			log.Warn(line)
		}
	}()

	readErr := r.readRecords(stdout, req.Dir, emit)
	if readErr != nil {
		// Unblock the process if we stopped reading early.
		io.Copy(io.Discard, stdout)
	}
	<-stderrDone
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		return readErr
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() == 1 {
		return nil
	}
	if waitErr != nil {
		return fmt.Errorf("running %s in %s: %w", r.Bin, req.Dir, waitErr)
	}
	return nil
}

type rgText struct {
	Text string `json:"text"`
}

type rgRecord struct {
	Type string `json:"type"`
	Data struct {
		Path       rgText `json:"path"`
		Submatches []struct {
			Match rgText `json:"match"`
		} `json:"submatches"`
	} `json:"data"`
}

func (r *Ripgrep) readRecords(out io.Reader, dir string, emit func(Hit)) error {
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 64*1024), maxRecordSize)
	for sc.Scan() {
		hit, ok := parseRecord(sc.Bytes(), dir)
		if ok {
			emit(hit)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading search output: %w", err)
	}
	return nil
}

// parseRecord decodes one --json line. Only "match" records with a UTF-8
// path yield a hit.
func parseRecord(line []byte, dir string) (Hit, bool) {
	var rec rgRecord
	if err := json.Unmarshal(line, &rec); err != nil || rec.Type != "match" {
		return Hit{}, false
	}
	p := rec.Data.Path.Text
	if p == "" {
		return Hit{}, false
	}
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	hit := Hit{Path: path.Join(dir, p)}
	for _, sm := range rec.Data.Submatches {
		hit.Matches = append(hit.Matches, sm.Match.Text)
	}
	return hit, true
}
