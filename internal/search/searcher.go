// Package search finds assets that reference a given asset by running an
// external text search over the project, one directory scope at a time,
// while merging in what the dependency edge store already knows.
package search

import (
	"context"
	"regexp"
	"strings"
)

// Request describes one external search invocation.
type Request struct {
	// Dir is the project-relative directory to search.
	Dir string

	// Exclude is a project-relative subtree of Dir to skip, or empty.
	Exclude string

	// Pattern is a regular expression.
	Pattern string

	// IgnoreExtensions are file extensions (with dot) never searched.
	IgnoreExtensions []string
}

// Hit is one matching file.
type Hit struct {
	// Path is project-relative and slash-separated.
	Path string

	// Matches holds the matched text of each submatch on the line.
	Matches []string
}

// Searcher runs a Request and calls emit for each hit in output order.
// Search returns when the search finishes or ctx is done. A search that
// finds nothing is not an error.
type Searcher interface {
	Search(ctx context.Context, req Request, emit func(Hit)) error
}

// target is one asset whose referrers an invocation looks for.
type target struct {
	path string
	guid string
	stem string
}

// pathStem returns p without its extension, reduced to the part after the
// last "/Resources/" segment. Resource loading by name uses this form.
func pathStem(p string) string {
	if i := strings.LastIndexByte(p, '.'); i > strings.LastIndexByte(p, '/') {
		p = p[:i]
	}
	const res = "/Resources/"
	if i := strings.Index(p, res); i >= 0 {
		p = p[i+len(res):]
	}
	return p
}

// buildPattern joins the identifiers of targets, and their stems when
// matchPath is set, into one alternation.
func buildPattern(targets []target, matchPath bool) string {
	var alts []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			alts = append(alts, s)
		}
	}
	for _, t := range targets {
		add(t.guid)
	}
	if !matchPath {
		return strings.Join(alts, "|")
	}
	for _, t := range targets {
		add(regexp.QuoteMeta(t.stem))
	}
	return `\b(` + strings.Join(alts, "|") + `)\b`
}
