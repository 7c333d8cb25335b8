package minyaml

import (
	"fmt"
	"os"
	"strings"
)

// Map is a parsed block. Values are string, Map, or nil for a key with an
// empty body.
type Map map[string]any

// Get returns the nested block under key, or nil. Get on a nil Map returns
// nil so lookups chain.
func (m Map) Get(key string) Map {
	if m == nil {
		return nil
	}
	child, _ := m[key].(Map)
	return child
}

// String returns the scalar under key.
func (m Map) String(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// Strings returns the scalar entries of m. Nested blocks are left out.
func (m Map) Strings() map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ParseFile parses the file at path.
func ParseFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseBytes(data), nil
}

// ParseBytes parses newline separated content. Carriage returns are
// dropped.
func ParseBytes(data []byte) Map {
	return Parse(strings.Split(string(data), "\n"))
}

// Parse builds a Map from lines.
//
// A line "key: value" is a scalar. A line "key:" (or "key: " with nothing
// after) opens a block holding every following line indented deeper than
// the key; an empty block is stored as nil. A value written "{a: 1, b: 2}"
// on one line becomes a Map. Lines without a key, blank lines and lines
// with sequences or document markers are skipped. A later duplicate key
// overwrites an earlier one.
func Parse(lines []string) Map {
	p := parser{lines: lines}
	return p.block(0)
}

type parser struct {
	lines []string
	pos   int
}

func (p *parser) block(indent int) Map {
	out := Map{}
	for {
		key, val, ok := p.next(indent)
		if !ok {
			return out
		}
		if key != "" {
			out[key] = val
		}
	}
}

// next consumes one line at or below indent. It returns ok=false without
// consuming when the line belongs to an enclosing block or input is done.
func (p *parser) next(indent int) (string, any, bool) {
	if p.pos >= len(p.lines) {
		return "", nil, false
	}
	line := strings.TrimRight(p.lines[p.pos], "\r")
	if strings.TrimSpace(line) == "" {
		p.pos++
		return "", nil, true
	}
	cur := len(line) - len(strings.TrimLeft(line, " "))
	if cur < indent {
		return "", nil, false
	}

	i := strings.Index(line, ": ")
	if i < 0 {
		if line[len(line)-1] != ':' {
			p.pos++
			return "", nil, true
		}
		i = len(line) - 1
	}
	key := line[cur:i]
	val := ""
	if i+2 < len(line) {
		val = strings.TrimSpace(line[i+2:])
	}
	p.pos++

	switch {
	case val == "":
		child := p.block(cur + 1)
		if len(child) == 0 {
			return key, nil, true
		}
		return key, child, true
	case val[0] == '{' && val[len(val)-1] == '}':
		parts := strings.Split(strings.TrimSpace(val[1:len(val)-1]), ",")
		for j := range parts {
			parts[j] = strings.TrimLeft(parts[j], " ")
		}
		return key, Parse(parts), true
	default:
		return key, val, true
	}
}
