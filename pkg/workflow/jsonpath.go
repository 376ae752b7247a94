package workflow

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
)

type stepKind int

const (
	stepKeys stepKind = iota
	stepWildcard
	stepSlice
	stepFilter
	stepDescend
)

type step struct {
	kind   stepKind
	keys   []string
	slice  [3]*int
	filter *Filter
}

// Query is a compiled JSONPath expression. Supported syntax: the '$' root, '.name'
// and "['name']" children, '*' wildcards, '[n]' indexes (negative from the end),
// '[a,b]' unions, '[start:end:step]' slices, '..' recursive descent and
// '[?(expr)]' filters. Map members are visited in sorted key order.
type Query struct {
	source string
	steps  []step
}

var queryCache sync.Map

// CompileQuery parses a JSONPath expression. Compiled queries are cached.
func CompileQuery(src string) (*Query, error) {
	if q, ok := queryCache.Load(src); ok {
		return q.(*Query), nil
	}
	q, err := parseQuery(src)
	if err != nil {
		return nil, err
	}
	queryCache.Store(src, q)
	return q, nil
}

func (q *Query) String() string { return q.source }

func parseQuery(src string) (*Query, error) {
	s := strings.TrimSpace(src)
	if !strings.HasPrefix(s, "$") {
		return nil, fmt.Errorf("query %q: must start with '$'", src)
	}
	q := &Query{source: src}
	i := 1
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], ".."):
			q.steps = append(q.steps, step{kind: stepDescend})
			i += 2
			if i < len(s) && s[i] != '[' {
				name := readName(s[i:])
				if name == "" {
					return nil, fmt.Errorf("query %q: missing member name at %d", src, i)
				}
				i += len(name)
				q.steps = append(q.steps, memberStep(name))
			}
		case s[i] == '.':
			i++
			name := readName(s[i:])
			if name == "" {
				return nil, fmt.Errorf("query %q: missing member name at %d", src, i)
			}
			i += len(name)
			q.steps = append(q.steps, memberStep(name))
		case s[i] == '[':
			end := closingBracket(s, i)
			if end < 0 {
				return nil, fmt.Errorf("query %q: unbalanced '['", src)
			}
			st, err := parseBracket(strings.TrimSpace(s[i+1 : end]))
			if err != nil {
				return nil, fmt.Errorf("query %q: %w", src, err)
			}
			q.steps = append(q.steps, st)
			i = end + 1
		default:
			return nil, fmt.Errorf("query %q: unexpected %q at %d", src, s[i], i)
		}
	}
	return q, nil
}

func readName(s string) string {
	end := strings.IndexAny(s, ".[")
	if end < 0 {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[:end])
}

func memberStep(name string) step {
	if name == "*" {
		return step{kind: stepWildcard}
	}
	return step{kind: stepKeys, keys: []string{name}}
}

// closingBracket returns the index of the ']' matching the '[' at open, skipping
// quoted strings and nested brackets or parentheses.
func closingBracket(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '[', '(':
			depth++
		case ']', ')':
			depth--
			if depth == 0 && c == ']' {
				return i
			}
		}
	}
	return -1
}

func parseBracket(inner string) (step, error) {
	switch {
	case inner == "*":
		return step{kind: stepWildcard}, nil
	case strings.HasPrefix(inner, "?(") && strings.HasSuffix(inner, ")"):
		f, err := CompileFilter(inner[2 : len(inner)-1])
		if err != nil {
			return step{}, err
		}
		return step{kind: stepFilter, filter: f}, nil
	case strings.HasPrefix(inner, "("):
		return step{}, fmt.Errorf("script expressions are not supported: [%s]", inner)
	}

	parts := splitOutsideQuotes(inner, ',')
	if len(parts) == 1 && strings.Contains(inner, ":") && !isQuoted(strings.TrimSpace(inner)) {
		return parseSlice(inner)
	}
	st := step{kind: stepKeys}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if isQuoted(p) {
			p = p[1 : len(p)-1]
		}
		st.keys = append(st.keys, p)
	}
	return st, nil
}

func parseSlice(inner string) (step, error) {
	fields := strings.Split(inner, ":")
	if len(fields) > 3 {
		return step{}, fmt.Errorf("invalid slice [%s]", inner)
	}
	st := step{kind: stepSlice}
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return step{}, fmt.Errorf("invalid slice [%s]", inner)
		}
		st.slice[i] = &n
	}
	if st.slice[2] != nil && *st.slice[2] == 0 {
		return step{}, fmt.Errorf("slice step cannot be zero: [%s]", inner)
	}
	return st, nil
}

func isQuoted(s string) bool {
	return len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0]
}

func splitOutsideQuotes(s string, sep byte) []string {
	var (
		parts []string
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

type node struct {
	value any
	path  Address
}

func (n node) child(key string, value any) node {
	p := make(Address, len(n.path), len(n.path)+1)
	copy(p, n.path)
	return node{value: value, path: append(p, key)}
}

func (n node) children() []node {
	switch v := n.value.(type) {
	case []any:
		out := make([]node, len(v))
		for i, item := range v {
			out[i] = n.child(strconv.Itoa(i), item)
		}
		return out
	case map[string]any:
		out := make([]node, 0, len(v))
		for _, k := range slices.Sorted(maps.Keys(v)) {
			out = append(out, n.child(k, v[k]))
		}
		return out
	}
	return nil
}

func (n node) descendants(out []node) []node {
	out = append(out, n)
	for _, c := range n.children() {
		out = c.descendants(out)
	}
	return out
}

// Select evaluates the query against root and returns the addresses of every
// match in query order.
func (q *Query) Select(root any) []Address {
	current := []node{{value: root}}
	for _, st := range q.steps {
		var next []node
		for _, n := range current {
			next = st.apply(n, next)
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	out := make([]Address, len(current))
	for i, n := range current {
		out[i] = n.path
	}
	return out
}

func (st step) apply(n node, out []node) []node {
	switch st.kind {
	case stepKeys:
		for _, key := range st.keys {
			switch v := n.value.(type) {
			case []any:
				if idx, err := listIndex(v, key); err == nil {
					out = append(out, n.child(strconv.Itoa(idx), v[idx]))
				}
			case map[string]any:
				if item, ok := v[key]; ok {
					out = append(out, n.child(key, item))
				}
			}
		}
	case stepWildcard:
		out = append(out, n.children()...)
	case stepSlice:
		list, ok := n.value.([]any)
		if !ok {
			return out
		}
		for _, idx := range sliceIndexes(len(list), st.slice) {
			out = append(out, n.child(strconv.Itoa(idx), list[idx]))
		}
	case stepFilter:
		for _, c := range n.children() {
			if st.filter.Match(c.value) {
				out = append(out, c)
			}
		}
	case stepDescend:
		out = n.descendants(out)
	}
	return out
}

func sliceIndexes(length int, bounds [3]*int) []int {
	stride := 1
	if bounds[2] != nil {
		stride = *bounds[2]
	}
	norm := func(p *int, def int) int {
		if p == nil {
			return def
		}
		v := *p
		if v < 0 {
			v += length
		}
		return v
	}
	var out []int
	if stride > 0 {
		start := max(norm(bounds[0], 0), 0)
		end := min(norm(bounds[1], length), length)
		for i := start; i < end; i += stride {
			out = append(out, i)
		}
		return out
	}
	start := min(norm(bounds[0], length-1), length-1)
	end := max(norm(bounds[1], -1), -1)
	if bounds[1] == nil {
		end = -1
	}
	for i := start; i > end; i += stride {
		out = append(out, i)
	}
	return out
}
