package workflow

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

// Address is an ordered list of path segments inside the task data.
type Address []string

func (a Address) String() string {
	return strings.Join(a, ".")
}

// GetPath walks obj along path. Lists are indexed by integer segments (negative
// indexes count from the end), maps by key. A key missing from a map yields nil,
// or an empty map that is inserted on the fly when create is set. Descending into
// a scalar or indexing a list out of range fails with domain.PathError.
func GetPath(obj any, path []string, create bool) (any, error) {
	current := obj
	for _, part := range path {
		switch c := current.(type) {
		case []any:
			idx, err := listIndex(c, part)
			if err != nil {
				return nil, &domain.PathError{Path: path, Segment: part, Reason: err.Error()}
			}
			current = c[idx]
		case map[string]any:
			v, ok := c[part]
			if !ok {
				if !create {
					return nil, nil
				}
				v = map[string]any{}
				c[part] = v
			}
			current = v
		default:
			return nil, &domain.PathError{Path: path, Segment: part, Reason: fmt.Sprintf("cannot descend into %T", current)}
		}
	}
	return current, nil
}

// SetPath stores value at path, creating missing intermediate maps.
// Lists are never extended.
func SetPath(obj any, path []string, value any) error {
	if len(path) == 0 {
		return &domain.PathError{Path: path, Reason: "empty path"}
	}
	parent, err := GetPath(obj, path[:len(path)-1], true)
	if err != nil {
		return err
	}
	last := path[len(path)-1]
	switch c := parent.(type) {
	case []any:
		idx, err := listIndex(c, last)
		if err != nil {
			return &domain.PathError{Path: path, Segment: last, Reason: err.Error()}
		}
		c[idx] = value
	case map[string]any:
		c[last] = value
	default:
		return &domain.PathError{Path: path, Segment: last, Reason: fmt.Sprintf("cannot assign into %T", parent)}
	}
	return nil
}

func listIndex(list []any, part string) (int, error) {
	idx, err := strconv.Atoi(part)
	if err != nil {
		return 0, fmt.Errorf("list index %q is not an integer", part)
	}
	if idx < 0 {
		idx += len(list)
	}
	if idx < 0 || idx >= len(list) {
		return 0, fmt.Errorf("list index %s out of range (len %d)", part, len(list))
	}
	return idx, nil
}

// relativePosition consumes the ':' and '/' prefixes of expr against position.
// Each ':' drops the last segment, '/' clears the position.
func relativePosition(expr string, position Address) (Address, string) {
	pos := position
	i := 0
loop:
	for ; i < len(expr); i++ {
		switch expr[i] {
		case ':':
			if len(pos) > 0 {
				pos = pos[:len(pos)-1]
			}
		case '/':
			pos = nil
		default:
			break loop
		}
	}
	return slices.Clone(pos), expr[i:]
}

// resolvePosition returns the absolute address named by expr relative to position.
func resolvePosition(expr string, position Address) Address {
	pos, suffix := relativePosition(expr, position)
	if suffix == "" {
		return pos
	}
	return append(pos, strings.Split(suffix, ".")...)
}
