package dispatch

import (
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
)

// MergeMaps returns a new map holding a overlaid with b. Nested maps present on both
// sides are merged recursively for up to maxLevels levels (0 means no limit); at the
// limit, and for every non-map value, b's value wins.
func MergeMaps(a, b map[string]any, maxLevels int) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, other := range b {
		current, exists := out[k]
		if !exists {
			out[k] = other
			continue
		}
		otherMap, otherIsMap := other.(map[string]any)
		currentMap, currentIsMap := current.(map[string]any)
		if maxLevels == 1 || !otherIsMap || !currentIsMap {
			out[k] = other
			continue
		}
		next := 0
		if maxLevels > 0 {
			next = maxLevels - 1
		}
		out[k] = MergeMaps(currentMap, otherMap, next)
	}
	return out
}

// Sentinel marks template strings that are substituted by Transform.
const Sentinel = "$"

// Transform returns a copy of v where every string starting with Sentinel whose
// remainder names a non-nil entry of mappings is replaced by that entry. Map keys
// are substituted too. Maps and lists are walked recursively.
func Transform(v any, mappings map[string]any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Transform(item, mappings)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[transformKey(k, mappings)] = Transform(item, mappings)
		}
		return out
	case string:
		if strings.HasPrefix(t, Sentinel) {
			if value, ok := mappings[t[len(Sentinel):]]; ok && value != nil {
				return domain.Clone(value)
			}
		}
	}
	return v
}

func transformKey(k string, mappings map[string]any) string {
	if !strings.HasPrefix(k, Sentinel) {
		return k
	}
	if value, ok := mappings[k[len(Sentinel):]]; ok && value != nil {
		return domain.Stringify(value)
	}
	return k
}
