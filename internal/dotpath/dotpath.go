// Package dotpath resolves dotted paths like "audits.interactive.score" or
// "frames.0.url" inside the nested map[string]any / []any structures produced
// by decoding JSON. Numeric segments index into slices. A key containing a
// literal dot is addressable by escaping the dot as `\.`.
package dotpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Get resolves path inside root and reports whether every segment resolved.
func Get(root any, path string) (any, bool) {
	return walk(root, splitPath(path))
}

func walk(root any, segments []string) (any, bool) {
	current := root
	for _, segment := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Has reports whether path resolves inside root.
func Has(root any, path string) bool {
	_, ok := Get(root, path)
	return ok
}

// GetString returns the string at path.
func GetString(root any, path string) (string, bool) {
	v, ok := Get(root, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetFloat returns the number at path. JSON numbers decode as float64, but
// integer values that arrived through typed structs are accepted too.
func GetFloat(root any, path string) (float64, bool) {
	v, ok := Get(root, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// GetBool returns the boolean at path.
func GetBool(root any, path string) (bool, bool) {
	v, ok := Get(root, path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Set writes value at path inside root, creating intermediate maps for
// missing segments. Descending into an existing slice requires an in-range
// numeric segment; anything else is an error.
func Set(root map[string]any, path string, value any) error {
	segments := splitPath(path)
	current := any(root)
	for i, segment := range segments {
		last := i == len(segments)-1
		switch node := current.(type) {
		case map[string]any:
			if last {
				node[segment] = value
				return nil
			}
			next, ok := node[segment]
			if !ok {
				created := map[string]any{}
				node[segment] = created
				current = created
				continue
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return fmt.Errorf("dotpath: segment %q does not index slice of length %d", segment, len(node))
			}
			if last {
				node[idx] = value
				return nil
			}
			current = node[idx]
		default:
			return fmt.Errorf("dotpath: cannot descend into %T at segment %q", current, segment)
		}
	}
	return nil
}

// Delete removes the value at path and reports whether it was present.
func Delete(root map[string]any, path string) bool {
	segments := splitPath(path)
	parent, ok := walk(root, segments[:len(segments)-1])
	if !ok {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	leaf := segments[len(segments)-1]
	_, ok = m[leaf]
	delete(m, leaf)
	return ok
}

// Flatten converts nested maps into a single-level map keyed by dotted
// paths. Slices flatten with numeric segments; dots inside keys come out
// escaped so the paths resolve back through Get.
func Flatten(root map[string]any) map[string]any {
	flat := map[string]any{}
	flattenInto(flat, "", root)
	return flat
}

func flattenInto(flat map[string]any, prefix string, node any) {
	switch value := node.(type) {
	case map[string]any:
		if len(value) == 0 && prefix != "" {
			flat[prefix] = value
			return
		}
		for key, child := range value {
			flattenInto(flat, joinPath(prefix, key), child)
		}
	case []any:
		if len(value) == 0 && prefix != "" {
			flat[prefix] = value
			return
		}
		for i, child := range value {
			flattenInto(flat, joinPath(prefix, strconv.Itoa(i)), child)
		}
	default:
		flat[prefix] = value
	}
}

// Expand converts a flattened dotted map back into nested maps. Numeric
// segments become map keys, not slices, so Expand(Flatten(x)) preserves
// values but not slice types.
func Expand(flat map[string]any) map[string]any {
	root := map[string]any{}
	for path, value := range flat {
		_ = Set(root, path, value)
	}
	return root
}

// splitPath splits on dots, honoring `\.` escapes.
func splitPath(path string) []string {
	if !strings.Contains(path, `\.`) {
		return strings.Split(path, ".")
	}
	var segments []string
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		switch {
		case path[i] == '\\' && i+1 < len(path) && path[i+1] == '.':
			b.WriteByte('.')
			i++
		case path[i] == '.':
			segments = append(segments, b.String())
			b.Reset()
		default:
			b.WriteByte(path[i])
		}
	}
	return append(segments, b.String())
}

func joinPath(prefix, segment string) string {
	segment = strings.ReplaceAll(segment, ".", `\.`)
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
