// Package tree holds the shared value model for document content: nested
// maps, lists and scalars as they come out of JSON decoding.
package tree

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// Tree is document content after JSON decoding: values are map[string]any,
// []any, string, float64, bool or nil.
type Tree = map[string]any

// Clone returns a deep copy of v (maps and lists copied, scalars shared).
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	default:
		return v
	}
}

// Normalize round-trips a value through JSON so that all numbers become
// float64 and all structures become map[string]any / []any. Content is
// normalized before storage and diffing so reconstruction compares
// bit-for-bit.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}
	return out, nil
}

// MustNormalize is Normalize for values known to be JSON-encodable.
func MustNormalize(v Tree) Tree {
	out, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	if out == nil {
		return Tree{}
	}
	return out.(map[string]any)
}

// PruneNil removes nil-valued map keys recursively, descending into lists.
func PruneNil(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = PruneNil(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = PruneNil(val)
		}
		return out
	default:
		return v
	}
}

// Equal compares two values structurally.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// JoinPath extends a dotted path with one more key or index segment.
func JoinPath(parent, segment string) string {
	if parent == "" {
		return segment
	}
	return parent + "." + segment
}

// Flatten turns nested content into a flat dotted-path -> scalar map, list
// positions as numeric segments. Used for translation tables and reporting.
func Flatten(v any) map[string]any {
	result := map[string]any{}
	var rec func(part any, parent string)
	rec = func(part any, parent string) {
		switch t := part.(type) {
		case map[string]any:
			for k, val := range t {
				switch val.(type) {
				case map[string]any, []any:
					rec(val, JoinPath(parent, k))
				default:
					result[JoinPath(parent, k)] = val
				}
			}
		case []any:
			for i, val := range t {
				seg := strconv.Itoa(i)
				switch val.(type) {
				case map[string]any, []any:
					rec(val, JoinPath(parent, seg))
				default:
					result[JoinPath(parent, seg)] = val
				}
			}
		}
	}
	rec(v, "")
	return result
}
