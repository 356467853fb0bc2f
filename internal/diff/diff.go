// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"strconv"

	"docforge/internal/tree"
)

// ChangeType indicates whether a tree node was added, removed, or changed
type ChangeType int

const (
	ItemAdded ChangeType = iota
	ItemRemoved
	ValueChanged
)

func (t ChangeType) String() string {
	switch t {
	case ItemAdded:
		return "item-added"
	case ItemRemoved:
		return "item-removed"
	case ValueChanged:
		return "value-changed"
	}
	return "unknown"
}

// Change is one per-path record in a structural diff
type Change struct {
	Path string     `json:"path"`
	Type ChangeType `json:"type"`
	Old  any        `json:"old,omitempty"`
	New  any        `json:"new,omitempty"`
}

// Result contains the complete diff information
type Result struct {
	Changes []Change
}

// Empty reports whether the two sides were equal
func (r *Result) Empty() bool {
	return len(r.Changes) == 0
}

// Format returns a string representation of the diff
func (r *Result) Format() string {
	var buf bytes.Buffer
	for _, c := range r.Changes {
		switch c.Type {
		case ItemAdded:
			fmt.Fprintf(&buf, "+ %s: %v\n", c.Path, c.New)
		case ItemRemoved:
			fmt.Fprintf(&buf, "- %s: %v\n", c.Path, c.Old)
		case ValueChanged:
			fmt.Fprintf(&buf, "~ %s: %v => %v\n", c.Path, c.Old, c.New)
		}
	}
	return buf.String()
}

// Compare projects both sides (dropping ignored top-level fields and
// nil-valued keys) and diffs them. It returns whether the sides are equal and
// the per-path change records. Used to make writes idempotent when content is
// unchanged.
func Compare(persisted, incoming tree.Tree, ignoreFields []string) (bool, *Result) {
	old := project(persisted, ignoreFields)
	new_ := project(incoming, ignoreFields)

	result := &Result{}
	walk(old, new_, nil, result)
	return result.Empty(), result
}

func project(t tree.Tree, ignoreFields []string) map[string]any {
	pruned := tree.PruneNil(t).(map[string]any)
	for _, field := range ignoreFields {
		delete(pruned, field)
	}
	return pruned
}

// walk records the differences between old and new. Lists of equal length
// recurse per index; lists of unequal length are recorded as one whole-value
// change, which keeps the derived patches exactly reversible.
func walk(old, new_ any, path []string, result *Result) {
	if tree.Equal(old, new_) {
		return
	}

	switch o := old.(type) {
	case map[string]any:
		n, ok := new_.(map[string]any)
		if !ok {
			result.add(ValueChanged, path, old, new_)
			return
		}
		for k, ov := range o {
			if nv, shared := n[k]; shared {
				walk(ov, nv, append(path, k), result)
			} else {
				result.add(ItemRemoved, append(path, k), ov, nil)
			}
		}
		for k, nv := range n {
			if _, shared := o[k]; !shared {
				result.add(ItemAdded, append(path, k), nil, nv)
			}
		}
	case []any:
		n, ok := new_.([]any)
		if !ok || len(o) != len(n) {
			result.add(ValueChanged, path, old, new_)
			return
		}
		for i := range o {
			walk(o[i], n[i], append(path, strconv.Itoa(i)), result)
		}
	default:
		result.add(ValueChanged, path, old, new_)
	}
}

func (r *Result) add(t ChangeType, path []string, old, new_ any) {
	dotted := ""
	for _, seg := range path {
		dotted = tree.JoinPath(dotted, seg)
	}
	r.Changes = append(r.Changes, Change{
		Path: dotted,
		Type: t,
		Old:  tree.Clone(old),
		New:  tree.Clone(new_),
	})
}
