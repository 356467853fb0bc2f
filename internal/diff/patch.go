// internal/diff/patch.go
package diff

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"docforge/internal/tree"
)

// Patch is a reversible structural diff between two adjacent versions of a
// document's content. Its change records describe the step old -> new, so the
// patch can be reverted (new -> old, the reverse-delta direction the version
// log stores) or replayed (old -> new). The encoding round-trips through JSON
// within this system only.
type Patch struct {
	Changes []Change `json:"changes"`
}

// NewPatch computes the patch describing oldContent -> newContent.
func NewPatch(oldContent, newContent tree.Tree) *Patch {
	result := &Result{}
	walk(tree.PruneNil(oldContent), tree.PruneNil(newContent), nil, result)
	return &Patch{Changes: result.Changes}
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return len(p.Changes) == 0
}

func (p *Patch) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalPatch(data []byte) (*Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling patch: %w", err)
	}
	return &p, nil
}

// Revert applies the patch backwards: content at the newer version comes back
// out at the older one.
func (p *Patch) Revert(content tree.Tree) (tree.Tree, error) {
	out := tree.Clone(content).(map[string]any)
	for _, c := range p.Changes {
		var err error
		switch c.Type {
		case ItemAdded:
			err = deleteAt(out, c.Path)
		case ItemRemoved, ValueChanged:
			err = setAt(out, c.Path, c.Old)
		}
		if err != nil {
			return nil, fmt.Errorf("reverting %s at %q: %w", c.Type, c.Path, err)
		}
	}
	return out, nil
}

// Replay applies the patch forwards: content at the older version comes out
// at the newer one.
func (p *Patch) Replay(content tree.Tree) (tree.Tree, error) {
	out := tree.Clone(content).(map[string]any)
	for _, c := range p.Changes {
		var err error
		switch c.Type {
		case ItemRemoved:
			err = deleteAt(out, c.Path)
		case ItemAdded, ValueChanged:
			err = setAt(out, c.Path, c.New)
		}
		if err != nil {
			return nil, fmt.Errorf("replaying %s at %q: %w", c.Type, c.Path, err)
		}
	}
	return out, nil
}

// navigate walks the dotted path down to the parent of its last segment.
func navigate(root tree.Tree, path string) (parent any, last string, err error) {
	segments := strings.Split(path, ".")
	last = segments[len(segments)-1]
	var current any = root
	for _, seg := range segments[:len(segments)-1] {
		switch c := current.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, "", fmt.Errorf("missing key %q", seg)
			}
			current = next
		case []any:
			idx, convErr := strconv.Atoi(seg)
			if convErr != nil || idx < 0 || idx >= len(c) {
				return nil, "", fmt.Errorf("bad list index %q", seg)
			}
			current = c[idx]
		default:
			return nil, "", fmt.Errorf("cannot descend into scalar at %q", seg)
		}
	}
	return current, last, nil
}

func setAt(root tree.Tree, path string, value any) error {
	parent, last, err := navigate(root, path)
	if err != nil {
		return err
	}
	switch p := parent.(type) {
	case map[string]any:
		p[last] = tree.Clone(value)
	case []any:
		idx, convErr := strconv.Atoi(last)
		if convErr != nil || idx < 0 || idx >= len(p) {
			return fmt.Errorf("bad list index %q", last)
		}
		p[idx] = tree.Clone(value)
	default:
		return fmt.Errorf("cannot set on scalar")
	}
	return nil
}

func deleteAt(root tree.Tree, path string) error {
	parent, last, err := navigate(root, path)
	if err != nil {
		return err
	}
	p, ok := parent.(map[string]any)
	if !ok {
		// list membership changes are recorded as whole-list value changes,
		// so deletes only ever target map keys
		return fmt.Errorf("cannot delete from non-map")
	}
	delete(p, last)
	return nil
}
