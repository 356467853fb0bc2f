// Package merge combines a base structural tree with a language overlay tree.
//
// Dicts merge key-wise, lists merge positionally, the overlay wins on scalar
// collisions and a one-sided nil falls back to the present side. In strict
// mode list lengths must match, so a structural drift between a base document
// and its overlay is caught instead of silently zipped.
package merge

import (
	"strconv"

	"docforge/internal/errors"
	"docforge/internal/tree"
)

// Merge merges overlay onto base and returns a new tree; neither input is
// modified. With strict set, lists of unequal length fail with a
// StructuralMismatch naming the offending path (e.g. "aspects.2").
func Merge(base, overlay tree.Tree, strict bool) (tree.Tree, error) {
	merged, err := mergeValue(base, overlay, strict, "")
	if err != nil {
		return nil, err
	}
	if merged == nil {
		return tree.Tree{}, nil
	}
	return merged.(map[string]any), nil
}

// MergeAspects merges base.aspects[i] against overlay.aspects[i] independently
// for every index, returning one error-or-nil per index. Callers use it after
// a failed strict merge to report the offending aspect by position.
func MergeAspects(base, overlay tree.Tree) []error {
	baseAspects, _ := base["aspects"].([]any)
	overlayAspects, _ := overlay["aspects"].([]any)

	results := make([]error, len(baseAspects))
	for i, baseAspect := range baseAspects {
		if i >= len(overlayAspects) {
			results[i] = errors.StructuralMismatch(
				tree.JoinPath("aspects", strconv.Itoa(i)), len(baseAspects), len(overlayAspects))
			continue
		}
		_, err := mergeValue(baseAspect, overlayAspects[i], true,
			tree.JoinPath("aspects", strconv.Itoa(i)))
		results[i] = err
	}
	return results
}

func mergeValue(base, overlay any, strict bool, path string) (any, error) {
	// fallback rule: exactly one side present
	if base == nil {
		return tree.Clone(overlay), nil
	}
	if overlay == nil {
		return tree.Clone(base), nil
	}

	switch b := base.(type) {
	case map[string]any:
		o, ok := overlay.(map[string]any)
		if !ok {
			return collectionConflict(base, overlay, strict, path)
		}
		return mergeMaps(b, o, strict, path)
	case []any:
		o, ok := overlay.([]any)
		if !ok {
			return collectionConflict(base, overlay, strict, path)
		}
		return mergeLists(b, o, strict, path)
	default:
		// scalar collision, incompatible leaf types included: overlay wins
		return tree.Clone(overlay), nil
	}
}

// collectionConflict handles a collection on one side colliding with a
// non-matching type on the other. Permissive merges override, strict ones
// refuse.
func collectionConflict(base, overlay any, strict bool, path string) (any, error) {
	if strict {
		return nil, errors.TypeConflict(path)
	}
	return tree.Clone(overlay), nil
}

func mergeMaps(base, overlay map[string]any, strict bool, path string) (any, error) {
	out := make(map[string]any, len(base)+len(overlay))
	for k, bv := range base {
		if ov, shared := overlay[k]; shared {
			merged, err := mergeValue(bv, ov, strict, tree.JoinPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = merged
		} else {
			out[k] = tree.Clone(bv)
		}
	}
	for k, ov := range overlay {
		if _, shared := base[k]; !shared {
			out[k] = tree.Clone(ov)
		}
	}
	return out, nil
}

func mergeLists(base, overlay []any, strict bool, path string) (any, error) {
	if strict && len(base) != len(overlay) {
		short := len(base)
		if len(overlay) < short {
			short = len(overlay)
		}
		return nil, errors.StructuralMismatch(
			tree.JoinPath(path, strconv.Itoa(short)), len(base), len(overlay))
	}

	longest := len(base)
	if len(overlay) > longest {
		longest = len(overlay)
	}
	out := make([]any, 0, longest)
	for i := 0; i < longest; i++ {
		var bv, ov any
		if i < len(base) {
			bv = base[i]
		}
		if i < len(overlay) {
			ov = overlay[i]
		}
		merged, err := mergeValue(bv, ov, strict, tree.JoinPath(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
	}
	return out, nil
}
