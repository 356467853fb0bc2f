package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/docs"
	"docforge/internal/errors"
	"docforge/internal/tree"
)

// fakeDependents is an in-memory pin table keyed by slug.
type fakeDependents struct {
	pins map[string][]int
}

func newFakeDependents() *fakeDependents {
	return &fakeDependents{pins: make(map[string][]int)}
}

func (f *fakeDependents) pin(slug string, version int) {
	f.pins[slug] = append(f.pins[slug], version)
}

func (f *fakeDependents) HasPin(slug string, version int) (bool, error) {
	for _, v := range f.pins[slug] {
		if v == version {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDependents) AllPinned(slug string, version int) (bool, error) {
	for _, v := range f.pins[slug] {
		if v != version {
			return false, nil
		}
	}
	return true, nil
}

func (f *fakeDependents) Repin(slug string, from, to int) error {
	for i, v := range f.pins[slug] {
		if v == from {
			f.pins[slug][i] = to
		}
	}
	return nil
}

func templateDoc(slug string, content tree.Tree) *docs.Document {
	return &docs.Document{
		Slug:    slug,
		Kind:    docs.KindTemplate,
		Version: 1,
		Content: tree.MustNormalize(content),
	}
}

func structuralDoc(slug string, content tree.Tree) *docs.Document {
	doc := templateDoc(slug, content)
	doc.Kind = docs.KindBaseTemplate
	return doc
}

func update(t *testing.T, s *Store, doc *docs.Document, content tree.Tree) {
	t.Helper()
	_, err := s.UpdateVersion(doc, tree.MustNormalize(content))
	require.NoError(t, err)
}

func TestUpdateVersionNoChange(t *testing.T) {
	deps := newFakeDependents()
	s := NewStore(deps, nil)

	doc := templateDoc("colors", tree.Tree{"title": "Colors", "aspects": []any{}})

	t.Run("identical content is a no-op", func(t *testing.T) {
		v, err := s.UpdateVersion(doc, tree.Tree{"title": "Colors", "aspects": []any{}})
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		assert.Equal(t, 1, doc.Version)
		assert.Empty(t, doc.Deltas)
	})

	t.Run("ignored fields do not count as changes", func(t *testing.T) {
		v, err := s.UpdateVersion(doc, tree.Tree{
			"title":   "Colors",
			"aspects": []any{},
			"uuid":    "something-else",
			"version": 99,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		assert.Empty(t, doc.Deltas)
	})

	t.Run("nil-valued keys do not count as changes", func(t *testing.T) {
		v, err := s.UpdateVersion(doc, tree.Tree{
			"title":   "Colors",
			"aspects": []any{},
			"extra":   nil,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})
}

func TestUpdateVersionBumpAndSmash(t *testing.T) {
	t.Run("structural kind always bumps", func(t *testing.T) {
		deps := newFakeDependents()
		s := NewStore(deps, nil)
		doc := structuralDoc("bird_obs", tree.Tree{
			"title": "Bird observation",
			"aspects": []any{
				map[string]any{"name": "count", "type": "int"},
			},
		})

		update(t, s, doc, tree.Tree{
			"title": "Bird observation",
			"aspects": []any{
				map[string]any{"name": "count", "type": "int"},
				map[string]any{"name": "notes", "type": "str"},
			},
		})
		assert.Equal(t, 2, doc.Version)
		require.Len(t, doc.Deltas, 1)

		// the en overlay now pins v2, so a label-only edit bumps again
		deps.pin("bird_obs", 2)
		update(t, s, doc, tree.Tree{
			"title": "Bird observations",
			"aspects": []any{
				map[string]any{"name": "count", "type": "int"},
				map[string]any{"name": "notes", "type": "str"},
			},
		})
		assert.Equal(t, 3, doc.Version)
		assert.Len(t, doc.Deltas, 2)
	})

	t.Run("concrete kind without pins replaces the last delta", func(t *testing.T) {
		deps := newFakeDependents()
		s := NewStore(deps, nil)
		doc := templateDoc("colors", tree.Tree{"title": "Colors"})

		deps.pin("colors", 1)
		update(t, s, doc, tree.Tree{"title": "Colours"})
		require.Equal(t, 2, doc.Version)
		require.Len(t, doc.Deltas, 1)

		// nothing pins v2: routine edits keep replacing the last delta
		update(t, s, doc, tree.Tree{"title": "Colours!", "subtitle": "all of them"})
		assert.Equal(t, 2, doc.Version)
		assert.Len(t, doc.Deltas, 1)

		// v1 must still be reachable through the replaced delta
		v1, err := s.GetVersion(doc, 1)
		require.NoError(t, err)
		assert.Equal(t, tree.MustNormalize(tree.Tree{"title": "Colors"}), tree.Tree(v1))
	})

	t.Run("version 1 without dependents discards the delta", func(t *testing.T) {
		deps := newFakeDependents()
		s := NewStore(deps, nil)
		doc := templateDoc("draft", tree.Tree{"title": "Draft"})

		update(t, s, doc, tree.Tree{"title": "Draft two"})
		assert.Equal(t, 1, doc.Version)
		assert.Empty(t, doc.Deltas)
		assert.Equal(t, "Draft two", doc.Content["title"])
	})
}

func TestGetVersion(t *testing.T) {
	deps := newFakeDependents()
	s := NewStore(deps, nil)

	doc := structuralDoc("bird_obs", tree.Tree{
		"title":   "Bird observation",
		"aspects": []any{map[string]any{"name": "count", "type": "int"}},
	})
	v1 := tree.Clone(doc.Content).(map[string]any)

	update(t, s, doc, tree.Tree{
		"title": "Bird observation",
		"aspects": []any{
			map[string]any{"name": "count", "type": "int"},
			map[string]any{"name": "notes", "type": "str"},
		},
	})
	v2 := tree.Clone(doc.Content).(map[string]any)

	update(t, s, doc, tree.Tree{
		"title": "Bird observations",
		"aspects": []any{
			map[string]any{"name": "count", "type": "int"},
			map[string]any{"name": "notes", "type": "str"},
		},
	})
	require.Equal(t, 3, doc.Version)

	t.Run("reconstructs every version exactly", func(t *testing.T) {
		got1, err := s.GetVersion(doc, 1)
		require.NoError(t, err)
		assert.Equal(t, v1, map[string]any(got1))

		got2, err := s.GetVersion(doc, 2)
		require.NoError(t, err)
		assert.Equal(t, v2, map[string]any(got2))

		got3, err := s.GetVersion(doc, 3)
		require.NoError(t, err)
		assert.Equal(t, doc.Content, map[string]any(got3))
	})

	t.Run("replaying deltas forward reproduces the live content", func(t *testing.T) {
		content, err := s.GetVersion(doc, 1)
		require.NoError(t, err)
		for _, delta := range doc.Deltas {
			content, err = delta.Replay(content)
			require.NoError(t, err)
		}
		assert.Equal(t, doc.Content, map[string]any(content))
	})

	t.Run("reconstruction does not mutate the live content", func(t *testing.T) {
		before := tree.Clone(doc.Content)
		_, err := s.GetVersion(doc, 1)
		require.NoError(t, err)
		assert.Equal(t, before, any(doc.Content))
	})

	t.Run("out of range versions are rejected", func(t *testing.T) {
		for _, target := range []int{0, -1, 4} {
			_, err := s.GetVersion(doc, target)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidVersion))
		}
	})
}

func TestSmash(t *testing.T) {
	build := func(t *testing.T, deps *fakeDependents) *docs.Document {
		t.Helper()
		s := NewStore(deps, nil)
		doc := structuralDoc("schema_a", tree.Tree{"title": "one", "n": 1})
		update(t, s, doc, tree.Tree{"title": "two", "n": 2})
		update(t, s, doc, tree.Tree{"title": "three", "n": 3})
		require.Equal(t, 3, doc.Version)
		return doc
	}

	t.Run("folds the last two deltas", func(t *testing.T) {
		deps := newFakeDependents()
		deps.pin("schema_a", 3)
		s := NewStore(deps, nil)
		doc := build(t, deps)

		require.NoError(t, s.Smash(doc))
		assert.Equal(t, 2, doc.Version)
		require.Len(t, doc.Deltas, 1)
		assert.Equal(t, "three", doc.Content["title"])

		// the folded delta must reconstruct the original v1 content
		got, err := s.GetVersion(doc, 1)
		require.NoError(t, err)
		assert.Equal(t, tree.MustNormalize(tree.Tree{"title": "one", "n": 1}), tree.Tree(got))

		assert.Equal(t, []int{2}, deps.pins["schema_a"])
	})

	t.Run("version 2 drops the only delta", func(t *testing.T) {
		deps := newFakeDependents()
		s := NewStore(deps, nil)
		doc := structuralDoc("schema_b", tree.Tree{"title": "one"})
		update(t, s, doc, tree.Tree{"title": "two"})
		require.Equal(t, 2, doc.Version)

		require.NoError(t, s.Smash(doc))
		assert.Equal(t, 1, doc.Version)
		assert.Empty(t, doc.Deltas)
		assert.Equal(t, "two", doc.Content["title"])
	})

	t.Run("refuses when a dependent pins an older version", func(t *testing.T) {
		deps := newFakeDependents()
		deps.pin("schema_a", 2)
		deps.pin("schema_a", 3)
		s := NewStore(deps, nil)
		doc := build(t, deps)

		err := s.Smash(doc)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		assert.Equal(t, 3, doc.Version)
	})

	t.Run("refuses at version 1", func(t *testing.T) {
		deps := newFakeDependents()
		s := NewStore(deps, nil)
		doc := templateDoc("single", tree.Tree{"title": "only"})

		err := s.Smash(doc)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidVersion))
	})
}
