package service

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/aspect"
	"docforge/internal/docs"
	"docforge/internal/errors"
	"docforge/internal/refs"
	"docforge/internal/storage"
	"docforge/internal/tree"
	"docforge/internal/version"
)

func setupService(t *testing.T) (*Service, *storage.BadgerStore) {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewBadgerStore(db, nil)
	versions := version.NewStore(store, nil)
	resolver := refs.NewResolver(store, store, nil)
	svc, err := New(store, store, resolver, versions, nil)
	require.NoError(t, err)

	require.NoError(t, store.PutDomain(&docs.DomainMeta{
		Name:            "sw",
		DefaultLanguage: "en",
		Languages:       []string{"en", "de"},
	}))
	return svc, store
}

func birdObs() *docs.Document {
	return &docs.Document{
		Slug:   "bird_obs",
		Domain: "sw",
		Kind:   docs.KindBaseTemplate,
		Content: tree.Tree{
			"title": "Bird observation",
			"aspects": []any{
				map[string]any{"name": "count", "type": "int"},
				map[string]any{"name": "color", "type": "select", "items": "colors"},
			},
		},
	}
}

func TestUpdateOrInsert(t *testing.T) {
	svc, store := setupService(t)

	t.Run("insert assigns identity and extracts refs", func(t *testing.T) {
		doc, v, err := svc.UpdateOrInsert(birdObs(), aspect.Strict)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		assert.NotEmpty(t, doc.UUID)
		require.Len(t, doc.Refs, 1)
		assert.Equal(t, "colors", doc.Refs[0].DestSlug)

		persisted, err := store.GetBase("bird_obs")
		require.NoError(t, err)
		assert.Equal(t, doc.UUID, persisted.UUID)
	})

	t.Run("equal content is a no-op", func(t *testing.T) {
		_, v, err := svc.UpdateOrInsert(birdObs(), aspect.Strict)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})

	t.Run("changed structural content bumps the version", func(t *testing.T) {
		model := birdObs()
		model.Content["title"] = "Bird observations"
		_, v, err := svc.UpdateOrInsert(model, aspect.Strict)
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		persisted, err := store.GetBase("bird_obs")
		require.NoError(t, err)
		assert.Equal(t, 2, persisted.Version)
		assert.Len(t, persisted.Deltas, 1)
	})

	t.Run("invalid aspects reject the write", func(t *testing.T) {
		model := birdObs()
		model.Slug = "broken"
		model.Content["aspects"] = []any{
			map[string]any{"name": "x", "type": "blob"},
		}
		_, _, err := svc.UpdateOrInsert(model, aspect.Strict)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

		_, err = store.GetBase("broken")
		assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	})

	t.Run("model without a domain is rejected", func(t *testing.T) {
		model := birdObs()
		model.Domain = ""
		_, _, err := svc.UpdateOrInsert(model, aspect.Strict)
		require.Error(t, err)
	})
}

func TestCommitObserver(t *testing.T) {
	svc, _ := setupService(t)

	var committed []string
	svc.OnDocumentCommitted(func(doc *docs.Document) {
		committed = append(committed, doc.Slug)
	})

	_, _, err := svc.UpdateOrInsert(birdObs(), aspect.Strict)
	require.NoError(t, err)
	assert.Equal(t, []string{"bird_obs"}, committed)

	// a no-op write does not notify
	_, _, err = svc.UpdateOrInsert(birdObs(), aspect.Strict)
	require.NoError(t, err)
	assert.Len(t, committed, 1)

	model := birdObs()
	model.Content["title"] = "changed"
	_, _, err = svc.UpdateOrInsert(model, aspect.Strict)
	require.NoError(t, err)
	assert.Equal(t, []string{"bird_obs", "bird_obs"}, committed)
}

func overlayModel(language string) *docs.Document {
	return &docs.Document{
		Slug:     "bird_obs",
		Language: language,
		Content: tree.Tree{
			"title": "Vogelbeobachtung",
			"aspects": []any{
				map[string]any{"label": "Anzahl"},
				map[string]any{"label": "Farbe"},
			},
		},
	}
}

func TestSubmitOverlay(t *testing.T) {
	svc, store := setupService(t)
	_, _, err := svc.UpdateOrInsert(birdObs(), aspect.Strict)
	require.NoError(t, err)

	t.Run("merges strictly against the base and pins its version", func(t *testing.T) {
		doc, v, err := svc.SubmitOverlay(overlayModel("de"))
		require.NoError(t, err)
		assert.Equal(t, 1, v)
		assert.Equal(t, docs.KindTemplate, doc.Kind)
		assert.Equal(t, 1, doc.TemplateVersion)
		assert.Equal(t, "Vogelbeobachtung", doc.Content["title"])

		aspects := doc.Content["aspects"].([]any)
		first := aspects[0].(map[string]any)
		assert.Equal(t, "count", first["name"])
		assert.Equal(t, "Anzahl", first["label"])
	})

	t.Run("structural drift rejects the overlay", func(t *testing.T) {
		model := overlayModel("de")
		model.Content["aspects"] = []any{
			map[string]any{"label": "Anzahl"},
		}
		_, _, err := svc.SubmitOverlay(model)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("schema documents take no overlay", func(t *testing.T) {
		_, _, err := svc.UpdateOrInsert(&docs.Document{
			Slug:    "colors",
			Domain:  "sw",
			Kind:    docs.KindSchema,
			Content: tree.Tree{"aspects": []any{}},
		}, aspect.Strict)
		require.NoError(t, err)

		model := overlayModel("de")
		model.Slug = "colors"
		model.Content["aspects"] = []any{}
		_, _, err = svc.SubmitOverlay(model)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("overlay pins make further base edits bump", func(t *testing.T) {
		model := birdObs()
		model.Content["title"] = "Bird observation log"
		_, v, err := svc.UpdateOrInsert(model, aspect.Strict)
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		persisted, err := store.GetBase("bird_obs")
		require.NoError(t, err)
		assert.Len(t, persisted.Deltas, 1)
	})
}

func TestGetVersion(t *testing.T) {
	svc, _ := setupService(t)

	_, _, err := svc.UpdateOrInsert(birdObs(), aspect.Strict)
	require.NoError(t, err)
	_, _, err = svc.SubmitOverlay(overlayModel("de"))
	require.NoError(t, err)

	model := birdObs()
	model.Content["title"] = "Bird observations"
	_, v, err := svc.UpdateOrInsert(model, aspect.Strict)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	t.Run("reconstructs historical base content", func(t *testing.T) {
		content, err := svc.GetVersion("bird_obs", "", 1)
		require.NoError(t, err)
		assert.Equal(t, "Bird observation", content["title"])

		content, err = svc.GetVersion("bird_obs", "", 2)
		require.NoError(t, err)
		assert.Equal(t, "Bird observations", content["title"])
	})

	t.Run("merges the overlay onto the reconstructed version", func(t *testing.T) {
		content, err := svc.GetVersion("bird_obs", "de", 1)
		require.NoError(t, err)
		assert.Equal(t, "Vogelbeobachtung", content["title"])
	})

	t.Run("falls back to the domain default language", func(t *testing.T) {
		_, _, err := svc.SubmitOverlay(&docs.Document{
			Slug:     "bird_obs",
			Language: "en",
			Content: tree.Tree{
				"title": "Bird observation",
				"aspects": []any{
					map[string]any{"label": "Count"},
					map[string]any{"label": "Color"},
				},
			},
		})
		require.NoError(t, err)

		content, err := svc.GetVersion("bird_obs", "fr", 2)
		require.NoError(t, err)
		assert.Equal(t, "Bird observation", content["title"])
	})

	t.Run("rejects versions out of range", func(t *testing.T) {
		_, err := svc.GetVersion("bird_obs", "", 5)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidVersion))
	})

	t.Run("serves repeated reads from the cache", func(t *testing.T) {
		first, err := svc.GetVersion("bird_obs", "de", 1)
		require.NoError(t, err)
		second, err := svc.GetVersion("bird_obs", "de", 1)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestMergedReadModel(t *testing.T) {
	svc, _ := setupService(t)

	_, _, err := svc.UpdateOrInsert(birdObs(), aspect.Strict)
	require.NoError(t, err)
	_, _, err = svc.SubmitOverlay(overlayModel("de"))
	require.NoError(t, err)

	t.Run("fresh overlay is not outdated", func(t *testing.T) {
		m, err := svc.Merged("bird_obs", "de")
		require.NoError(t, err)
		assert.Equal(t, "de", m.Language)
		assert.Equal(t, 1, m.Version)
		assert.False(t, m.Outdated)
	})

	t.Run("base edit after the overlay marks it outdated", func(t *testing.T) {
		model := birdObs()
		model.Content["title"] = "Bird observations"
		_, _, err := svc.UpdateOrInsert(model, aspect.Strict)
		require.NoError(t, err)

		m, err := svc.Merged("bird_obs", "de")
		require.NoError(t, err)
		assert.Equal(t, 2, m.Version)
		assert.True(t, m.Outdated)
	})
}

func TestServiceSmash(t *testing.T) {
	svc, store := setupService(t)

	_, _, err := svc.UpdateOrInsert(birdObs(), aspect.Strict)
	require.NoError(t, err)

	model := birdObs()
	model.Content["title"] = "Bird observations"
	_, v, err := svc.UpdateOrInsert(model, aspect.Strict)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	t.Run("overlay pinning an older version blocks the smash", func(t *testing.T) {
		overlay := overlayModel("de")
		_, _, err := svc.SubmitOverlay(overlay)
		require.NoError(t, err)

		third := birdObs()
		third.Content["title"] = "Bird observation log"
		_, v, err := svc.UpdateOrInsert(third, aspect.Strict)
		require.NoError(t, err)
		require.Equal(t, 3, v)

		err = svc.Smash("bird_obs")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	})

	t.Run("smash folds the log and repins dependents", func(t *testing.T) {
		// refresh the overlay so it pins the latest base version
		_, _, err := svc.SubmitOverlay(overlayModel("de"))
		require.NoError(t, err)

		require.NoError(t, svc.Smash("bird_obs"))

		base, err := store.GetBase("bird_obs")
		require.NoError(t, err)
		assert.Equal(t, 2, base.Version)
		assert.Len(t, base.Deltas, 1)
		assert.Equal(t, "Bird observation log", base.Content["title"])

		overlay, err := store.GetBySlugLang("bird_obs", "de")
		require.NoError(t, err)
		assert.Equal(t, 2, overlay.TemplateVersion)

		// v1 stays reconstructable through the folded delta
		content, err := svc.GetVersion("bird_obs", "", 1)
		require.NoError(t, err)
		assert.Equal(t, "Bird observation", content["title"])
	})
}
