// Package service orchestrates the document pipeline: merge the incoming
// model, detect changes, run the version update and commit, notifying
// registered observers. One mutation completes before the next on the same
// slug is observed; the store supplies the transaction boundary.
package service

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"docforge/internal/aspect"
	"docforge/internal/diff"
	"docforge/internal/docs"
	"docforge/internal/errors"
	"docforge/internal/merge"
	"docforge/internal/tree"
	"docforge/internal/version"
)

// fields excluded from idempotence checks: identity, actor relations and
// version bookkeeping
var compareIgnoreFields = []string{"uuid", "actors", "template", "tags", "version", "template_version"}

const mergedCacheSize = 256

// CommitHandler observes successful document commits. Registration replaces
// any process-global hook; collaborators opt in explicitly.
type CommitHandler func(doc *docs.Document)

type Service struct {
	store    docs.Store
	domains  docs.Domains
	overlays docs.OverlayResolver
	versions *version.Store
	log      *zap.Logger

	merged    *lru.Cache[string, tree.Tree]
	observers []CommitHandler
}

func New(store docs.Store, domains docs.Domains, overlays docs.OverlayResolver,
	versions *version.Store, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cache, err := lru.New[string, tree.Tree](mergedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating merged-document cache: %w", err)
	}
	return &Service{
		store:    store,
		domains:  domains,
		overlays: overlays,
		versions: versions,
		log:      log,
		merged:   cache,
	}, nil
}

// OnDocumentCommitted registers a handler invoked after every successful
// insert or update commit.
func (s *Service) OnDocumentCommitted(h CommitHandler) {
	s.observers = append(s.observers, h)
}

func (s *Service) notify(doc *docs.Document) {
	for _, h := range s.observers {
		h(doc)
	}
}

// UpdateOrInsert commits the model as the live state of its document. An
// existing document with equal content is untouched; otherwise the version
// store decides between bump and smash. Returns the committed document and
// its resulting version.
func (s *Service) UpdateOrInsert(model *docs.Document, mode aspect.ParseMode) (*docs.Document, int, error) {
	if err := model.Validate(); err != nil {
		return nil, 0, err
	}
	model.Content = tree.MustNormalize(model.Content)

	if model.Kind.Structural() {
		if err := s.prepareStructural(model, mode); err != nil {
			return nil, 0, err
		}
	}

	existing, err := s.lookup(model)
	if err != nil {
		if !errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, 0, err
		}
		return s.insert(model)
	}
	return s.update(existing, model)
}

// prepareStructural parses and validates the closed aspect union and derives
// the document's reference edges from it.
func (s *Service) prepareStructural(model *docs.Document, mode aspect.ParseMode) error {
	raw, _ := model.Content["aspects"].([]any)
	nodes, err := aspect.ParseNodes(raw, mode)
	if err != nil {
		return err
	}
	model.Refs = aspect.ExtractRefs(nodes)
	if model.Kind == docs.KindBaseCode && model.TemplateRef != "" {
		model.Refs = append(model.Refs, aspect.Ref{
			DestSlug: model.TemplateRef, RefType: "code",
		})
	}
	return nil
}

func (s *Service) lookup(model *docs.Document) (*docs.Document, error) {
	if model.Kind.Structural() {
		return s.store.GetBase(model.Slug)
	}
	return s.store.GetBySlugLang(model.Slug, model.Language)
}

func (s *Service) insert(model *docs.Document) (*docs.Document, int, error) {
	if model.UUID == "" {
		model.UUID = uuid.New().String()
	}
	model.Version = 1
	model.Deltas = nil

	if err := s.store.Put(model); err != nil {
		return nil, 0, err
	}
	s.log.Info("added new document",
		zap.String("slug", model.Slug),
		zap.String("language", model.Language),
		zap.String("kind", string(model.Kind)))
	s.invalidate(model.Slug)
	s.notify(model)
	return model, model.Version, nil
}

func (s *Service) update(existing, model *docs.Document) (*docs.Document, int, error) {
	equal, changes := diff.Compare(existing.Content, model.Content, compareIgnoreFields)
	if equal {
		s.log.Debug("no changes in document", zap.String("slug", existing.Slug))
		return existing, existing.Version, nil
	}
	s.log.Debug("document changed", zap.String("diff", changes.Format()))

	newVersion, err := s.versions.UpdateVersion(existing, model.Content)
	if err != nil {
		return nil, 0, err
	}

	// non-content columns follow the incoming model
	existing.Refs = model.Refs
	existing.TemplateRef = model.TemplateRef
	if model.TemplateVersion != 0 {
		existing.TemplateVersion = model.TemplateVersion
	}

	if err := s.store.Put(existing); err != nil {
		return nil, 0, err
	}
	s.log.Info("updated document",
		zap.String("slug", existing.Slug),
		zap.String("language", existing.Language),
		zap.Int("version", newVersion))
	s.invalidate(existing.Slug)
	s.notify(existing)
	return existing, newVersion, nil
}

// SubmitOverlay merges an overlay model strictly against its base document
// and commits the result as the concrete-tier document. A merge failure
// rejects the whole write; the per-aspect breakdown is logged for content
// authors.
func (s *Service) SubmitOverlay(model *docs.Document) (*docs.Document, int, error) {
	base, err := s.store.GetBase(model.Slug)
	if err != nil {
		return nil, 0, err
	}
	concrete, ok := docs.ConcreteKind(base.Kind)
	if !ok {
		return nil, 0, errors.ValidationError(
			fmt.Sprintf("documents of kind %q take no language overlay", base.Kind), nil)
	}

	mergedContent, err := merge.Merge(base.Content, model.Content, true)
	if err != nil {
		for i, aspectErr := range merge.MergeAspects(base.Content, model.Content) {
			if aspectErr != nil {
				s.log.Error("aspect merge failed",
					zap.String("slug", model.Slug),
					zap.Int("index", i),
					zap.Error(aspectErr))
			}
		}
		return nil, 0, errors.ValidationError(
			"cannot merge language data with latest base version", err)
	}

	overlay := &docs.Document{
		Slug:            model.Slug,
		Domain:          base.Domain,
		Kind:            concrete,
		Language:        model.Language,
		TemplateVersion: base.Version,
		Content:         mergedContent,
		Refs:            base.Refs,
	}
	doc, v, err := s.UpdateOrInsert(overlay, aspect.Strict)
	if err != nil {
		return nil, 0, err
	}
	// an unchanged overlay resubmitted against a newer base still advances
	// its pin: the merge above ran against base.Version
	if doc.TemplateVersion != base.Version {
		doc.TemplateVersion = base.Version
		if err := s.store.Put(doc); err != nil {
			return nil, 0, err
		}
	}
	return doc, v, nil
}

// GetVersion reconstructs the content of slug at target; with a language it
// returns the merged read model at that structural version.
func (s *Service) GetVersion(slug, language string, target int) (tree.Tree, error) {
	cacheKey := fmt.Sprintf("%s/%s/%d", slug, language, target)
	if cached, ok := s.merged.Get(cacheKey); ok {
		return cached, nil
	}

	base, err := s.store.GetBase(slug)
	if err != nil {
		return nil, err
	}
	content, err := s.versions.GetVersion(base, target)
	if err != nil {
		return nil, err
	}
	if language != "" {
		overlay, served, err := s.overlays.ResolveOverlay(slug, language)
		if err != nil {
			return nil, err
		}
		if served != language {
			s.log.Warn("serving fallback language",
				zap.String("slug", slug),
				zap.String("requested", language),
				zap.String("served", served))
		}
		content, err = merge.Merge(content, overlay.Content, false)
		if err != nil {
			return nil, err
		}
	}

	s.merged.Add(cacheKey, content)
	return content, nil
}

// Merged combines the live base document with one overlay into the read
// model; Outdated flags an overlay merged against an older structural
// version.
func (s *Service) Merged(slug, language string) (*docs.Merged, error) {
	base, err := s.store.GetBase(slug)
	if err != nil {
		return nil, err
	}
	overlay, served, err := s.overlays.ResolveOverlay(slug, language)
	if err != nil {
		return nil, err
	}
	content, err := merge.Merge(base.Content, overlay.Content, false)
	if err != nil {
		return nil, err
	}
	return &docs.Merged{
		Slug:     slug,
		Domain:   base.Domain,
		Kind:     overlay.Kind,
		Language: served,
		Version:  base.Version,
		Outdated: overlay.TemplateVersion < base.Version,
		Content:  content,
	}, nil
}

// Smash compacts the latest version of a base document when every dependent
// already pins it, repinning them to the decremented version.
func (s *Service) Smash(slug string) error {
	base, err := s.store.GetBase(slug)
	if err != nil {
		return err
	}
	if err := s.versions.Smash(base); err != nil {
		return err
	}
	if err := s.store.Put(base); err != nil {
		return err
	}
	s.invalidate(slug)
	return nil
}

func (s *Service) invalidate(slug string) {
	for _, key := range s.merged.Keys() {
		if len(key) > len(slug) && key[:len(slug)+1] == slug+"/" {
			s.merged.Remove(key)
		}
	}
}
