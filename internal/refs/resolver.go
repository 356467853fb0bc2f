// Package refs resolves document references (uuid, or slug with optional
// language) against the store, applying the domain default-language fallback.
package refs

import (
	"go.uber.org/zap"

	"docforge/internal/docs"
	"docforge/internal/errors"
)

// Ref identifies a document: by uuid, or by slug with an optional language.
type Ref struct {
	UUID     string `json:"uuid,omitempty"`
	Slug     string `json:"slug,omitempty"`
	Language string `json:"language,omitempty"`
}

// Resolution is a resolved reference. Served names the language actually
// returned, which differs from Requested when the default-language fallback
// was applied.
type Resolution struct {
	Doc       *docs.Document
	Requested string
	Served    string
}

// Fallback reports whether a different language was served than requested.
func (r *Resolution) Fallback() bool {
	return r.Requested != "" && r.Requested != r.Served
}

type Resolver struct {
	store   docs.Store
	domains docs.Domains
	log     *zap.Logger
}

func NewResolver(store docs.Store, domains docs.Domains, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, domains: domains, log: log}
}

// Resolve looks a reference up: by uuid directly; by slug+language with a
// retry on the domain default language; by slug alone as the structural-tier
// document.
func (r *Resolver) Resolve(ref Ref) (*Resolution, error) {
	switch {
	case ref.UUID != "":
		doc, err := r.store.GetByUUID(ref.UUID)
		if err != nil {
			return nil, err
		}
		return &Resolution{Doc: doc, Requested: ref.Language, Served: doc.Language}, nil
	case ref.Slug != "" && ref.Language != "":
		return r.resolveWithFallback(ref.Slug, ref.Language)
	case ref.Slug != "":
		doc, err := r.store.GetBase(ref.Slug)
		if err != nil {
			return nil, err
		}
		return &Resolution{Doc: doc}, nil
	default:
		return nil, errors.ValidationError("no slug given for reference", ref)
	}
}

func (r *Resolver) resolveWithFallback(slug, language string) (*Resolution, error) {
	doc, err := r.store.GetBySlugLang(slug, language)
	if err == nil {
		return &Resolution{Doc: doc, Requested: language, Served: language}, nil
	}
	if !errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil, err
	}

	base, err := r.store.GetBase(slug)
	if err != nil {
		return nil, err
	}
	fallback, err := r.domains.DefaultLanguage(base.Domain)
	if err != nil {
		return nil, err
	}
	if fallback == language {
		return nil, errors.NotFound("document not found",
			map[string]any{"slug": slug, "tried": []string{language}})
	}

	r.log.Warn("reference not available, trying domain default language",
		zap.String("slug", slug),
		zap.String("language", language),
		zap.String("fallback", fallback))

	doc, err = r.store.GetBySlugLang(slug, fallback)
	if err != nil {
		if errors.IsType(err, errors.ErrorTypeNotFound) {
			return nil, errors.NotFound("document not found",
				map[string]any{"slug": slug, "tried": []string{language, fallback}})
		}
		return nil, err
	}
	return &Resolution{Doc: doc, Requested: language, Served: fallback}, nil
}

// ResolveOverlay implements docs.OverlayResolver.
func (r *Resolver) ResolveOverlay(slug, language string) (*docs.Document, string, error) {
	res, err := r.resolveWithFallback(slug, language)
	if err != nil {
		return nil, "", err
	}
	return res.Doc, res.Served, nil
}
