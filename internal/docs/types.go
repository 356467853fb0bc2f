// Package docs holds the document model shared by the merge, versioning and
// import pipelines, plus the interfaces of the persistence collaborators.
package docs

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"docforge/internal/aspect"
	"docforge/internal/diff"
	"docforge/internal/tree"
)

type Kind string

const (
	// structural tier: language-neutral definitions
	KindSchema       Kind = "schema"
	KindBaseTemplate Kind = "base_template"
	KindBaseCode     Kind = "base_code"
	// concrete tier: per-language overlays merged onto a base
	KindTemplate Kind = "template"
	KindCode     Kind = "code"
)

// Structural reports whether the kind belongs to the language-neutral tier.
func (k Kind) Structural() bool {
	return k == KindSchema || k == KindBaseTemplate || k == KindBaseCode
}

// ConcreteKind maps a structural kind to the concrete kind of its overlays.
func ConcreteKind(base Kind) (Kind, bool) {
	switch base {
	case KindBaseTemplate:
		return KindTemplate, true
	case KindBaseCode:
		return KindCode, true
	default:
		return "", false
	}
}

// Document is one persisted document: a structural definition when Language
// is empty, a language overlay otherwise. Content is the full content tree
// (title, description, aspects, values, rules); identity and version
// bookkeeping live in the struct fields.
type Document struct {
	UUID     string `json:"uuid"`
	Slug     string `json:"slug"`
	Domain   string `json:"domain"`
	Kind     Kind   `json:"kind"`
	Language string `json:"language,omitempty"`

	Version int `json:"version"`
	// overlays: which base version this was last merged against
	TemplateVersion int `json:"template_version,omitempty"`
	// base_code: the schema it instantiates
	TemplateRef string `json:"template_ref,omitempty"`

	Content tree.Tree    `json:"content"`
	Refs    []aspect.Ref `json:"refs,omitempty"`

	// reverse-delta log, most recent last; len == Version-1. Persisted in a
	// separate keyed log by the storage collaborator, not in the document
	// record.
	Deltas []*diff.Patch `json:"-"`
}

func (d *Document) Validate() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Slug, validation.Required),
		validation.Field(&d.Domain, validation.Required),
		validation.Field(&d.Kind, validation.Required, validation.In(
			KindSchema, KindBaseTemplate, KindBaseCode, KindTemplate, KindCode)),
		validation.Field(&d.Version, validation.Min(0)),
	)
}

// Merged is the read model combining a base document with one language
// overlay. It is computed, never persisted.
type Merged struct {
	Slug     string    `json:"slug"`
	Domain   string    `json:"domain"`
	Kind     Kind      `json:"kind"`
	Language string    `json:"language"`
	Version  int       `json:"version"`
	Outdated bool      `json:"outdated"`
	Content  tree.Tree `json:"content"`
}

// DomainMeta is the per-domain configuration the core consumes.
type DomainMeta struct {
	Name            string   `json:"name"`
	DefaultLanguage string   `json:"default_language"`
	Languages       []string `json:"languages,omitempty"`
	Title           string   `json:"title,omitempty"`
}

// Store is the document persistence collaborator.
type Store interface {
	// GetBase returns the structural-tier document for a slug.
	GetBase(slug string) (*Document, error)
	// GetBySlugLang returns the overlay for (slug, language).
	GetBySlugLang(slug, language string) (*Document, error)
	GetByUUID(uuid string) (*Document, error)
	// OverlaysOf returns all concrete documents for a base slug.
	OverlaysOf(slug string) ([]*Document, error)
	// Put commits a document and its delta log atomically.
	Put(doc *Document) error
	Delete(slug, language string) error
}

// Domains supplies per-domain configuration.
type Domains interface {
	DefaultLanguage(domain string) (string, error)
	PutDomain(meta *DomainMeta) error
}

// OverlayResolver resolves (slug, language) to an overlay document, falling
// back to the domain default language. served names the language actually
// returned.
type OverlayResolver interface {
	ResolveOverlay(slug, language string) (doc *Document, served string, err error)
}
