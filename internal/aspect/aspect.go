// Package aspect models the structural layer of a document as a closed set
// of node kinds. Every walker switches exhaustively over Kind; an unknown
// kind is a parse error, never a runtime fallback.
package aspect

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"docforge/internal/errors"
	"docforge/internal/tree"
)

type Kind string

const (
	KindString      Kind = "str"
	KindInt         Kind = "int"
	KindFloat       Kind = "float"
	KindSelect      Kind = "select"
	KindMultiselect Kind = "multiselect"
	KindTree        Kind = "tree"
	KindList        Kind = "list"
	KindComposite   Kind = "composite"
)

var allKinds = []Kind{
	KindString, KindInt, KindFloat,
	KindSelect, KindMultiselect, KindTree,
	KindList, KindComposite,
}

func (k Kind) valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// selectable reports whether the kind carries an item source.
func (k Kind) selectable() bool {
	return k == KindSelect || k == KindMultiselect || k == KindTree
}

// Item is one selectable value, optionally with children for tree kinds.
type Item struct {
	Value    string `json:"value"`
	Text     string `json:"text,omitempty"`
	Children []Item `json:"children,omitempty"`
}

// ItemSource is either an inline item list or the slug of an external code
// document; exactly one side is set.
type ItemSource struct {
	Slug   string `json:"slug,omitempty"`
	Inline []Item `json:"inline,omitempty"`
}

// Field is one named component of a composite node; order is significant.
type Field struct {
	Name   string `json:"name"`
	Schema Node   `json:"schema"`
}

// Node is one tagged node of a structural aspect tree.
type Node struct {
	Name string `json:"name"`
	Kind Kind   `json:"type"`

	// select, multiselect, tree
	Items *ItemSource `json:"items,omitempty"`
	// list
	ItemSchema *Node `json:"list_items,omitempty"`
	// composite
	Fields []Field `json:"components,omitempty"`
}

// Validate checks the flat fields with ozzo and the kind-specific payload by
// exhaustive match.
func (n Node) Validate() error {
	if err := validation.ValidateStruct(&n,
		validation.Field(&n.Name, validation.Required),
		validation.Field(&n.Kind, validation.Required),
	); err != nil {
		return errors.ValidationError(fmt.Sprintf("aspect %q: %v", n.Name, err), nil)
	}
	if !n.Kind.valid() {
		return errors.ValidationError(
			fmt.Sprintf("%s is not a valid aspect type", n.Kind),
			map[string]any{"aspect": n.Name})
	}

	switch n.Kind {
	case KindString, KindInt, KindFloat:
		// scalar, no payload
	case KindSelect, KindMultiselect, KindTree:
		if n.Items == nil || (n.Items.Slug == "" && len(n.Items.Inline) == 0) {
			return errors.ValidationError(
				fmt.Sprintf("aspect %q of type %q is missing items", n.Name, n.Kind), nil)
		}
		if n.Items.Slug != "" && len(n.Items.Inline) > 0 {
			return errors.ValidationError(
				fmt.Sprintf("aspect %q mixes inline items and a code slug", n.Name), nil)
		}
	case KindList:
		if n.ItemSchema == nil {
			return errors.ValidationError(
				fmt.Sprintf("aspect %q of type 'list' is missing 'list_items'", n.Name), nil)
		}
		return n.ItemSchema.Validate()
	case KindComposite:
		if len(n.Fields) == 0 {
			return errors.ValidationError(
				fmt.Sprintf("aspect %q of type 'composite' is missing 'components'", n.Name), nil)
		}
		for _, f := range n.Fields {
			if err := f.Schema.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ref is a cross-document reference edge extracted from an aspect tree.
type Ref struct {
	AspectPath string `json:"aspect_path"`
	DestSlug   string `json:"dest_slug"`
	RefType    string `json:"ref_type"` // code or tag
}

// ExtractRefs walks a set of aspect trees and collects the code-document
// references named by selectable nodes with an external item source.
func ExtractRefs(nodes []Node) []Ref {
	var refs []Ref
	for _, n := range nodes {
		refs = append(refs, extractRefs(n, n.Name)...)
	}
	return refs
}

func extractRefs(n Node, path string) []Ref {
	switch n.Kind {
	case KindString, KindInt, KindFloat:
		return nil
	case KindSelect, KindMultiselect, KindTree:
		if n.Items != nil && n.Items.Slug != "" {
			return []Ref{{AspectPath: path, DestSlug: n.Items.Slug, RefType: "code"}}
		}
		return nil
	case KindList:
		if n.ItemSchema == nil {
			return nil
		}
		return extractRefs(*n.ItemSchema, tree.JoinPath(path, n.ItemSchema.Name))
	case KindComposite:
		var refs []Ref
		for _, f := range n.Fields {
			refs = append(refs, extractRefs(f.Schema, tree.JoinPath(path, f.Name))...)
		}
		return refs
	}
	return nil
}
