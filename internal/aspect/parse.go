package aspect

import (
	"fmt"

	"docforge/internal/errors"
)

// ParseMode controls how tolerant parsing is of unknown keys. It is an
// explicit per-call parameter; bulk import passes Permissive, regular API
// writes pass Strict. Nothing global is ever switched.
type ParseMode int

const (
	Strict ParseMode = iota
	Permissive
)

// keys a structural aspect node may carry
var knownNodeKeys = map[string]bool{
	"name":       true,
	"type":       true,
	"items":      true,
	"list_items": true,
	"components": true,
	"attr":       true,
}

// ParseNodes parses the aspects list of a structural document into typed
// nodes, validating each.
func ParseNodes(raw []any, mode ParseMode) ([]Node, error) {
	nodes := make([]Node, 0, len(raw))
	for i, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, errors.ValidationError(
				fmt.Sprintf("aspect %d is not an object", i), nil)
		}
		node, err := ParseNode(m, mode)
		if err != nil {
			return nil, err
		}
		if err := node.Validate(); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ParseNode parses a single aspect node from its generic tree form.
func ParseNode(raw map[string]any, mode ParseMode) (Node, error) {
	if mode == Strict {
		for k := range raw {
			if !knownNodeKeys[k] {
				return Node{}, errors.ValidationError(
					fmt.Sprintf("unknown aspect key %q", k),
					map[string]any{"aspect": raw["name"]})
			}
		}
	}

	node := Node{}
	if name, ok := raw["name"].(string); ok {
		node.Name = name
	}
	if kind, ok := raw["type"].(string); ok {
		node.Kind = Kind(kind)
	}

	if items, present := raw["items"]; present {
		source, err := parseItemSource(items)
		if err != nil {
			return Node{}, errors.ValidationError(
				fmt.Sprintf("aspect %q: %v", node.Name, err), nil)
		}
		node.Items = source
	}

	if listItems, ok := raw["list_items"].(map[string]any); ok {
		child, err := ParseNode(listItems, mode)
		if err != nil {
			return Node{}, err
		}
		node.ItemSchema = &child
	}

	if components, ok := raw["components"].([]any); ok {
		for i, c := range components {
			cm, ok := c.(map[string]any)
			if !ok {
				return Node{}, errors.ValidationError(
					fmt.Sprintf("aspect %q: component %d is not an object", node.Name, i), nil)
			}
			child, err := ParseNode(cm, mode)
			if err != nil {
				return Node{}, err
			}
			node.Fields = append(node.Fields, Field{Name: child.Name, Schema: child})
		}
	}

	return node, nil
}

func parseItemSource(raw any) (*ItemSource, error) {
	switch t := raw.(type) {
	case string:
		return &ItemSource{Slug: t}, nil
	case []any:
		inline := make([]Item, 0, len(t))
		for _, entry := range t {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item is not an object")
			}
			item, err := parseItem(m)
			if err != nil {
				return nil, err
			}
			inline = append(inline, item)
		}
		return &ItemSource{Inline: inline}, nil
	default:
		return nil, fmt.Errorf("items must be a slug or an item list")
	}
}

func parseItem(raw map[string]any) (Item, error) {
	item := Item{}
	if v, ok := raw["value"].(string); ok {
		item.Value = v
	}
	if v, ok := raw["text"].(string); ok {
		item.Text = v
	}
	if item.Value == "" {
		return Item{}, fmt.Errorf("item is missing a value")
	}
	if children, ok := raw["children"].([]any); ok {
		for _, c := range children {
			cm, ok := c.(map[string]any)
			if !ok {
				return Item{}, fmt.Errorf("item child is not an object")
			}
			child, err := parseItem(cm)
			if err != nil {
				return Item{}, err
			}
			item.Children = append(item.Children, child)
		}
	}
	return item, nil
}
