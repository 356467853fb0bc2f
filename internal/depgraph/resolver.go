// Package depgraph orders a batch of documents so that every document is
// loaded after the documents it references.
package depgraph

import (
	"docforge/internal/errors"
)

// Node is one batch entry: a slug and the slugs it depends on.
type Node struct {
	Slug string
	Refs []string
}

// ResolveOrder topologically orders the batch (Kahn's algorithm). Only edges
// whose target is also in the batch count; references to documents outside
// the batch are assumed already resolvable. Ties break by input order, so
// identical input produces identical output. A non-empty remainder with no
// zero-dependency node fails with CircularDependencyError naming the
// remainder.
func ResolveOrder(nodes []Node) ([]string, error) {
	resolved, remaining := run(nodes)
	if len(remaining) > 0 {
		return nil, errors.CircularDependency(remainingRefs(remaining))
	}
	return resolved, nil
}

// ResolveOrderLenient emits the resolvable prefix and returns the skipped
// remainder (slug -> unresolved in-batch refs) for the caller to log.
func ResolveOrderLenient(nodes []Node) ([]string, map[string][]string) {
	resolved, remaining := run(nodes)
	return resolved, remainingRefs(remaining)
}

type pending struct {
	slug string
	deps map[string]bool
}

func run(nodes []Node) ([]string, []pending) {
	inBatch := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inBatch[n.Slug] = true
	}

	// ordered slice keeps emission deterministic; the maps only track
	// membership
	remaining := make([]pending, 0, len(nodes))
	for _, n := range nodes {
		deps := map[string]bool{}
		for _, ref := range n.Refs {
			if inBatch[ref] && ref != n.Slug {
				deps[ref] = true
			}
		}
		remaining = append(remaining, pending{slug: n.Slug, deps: deps})
	}

	var resolved []string
	for len(remaining) > 0 {
		var emitted []string
		var next []pending
		for _, p := range remaining {
			if len(p.deps) == 0 {
				emitted = append(emitted, p.slug)
			} else {
				next = append(next, p)
			}
		}
		if len(emitted) == 0 {
			return resolved, remaining
		}
		for _, slug := range emitted {
			for _, p := range next {
				delete(p.deps, slug)
			}
		}
		resolved = append(resolved, emitted...)
		remaining = next
	}
	return resolved, nil
}

func remainingRefs(remaining []pending) map[string][]string {
	if len(remaining) == 0 {
		return nil
	}
	out := make(map[string][]string, len(remaining))
	for _, p := range remaining {
		refs := make([]string, 0, len(p.deps))
		for dep := range p.deps {
			refs = append(refs, dep)
		}
		out[p.slug] = refs
	}
	return out
}
