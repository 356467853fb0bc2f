// Package version maintains the append-only, self-compacting reverse-delta
// log of a document and reconstructs historical versions from it.
package version

import (
	"go.uber.org/zap"

	"docforge/internal/diff"
	"docforge/internal/docs"
	"docforge/internal/errors"
	"docforge/internal/tree"
)

// fields excluded from change detection: identity and version bookkeeping
var ignoreFields = []string{"uuid", "actors", "template", "tags", "version", "template_version"}

// Dependents answers which consumers still pin a version of a document. For
// overlays the pin is their template_version; the enclosing system may add
// instance pins through the same interface.
type Dependents interface {
	// HasPin reports whether any dependent pins exactly version of slug.
	HasPin(slug string, version int) (bool, error)
	// AllPinned reports whether every known dependent pins exactly version.
	AllPinned(slug string, version int) (bool, error)
	// Repin rewrites all dependents pinning from to pin to.
	Repin(slug string, from, to int) error
}

type Store struct {
	dependents Dependents
	log        *zap.Logger
}

func NewStore(dependents Dependents, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dependents: dependents, log: log}
}

// GetVersion reconstructs the content of doc at target by applying reverse
// deltas most-recent-first to the live content.
func (s *Store) GetVersion(doc *docs.Document, target int) (tree.Tree, error) {
	if target < 1 || target > doc.Version {
		return nil, errors.InvalidVersion(target, doc.Version)
	}
	content := tree.Clone(doc.Content).(map[string]any)
	for i := doc.Version - 2; i >= target-1; i-- {
		reverted, err := doc.Deltas[i].Revert(content)
		if err != nil {
			return nil, err
		}
		content = reverted
	}
	return content, nil
}

// hasDependents applies the tier policy: structural kinds always have
// dependents (any overlay implicitly depends on the current structural
// version); concrete kinds ask the dependents query for pins on the current
// version.
func (s *Store) hasDependents(doc *docs.Document) (bool, error) {
	if doc.Kind.Structural() {
		return true, nil
	}
	return s.dependents.HasPin(doc.Slug, doc.Version)
}

// UpdateVersion commits newContent as the live state. If anything depends on
// the current version a reverse delta is appended and the version bumped;
// otherwise the last delta is replaced ("smash") so routine edits nobody
// depends on cannot grow the log. Equal content is a no-op.
func (s *Store) UpdateVersion(doc *docs.Document, newContent tree.Tree) (int, error) {
	equal, _ := diff.Compare(doc.Content, newContent, ignoreFields)
	if equal {
		s.log.Debug("no content changes", zap.String("slug", doc.Slug))
		return doc.Version, nil
	}

	bump, err := s.hasDependents(doc)
	if err != nil {
		return 0, err
	}
	if bump {
		// reverse delta: reverting it on newContent reproduces the
		// current state
		doc.Deltas = append(doc.Deltas, diff.NewPatch(doc.Content, newContent))
		doc.Version++
		s.log.Info("version bump",
			zap.String("slug", doc.Slug), zap.Int("version", doc.Version))
	} else if doc.Version > 1 {
		// the replaced delta must still reconstruct the previous version
		// from the new live content
		prev, err := s.GetVersion(doc, doc.Version-1)
		if err != nil {
			return 0, err
		}
		doc.Deltas[len(doc.Deltas)-1] = diff.NewPatch(prev, newContent)
		s.log.Debug("smashed last delta",
			zap.String("slug", doc.Slug), zap.Int("version", doc.Version))
	}
	// version 1 without dependents: no predecessor exists, delta discarded

	doc.Content = tree.Clone(newContent).(map[string]any)
	return doc.Version, nil
}

// Smash is the maintenance compaction: when every known dependent pins
// exactly the current version, the final delta is folded away, the version
// decremented and all dependents repinned to the decremented value. The live
// content is unchanged.
func (s *Store) Smash(doc *docs.Document) error {
	if doc.Version <= 1 {
		return errors.InvalidVersion(doc.Version-1, doc.Version)
	}
	allPinned, err := s.dependents.AllPinned(doc.Slug, doc.Version)
	if err != nil {
		return err
	}
	if !allPinned {
		s.log.Warn("not smashing: dependents pin older versions",
			zap.String("slug", doc.Slug), zap.Int("version", doc.Version))
		return errors.ValidationError("dependents pin older versions", map[string]any{
			"slug": doc.Slug, "version": doc.Version,
		})
	}

	if doc.Version == 2 {
		doc.Deltas = nil
	} else {
		// fold the last two deltas: the new final delta must reconstruct
		// version-2 content directly from the live content
		prev, err := s.GetVersion(doc, doc.Version-2)
		if err != nil {
			return err
		}
		folded := diff.NewPatch(prev, doc.Content)
		doc.Deltas = append(doc.Deltas[:len(doc.Deltas)-2], folded)
	}
	doc.Version--

	if err := s.dependents.Repin(doc.Slug, doc.Version+1, doc.Version); err != nil {
		return err
	}
	s.log.Info("smashed version",
		zap.String("slug", doc.Slug), zap.Int("version", doc.Version))
	return nil
}
