// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"docforge/internal/diff"
	"docforge/internal/docs"
	"docforge/internal/errors"
	"docforge/internal/tree"
)

// BadgerStore persists documents, their reverse-delta logs and domain
// metadata. Deltas live in an explicit log keyed (slug, language, version
// index); smashing a delta is a visible delete-then-set inside the same
// transaction, never a hidden blob rewrite.
type BadgerStore struct {
	db   *badger.DB
	comp *compressor
	log  *zap.Logger
}

func Open(path string, log *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return NewBadgerStore(db, log), nil
}

func NewBadgerStore(db *badger.DB, log *zap.Logger) *BadgerStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &BadgerStore{db: db, comp: newCompressor(), log: log}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func docKey(slug, language string) []byte {
	if language == "" {
		return []byte(fmt.Sprintf("doc:%s", slug))
	}
	return []byte(fmt.Sprintf("doc:%s:%s", slug, language))
}

func deltaKey(slug, language string, index int) []byte {
	return []byte(fmt.Sprintf("delta:%s:%s:%06d", slug, language, index))
}

func deltaPrefix(slug, language string) []byte {
	return []byte(fmt.Sprintf("delta:%s:%s:", slug, language))
}

func uuidKey(id string) []byte {
	return []byte(fmt.Sprintf("uuid:%s", id))
}

func domainKey(name string) []byte {
	return []byte(fmt.Sprintf("domain:%s", name))
}

// Put commits the document record, its uuid index and its delta log in one
// transaction; readers never see a partially versioned document.
func (s *BadgerStore) Put(doc *docs.Document) error {
	if doc.Slug == "" {
		return errors.ValidationError("document slug cannot be empty", nil)
	}
	doc.Content = tree.MustNormalize(doc.Content)

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.StoreCommit("marshaling document", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(docKey(doc.Slug, doc.Language), data); err != nil {
			return err
		}
		if doc.UUID != "" {
			if err := txn.Set(uuidKey(doc.UUID), docKey(doc.Slug, doc.Language)); err != nil {
				return err
			}
		}
		return s.syncDeltas(txn, doc)
	})
	if err != nil {
		return errors.StoreCommit(fmt.Sprintf("committing %s", doc.Slug), err)
	}
	return nil
}

// syncDeltas reconciles the persisted delta log with doc.Deltas: changed
// entries are deleted and re-inserted, trailing entries beyond the new length
// are deleted.
func (s *BadgerStore) syncDeltas(txn *badger.Txn, doc *docs.Document) error {
	existing, err := readDeltaPayloads(txn, doc.Slug, doc.Language)
	if err != nil {
		return err
	}

	for i, patch := range doc.Deltas {
		payload, err := patch.Marshal()
		if err != nil {
			return fmt.Errorf("marshaling delta %d: %w", i, err)
		}
		payload = s.comp.compress(payload)
		if i < len(existing) {
			if string(existing[i]) == string(payload) {
				continue
			}
			if err := txn.Delete(deltaKey(doc.Slug, doc.Language, i)); err != nil {
				return err
			}
		}
		if err := txn.Set(deltaKey(doc.Slug, doc.Language, i), payload); err != nil {
			return err
		}
	}
	for i := len(doc.Deltas); i < len(existing); i++ {
		if err := txn.Delete(deltaKey(doc.Slug, doc.Language, i)); err != nil {
			return err
		}
	}
	return nil
}

func readDeltaPayloads(txn *badger.Txn, slug, language string) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	prefix := deltaPrefix(slug, language)
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var payloads [][]byte
	// zero-padded indexes keep lexicographic order equal to log order
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, val)
	}
	return payloads, nil
}

func (s *BadgerStore) get(key []byte) (*docs.Document, error) {
	var doc docs.Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		}); err != nil {
			return err
		}
		payloads, err := readDeltaPayloads(txn, doc.Slug, doc.Language)
		if err != nil {
			return err
		}
		for i, payload := range payloads {
			raw, err := s.comp.decompress(payload)
			if err != nil {
				return err
			}
			patch, err := diff.UnmarshalPatch(raw)
			if err != nil {
				return fmt.Errorf("delta %d: %w", i, err)
			}
			doc.Deltas = append(doc.Deltas, patch)
		}
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.NotFound("document not found", string(key))
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BadgerStore) GetBase(slug string) (*docs.Document, error) {
	doc, err := s.get(docKey(slug, ""))
	if err != nil && errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil, errors.NotFound("document not found", map[string]any{"slug": slug})
	}
	return doc, err
}

func (s *BadgerStore) GetBySlugLang(slug, language string) (*docs.Document, error) {
	doc, err := s.get(docKey(slug, language))
	if err != nil && errors.IsType(err, errors.ErrorTypeNotFound) {
		return nil, errors.NotFound("document not found",
			map[string]any{"slug": slug, "language": language})
	}
	return doc, err
}

func (s *BadgerStore) GetByUUID(id string) (*docs.Document, error) {
	var target []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(uuidKey(id))
		if err != nil {
			return err
		}
		target, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.NotFound("document not found", map[string]any{"uuid": id})
	}
	if err != nil {
		return nil, err
	}
	return s.get(target)
}

// OverlaysOf lists all language overlays of a base slug.
func (s *BadgerStore) OverlaysOf(slug string) ([]*docs.Document, error) {
	prefix := []byte(fmt.Sprintf("doc:%s:", slug))
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	overlays := make([]*docs.Document, 0, len(keys))
	for _, key := range keys {
		doc, err := s.get([]byte(key))
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, doc)
	}
	return overlays, nil
}

func (s *BadgerStore) Delete(slug, language string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := readDeltaPayloads(txn, slug, language)
		if err != nil {
			return err
		}
		for i := range existing {
			if err := txn.Delete(deltaKey(slug, language, i)); err != nil {
				return err
			}
		}
		return txn.Delete(docKey(slug, language))
	})
}

// PutDomain stores per-domain configuration.
func (s *BadgerStore) PutDomain(meta *docs.DomainMeta) error {
	if meta.Name == "" {
		return errors.ValidationError("domain name cannot be empty", nil)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return errors.StoreCommit("marshaling domain", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(domainKey(meta.Name), data)
	})
}

func (s *BadgerStore) DefaultLanguage(domain string) (string, error) {
	var meta docs.DomainMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(domainKey(domain))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", errors.NotFound("domain not found", map[string]any{"domain": domain})
	}
	if err != nil {
		return "", err
	}
	return meta.DefaultLanguage, nil
}

// HasPin implements the dependents query: does any overlay pin exactly this
// version of the slug.
func (s *BadgerStore) HasPin(slug string, version int) (bool, error) {
	overlays, err := s.OverlaysOf(slug)
	if err != nil {
		return false, err
	}
	for _, o := range overlays {
		if o.TemplateVersion == version {
			return true, nil
		}
	}
	return false, nil
}

// AllPinned reports whether every overlay pins exactly the given version;
// vacuously true with no overlays.
func (s *BadgerStore) AllPinned(slug string, version int) (bool, error) {
	overlays, err := s.OverlaysOf(slug)
	if err != nil {
		return false, err
	}
	for _, o := range overlays {
		if o.TemplateVersion != version {
			return false, nil
		}
	}
	return true, nil
}

// Repin rewrites every overlay pinning from to pin to.
func (s *BadgerStore) Repin(slug string, from, to int) error {
	overlays, err := s.OverlaysOf(slug)
	if err != nil {
		return err
	}
	for _, o := range overlays {
		if o.TemplateVersion != from {
			continue
		}
		o.TemplateVersion = to
		if err := s.Put(o); err != nil {
			return err
		}
	}
	return nil
}
