// Package importer loads a whole corpus of interdependent documents from a
// domain init folder, in dependency order, through the regular document
// pipeline.
//
// Layout under the domains folder:
//
//	<domain>/domain.json                      domain metadata
//	<domain>/<kind>/<slug>.json               structural documents
//	<domain>/lang/<language>/<kind>/<slug>.json   language overlays
//
// where <kind> is schema, template or code (template and code files define
// the structural base_template/base_code tier; their overlays define the
// concrete tier).
package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"docforge/internal/aspect"
	"docforge/internal/depgraph"
	"docforge/internal/docs"
	"docforge/internal/errors"
	"docforge/internal/service"
	"docforge/internal/tree"
)

// Ordering selects how a dependency cycle in the batch is handled.
type Ordering int

const (
	// StrictOrdering aborts the whole batch on a cycle
	StrictOrdering Ordering = iota
	// LenientOrdering imports the resolvable prefix and skips the rest
	LenientOrdering
)

// fixed directory order keeps batch input, and so resolved order,
// deterministic
var kindDirs = []struct {
	dir  string
	kind docs.Kind
}{
	{"schema", docs.KindSchema},
	{"template", docs.KindBaseTemplate},
	{"code", docs.KindBaseCode},
}

// Record is one raw source-tree entry fed to the dependency resolver.
type Record struct {
	Slug        string
	Domain      string
	Kind        docs.Kind
	Language    string
	TemplateRef string
	Content     tree.Tree
	Refs        []string
}

// Failure is one document that could not be imported; siblings in the batch
// are unaffected.
type Failure struct {
	Slug     string
	Language string
	Err      error
}

// Report summarizes one batch run.
type Report struct {
	Domain   string
	Ordered  []string
	Skipped  map[string][]string
	Imported int
	Failures []Failure
}

type Loader struct {
	svc     *service.Service
	domains docs.Domains
	log     *zap.Logger
}

func NewLoader(svc *service.Service, domains docs.Domains, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{svc: svc, domains: domains, log: log}
}

// Run imports one domain folder: metadata first, then structural documents
// in dependency order, then overlays with the default language first. The
// parse mode is passed through explicitly; bulk imports normally run
// Permissive.
func (l *Loader) Run(domainDir string, mode aspect.ParseMode, ordering Ordering) (*Report, error) {
	meta, err := l.readDomainMeta(domainDir)
	if err != nil {
		return nil, err
	}
	if err := l.domains.PutDomain(meta); err != nil {
		return nil, err
	}

	records, err := l.readStructural(domainDir, meta.Name, mode)
	if err != nil {
		return nil, err
	}

	report := &Report{Domain: meta.Name}

	nodes := make([]depgraph.Node, 0, len(records))
	bySlug := make(map[string]Record, len(records))
	for _, rec := range records {
		nodes = append(nodes, depgraph.Node{Slug: rec.Slug, Refs: rec.Refs})
		bySlug[rec.Slug] = rec
	}

	switch ordering {
	case StrictOrdering:
		report.Ordered, err = depgraph.ResolveOrder(nodes)
		if err != nil {
			return nil, err
		}
	case LenientOrdering:
		var skipped map[string][]string
		report.Ordered, skipped = depgraph.ResolveOrderLenient(nodes)
		report.Skipped = skipped
		for slug, deps := range skipped {
			l.log.Warn("skipping document with unresolvable dependencies",
				zap.String("slug", slug), zap.Strings("deps", deps))
		}
	}

	// strictly sequential: a document's merge may read one written just
	// before it in the same pass
	for _, slug := range report.Ordered {
		rec := bySlug[slug]
		doc := &docs.Document{
			Slug:        rec.Slug,
			Domain:      rec.Domain,
			Kind:        rec.Kind,
			TemplateRef: rec.TemplateRef,
			Content:     rec.Content,
		}
		if _, _, err := l.svc.UpdateOrInsert(doc, mode); err != nil {
			report.Failures = append(report.Failures, Failure{Slug: slug, Err: err})
			l.log.Error("cannot import document", zap.String("slug", slug), zap.Error(err))
			continue
		}
		report.Imported++
	}

	overlays, err := l.readOverlays(domainDir, meta)
	if err != nil {
		return nil, err
	}
	for _, rec := range overlays {
		doc := &docs.Document{
			Slug:     rec.Slug,
			Language: rec.Language,
			Content:  rec.Content,
		}
		if _, _, err := l.svc.SubmitOverlay(doc); err != nil {
			report.Failures = append(report.Failures,
				Failure{Slug: rec.Slug, Language: rec.Language, Err: err})
			l.log.Error("cannot import overlay",
				zap.String("slug", rec.Slug),
				zap.String("language", rec.Language),
				zap.Error(err))
			continue
		}
		report.Imported++
	}

	return report, nil
}

func (l *Loader) readDomainMeta(domainDir string) (*docs.DomainMeta, error) {
	var meta docs.DomainMeta
	if err := readJSON(filepath.Join(domainDir, "domain.json"), &meta); err != nil {
		return nil, fmt.Errorf("reading domain metadata: %w", err)
	}
	if meta.Name == "" {
		meta.Name = filepath.Base(domainDir)
	}
	if meta.DefaultLanguage == "" {
		return nil, errors.ValidationError(
			fmt.Sprintf("domain %q has no default language", meta.Name), nil)
	}
	return &meta, nil
}

// readStructural parses the structural files of a domain into records with
// their in-batch reference edges.
func (l *Loader) readStructural(domainDir, domain string, mode aspect.ParseMode) ([]Record, error) {
	var records []Record
	for _, entry := range kindDirs {
		files, err := listJSONFiles(filepath.Join(domainDir, entry.dir))
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			rec, err := l.readStructuralFile(file, domain, entry.kind, mode)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (l *Loader) readStructuralFile(path, domain string, kind docs.Kind, mode aspect.ParseMode) (Record, error) {
	var content tree.Tree
	if err := readJSON(path, &content); err != nil {
		return Record{}, err
	}

	rec := Record{
		Slug:   strings.TrimSuffix(filepath.Base(path), ".json"),
		Domain: domain,
		Kind:   kind,
	}
	if slug, ok := content["slug"].(string); ok && slug != "" {
		rec.Slug = slug
	}
	if ref, ok := content["template"].(string); ok {
		rec.TemplateRef = ref
		rec.Refs = append(rec.Refs, ref)
	}
	delete(content, "slug")
	delete(content, "template")
	rec.Content = content

	// reference edges to other documents in the batch come out of the
	// aspect tree
	if raw, ok := content["aspects"].([]any); ok {
		nodes, err := aspect.ParseNodes(raw, mode)
		if err != nil {
			return Record{}, fmt.Errorf("%s: %w", path, err)
		}
		for _, ref := range aspect.ExtractRefs(nodes) {
			rec.Refs = append(rec.Refs, ref.DestSlug)
		}
	}
	return rec, nil
}

// readOverlays collects overlay records, default language first so later
// languages can be compared against it.
func (l *Loader) readOverlays(domainDir string, meta *docs.DomainMeta) ([]Record, error) {
	langRoot := filepath.Join(domainDir, "lang")
	entries, err := os.ReadDir(langRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var languages []string
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() != meta.DefaultLanguage {
			languages = append(languages, entry.Name())
		}
	}
	languages = append([]string{meta.DefaultLanguage}, languages...)

	var records []Record
	for _, language := range languages {
		for _, entry := range kindDirs {
			files, err := listJSONFiles(filepath.Join(langRoot, language, entry.dir))
			if err != nil {
				return nil, err
			}
			for _, file := range files {
				var content tree.Tree
				if err := readJSON(file, &content); err != nil {
					return nil, err
				}
				slug := strings.TrimSuffix(filepath.Base(file), ".json")
				if s, ok := content["slug"].(string); ok && s != "" {
					slug = s
				}
				delete(content, "slug")
				records = append(records, Record{
					Slug:     slug,
					Domain:   meta.Name,
					Language: language,
					Content:  content,
				})
			}
		}
	}
	return records, nil
}

func listJSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func readJSON(path string, into any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := json.NewDecoder(file).Decode(into); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
