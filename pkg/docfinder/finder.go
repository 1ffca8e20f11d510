// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package docfinder maintains the mapping from BSI document categories
// to source documents. The map is built once per run by classifying
// source filenames with the model, persisted to document_map.json, and
// treated as immutable afterwards. When classification fails the
// finder degrades to a map with every document under "Sonstiges" so
// the pipeline can continue with reduced precision.
package docfinder

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// MapKey is the artifact name of the persisted document map, relative
// to the output prefix.
const MapKey = "document_map.json"

// Finder resolves document categories to object-store keys.
type Finder struct {
	store        store.Store
	gen          ai.Generator
	sourcePrefix string
	outputPrefix string
	log          *logrus.Entry

	initOnce sync.Once
	initErr  error

	mu         sync.RWMutex
	byCategory map[model.DocumentCategory][]string
	allSources []string
}

// New builds an uninitialized finder. EnsureInitialized must run
// before any lookup.
func New(st store.Store, gen ai.Generator, sourcePrefix, outputPrefix string, log *logrus.Entry) *Finder {
	return &Finder{
		store:        st,
		gen:          gen,
		sourcePrefix: sourcePrefix,
		outputPrefix: outputPrefix,
		log:          log,
	}
}

func (f *Finder) mapKey() string {
	return f.outputPrefix + MapKey
}

// EnsureInitialized blocks until the document map is loaded or built.
// Concurrent callers share a single initialization; the first writer
// wins and later initializers load the persisted map.
func (f *Finder) EnsureInitialized(ctx context.Context) error {
	f.initOnce.Do(func() {
		f.initErr = f.initialize(ctx)
	})
	return f.initErr
}

func (f *Finder) initialize(ctx context.Context) error {
	sources, err := f.store.List(ctx, f.sourcePrefix)
	if err != nil {
		return errors.Wrap(err, "listing source documents")
	}
	for _, s := range sources {
		f.allSources = append(f.allSources, s.Name)
	}
	sort.Strings(f.allSources)

	exists, err := f.store.Exists(ctx, f.mapKey())
	if err != nil {
		return errors.Wrap(err, "checking for document map")
	}
	if exists {
		f.log.Infof("using existing document map %s", f.mapKey())
		return f.loadMap(ctx)
	}

	docMap := f.classify(ctx)
	if err := f.store.WriteJSON(ctx, f.mapKey(), docMap); err != nil {
		return errors.Wrap(err, "persisting document map")
	}
	// Another initializer may have written between our existence check
	// and our write; loading the persisted object keeps all readers on
	// the same map either way.
	return f.loadMap(ctx)
}

// classify asks the model to categorize every source filename. Any
// failure, and any response that does not cover every source document
// exactly once, degrades to the Sonstiges fallback map.
func (f *Finder) classify(ctx context.Context) model.DocumentMap {
	if len(f.allSources) == 0 {
		f.log.Warn("no source documents found to classify")
		return model.DocumentMap{Documents: []model.DocumentEntry{}, Version: model.DocumentMapVersion}
	}

	basenames := make([]string, 0, len(f.allSources))
	baseToFull := make(map[string]string, len(f.allSources))
	for _, full := range f.allSources {
		base := path.Base(full)
		basenames = append(basenames, base)
		baseToFull[base] = full
	}
	filenamesJSON, _ := json.MarshalIndent(basenames, "", "  ")

	spec, err := assets.Prompt("docfinder", "classify_documents")
	if err != nil {
		f.log.Errorf("document classification unavailable: %v; falling back to Sonstiges for all documents", err)
		return f.fallbackMap()
	}

	raw, err := f.gen.GenerateStructured(ctx, ai.Request{
		Prompt:     spec.Render(map[string]string{"filenames_json": string(filenamesJSON)}),
		SchemaName: spec.Schema,
		Context:    "Document Classification",
	})
	if err != nil {
		f.log.Errorf("document classification failed: %v; falling back to Sonstiges for all documents", err)
		return f.fallbackMap()
	}

	var result struct {
		DocumentMap []struct {
			Filename string                 `json:"filename"`
			Category model.DocumentCategory `json:"category"`
		} `json:"document_map"`
	}
	if err := ai.DecodeInto(raw, &result); err != nil {
		f.log.Errorf("document classification returned malformed data: %v; falling back", err)
		return f.fallbackMap()
	}

	seen := make(map[string]bool)
	var entries []model.DocumentEntry
	for _, item := range result.DocumentMap {
		full, ok := baseToFull[item.Filename]
		if !ok {
			f.log.Warnf("classifier returned unknown filename %q; ignoring", item.Filename)
			continue
		}
		if seen[full] {
			f.log.Warnf("classifier returned %q more than once; keeping first category", item.Filename)
			continue
		}
		category := item.Category
		if !model.KnownCategory(category) {
			category = model.CategorySonstiges
		}
		seen[full] = true
		entries = append(entries, model.DocumentEntry{Filename: full, Category: category})
	}

	if len(seen) != len(f.allSources) {
		f.log.Errorf("classification incomplete: %d of %d documents categorized; falling back to Sonstiges for all documents",
			len(seen), len(f.allSources))
		return f.fallbackMap()
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })
	f.log.Infof("classified %d source documents", len(entries))
	return model.DocumentMap{Documents: entries, Version: model.DocumentMapVersion}
}

func (f *Finder) fallbackMap() model.DocumentMap {
	entries := make([]model.DocumentEntry, 0, len(f.allSources))
	for _, full := range f.allSources {
		entries = append(entries, model.DocumentEntry{
			Filename: full,
			Category: model.CategorySonstiges,
		})
	}
	return model.DocumentMap{Documents: entries, Version: model.DocumentMapVersion}
}

func (f *Finder) loadMap(ctx context.Context) error {
	var docMap model.DocumentMap
	if err := f.store.ReadJSON(ctx, f.mapKey(), &docMap); err != nil {
		return errors.Wrap(err, "loading document map")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byCategory = docMap.ByCategory()
	f.log.Infof("document map ready: %d categories", len(f.byCategory))
	return nil
}

// DocumentsForCategories returns the union of document keys in the
// given categories, sorted for deterministic ordering. A nil slice of
// categories selects every source document. When none of the requested
// categories has documents, every source document is returned as a
// fallback so document-driven tasks still receive context.
func (f *Finder) DocumentsForCategories(categories []model.DocumentCategory) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.byCategory == nil {
		return nil
	}
	if categories == nil {
		return append([]string(nil), f.allSources...)
	}
	set := make(map[string]bool)
	for _, c := range categories {
		for _, name := range f.byCategory[c] {
			set[name] = true
		}
	}
	if len(set) == 0 {
		f.log.Warnf("no documents for categories %v; falling back to all source documents", categories)
		return append([]string(nil), f.allSources...)
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasCategory reports whether at least one document is classified
// under the category.
func (f *Finder) HasCategory(c model.DocumentCategory) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.byCategory[c]) > 0
}

// Categories returns every category that has at least one document.
func (f *Finder) Categories() []model.DocumentCategory {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]model.DocumentCategory, 0, len(f.byCategory))
	for c := range f.byCategory {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// URLs maps document keys to provider URLs for attachment.
func (f *Finder) URLs(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, f.store.URL(k))
	}
	return out
}

// SourceDocuments returns every source document key, sorted.
func (f *Finder) SourceDocuments() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.allSources...)
}
