// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package gscheck implements the Grundschutz-Check reconstruction
// pipeline: the authoritative system structure map, the deterministic
// page pre-scan of the check PDF, ground-truth-driven semantic
// chunking, per-chunk model extraction, the merge-and-refine step, and
// the targeted five-question analysis consumed by subchapter 3.6.1.
package gscheck

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/catalog"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/config"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/docfinder"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// SystemMapKey is the artifact name of the system structure map,
// relative to the output prefix.
const SystemMapKey = "system_structure_map.json"

// Deps bundles what the gscheck stages need. All fields are required
// unless noted.
type Deps struct {
	Cfg     config.Config
	Store   store.Store
	Gen     ai.Generator
	Finder  *docfinder.Finder
	Catalog *catalog.Catalog
	Log     *logrus.Entry
}

// GroundTruthMapper builds the authoritative SystemStructureMap from
// the Strukturanalyse and Modellierung documents.
type GroundTruthMapper struct {
	deps Deps
}

// NewGroundTruthMapper returns a mapper over the given dependencies.
func NewGroundTruthMapper(deps Deps) *GroundTruthMapper {
	return &GroundTruthMapper{deps: deps}
}

func (m *GroundTruthMapper) mapKey() string {
	return m.deps.Cfg.OutputPrefix + SystemMapKey
}

// Build creates (or loads) the system structure map. The returned
// warnings describe structural problems (e.g. bausteine assigned to
// unknown Zielobjekte) that the calling stage converts into findings.
func (m *GroundTruthMapper) Build(ctx context.Context, force bool) (model.SystemStructureMap, []string, error) {
	log := m.deps.Log

	if !force {
		exists, err := m.deps.Store.Exists(ctx, m.mapKey())
		if err != nil {
			return model.SystemStructureMap{}, nil, err
		}
		if exists {
			var cached model.SystemStructureMap
			if err := m.deps.Store.ReadJSON(ctx, m.mapKey(), &cached); err != nil {
				return model.SystemStructureMap{}, nil, err
			}
			if len(cached.Zielobjekte) == 0 {
				return model.SystemStructureMap{}, nil,
					errors.New("cached system structure map has no Zielobjekte")
			}
			log.Infof("using cached system structure map from %s", m.mapKey())
			return cached, nil, nil
		}
	}

	log.Info("generating new system structure map")

	zielobjekte, verbundName, err := m.extractZielobjekte(ctx)
	if err != nil {
		return model.SystemStructureMap{}, nil, err
	}
	assignments, err := m.extractAssignments(ctx)
	if err != nil {
		return model.SystemStructureMap{}, nil, err
	}

	systemMap, warnings := consolidate(zielobjekte, verbundName, assignments)

	if err := m.deps.Store.WriteJSON(ctx, m.mapKey(), systemMap); err != nil {
		return model.SystemStructureMap{}, nil, err
	}
	log.Infof("saved system structure map: %d Zielobjekte, %d baustein assignments",
		len(systemMap.Zielobjekte), len(systemMap.BausteinAssignments))
	return systemMap, warnings, nil
}

// extractZielobjekte runs one extraction per Strukturanalyse document
// and merges the results by Kürzel.
func (m *GroundTruthMapper) extractZielobjekte(ctx context.Context) ([]model.Zielobjekt, string, error) {
	spec, err := assets.Prompt("ground_truth", "extract_zielobjekte")
	if err != nil {
		return nil, "", err
	}
	docs := m.deps.Finder.DocumentsForCategories([]model.DocumentCategory{model.CategoryStrukturanalyse})
	if len(docs) == 0 {
		return nil, "", errors.New("no Strukturanalyse document available")
	}

	merged := make(map[string]string) // kürzel -> name
	var order []string
	verbundName := ""

	for _, doc := range docs {
		raw, err := m.deps.Gen.GenerateStructured(ctx, ai.Request{
			Prompt:     spec.Prompt,
			SchemaName: spec.Schema,
			Documents:  m.deps.Finder.URLs([]string{doc}),
			Context:    "GT: extract_zielobjekte",
			Model:      m.deps.Cfg.GroundTruthModel,
		})
		if err != nil {
			return nil, "", errors.Wrapf(err, "extracting Zielobjekte from %s", doc)
		}
		var result struct {
			Zielobjekte            []model.Zielobjekt `json:"zielobjekte"`
			InformationsverbundName string            `json:"informationsverbund_name"`
		}
		if err := ai.DecodeInto(raw, &result); err != nil {
			return nil, "", err
		}
		for _, z := range result.Zielobjekte {
			if z.Kuerzel == "" {
				continue
			}
			current, seen := merged[z.Kuerzel]
			if !seen {
				merged[z.Kuerzel] = z.Name
				order = append(order, z.Kuerzel)
				continue
			}
			// A later occurrence refines the name only when it is
			// strictly longer than the one we already hold.
			if len(z.Name) > len(current) {
				merged[z.Kuerzel] = z.Name
			}
		}
		if result.InformationsverbundName != "" {
			verbundName = result.InformationsverbundName
		}
	}

	out := make([]model.Zielobjekt, 0, len(order))
	for _, k := range order {
		out = append(out, model.Zielobjekt{Kuerzel: k, Name: merged[k]})
	}
	return out, verbundName, nil
}

// extractAssignments runs one extraction per Modellierung document.
func (m *GroundTruthMapper) extractAssignments(ctx context.Context) ([]model.BausteinAssignment, error) {
	spec, err := assets.Prompt("ground_truth", "extract_baustein_mappings")
	if err != nil {
		return nil, err
	}
	docs := m.deps.Finder.DocumentsForCategories([]model.DocumentCategory{model.CategoryModellierung})
	if len(docs) == 0 {
		return nil, errors.New("no Modellierung document available")
	}

	var all []model.BausteinAssignment
	for _, doc := range docs {
		raw, err := m.deps.Gen.GenerateStructured(ctx, ai.Request{
			Prompt:     spec.Prompt,
			SchemaName: spec.Schema,
			Documents:  m.deps.Finder.URLs([]string{doc}),
			Context:    "GT: extract_baustein_mappings",
			Model:      m.deps.Cfg.GroundTruthModel,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "extracting baustein mappings from %s", doc)
		}
		var result struct {
			Mappings []struct {
				BausteinID        string `json:"baustein_id"`
				ZielobjektKuerzel string `json:"zielobjekt_kuerzel"`
			} `json:"mappings"`
		}
		if err := ai.DecodeInto(raw, &result); err != nil {
			return nil, err
		}
		for _, mm := range result.Mappings {
			if mm.BausteinID == "" || mm.ZielobjektKuerzel == "" {
				continue
			}
			all = append(all, model.BausteinAssignment{
				BausteinID: mm.BausteinID,
				Kuerzel:    mm.ZielobjektKuerzel,
			})
		}
	}
	return all, nil
}

// consolidate applies the deterministic override rule, validates every
// assignment against the Zielobjekt set, injects the synthetic
// Informationsverbund, and dedupes. Pure so it can be tested without a
// model.
func consolidate(zielobjekte []model.Zielobjekt, verbundName string, assignments []model.BausteinAssignment) (model.SystemStructureMap, []string) {
	if verbundName == "" {
		verbundName = model.DefaultInformationsverbundName
	}

	out := model.SystemStructureMap{InformationsverbundName: verbundName}
	haveVerbund := false
	for _, z := range zielobjekte {
		if z.Kuerzel == model.KuerzelInformationsverbund {
			haveVerbund = true
		}
		out.Zielobjekte = append(out.Zielobjekte, z)
	}
	if !haveVerbund {
		out.Zielobjekte = append(out.Zielobjekte, model.Zielobjekt{
			Kuerzel: model.KuerzelInformationsverbund,
			Name:    verbundName,
		})
	}

	var warnings []string
	seen := make(map[model.BausteinAssignment]bool)
	for _, a := range assignments {
		// Process-layer bausteine are always modeled on the overall
		// Informationsverbund, whatever the document says.
		if model.IsInformationsverbundBaustein(a.BausteinID) {
			a.Kuerzel = model.KuerzelInformationsverbund
		}
		if !out.HasZielobjekt(a.Kuerzel) {
			warnings = append(warnings,
				"Baustein "+a.BausteinID+" ist dem unbekannten Zielobjekt '"+a.Kuerzel+"' zugeordnet; Zuordnung verworfen")
			continue
		}
		if seen[a] {
			continue
		}
		seen[a] = true
		out.BausteinAssignments = append(out.BausteinAssignments, a)
	}

	out.SortAssignments()
	sort.Strings(warnings)
	return out, warnings
}
