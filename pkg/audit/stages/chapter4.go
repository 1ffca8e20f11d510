// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/gscheck"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/config"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// bausteinSectionByAuditType maps the audit type to the blueprint
// section its baustein selection populates, and to the prompt task
// that generates it.
var bausteinSectionByAuditType = map[string]struct {
	section string
	task    string
	minRows int
}{
	config.AuditTypeZertifizierung: {"auswahlBausteineErstRezertifizierung", "bausteine_zertifizierung", 6},
	config.AuditTypeUeberwachung1:  {"auswahlBausteine1Ueberwachungsaudit", "bausteine_ueberwachung_1", 3},
	config.AuditTypeUeberwachung2:  {"auswahlBausteine2Ueberwachungsaudit", "bausteine_ueberwachung_2", 3},
}

// BausteinRow is one row of the chapter-4 baustein selection table.
type BausteinRow struct {
	Baustein          string `json:"baustein"`
	ZielobjektKuerzel string `json:"zielobjekt_kuerzel"`
	ZielobjektName    string `json:"zielobjekt_name,omitempty"`
	Begruendung       string `json:"begruendung"`
}

// Chapter4 produces the audit plan: the audit-type-specific baustein
// selection, the deterministic site table, and the risk-analysis
// measure selection. Every selected (baustein, zielobjekt) pair is
// validated against the system structure map; rows the model invented
// are dropped with a warning finding.
type Chapter4 struct{}

func (c *Chapter4) Name() string      { return NameChapter4 }
func (c *Chapter4) OutputKey() string { return ResultKey(NameChapter4) }

func (c *Chapter4) Prerequisites() []string {
	return []string{gscheck.SystemMapKey}
}

func (c *Chapter4) Run(ctx context.Context, env *Env) (Result, error) {
	var systemMap model.SystemStructureMap
	if err := env.Store.ReadJSON(ctx, env.Cfg.OutputPrefix+gscheck.SystemMapKey, &systemMap); err != nil {
		return nil, err
	}

	variant, ok := bausteinSectionByAuditType[env.Cfg.AuditType]
	if !ok {
		return nil, fmt.Errorf("no baustein selection defined for audit type %q", env.Cfg.AuditType)
	}

	results := Result{
		// 4.1.4 is deterministic: a single-site audit plan covering
		// the central location.
		"auswahlStandorte": map[string]any{
			"table": map[string]any{
				"rows": []any{
					map[string]any{
						"standort":    "Hauptstandort",
						"begruendung": "Zentraler Standort mit kritischer Infrastruktur.",
					},
				},
			},
		},
	}

	rows, warnings, err := c.selectBausteine(ctx, env, systemMap, variant.task, variant.minRows)
	if err != nil {
		return nil, err
	}
	results[variant.section] = map[string]any{"table": map[string]any{"rows": rows}}
	if len(warnings) > 0 {
		results["warnings"] = warningNodes(string(model.FindingE), warnings)
	}

	massnahmen := c.selectMassnahmen(ctx, env)
	results["auswahlMassnahmenAusRisikoanalyse"] = map[string]any{
		"table": map[string]any{"rows": massnahmen},
	}

	return results, nil
}

// selectBausteine asks the model for the selection and enforces that
// every pair exists in the system structure map.
func (c *Chapter4) selectBausteine(ctx context.Context, env *Env, systemMap model.SystemStructureMap, task string, minRows int) ([]any, []string, error) {
	spec, err := assets.Prompt("chapter_4", task)
	if err != nil {
		return nil, nil, err
	}

	mapJSON, err := json.MarshalIndent(systemMap, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	previous := c.previousBausteine(ctx, env)

	raw, err := env.Gen.GenerateStructured(ctx, ai.Request{
		Prompt: spec.Render(map[string]string{
			"system_map_json":    string(mapJSON),
			"previous_bausteine": previous,
		}),
		SchemaName: spec.Schema,
		Context:    NameChapter4 + ": " + task,
		Model:      env.Cfg.GroundTruthModel,
	})
	if err != nil {
		return nil, nil, err
	}
	var selection struct {
		Rows []BausteinRow `json:"rows"`
	}
	if err := ai.DecodeInto(raw, &selection); err != nil {
		return nil, nil, err
	}

	var rows []any
	var warnings []string
	for _, row := range selection.Rows {
		if !systemMap.HasAssignment(row.Baustein, row.ZielobjektKuerzel) {
			warnings = append(warnings, fmt.Sprintf(
				"Prüfplan: Auswahl (%s, %s) ist nicht Teil der Modellierung und wurde verworfen.",
				row.Baustein, row.ZielobjektKuerzel))
			continue
		}
		row.ZielobjektName = systemMap.ZielobjektName(row.ZielobjektKuerzel)
		rows = append(rows, map[string]any{
			"baustein":           row.Baustein,
			"zielobjekt_kuerzel": row.ZielobjektKuerzel,
			"zielobjekt_name":    row.ZielobjektName,
			"begruendung":        row.Begruendung,
		})
	}
	if len(rows) < minRows {
		warnings = append(warnings, fmt.Sprintf(
			"Prüfplan: Nur %d gültige Bausteinauswahlen (gefordert: mindestens %d).",
			len(rows), minRows))
	}
	env.Log.Infof("baustein selection: %d valid rows, %d dropped", len(rows), len(selection.Rows)-len(rows))
	return rows, warnings, nil
}

// previousBausteine renders the bausteine audited last time, taken
// from the previous-report scan when present.
func (c *Chapter4) previousBausteine(ctx context.Context, env *Env) string {
	var scan map[string]any
	if err := env.Store.ReadJSON(ctx, env.Cfg.OutputPrefix+ResultKey(NameScanReport), &scan); err != nil {
		return "Keine Angaben zum letzten Audit verfügbar."
	}
	extract, ok := scan["extract_chapter_4"].(map[string]any)
	if !ok {
		return "Keine Angaben zum letzten Audit verfügbar."
	}
	data, err := json.MarshalIndent(extract, "", "  ")
	if err != nil {
		return "Keine Angaben zum letzten Audit verfügbar."
	}
	return string(data)
}

// selectMassnahmen picks measures from the risk analysis. Without a
// classified Risikoanalyse document the table stays empty.
func (c *Chapter4) selectMassnahmen(ctx context.Context, env *Env) []any {
	if !env.Finder.HasCategory(model.CategoryRisikoanalyse) {
		env.Log.Warn("no Risikoanalyse document; measure selection stays empty")
		return []any{}
	}
	spec, err := assets.Prompt("chapter_4", "massnahmen_risikoanalyse")
	if err != nil {
		env.Log.Errorf("measure selection unavailable: %v", err)
		return []any{}
	}
	docs := env.Finder.DocumentsForCategories(
		[]model.DocumentCategory{model.CategoryRisikoanalyse})

	raw, err := env.Gen.GenerateStructured(ctx, ai.Request{
		Prompt:     spec.Prompt,
		SchemaName: spec.Schema,
		Documents:  env.Finder.URLs(docs),
		Context:    NameChapter4 + ": massnahmen_risikoanalyse",
	})
	if err != nil {
		env.Log.Errorf("measure selection failed: %v", err)
		return []any{}
	}
	var selection struct {
		Rows []map[string]any `json:"rows"`
	}
	if err := ai.DecodeInto(raw, &selection); err != nil {
		env.Log.Errorf("measure selection malformed: %v", err)
		return []any{}
	}
	rows := make([]any, 0, len(selection.Rows))
	for _, r := range selection.Rows {
		rows = append(rows, r)
	}
	return rows
}
