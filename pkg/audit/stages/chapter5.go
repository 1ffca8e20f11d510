// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/gscheck"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// noStatementText fills the customer-explanation column when the
// merged check data has nothing for a control/Zielobjekt pair.
const noStatementText = "Keine spezifische Angabe für dieses Zielobjekt im Grundschutz-Check gefunden."

// Chapter5 deterministically prepares the on-site audit checklists:
// per-control verification sheets (5.5.2) from the chapter-4 plan,
// the control catalog and the merged requirement data, and the
// risk-measure checklist (5.6.2). No model call is involved.
type Chapter5 struct{}

func (c *Chapter5) Name() string      { return NameChapter5 }
func (c *Chapter5) OutputKey() string { return ResultKey(NameChapter5) }

func (c *Chapter5) Prerequisites() []string {
	return []string{ResultKey(NameChapter4)}
}

func (c *Chapter5) Run(ctx context.Context, env *Env) (Result, error) {
	var chapter4 map[string]any
	if err := env.Store.ReadJSON(ctx, env.Cfg.OutputPrefix+ResultKey(NameChapter4), &chapter4); err != nil {
		return nil, errors.Wrap(err, "loading Chapter-4 result")
	}

	// The merged check data may be missing (extraction failed); the
	// checklist then carries no customer explanations but is still
	// produced.
	lookup := map[[2]string]model.Requirement{}
	reqs, err := gscheck.NewExtractor(env.GscheckDeps()).LoadMerged(ctx)
	switch {
	case err == nil:
		for _, r := range reqs {
			lookup[[2]string{r.AnforderungID, r.ZielobjektKuerzel}] = r
		}
		env.Log.Infof("loaded %d requirement/Zielobjekt pairs for checklist enrichment", len(lookup))
	case errors.Is(err, store.ErrNotFound):
		env.Log.Warn("merged check data not found; checklist will carry no customer explanations")
	default:
		return nil, err
	}

	return Result{
		"verifikationDesITGrundschutzChecks": map[string]any{
			"einzelergebnisse": map[string]any{
				"bausteinPruefungen": c.buildChecklist(env, chapter4, lookup),
			},
		},
		"risikoanalyseA5": map[string]any{
			"einzelergebnisseDerRisikoanalyse": map[string]any{
				"massnahmenPruefungen": c.buildMassnahmen(chapter4),
			},
		},
	}, nil
}

// bausteinSections are the chapter-4 sections that may carry a
// baustein selection; only the one matching the audit type is
// populated, the others are empty.
var bausteinSections = []string{
	"auswahlBausteineErstRezertifizierung",
	"auswahlBausteine1Ueberwachungsaudit",
	"auswahlBausteine2Ueberwachungsaudit",
}

func (c *Chapter5) buildChecklist(env *Env, chapter4 map[string]any, lookup map[[2]string]model.Requirement) []any {
	var selected []map[string]any
	for _, section := range bausteinSections {
		selected = append(selected, tableRows(chapter4, section)...)
	}
	if len(selected) == 0 {
		env.Log.Warn("no bausteine in Chapter-4 results; checklist 5.5.2 will be empty")
		return []any{}
	}

	pruefungen := make([]any, 0, len(selected))
	for _, row := range selected {
		bausteinID, _ := row["baustein"].(string)
		kuerzel, _ := row["zielobjekt_kuerzel"].(string)
		zielobjektName, _ := row["zielobjekt_name"].(string)
		if bausteinID == "" {
			continue
		}

		controls := env.Catalog.ControlsForBaustein(bausteinID)
		if len(controls) == 0 {
			env.Log.Warnf("no controls in catalog for baustein %s", bausteinID)
		}

		anforderungen := make([]any, 0, len(controls))
		for _, ctrl := range controls {
			explanation := noStatementText
			bewertung := "N/A"
			if req, ok := lookup[[2]string{ctrl.ID, kuerzel}]; ok {
				if req.Umsetzungserlaeuterung != "" {
					explanation = req.Umsetzungserlaeuterung
				}
				if req.Umsetzungsstatus != "" {
					bewertung = string(req.Umsetzungsstatus)
				}
			}
			anforderungen = append(anforderungen, map[string]any{
				"nummer":            ctrl.ID,
				"anforderung":       ctrl.Title,
				"bewertung":         bewertung,
				"dokuAntragsteller": explanation,
				"pruefmethode": map[string]any{
					"D": false, "I": false, "C": false, "S": false, "A": false, "B": false,
				},
				"auditfeststellung": "",
				"abweichungen":      "",
			})
		}

		pruefungen = append(pruefungen, map[string]any{
			"baustein":            bausteinID + " " + env.Catalog.BausteinTitle(bausteinID),
			"bezogenAufZielobjekt": zielobjektName,
			"auditiertAm":         "",
			"auditor":             "",
			"befragtWurde":        "",
			"anforderungen":       anforderungen,
		})
	}
	env.Log.Infof("generated checklist with %d baustein entries", len(pruefungen))
	return pruefungen
}

func (c *Chapter5) buildMassnahmen(chapter4 map[string]any) []any {
	rows := tableRows(chapter4, "auswahlMassnahmenAusRisikoanalyse")
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		massnahme, _ := row["massnahme"].(string)
		zielobjekt, _ := row["zielobjekt"].(string)
		out = append(out, map[string]any{
			"massnahme":  massnahme,
			"zielobjekt": zielobjekt,
			"bewertung":  "",
			"pruefmethode": map[string]any{
				"D": false, "I": false, "C": false, "S": false, "A": false, "B": false,
			},
			"auditfeststellung": "",
			"abweichungen":      "",
		})
	}
	return out
}

// tableRows digs section.table.rows out of a chapter result.
func tableRows(result map[string]any, section string) []map[string]any {
	sectionData, _ := result[section].(map[string]any)
	table, _ := sectionData["table"].(map[string]any)
	rawRows, _ := table["rows"].([]any)
	var out []map[string]any
	for _, r := range rawRows {
		if row, ok := r.(map[string]any); ok {
			out = append(out, row)
		}
	}
	return out
}
