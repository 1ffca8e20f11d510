// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package report assembles the final audit report. It is strictly
// deterministic: it merges the persisted chapter results and the
// central findings list into a populated copy of the embedded report
// blueprint. It never calls the model or the document finder. Missing
// blueprint slots are logged as structured warnings and skipped.
package report

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/stages"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/config"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// FinalReportKey is the artifact name of the assembled report,
// relative to the output prefix.
const FinalReportKey = "final_audit_report.json"

// chaptersToAggregate lists the stages whose results populate the
// blueprint, in population order.
var chaptersToAggregate = []string{
	stages.NameChapter1,
	stages.NameChapter3,
	stages.NameChapter4,
	stages.NameChapter5,
	stages.NameChapter7,
}

// Generator assembles the final report.
type Generator struct {
	cfg   config.Config
	store store.Store
	log   *logrus.Entry
	now   func() time.Time
}

// New builds a generator.
func New(cfg config.Config, st store.Store, log *logrus.Entry) *Generator {
	return &Generator{cfg: cfg, store: st, log: log, now: time.Now}
}

// Assemble merges every available chapter result and the findings
// list into the blueprint and writes final_audit_report.json. Missing
// chapter results are skipped with a warning; the report is generated
// from whatever succeeded.
func (g *Generator) Assemble(ctx context.Context) error {
	var blueprint map[string]any
	if err := json.Unmarshal(assets.ReportTemplate(), &blueprint); err != nil {
		return errors.Wrap(err, "parsing report template")
	}

	report := dig(blueprint, "bsiAuditReport")
	if report == nil {
		return errors.New("report template has no bsiAuditReport root")
	}
	if title := dig(report, "titlePage"); title != nil {
		title["auditType"] = g.cfg.AuditType
		title["reportDate"] = g.now().Format("2006-01-02")
	}

	for _, stage := range chaptersToAggregate {
		var result map[string]any
		key := g.cfg.OutputPrefix + stages.ResultKey(stage)
		if err := g.store.ReadJSON(ctx, key, &result); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				g.log.Warnf("result for stage %s not found; its sections stay placeholder", stage)
				continue
			}
			return err
		}
		g.populate(report, stage, result)
	}

	if err := g.populateFindings(ctx, report); err != nil {
		return err
	}

	finalKey := g.cfg.OutputPrefix + FinalReportKey
	if err := g.store.WriteJSON(ctx, finalKey, blueprint); err != nil {
		return err
	}
	g.log.Infof("final report assembled at %s", finalKey)
	return nil
}

func (g *Generator) populate(report map[string]any, stage string, result map[string]any) {
	g.log.Infof("populating report with data from stage %s", stage)
	switch stage {
	case stages.NameChapter1:
		g.populateChapter1(report, result)
	case stages.NameChapter3:
		g.populateChapter3(report, result)
	case stages.NameChapter4:
		g.populateChapter4(report, result)
	case stages.NameChapter5:
		g.populateChapter5(report, result)
	case stages.NameChapter7:
		g.populateChapter7(report, result)
	}
}

func (g *Generator) populateChapter1(report, result map[string]any) {
	target := dig(report, "allgemeines")
	source := dig(result, "allgemeines")
	if target == nil || source == nil {
		g.log.Warn("chapter 1: missing allgemeines section in template or result")
		return
	}
	for key, value := range source {
		section, _ := value.(map[string]any)
		if section == nil {
			continue
		}
		slot := dig(target, key)
		if slot == nil {
			g.log.Warnf("chapter 1: no template slot for %q", key)
			continue
		}
		if content, ok := section["content"]; ok {
			slot["content"] = content
		}
		if key == "auditierteInstitution" {
			if title := dig(report, "titlePage"); title != nil {
				if content, ok := section["content"].(string); ok && content != "" {
					title["auditedInstitution"] = content
				}
			}
		}
	}
}

func (g *Generator) populateChapter3(report, result map[string]any) {
	chapter := dig(report, "dokumentenpruefung")
	if chapter == nil {
		g.log.Warn("chapter 3: template has no dokumentenpruefung section")
		return
	}
	for key, value := range result {
		data, ok := value.(map[string]any)
		if !ok {
			continue
		}
		target := findSubchapter(chapter, key)
		if target == nil {
			g.log.Warnf("chapter 3: no template slot for subchapter %q", key)
			continue
		}
		if verdict, ok := data["verdict"]; ok {
			target["verdict"] = verdict
			continue
		}
		populateContent(target, data, g.log)
	}
}

// populateContent writes answers and the finding text into a
// subchapter's content list.
func populateContent(target, data map[string]any, log *logrus.Entry) {
	content, _ := target["content"].([]any)

	if finding, ok := data["finding"].(map[string]any); ok {
		category, _ := finding["category"].(string)
		description, _ := finding["description"].(string)
		text := "[" + category + "] " + description
		for _, item := range content {
			entry, _ := item.(map[string]any)
			if entry != nil && entry["type"] == "finding" {
				entry["findingText"] = text
				break
			}
		}
	}

	answers, _ := data["answers"].([]any)
	idx := 0
	for _, item := range content {
		entry, _ := item.(map[string]any)
		if entry == nil || entry["type"] != "question" {
			continue
		}
		if idx >= len(answers) {
			log.Warnf("not enough answers for questions in subchapter (have %d)", len(answers))
			break
		}
		entry["answer"] = formatAnswer(answers[idx])
		idx++
	}
}

// formatAnswer renders boolean answers as Ja/Nein; strings pass
// through.
func formatAnswer(a any) any {
	if b, ok := a.(bool); ok {
		if b {
			return "Ja"
		}
		return "Nein"
	}
	return a
}

func (g *Generator) populateChapter4(report, result map[string]any) {
	planning := dig(report, "erstellungEinesPruefplans", "auditplanung")
	if planning == nil {
		g.log.Warn("chapter 4: template has no auditplanung section")
		return
	}
	for key, value := range result {
		data, ok := value.(map[string]any)
		if !ok {
			continue
		}
		table, ok := data["table"].(map[string]any)
		if !ok {
			continue
		}
		slot := dig(planning, key)
		if slot == nil {
			g.log.Warnf("chapter 4: no template slot for %q", key)
			continue
		}
		slotTable := dig(slot, "table")
		if slotTable == nil {
			g.log.Warnf("chapter 4: slot %q has no table", key)
			continue
		}
		slotTable["rows"] = table["rows"]
	}
}

func (g *Generator) populateChapter5(report, result map[string]any) {
	chapter := dig(report, "vorOrtAudit")
	if chapter == nil {
		g.log.Warn("chapter 5: template has no vorOrtAudit section")
		return
	}
	if data := dig(result, "verifikationDesITGrundschutzChecks", "einzelergebnisse"); data != nil {
		if target := dig(chapter, "verifikationDesITGrundschutzChecks", "einzelergebnisse"); target != nil {
			target["bausteinPruefungen"] = data["bausteinPruefungen"]
		} else {
			g.log.Warn("chapter 5: no template slot for verifikationDesITGrundschutzChecks")
		}
	}
	if data := dig(result, "risikoanalyseA5", "einzelergebnisseDerRisikoanalyse"); data != nil {
		if target := dig(chapter, "risikoanalyseA5", "einzelergebnisseDerRisikoanalyse"); target != nil {
			target["massnahmenPruefungen"] = data["massnahmenPruefungen"]
		} else {
			g.log.Warn("chapter 5: no template slot for risikoanalyseA5")
		}
	}
}

func (g *Generator) populateChapter7(report, result map[string]any) {
	if data := dig(result, "referenzdokumente", "table"); data != nil {
		if target := dig(report, "anhang", "referenzdokumente", "table"); target != nil {
			target["rows"] = data["rows"]
		} else {
			g.log.Warn("chapter 7: no template slot for referenzdokumente")
		}
	}
}

// populateFindings fills the three 7.2 deviation tables from the
// central findings list, ordered by ID within category.
func (g *Generator) populateFindings(ctx context.Context, report map[string]any) error {
	var findings []model.Finding
	err := g.store.ReadJSON(ctx, g.cfg.OutputPrefix+audit.AllFindingsKey, &findings)
	if errors.Is(err, store.ErrNotFound) {
		g.log.Warn("central findings file not found; chapter 7.2 stays empty")
		return nil
	}
	if err != nil {
		return err
	}

	sort.Slice(findings, func(i, j int) bool {
		_, ni, _ := model.ParseFindingID(findings[i].ID)
		_, nj, _ := model.ParseFindingID(findings[j].ID)
		return ni < nj
	})

	section := dig(report, "anhang", "abweichungenUndEmpfehlungen")
	if section == nil {
		g.log.Warn("chapter 7.2: template has no abweichungenUndEmpfehlungen section")
		return nil
	}
	targets := map[model.FindingCategory]string{
		model.FindingAG: "geringfuegigeAbweichungen",
		model.FindingAS: "schwerwiegendeAbweichungen",
		model.FindingE:  "empfehlungen",
	}
	rows := map[model.FindingCategory][]any{}
	for _, f := range findings {
		if _, ok := targets[f.Category]; !ok {
			continue
		}
		row := map[string]any{
			"nr":           f.ID,
			"beschreibung": f.Description,
			"quelle":       f.SourceChapter,
		}
		if f.Status != "" {
			row["status"] = f.Status
		}
		rows[f.Category] = append(rows[f.Category], row)
	}
	total := 0
	for category, slotName := range targets {
		table := dig(section, slotName, "table")
		if table == nil {
			g.log.Warnf("chapter 7.2: no template slot for %q", slotName)
			continue
		}
		categoryRows := rows[category]
		if categoryRows == nil {
			categoryRows = []any{}
		}
		table["rows"] = categoryRows
		total += len(categoryRows)
	}
	g.log.Infof("populated chapter 7.2 with %d findings", total)
	return nil
}

// dig walks nested maps by key path, nil when any hop is missing.
func dig(node map[string]any, path ...string) map[string]any {
	current := node
	for _, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// findSubchapter locates a subchapter slot anywhere under the chapter
// tree (chapter 3 nests some subchapters one level deeper).
func findSubchapter(chapter map[string]any, key string) map[string]any {
	if found := dig(chapter, key); found != nil {
		return found
	}
	for _, value := range chapter {
		child, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if found := dig(child, key); found != nil {
			return found
		}
	}
	return nil
}
