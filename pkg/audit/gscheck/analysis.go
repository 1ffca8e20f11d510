// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package gscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// maxCheckAge is the allowed age of datum_letzte_pruefung (Q5).
const maxCheckAge = 365 * 24 * time.Hour

// AnalysisResult answers the five 3.6.1 questions over the merged
// requirement list and carries the consolidated finding.
type AnalysisResult struct {
	Answers [5]bool       `json:"answers"`
	Finding model.Finding `json:"finding"`
}

// Analyzer runs the targeted analysis (Phase E) consumed by
// subchapter 3.6.1.
type Analyzer struct {
	deps Deps
	now  func() time.Time
}

// NewAnalyzer returns an analyzer over the given dependencies.
func NewAnalyzer(deps Deps) *Analyzer {
	return &Analyzer{deps: deps, now: time.Now}
}

// Run evaluates the five questions. Q1 and Q5 are deterministic; Q2,
// Q3 and Q4 send targeted slices of the merged list to the model. A
// failed model call degrades the respective answer to false with a
// warning finding rather than failing the stage.
func (a *Analyzer) Run(ctx context.Context, reqs []model.Requirement) (AnalysisResult, error) {
	var result AnalysisResult
	var findings []model.Finding

	// Q1: every requirement has an Umsetzungsstatus.
	missing := 0
	for _, r := range reqs {
		if !model.ValidStatus(r.Umsetzungsstatus) {
			missing++
		}
	}
	result.Answers[0] = missing == 0
	if missing > 0 {
		findings = append(findings, model.Finding{
			Category: model.FindingAG,
			Description: fmt.Sprintf(
				"Für %d Anforderungen wurde kein gültiger Umsetzungsstatus erhoben.", missing),
		})
	}

	// Q2: plausibility of Entbehrlich justifications.
	result.Answers[1] = a.checkEntbehrlich(ctx, reqs, &findings)

	// Q3: Level-1 MUSS requirements implemented.
	result.Answers[2] = a.checkMuss(ctx, reqs, &findings)

	// Q4: unmet requirements covered by the Realisierungsplan.
	result.Answers[3] = a.checkRealisierungsplan(ctx, reqs, &findings)

	// Q5: last check within 12 months of the run.
	outdated := 0
	cutoff := a.now().Add(-maxCheckAge)
	for _, r := range reqs {
		t, ok := r.LastChecked()
		if !ok || t.Before(cutoff) {
			outdated++
		}
	}
	result.Answers[4] = outdated == 0
	if outdated > 0 {
		findings = append(findings, model.Finding{
			Category: model.FindingAG,
			Description: fmt.Sprintf(
				"Die letzte Prüfung von %d Anforderungen liegt mehr als 12 Monate zurück oder ist nicht dokumentiert.", outdated),
		})
	}

	result.Finding = consolidateFindings(findings)
	return result, nil
}

func (a *Analyzer) checkEntbehrlich(ctx context.Context, reqs []model.Requirement, findings *[]model.Finding) bool {
	var items []model.Requirement
	for _, r := range reqs {
		if r.Umsetzungsstatus == model.StatusEntbehrlich {
			items = append(items, r)
		}
	}
	if len(items) == 0 {
		return true
	}

	var verdicts struct {
		Items []struct {
			AnforderungID     string `json:"anforderung_id"`
			ZielobjektKuerzel string `json:"zielobjekt_kuerzel"`
			Plausible         bool   `json:"plausible"`
			Rationale         string `json:"rationale"`
		} `json:"items"`
	}
	if !a.targetedCall(ctx, "entbehrlich_plausibility", "3.6.1-Q2", items, nil, &verdicts, findings) {
		return false
	}

	var implausible []string
	for _, v := range verdicts.Items {
		if !v.Plausible {
			implausible = append(implausible, v.AnforderungID+" ("+v.ZielobjektKuerzel+")")
		}
	}
	if len(implausible) > 0 {
		*findings = append(*findings, model.Finding{
			Category: model.FindingAG,
			Description: "Die Entbehrlichkeitsbegründungen folgender Anforderungen sind nicht plausibel: " +
				strings.Join(implausible, ", ") + ".",
		})
		return false
	}
	return true
}

func (a *Analyzer) checkMuss(ctx context.Context, reqs []model.Requirement, findings *[]model.Finding) bool {
	mussIDs := a.deps.Catalog.Level1MussIDs()
	var mussReqs []model.Requirement
	notJa := 0
	for _, r := range reqs {
		if !mussIDs[r.AnforderungID] {
			continue
		}
		mussReqs = append(mussReqs, r)
		if r.Umsetzungsstatus != model.StatusJa {
			notJa++
		}
	}
	if len(mussReqs) == 0 {
		return true
	}
	if notJa > 0 {
		*findings = append(*findings, model.Finding{
			Category: model.FindingAS,
			Description: fmt.Sprintf(
				"%d MUSS-Anforderungen der Basis-Absicherung sind nicht mit Status 'Ja' umgesetzt.", notJa),
		})
		return false
	}

	// All MUSS items claim 'Ja'; the model confirms the wording of the
	// explanations where the deterministic check cannot.
	var verdicts struct {
		Items []struct {
			AnforderungID     string `json:"anforderung_id"`
			ZielobjektKuerzel string `json:"zielobjekt_kuerzel"`
			Erfuellt          bool   `json:"erfuellt"`
			Anmerkung         string `json:"anmerkung"`
		} `json:"items"`
	}
	if !a.targetedCall(ctx, "muss_confirmation", "3.6.1-Q3", mussReqs, nil, &verdicts, findings) {
		return false
	}
	var doubtful []string
	for _, v := range verdicts.Items {
		if !v.Erfuellt {
			doubtful = append(doubtful, v.AnforderungID+" ("+v.ZielobjektKuerzel+")")
		}
	}
	if len(doubtful) > 0 {
		*findings = append(*findings, model.Finding{
			Category: model.FindingAS,
			Description: "Die Umsetzung folgender MUSS-Anforderungen ist dem Wortlaut nach zweifelhaft: " +
				strings.Join(doubtful, ", ") + ".",
		})
		return false
	}
	return true
}

func (a *Analyzer) checkRealisierungsplan(ctx context.Context, reqs []model.Requirement, findings *[]model.Finding) bool {
	var unmet []model.Requirement
	for _, r := range reqs {
		if r.Umsetzungsstatus == model.StatusNein || r.Umsetzungsstatus == model.StatusTeilweise {
			unmet = append(unmet, r)
		}
	}
	if len(unmet) == 0 {
		return true
	}

	planDocs := a.deps.Finder.DocumentsForCategories(
		[]model.DocumentCategory{model.CategoryRealisierungsplan})
	if !a.deps.Finder.HasCategory(model.CategoryRealisierungsplan) {
		*findings = append(*findings, model.Finding{
			Category: model.FindingAG,
			Description: fmt.Sprintf(
				"%d Anforderungen sind nicht oder nur teilweise umgesetzt, aber es liegt kein Realisierungsplan (A.6) vor.", len(unmet)),
		})
		return false
	}

	var verdicts struct {
		Items []struct {
			AnforderungID     string `json:"anforderung_id"`
			ZielobjektKuerzel string `json:"zielobjekt_kuerzel"`
			Covered           bool   `json:"covered"`
			EvidenceSnippet   string `json:"evidence_snippet"`
		} `json:"items"`
	}
	if !a.targetedCall(ctx, "realisierungsplan_coverage", "3.6.1-Q4", unmet,
		a.deps.Finder.URLs(planDocs), &verdicts, findings) {
		return false
	}
	var uncovered []string
	for _, v := range verdicts.Items {
		if !v.Covered {
			uncovered = append(uncovered, v.AnforderungID+" ("+v.ZielobjektKuerzel+")")
		}
	}
	if len(uncovered) > 0 {
		*findings = append(*findings, model.Finding{
			Category: model.FindingAG,
			Description: "Folgende nicht oder teilweise umgesetzte Anforderungen sind im Realisierungsplan nicht dokumentiert: " +
				strings.Join(uncovered, ", ") + ".",
		})
		return false
	}
	return true
}

// targetedCall sends a slice of requirements through one of the
// targeted gs_check prompts and decodes the per-item verdicts. On
// failure it records a warning finding and returns false.
func (a *Analyzer) targetedCall(ctx context.Context, task, label string, items []model.Requirement, docs []string, out any, findings *[]model.Finding) bool {
	spec, err := assets.Prompt("gs_check", task)
	if err != nil {
		a.deps.Log.Errorf("[%s] prompt unavailable: %v", label, err)
		return false
	}
	if a.deps.Cfg.TestMode {
		// At most 10% of items in any generation step, but always at
		// least one.
		limit := len(items) / 10
		if limit < 1 {
			limit = 1
		}
		if len(items) > limit {
			a.deps.Log.Warnf("[%s] test mode: limiting %d items to %d", label, len(items), limit)
			items = items[:limit]
		}
	}
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		a.deps.Log.Errorf("[%s] marshaling items: %v", label, err)
		return false
	}
	raw, err := a.deps.Gen.GenerateStructured(ctx, ai.Request{
		Prompt:     spec.Render(map[string]string{"json_data": string(payload)}),
		SchemaName: spec.Schema,
		Documents:  docs,
		Context:    label,
	})
	if err != nil {
		a.deps.Log.Errorf("[%s] targeted analysis failed: %v", label, err)
		*findings = append(*findings, model.Finding{
			Category:    model.FindingAG,
			Description: fmt.Sprintf("Die automatische Prüfung %s konnte nicht durchgeführt werden.", label),
		})
		return false
	}
	if err := ai.DecodeInto(raw, out); err != nil {
		a.deps.Log.Errorf("[%s] malformed verdicts: %v", label, err)
		return false
	}
	return true
}

// consolidateFindings collapses the per-question findings into the
// single finding reported under 3.6.1. AS wins over AG.
func consolidateFindings(findings []model.Finding) model.Finding {
	if len(findings) == 0 {
		return model.Finding{
			Category:    model.FindingOK,
			Description: "Alle Prüfungen zum IT-Grundschutz-Check waren erfolgreich.",
		}
	}
	category := model.FindingAG
	var parts []string
	for _, f := range findings {
		if f.Category == model.FindingAS {
			category = model.FindingAS
		}
		parts = append(parts, f.Description)
	}
	return model.Finding{
		Category:    category,
		Description: "Zusammenfassung: " + strings.Join(parts, " | "),
	}
}
