// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package audit

import (
	"strings"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// findingCollector owns the central findings list. Stage runners emit
// value copies inside their results; the controller is the only
// mutator. IDs are assigned serially when the list is persisted, so
// concurrent stage subtasks never race on numbering.
type findingCollector struct {
	findings []model.Finding
	counters map[model.FindingCategory]int
}

func newFindingCollector() *findingCollector {
	return &findingCollector{counters: make(map[model.FindingCategory]int)}
}

// seed loads previously persisted findings, drops the ones owned by
// the stage about to run (they will be re-emitted), and rebuilds the
// per-category counters from the IDs that remain.
func (fc *findingCollector) seed(existing []model.Finding, stageName string) {
	fc.findings = fc.findings[:0]
	fc.counters = make(map[model.FindingCategory]int)

	sourceRef := sourceChapterOf(stageName)
	for _, f := range existing {
		if stageName == stageScanReport {
			if strings.HasPrefix(f.SourceChapter, previousAuditPrefix) {
				continue
			}
		} else if f.SourceChapter == sourceRef {
			continue
		}
		fc.findings = append(fc.findings, f)
	}
	fc.rebuildCounters()
}

func (fc *findingCollector) rebuildCounters() {
	for _, f := range fc.findings {
		if category, n, ok := model.ParseFindingID(f.ID); ok {
			if n > fc.counters[category] {
				fc.counters[category] = n
			}
		}
	}
}

// addPrevious ingests findings carried over from a scanned previous
// report, preserving their original IDs and advancing the counters so
// new IDs continue after them.
func (fc *findingCollector) addPrevious(f model.Finding) {
	if f.ID == "" {
		return
	}
	if category, n, ok := model.ParseFindingID(f.ID); ok && n > fc.counters[category] {
		fc.counters[category] = n
	}
	fc.findings = append(fc.findings, f)
}

// addNew records a freshly emitted finding. The ID is assigned on
// save.
func (fc *findingCollector) addNew(f model.Finding) {
	fc.findings = append(fc.findings, f)
}

// finalized returns the full list with IDs assigned and duplicates
// (same category and normalized description) collapsed.
func (fc *findingCollector) finalized() []model.Finding {
	type dupKey struct {
		category model.FindingCategory
		desc     string
	}
	seen := make(map[dupKey]bool)

	out := make([]model.Finding, 0, len(fc.findings))
	for _, f := range fc.findings {
		k := dupKey{f.Category, model.NormalizeDescription(f.Description)}
		if seen[k] {
			continue
		}
		seen[k] = true
		if f.ID == "" {
			fc.counters[f.Category]++
			f.ID = model.FormatFindingID(f.Category, fc.counters[f.Category])
		}
		out = append(out, f)
	}
	return out
}

// extractFindings walks a chapter result and returns every embedded
// finding object whose category is not OK. The all_findings key of the
// previous-report scan is handled separately by the controller and is
// not visited here.
func extractFindings(data any) []model.Finding {
	var out []model.Finding
	switch node := data.(type) {
	case map[string]any:
		if raw, ok := node["finding"].(map[string]any); ok {
			if f, ok := findingFromMap(raw); ok && f.Category != model.FindingOK {
				out = append(out, f)
			}
		}
		for key, value := range node {
			if key == "all_findings" {
				continue
			}
			out = append(out, extractFindings(value)...)
		}
	case []any:
		for _, item := range node {
			out = append(out, extractFindings(item)...)
		}
	}
	return out
}

func findingFromMap(raw map[string]any) (model.Finding, bool) {
	category, _ := raw["category"].(string)
	description, _ := raw["description"].(string)
	if category == "" || description == "" {
		return model.Finding{}, false
	}
	return model.Finding{
		Category:    model.FindingCategory(category),
		Description: description,
	}, true
}

// previousFindingFromMap decodes one entry of the scanned previous
// report's findings list.
func previousFindingFromMap(raw map[string]any) (model.Finding, bool) {
	nummer, _ := raw["nummer"].(string)
	category, _ := raw["category"].(string)
	beschreibung, _ := raw["beschreibung"].(string)
	if nummer == "" || category == "" {
		return model.Finding{}, false
	}
	status, _ := raw["status"].(string)
	frist, _ := raw["behebungsfrist"].(string)
	quelle, _ := raw["quelle"].(string)
	if quelle == "" {
		quelle = "N/A"
	}
	return model.Finding{
		ID:             nummer,
		Category:       model.FindingCategory(category),
		Description:    beschreibung,
		SourceChapter:  previousAuditPrefix + " (" + quelle + ")",
		Status:         status,
		Behebungsfrist: frist,
	}, true
}
