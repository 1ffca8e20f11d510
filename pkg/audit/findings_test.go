// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package audit

import (
	"testing"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// --- findingCollector ---

func TestCollectorAssignsSequentialIDsPerCategory(t *testing.T) {
	t.Parallel()
	fc := newFindingCollector()
	fc.addNew(model.Finding{Category: model.FindingAG, Description: "erste Abweichung"})
	fc.addNew(model.Finding{Category: model.FindingE, Description: "eine Empfehlung"})
	fc.addNew(model.Finding{Category: model.FindingAG, Description: "zweite Abweichung"})

	out := fc.finalized()
	if len(out) != 3 {
		t.Fatalf("got %d findings, want 3", len(out))
	}
	byID := map[string]model.Finding{}
	for _, f := range out {
		byID[f.ID] = f
	}
	for _, id := range []string{"AG-01", "AG-02", "E-01"} {
		if _, ok := byID[id]; !ok {
			t.Errorf("ID %s missing: %v", id, byID)
		}
	}
}

func TestCollectorContinuesAfterPreservedIDs(t *testing.T) {
	t.Parallel()
	fc := newFindingCollector()
	fc.addPrevious(model.Finding{
		ID: "AG-3", Category: model.FindingAG, Description: "alt",
		SourceChapter: previousAuditPrefix + " (7.2)",
	})
	fc.addNew(model.Finding{Category: model.FindingAG, Description: "neu"})

	out := fc.finalized()
	if len(out) != 2 {
		t.Fatalf("got %d findings, want 2", len(out))
	}
	if out[0].ID != "AG-3" {
		t.Errorf("preserved ID changed: %q", out[0].ID)
	}
	if out[1].ID != "AG-04" {
		t.Errorf("new ID = %q, want AG-04 (continuing after AG-3)", out[1].ID)
	}
}

func TestCollectorDedupesByCategoryAndDescription(t *testing.T) {
	t.Parallel()
	fc := newFindingCollector()
	fc.addNew(model.Finding{Category: model.FindingAG, Description: "Die Prüfung  fehlt."})
	fc.addNew(model.Finding{Category: model.FindingAG, Description: "die prüfung fehlt."})
	fc.addNew(model.Finding{Category: model.FindingE, Description: "Die Prüfung fehlt."})

	out := fc.finalized()
	if len(out) != 2 {
		t.Fatalf("got %d findings, want 2 (duplicate collapsed): %v", len(out), out)
	}
}

func TestCollectorSeedRemovesOwnStageFindings(t *testing.T) {
	t.Parallel()
	existing := []model.Finding{
		{ID: "AG-01", Category: model.FindingAG, Description: "aus Kapitel 3", SourceChapter: "3"},
		{ID: "AG-02", Category: model.FindingAG, Description: "aus Kapitel 4", SourceChapter: "4"},
	}
	fc := newFindingCollector()
	fc.seed(existing, "Chapter-3")

	if len(fc.findings) != 1 || fc.findings[0].SourceChapter != "4" {
		t.Fatalf("seed kept %v", fc.findings)
	}
	// Counter reflects the surviving AG-02, so a re-emitted chapter-3
	// finding gets AG-03.
	fc.addNew(model.Finding{Category: model.FindingAG, Description: "neu aus Kapitel 3", SourceChapter: "3"})
	out := fc.finalized()
	if out[1].ID != "AG-03" {
		t.Errorf("re-emitted ID = %q, want AG-03", out[1].ID)
	}
}

func TestCollectorSeedRemovesPreviousAuditForScanReport(t *testing.T) {
	t.Parallel()
	existing := []model.Finding{
		{ID: "AG-1", Category: model.FindingAG, Description: "alt", SourceChapter: previousAuditPrefix + " (7.2)"},
		{ID: "AG-02", Category: model.FindingAG, Description: "neu", SourceChapter: "3"},
	}
	fc := newFindingCollector()
	fc.seed(existing, stageScanReport)
	if len(fc.findings) != 1 || fc.findings[0].SourceChapter != "3" {
		t.Fatalf("seed kept %v", fc.findings)
	}
}

// --- extractFindings ---

func TestExtractFindingsRecursive(t *testing.T) {
	t.Parallel()
	data := map[string]any{
		"sub": map[string]any{
			"finding": map[string]any{"category": "AG", "description": "tief verschachtelt"},
			"list": []any{
				map[string]any{"finding": map[string]any{"category": "E", "description": "in Liste"}},
			},
		},
		"ok": map[string]any{
			"finding": map[string]any{"category": "OK", "description": "nichts"},
		},
		"all_findings": []any{
			map[string]any{"finding": map[string]any{"category": "AS", "description": "darf nicht zählen"}},
		},
	}
	found := extractFindings(data)
	if len(found) != 2 {
		t.Fatalf("got %d findings, want 2: %v", len(found), found)
	}
	categories := map[model.FindingCategory]bool{}
	for _, f := range found {
		categories[f.Category] = true
	}
	if !categories[model.FindingAG] || !categories[model.FindingE] {
		t.Errorf("categories = %v", categories)
	}
}

// --- previousFindingFromMap ---

func TestPreviousFindingFromMap(t *testing.T) {
	t.Parallel()
	f, ok := previousFindingFromMap(map[string]any{
		"nummer":         "AS-2",
		"category":       "AS",
		"beschreibung":   "alte schwere Abweichung",
		"status":         "offen",
		"behebungsfrist": "2026-12-31",
		"quelle":         "7.2",
	})
	if !ok {
		t.Fatal("decode failed")
	}
	if f.ID != "AS-2" || f.Category != model.FindingAS || f.SourceChapter != previousAuditPrefix+" (7.2)" {
		t.Errorf("finding = %+v", f)
	}
	if _, ok := previousFindingFromMap(map[string]any{"category": "AG"}); ok {
		t.Error("finding without nummer accepted")
	}
}
