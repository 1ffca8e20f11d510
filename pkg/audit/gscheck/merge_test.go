// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package gscheck

import (
	"strings"
	"testing"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// --- MergeRequirements ---

func TestMergeStatusPriority(t *testing.T) {
	t.Parallel()
	cases := []struct {
		statuses []model.Umsetzungsstatus
		want     model.Umsetzungsstatus
	}{
		{[]model.Umsetzungsstatus{model.StatusJa, model.StatusNein}, model.StatusNein},
		{[]model.Umsetzungsstatus{model.StatusNein, model.StatusJa}, model.StatusNein},
		{[]model.Umsetzungsstatus{model.StatusJa, model.StatusTeilweise}, model.StatusTeilweise},
		{[]model.Umsetzungsstatus{model.StatusEntbehrlich, model.StatusJa}, model.StatusJa},
		{[]model.Umsetzungsstatus{model.StatusEntbehrlich, model.StatusEntbehrlich}, model.StatusEntbehrlich},
	}
	for _, tc := range cases {
		var reqs []model.Requirement
		for _, s := range tc.statuses {
			reqs = append(reqs, model.Requirement{
				ZielobjektKuerzel: "S-001",
				AnforderungID:     "SYS.1.1.A3",
				Umsetzungsstatus:  s,
			})
		}
		merged := MergeRequirements(reqs)
		if len(merged) != 1 {
			t.Fatalf("statuses %v: got %d results, want 1", tc.statuses, len(merged))
		}
		if merged[0].Umsetzungsstatus != tc.want {
			t.Errorf("statuses %v: merged status = %q, want %q",
				tc.statuses, merged[0].Umsetzungsstatus, tc.want)
		}
	}
}

func TestMergeUniquenessAcrossZielobjekte(t *testing.T) {
	t.Parallel()
	reqs := []model.Requirement{
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", Umsetzungsstatus: model.StatusJa},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", Umsetzungsstatus: model.StatusJa},
		{ZielobjektKuerzel: "S-002", AnforderungID: "SYS.1.1.A3", Umsetzungsstatus: model.StatusJa},
	}
	merged := MergeRequirements(reqs)
	if len(merged) != 2 {
		t.Fatalf("got %d results, want 2", len(merged))
	}
	seen := map[[2]string]bool{}
	for _, r := range merged {
		k := [2]string{r.ZielobjektKuerzel, r.AnforderungID}
		if seen[k] {
			t.Fatalf("duplicate pair %v after merge", k)
		}
		seen[k] = true
	}
}

func TestMergeTitleLongestWins(t *testing.T) {
	t.Parallel()
	reqs := []model.Requirement{
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", Titel: "Rechte"},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", Titel: "Restriktive Rechtevergabe"},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", Titel: ""},
	}
	merged := MergeRequirements(reqs)
	if merged[0].Titel != "Restriktive Rechtevergabe" {
		t.Errorf("merged title = %q", merged[0].Titel)
	}
}

func TestMergeExplanationsDedupesSentences(t *testing.T) {
	t.Parallel()
	reqs := []model.Requirement{
		{
			ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3",
			Umsetzungserlaeuterung: "Die Rechtevergabe ist restriktiv. Admins werden geschult.",
		},
		{
			ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3",
			// First sentence repeats with different casing and spacing.
			Umsetzungserlaeuterung: "die  rechtevergabe ist restriktiv. Zusätzlich gilt ein Berechtigungskonzept.",
		},
	}
	merged := MergeRequirements(reqs)
	got := merged[0].Umsetzungserlaeuterung
	if strings.Count(strings.ToLower(got), "rechtevergabe ist restriktiv") != 1 {
		t.Errorf("duplicate sentence survived: %q", got)
	}
	if !strings.Contains(got, "Admins werden geschult.") ||
		!strings.Contains(got, "Zusätzlich gilt ein Berechtigungskonzept.") {
		t.Errorf("unique sentences lost: %q", got)
	}
	// Source order: sentences of the first version come first.
	if strings.Index(got, "Admins") > strings.Index(got, "Berechtigungskonzept") {
		t.Errorf("source order not preserved: %q", got)
	}
}

func TestMergeDateLatestValidWins(t *testing.T) {
	t.Parallel()
	reqs := []model.Requirement{
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", DatumLetztePruefung: "2024-01-10"},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", DatumLetztePruefung: "kein Datum"},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", DatumLetztePruefung: "2025-03-01"},
	}
	merged := MergeRequirements(reqs)
	if merged[0].DatumLetztePruefung != "2025-03-01" {
		t.Errorf("merged date = %q", merged[0].DatumLetztePruefung)
	}

	// No valid date at all: field stays absent.
	reqs = []model.Requirement{
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A1", DatumLetztePruefung: "unbekannt"},
	}
	merged = MergeRequirements(reqs)
	if merged[0].DatumLetztePruefung != "" {
		t.Errorf("invalid date survived: %q", merged[0].DatumLetztePruefung)
	}
}

func TestMergeSkipsIncompleteItems(t *testing.T) {
	t.Parallel()
	reqs := []model.Requirement{
		{ZielobjektKuerzel: "", AnforderungID: "SYS.1.1.A3"},
		{ZielobjektKuerzel: "S-001", AnforderungID: ""},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A3", Umsetzungsstatus: model.StatusJa},
	}
	merged := MergeRequirements(reqs)
	if len(merged) != 1 {
		t.Fatalf("got %d results, want 1", len(merged))
	}
}

func TestMergeOutputSorted(t *testing.T) {
	t.Parallel()
	reqs := []model.Requirement{
		{ZielobjektKuerzel: "S-002", AnforderungID: "SYS.1.1.A3"},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A2"},
		{ZielobjektKuerzel: "S-001", AnforderungID: "SYS.1.1.A1"},
	}
	merged := MergeRequirements(reqs)
	for i := 1; i < len(merged); i++ {
		a, b := merged[i-1], merged[i]
		if a.ZielobjektKuerzel > b.ZielobjektKuerzel ||
			(a.ZielobjektKuerzel == b.ZielobjektKuerzel && a.AnforderungID > b.AnforderungID) {
			t.Fatalf("output not sorted: %+v before %+v", a, b)
		}
	}
}

// --- splitSentences ---

func TestSplitSentences(t *testing.T) {
	t.Parallel()
	got := splitSentences("Erster Satz. Zweiter Satz! Dritter Satz? Rest ohne Punkt")
	if len(got) != 4 {
		t.Fatalf("got %d sentences: %q", len(got), got)
	}
	if got[0] != "Erster Satz." || got[3] != "Rest ohne Punkt" {
		t.Errorf("sentences = %q", got)
	}
}
