// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"
	"testing"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai/aitest"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/gscheck"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

func seedChapter4Result(t *testing.T, mem *store.Memory) {
	t.Helper()
	result := map[string]any{
		"auswahlBausteineErstRezertifizierung": map[string]any{
			"table": map[string]any{
				"rows": []any{
					map[string]any{
						"baustein":           "SYS.1.1",
						"zielobjekt_kuerzel": "S-001",
						"zielobjekt_name":    "Windows Server",
						"begruendung":        "zentral",
					},
				},
			},
		},
		"auswahlMassnahmenAusRisikoanalyse": map[string]any{
			"table": map[string]any{
				"rows": []any{
					map[string]any{"massnahme": "M1: USV prüfen", "zielobjekt": "Serverraum"},
				},
			},
		},
	}
	if err := mem.WriteJSON(context.Background(), "output/results/Chapter-4.json", result); err != nil {
		t.Fatalf("seeding Chapter-4 result: %v", err)
	}
}

func seedMerged(t *testing.T, mem *store.Memory, reqs []model.Requirement) {
	t.Helper()
	artifact := gscheck.MergedArtifact{Anforderungen: reqs}
	if err := mem.WriteJSON(context.Background(), "output/"+gscheck.MergedKey, artifact); err != nil {
		t.Fatalf("seeding merged artifact: %v", err)
	}
}

// --- Chapter5 ---

func TestChapter5EnrichesChecklist(t *testing.T) {
	t.Parallel()
	env, mem := newTestEnv(t, aitest.NewStub())
	seedChapter4Result(t, mem)
	seedMerged(t, mem, []model.Requirement{
		{
			ZielobjektKuerzel:      "S-001",
			ZielobjektName:         "Windows Server",
			AnforderungID:          "SYS.1.1.A3",
			Titel:                  "Restriktive Rechtevergabe",
			Umsetzungsstatus:       model.StatusTeilweise,
			Umsetzungserlaeuterung: "Berechtigungskonzept in Arbeit.",
		},
	})

	result, err := (&Chapter5{}).Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	einzel, _ := result["verifikationDesITGrundschutzChecks"].(map[string]any)["einzelergebnisse"].(map[string]any)
	pruefungen, _ := einzel["bausteinPruefungen"].([]any)
	if len(pruefungen) != 1 {
		t.Fatalf("got %d baustein entries, want 1", len(pruefungen))
	}
	entry := pruefungen[0].(map[string]any)
	if entry["bezogenAufZielobjekt"] != "Windows Server" {
		t.Errorf("zielobjekt = %v", entry["bezogenAufZielobjekt"])
	}
	anforderungen, _ := entry["anforderungen"].([]any)
	if len(anforderungen) == 0 {
		t.Fatal("checklist has no controls")
	}

	// The control with extracted data carries the customer explanation
	// and status; the others carry the no-statement text.
	var enriched, unenriched bool
	for _, a := range anforderungen {
		ctrl := a.(map[string]any)
		switch ctrl["nummer"] {
		case "SYS.1.1.A3":
			if ctrl["bewertung"] != string(model.StatusTeilweise) {
				t.Errorf("A3 bewertung = %v", ctrl["bewertung"])
			}
			if ctrl["dokuAntragsteller"] != "Berechtigungskonzept in Arbeit." {
				t.Errorf("A3 explanation = %v", ctrl["dokuAntragsteller"])
			}
			enriched = true
		default:
			if ctrl["dokuAntragsteller"] == noStatementText {
				unenriched = true
			}
		}
	}
	if !enriched || !unenriched {
		t.Errorf("enriched=%v unenriched=%v", enriched, unenriched)
	}
}

func TestChapter5WithoutMergedData(t *testing.T) {
	t.Parallel()
	env, mem := newTestEnv(t, aitest.NewStub())
	seedChapter4Result(t, mem)

	result, err := (&Chapter5{}).Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run without merged data: %v", err)
	}
	einzel, _ := result["verifikationDesITGrundschutzChecks"].(map[string]any)["einzelergebnisse"].(map[string]any)
	pruefungen, _ := einzel["bausteinPruefungen"].([]any)
	if len(pruefungen) != 1 {
		t.Fatalf("checklist missing without merged data")
	}
}

func TestChapter5Massnahmen(t *testing.T) {
	t.Parallel()
	env, mem := newTestEnv(t, aitest.NewStub())
	seedChapter4Result(t, mem)
	seedMerged(t, mem, nil)

	result, err := (&Chapter5{}).Run(context.Background(), env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	risiko, _ := result["risikoanalyseA5"].(map[string]any)["einzelergebnisseDerRisikoanalyse"].(map[string]any)
	massnahmen, _ := risiko["massnahmenPruefungen"].([]any)
	if len(massnahmen) != 1 {
		t.Fatalf("got %d massnahmen, want 1", len(massnahmen))
	}
	row := massnahmen[0].(map[string]any)
	if row["massnahme"] != "M1: USV prüfen" || row["auditfeststellung"] != "" {
		t.Errorf("massnahme row = %v", row)
	}
}
