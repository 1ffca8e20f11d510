// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package gscheck

import (
	"sort"
	"strings"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// MergeRequirements collapses duplicate extractions of the same
// (Zielobjekt, Anforderung) pair, typically produced by overlapping
// chunks. Field rules:
//   - titel: longest non-empty title
//   - umsetzungserlaeuterung: unique sentences from all versions in
//     source order (case-insensitive, whitespace-normalized equality)
//   - umsetzungsstatus: most severe (Nein > Teilweise > Ja > Entbehrlich)
//   - datum_letzte_pruefung: most recent valid ISO date, else absent
//
// The result is sorted by (Zielobjekt, Anforderung) so the persisted
// artifact is deterministic.
func MergeRequirements(reqs []model.Requirement) []model.Requirement {
	type key struct{ kuerzel, id string }
	groups := make(map[key][]model.Requirement)
	var order []key
	for _, r := range reqs {
		if r.AnforderungID == "" || r.ZielobjektKuerzel == "" {
			continue
		}
		k := key{r.ZielobjektKuerzel, r.AnforderungID}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	out := make([]model.Requirement, 0, len(order))
	for _, k := range order {
		out = append(out, mergeGroup(groups[k]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ZielobjektKuerzel != out[j].ZielobjektKuerzel {
			return out[i].ZielobjektKuerzel < out[j].ZielobjektKuerzel
		}
		return out[i].AnforderungID < out[j].AnforderungID
	})
	return out
}

func mergeGroup(items []model.Requirement) model.Requirement {
	merged := items[0]

	for _, item := range items[1:] {
		if len(item.Titel) > len(merged.Titel) {
			merged.Titel = item.Titel
		}
		merged.Umsetzungsstatus = model.MoreSevere(merged.Umsetzungsstatus, item.Umsetzungsstatus)
		if item.ZielobjektName != "" && merged.ZielobjektName == "" {
			merged.ZielobjektName = item.ZielobjektName
		}
	}

	merged.Umsetzungserlaeuterung = mergeExplanations(items)
	merged.DatumLetztePruefung = latestDate(items)
	return merged
}

// mergeExplanations concatenates the unique sentences of every
// version, preserving the order of first occurrence.
func mergeExplanations(items []model.Requirement) string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range items {
		for _, sentence := range splitSentences(item.Umsetzungserlaeuterung) {
			norm := strings.Join(strings.Fields(strings.ToLower(sentence)), " ")
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, strings.TrimSpace(sentence))
		}
	}
	return strings.Join(out, " ")
}

// splitSentences splits after '.', '!' or '?' followed by whitespace.
func splitSentences(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if (c == '.' || c == '!' || c == '?') &&
			(i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t') {
			out = append(out, string(runes[start:i+1]))
			for i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t') {
				i++
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		tail := strings.TrimSpace(string(runes[start:]))
		if tail != "" {
			out = append(out, tail)
		}
	}
	return out
}

// latestDate returns the most recent valid ISO date among the items'
// DatumLetztePruefung fields, or "" when none parses.
func latestDate(items []model.Requirement) string {
	best := ""
	for _, item := range items {
		if _, ok := item.LastChecked(); !ok {
			continue
		}
		// ISO dates compare correctly as strings.
		if item.DatumLetztePruefung > best {
			best = item.DatumLetztePruefung
		}
	}
	return best
}
