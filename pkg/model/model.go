// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package model declares the data entities shared across the audit
// pipeline: the document classification map, the authoritative system
// structure map, extracted Grundschutz-Check requirements, and audit
// findings. All types are value types; once a run has produced an
// artifact it is treated as immutable by every downstream stage.
package model

import (
	"sort"
	"strings"
)

// DocumentCategory is one of the BSI reference document categories used
// to classify customer source documents.
type DocumentCategory string

// The recognized BSI document categories. Documents that cannot be
// classified fall into CategorySonstiges.
const (
	CategoryStrukturanalyse          DocumentCategory = "Strukturanalyse"
	CategoryModellierung             DocumentCategory = "Modellierung"
	CategoryNetzplan                 DocumentCategory = "Netzplan"
	CategorySicherheitsleitlinie     DocumentCategory = "Sicherheitsleitlinie"
	CategorySchutzbedarf             DocumentCategory = "Schutzbedarfsfeststellung"
	CategoryGrundschutzCheck         DocumentCategory = "Grundschutz-Check"
	CategoryRisikoanalyse            DocumentCategory = "Risikoanalyse"
	CategoryRealisierungsplan        DocumentCategory = "Realisierungsplan"
	CategoryVorherigerAuditbericht   DocumentCategory = "Vorheriger-Auditbericht"
	CategorySonstiges                DocumentCategory = "Sonstiges"
)

// AllCategories lists every recognized category in a stable order.
var AllCategories = []DocumentCategory{
	CategoryStrukturanalyse,
	CategoryModellierung,
	CategoryNetzplan,
	CategorySicherheitsleitlinie,
	CategorySchutzbedarf,
	CategoryGrundschutzCheck,
	CategoryRisikoanalyse,
	CategoryRealisierungsplan,
	CategoryVorherigerAuditbericht,
	CategorySonstiges,
}

// KnownCategory reports whether c is one of the recognized categories.
func KnownCategory(c DocumentCategory) bool {
	for _, k := range AllCategories {
		if k == c {
			return true
		}
	}
	return false
}

// DocumentEntry assigns one source document to exactly one category.
// Filename is the full object-store key of the document.
type DocumentEntry struct {
	Filename string           `json:"filename"`
	Category DocumentCategory `json:"category"`
}

// DocumentMap is the persisted form of the document classification
// (document_map.json). Every source document appears exactly once.
type DocumentMap struct {
	Documents []DocumentEntry `json:"documents"`
	Version   int             `json:"version"`
}

// DocumentMapVersion is the current on-disk format version.
const DocumentMapVersion = 1

// ByCategory groups the map's documents per category, preserving the
// order of Documents within each category.
func (m *DocumentMap) ByCategory() map[DocumentCategory][]string {
	out := make(map[DocumentCategory][]string)
	for _, d := range m.Documents {
		out[d.Category] = append(out[d.Category], d.Filename)
	}
	return out
}

// KuerzelInformationsverbund is the synthetic Zielobjekt representing
// the overall audit scope. Bausteine of the process layers are always
// assigned to it.
const KuerzelInformationsverbund = "Informationsverbund"

// DefaultInformationsverbundName is the display name used when the
// customer documents do not name the Informationsverbund.
const DefaultInformationsverbundName = "Gesamter Informationsverbund"

// deterministicPrefixes are the baustein layers that are always modeled
// on the Informationsverbund as a whole.
var deterministicPrefixes = []string{"ISMS", "ORP", "CON", "OPS", "DER"}

// IsInformationsverbundBaustein reports whether the baustein ID belongs
// to a layer that is deterministically assigned to the
// Informationsverbund (ISMS, ORP, CON, OPS, DER).
func IsInformationsverbundBaustein(bausteinID string) bool {
	prefix, _, _ := strings.Cut(bausteinID, ".")
	for _, p := range deterministicPrefixes {
		if prefix == p {
			return true
		}
	}
	return false
}

// Zielobjekt is a target object in the customer's environment,
// identified by its customer-chosen Kürzel.
type Zielobjekt struct {
	Kuerzel string `json:"kuerzel"`
	Name    string `json:"name"`
}

// BausteinAssignment maps a baustein to the Zielobjekt it is modeled on.
type BausteinAssignment struct {
	BausteinID string `json:"baustein_id"`
	Kuerzel    string `json:"kuerzel"`
}

// SystemStructureMap is the authoritative ground truth extracted from
// the Strukturanalyse and Modellierung documents
// (system_structure_map.json).
type SystemStructureMap struct {
	Zielobjekte             []Zielobjekt         `json:"zielobjekte"`
	BausteinAssignments     []BausteinAssignment `json:"baustein_assignments"`
	InformationsverbundName string               `json:"informationsverbund_name,omitempty"`
}

// ZielobjektName returns the display name for a Kürzel, or the empty
// string when the Kürzel is unknown.
func (m *SystemStructureMap) ZielobjektName(kuerzel string) string {
	for _, z := range m.Zielobjekte {
		if z.Kuerzel == kuerzel {
			return z.Name
		}
	}
	return ""
}

// HasZielobjekt reports whether the Kürzel names a known Zielobjekt.
func (m *SystemStructureMap) HasZielobjekt(kuerzel string) bool {
	for _, z := range m.Zielobjekte {
		if z.Kuerzel == kuerzel {
			return true
		}
	}
	return false
}

// HasAssignment reports whether the exact (baustein, kürzel) pair is
// part of the modeled system.
func (m *SystemStructureMap) HasAssignment(bausteinID, kuerzel string) bool {
	for _, a := range m.BausteinAssignments {
		if a.BausteinID == bausteinID && a.Kuerzel == kuerzel {
			return true
		}
	}
	return false
}

// AssignedKuerzel returns the Kürzel a baustein is modeled on, or the
// empty string when the baustein is not assigned.
func (m *SystemStructureMap) AssignedKuerzel(bausteinID string) string {
	for _, a := range m.BausteinAssignments {
		if a.BausteinID == bausteinID {
			return a.Kuerzel
		}
	}
	return ""
}

// SortAssignments orders the assignments by baustein ID, then Kürzel,
// so the persisted artifact is deterministic across runs.
func (m *SystemStructureMap) SortAssignments() {
	sort.Slice(m.BausteinAssignments, func(i, j int) bool {
		a, b := m.BausteinAssignments[i], m.BausteinAssignments[j]
		if a.BausteinID != b.BausteinID {
			return a.BausteinID < b.BausteinID
		}
		return a.Kuerzel < b.Kuerzel
	})
}
