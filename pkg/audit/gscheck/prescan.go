// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package gscheck

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// Section is one Zielobjekt chapter of the Grundschutz-Check PDF,
// located by the deterministic pre-scan. Pages are 1-based and
// inclusive.
type Section struct {
	Kuerzel   string
	Name      string
	StartPage int
	EndPage   int
}

// PageTexts holds the extracted plain text of every page, indexed by
// 1-based page number at position page-1.
type PageTexts []string

// ExtractPageTexts pulls the plain text of every page of a PDF.
// Pages whose text cannot be decoded yield an empty string rather
// than failing the scan; the chunk extraction still sees those pages
// through the attached document.
func ExtractPageTexts(pdfBytes []byte) (PageTexts, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, errors.Wrap(err, "opening PDF")
	}
	total := reader.NumPage()
	if total == 0 {
		return nil, errors.New("PDF has no pages")
	}
	texts := make(PageTexts, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		texts[i-1] = text
	}
	return texts, nil
}

// Range renders the text of an inclusive page range joined with blank
// lines.
func (p PageTexts) Range(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(p) {
		end = len(p)
	}
	var sb strings.Builder
	for i := start; i <= end; i++ {
		sb.WriteString(p[i-1])
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// normalize collapses all whitespace runs to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// PreScan locates the Zielobjekt section headers in the page texts
// using the system structure map as ground truth. A page starts a
// section when its normalized text contains "<kürzel> <name>" for a
// mapped Zielobjekt (exact match on both components). The first
// occurrence per Kürzel wins; sections extend to the page before the
// next header, the last one to the end of the document. Pages before
// the first header (title page, table of contents) belong to no
// section.
func PreScan(texts PageTexts, systemMap model.SystemStructureMap) []Section {
	type marker struct {
		kuerzel string
		name    string
		page    int
	}

	candidates := make([]model.Zielobjekt, 0, len(systemMap.Zielobjekte)+1)
	candidates = append(candidates, systemMap.Zielobjekte...)
	if !systemMap.HasZielobjekt(model.KuerzelInformationsverbund) {
		candidates = append(candidates, model.Zielobjekt{
			Kuerzel: model.KuerzelInformationsverbund,
			Name:    systemMap.InformationsverbundName,
		})
	}

	found := make(map[string]bool)
	var markers []marker
	for pageNo := 1; pageNo <= len(texts); pageNo++ {
		norm := normalize(texts[pageNo-1])
		if norm == "" {
			continue
		}
		for _, z := range candidates {
			if found[z.Kuerzel] || z.Kuerzel == "" {
				continue
			}
			header := normalize(z.Kuerzel + " " + z.Name)
			if header == "" || !strings.Contains(norm, header) {
				continue
			}
			found[z.Kuerzel] = true
			markers = append(markers, marker{kuerzel: z.Kuerzel, name: z.Name, page: pageNo})
		}
	}
	if len(markers) == 0 {
		return nil
	}

	// Markers are discovered in page order; consecutive markers bound
	// each section.
	sections := make([]Section, 0, len(markers))
	for i, mk := range markers {
		end := len(texts)
		if i+1 < len(markers) {
			end = markers[i+1].page - 1
		}
		if end < mk.page {
			end = mk.page
		}
		sections = append(sections, Section{
			Kuerzel:   mk.kuerzel,
			Name:      mk.name,
			StartPage: mk.page,
			EndPage:   end,
		})
	}
	return sections
}
