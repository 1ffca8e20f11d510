// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package gscheck

// Chunking parameters. Sections longer than MaxPagesPerChunk are split
// into contiguous sub-chunks that share ChunkOverlap pages at every
// boundary, so a requirement spanning a split appears in both
// neighbors and is collapsed again by the merge phase.
const (
	MaxPagesPerChunk = 25
	ChunkOverlap     = 2
)

// Chunk is one unit of model extraction work. Every chunk belongs to
// exactly one Zielobjekt; pages are 1-based and inclusive.
type Chunk struct {
	Kuerzel   string
	Name      string
	StartPage int
	EndPage   int
}

// BuildChunks splits the pre-scanned sections into extraction chunks.
// Invariants: every page of every section is covered by at least one
// chunk; no chunk crosses a section boundary; adjacent sub-chunks of
// the same section overlap by ChunkOverlap pages.
func BuildChunks(sections []Section) []Chunk {
	var chunks []Chunk
	for _, sec := range sections {
		pages := sec.EndPage - sec.StartPage + 1
		if pages <= MaxPagesPerChunk {
			chunks = append(chunks, Chunk{
				Kuerzel:   sec.Kuerzel,
				Name:      sec.Name,
				StartPage: sec.StartPage,
				EndPage:   sec.EndPage,
			})
			continue
		}
		// ceil(pages / MaxPagesPerChunk) sub-chunks of near-equal
		// width; every sub-chunk after the first is extended backwards
		// by the overlap.
		n := (pages + MaxPagesPerChunk - 1) / MaxPagesPerChunk
		width := (pages + n - 1) / n
		for i := 0; i < n; i++ {
			start := sec.StartPage + i*width
			end := start + width - 1
			if i > 0 {
				start -= ChunkOverlap
			}
			if end > sec.EndPage || i == n-1 {
				end = sec.EndPage
			}
			chunks = append(chunks, Chunk{
				Kuerzel:   sec.Kuerzel,
				Name:      sec.Name,
				StartPage: start,
				EndPage:   end,
			})
		}
	}
	return chunks
}
