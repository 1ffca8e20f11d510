// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package gscheck

import (
	"context"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// extractChunks runs the per-chunk model extraction for every chunk in
// parallel. The pool is sized to the AI concurrency limit; the AI
// client's semaphore is the authoritative gate, the pool just avoids
// queuing thousands of goroutines. A chunk whose extraction fails
// terminally contributes an empty list and a structural warning; the
// run continues.
func (e *Extractor) extractChunks(ctx context.Context, chunks []Chunk, texts PageTexts, pdfURL string) ([]model.Requirement, []string) {
	spec, err := assets.Prompt("gs_check", "extract_requirements")
	if err != nil {
		return nil, []string{fmt.Sprintf("Extraktionsprompt nicht verfügbar: %v", err)}
	}

	if e.deps.Cfg.TestMode {
		limited := limitChunksForTest(chunks)
		if len(limited) < len(chunks) {
			e.deps.Log.Warnf("test mode: limiting extraction to %d of %d chunks", len(limited), len(chunks))
		}
		chunks = limited
	}

	pool := pond.NewPool(e.deps.Cfg.MaxConcurrentAIRequests)
	var mu sync.Mutex
	var all []model.Requirement
	var warnings []string

	for _, chunk := range chunks {
		chunk := chunk
		pool.Submit(func() {
			reqs, err := e.extractOneChunk(ctx, spec, chunk, texts, pdfURL)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, fmt.Sprintf(
					"Extraktion für Zielobjekt '%s' (Seiten %d-%d) fehlgeschlagen: %v",
					chunk.Kuerzel, chunk.StartPage, chunk.EndPage, err))
				return
			}
			all = append(all, reqs...)
		})
	}
	pool.StopAndWait()
	return all, warnings
}

// Test-mode caps: the first maxTestGroups Zielobjekt groups are
// processed, and within each surviving group at most
// maxTestChunksPerGroup chunks.
const (
	maxTestGroups         = 3
	maxTestChunksPerGroup = 2
)

// limitChunksForTest reduces the extraction workload in test mode.
// Chunks arrive in section order, so grouping by Kürzel in order of
// first appearance preserves the document order of the kept groups.
func limitChunksForTest(chunks []Chunk) []Chunk {
	var groupOrder []string
	perGroup := make(map[string]int)
	var out []Chunk
	for _, c := range chunks {
		if _, seen := perGroup[c.Kuerzel]; !seen {
			if len(groupOrder) == maxTestGroups {
				continue
			}
			groupOrder = append(groupOrder, c.Kuerzel)
		}
		if perGroup[c.Kuerzel] == maxTestChunksPerGroup {
			continue
		}
		perGroup[c.Kuerzel]++
		out = append(out, c)
	}
	return out
}

func (e *Extractor) extractOneChunk(ctx context.Context, spec assets.PromptSpec, chunk Chunk, texts PageTexts, pdfURL string) ([]model.Requirement, error) {
	prompt := spec.Render(map[string]string{
		"kuerzel":    chunk.Kuerzel,
		"name":       chunk.Name,
		"page_range": fmt.Sprintf("%d-%d", chunk.StartPage, chunk.EndPage),
		"page_text":  texts.Range(chunk.StartPage, chunk.EndPage),
	})

	raw, err := e.deps.Gen.GenerateStructured(ctx, ai.Request{
		Prompt:     prompt,
		SchemaName: spec.Schema,
		Documents:  []string{pdfURL},
		Context: fmt.Sprintf("GS-Check extraction %s p%d-%d",
			chunk.Kuerzel, chunk.StartPage, chunk.EndPage),
		Model: e.deps.Cfg.ChunkModel,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Anforderungen []model.Requirement `json:"anforderungen"`
	}
	if err := ai.DecodeInto(raw, &result); err != nil {
		return nil, err
	}

	out := make([]model.Requirement, 0, len(result.Anforderungen))
	for _, r := range result.Anforderungen {
		// The chunk's Zielobjekt is ground truth; whatever the model
		// put into the field is overwritten.
		r.ZielobjektKuerzel = chunk.Kuerzel
		r.ZielobjektName = chunk.Name
		if r.AnforderungID == "" {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
