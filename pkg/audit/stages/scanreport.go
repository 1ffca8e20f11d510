// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// ScanReport extracts structured data from a previous audit report:
// chapter 1 context, the previously audited bausteine, and the 7.2
// findings (which keep their original IDs). The stage is skipped with
// a recorded reason when no previous report is classified.
type ScanReport struct{}

func (s *ScanReport) Name() string            { return NameScanReport }
func (s *ScanReport) OutputKey() string       { return ResultKey(NameScanReport) }
func (s *ScanReport) Prerequisites() []string { return nil }

func (s *ScanReport) Run(ctx context.Context, env *Env) (Result, error) {
	if !env.Finder.HasCategory(model.CategoryVorherigerAuditbericht) {
		env.Log.Warn("no document classified as Vorheriger-Auditbericht; skipping scan")
		return Result{"status": "skipped", "reason": "no previous audit report found"}, nil
	}
	docs := env.Finder.DocumentsForCategories(
		[]model.DocumentCategory{model.CategoryVorherigerAuditbericht})
	reportURL := env.Finder.URLs(docs[:1])
	env.Log.Infof("scanning previous audit report %s", docs[0])

	tasks := []string{"extract_chapter_1", "extract_chapter_4", "extract_chapter_7"}
	results := make([]json.RawMessage, len(tasks))
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task string) {
			defer wg.Done()
			spec, err := assets.Prompt("scan_report", task)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = env.Gen.GenerateStructured(ctx, ai.Request{
				Prompt:     spec.Prompt,
				SchemaName: spec.Schema,
				Documents:  reportURL,
				Context:    NameScanReport + ": " + task,
			})
		}(i, task)
	}
	wg.Wait()

	out := Result{}
	for i, task := range tasks {
		if errs[i] != nil {
			env.Log.Errorf("extraction task %s failed: %v", task, errs[i])
			out[task] = map[string]any{"error": errs[i].Error()}
			continue
		}
		var decoded map[string]any
		if err := ai.DecodeInto(results[i], &decoded); err != nil {
			out[task] = map[string]any{"error": err.Error()}
			continue
		}
		if task == "extract_chapter_7" {
			// The previous findings are hoisted to the top level under
			// all_findings; the controller ingests them with their
			// original IDs instead of treating them as new findings.
			out["all_findings"] = decoded["all_findings"]
			continue
		}
		out[task] = decoded
	}
	return out, nil
}
