// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/pkg/errors"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/gscheck"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// requiredCategories are the BSI document types whose absence is a
// severe deviation in the document review.
var requiredCategories = []model.DocumentCategory{
	model.CategorySicherheitsleitlinie,
	model.CategoryStrukturanalyse,
	model.CategorySchutzbedarf,
	model.CategoryModellierung,
	model.CategoryGrundschutzCheck,
	model.CategoryRisikoanalyse,
	model.CategoryRealisierungsplan,
}

// Chapter3 runs the document review. The execution plan is derived
// from the report blueprint: every subchapter with question content
// becomes a model task, the 3.6.1 details section consumes the
// extractor output, and the closing verdict summarizes the collected
// findings.
type Chapter3 struct{}

func (c *Chapter3) Name() string      { return NameChapter3 }
func (c *Chapter3) OutputKey() string { return ResultKey(NameChapter3) }

func (c *Chapter3) Prerequisites() []string {
	return []string{gscheck.MergedKey}
}

// chapter3Task is one unit of the execution plan.
type chapter3Task struct {
	key       string
	kind      string // "ai", "custom", "summary"
	questions []string
	title     string
}

func (c *Chapter3) Run(ctx context.Context, env *Env) (Result, error) {
	plan, err := buildChapter3Plan()
	if err != nil {
		return nil, err
	}
	env.Log.Infof("chapter 3 execution plan: %d tasks", len(plan))

	results := Result{}
	var mu sync.Mutex

	// The custom 3.6.1 analysis runs first: its finding feeds the
	// summary like every other subchapter's.
	for _, task := range plan {
		if task.kind != "custom" {
			continue
		}
		analysis, err := c.runDetailsAnalysis(ctx, env)
		if err != nil {
			return nil, err
		}
		results[task.key] = analysis
	}

	pool := pond.NewPool(env.Cfg.MaxConcurrentAIRequests)
	for _, task := range plan {
		if task.kind != "ai" {
			continue
		}
		task := task
		pool.Submit(func() {
			data := c.runQuestionTask(ctx, env, task)
			mu.Lock()
			results[task.key] = data
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	// Summaries run last over the findings collected so far.
	findingsText := collectFindingsText(results)
	for _, task := range plan {
		if task.kind != "summary" {
			continue
		}
		results[task.key] = c.runSummaryTask(ctx, env, task, findingsText)
	}

	return results, nil
}

// buildChapter3Plan walks the blueprint's dokumentenpruefung chapter
// and creates one task per subchapter that the prompt bundle knows.
func buildChapter3Plan() ([]chapter3Task, error) {
	var blueprint map[string]any
	if err := json.Unmarshal(assets.ReportTemplate(), &blueprint); err != nil {
		return nil, errors.Wrap(err, "parsing report template")
	}
	report, _ := blueprint["bsiAuditReport"].(map[string]any)
	chapter, _ := report["dokumentenpruefung"].(map[string]any)
	if chapter == nil {
		return nil, errors.New("report template has no dokumentenpruefung chapter")
	}

	var plan []chapter3Task
	var walk func(key string, node map[string]any)
	walk = func(key string, node map[string]any) {
		title, _ := node["title"].(string)
		switch key {
		case "detailsZumItGrundschutzCheck":
			plan = append(plan, chapter3Task{key: key, kind: "custom", title: title})
			return
		case "gesamtbewertungDokumentenpruefung":
			plan = append(plan, chapter3Task{key: key, kind: "summary", title: title})
			return
		}
		if questions := questionTexts(node); len(questions) > 0 {
			if _, err := assets.Prompt("chapter_3", key); err == nil {
				plan = append(plan, chapter3Task{key: key, kind: "ai", questions: questions, title: title})
			}
		}
		for childKey, childVal := range node {
			if child, ok := childVal.(map[string]any); ok {
				walk(childKey, child)
			}
		}
	}
	for key, val := range chapter {
		if node, ok := val.(map[string]any); ok {
			walk(key, node)
		}
	}

	// Map iteration order is random; the plan must be stable.
	sort.Slice(plan, func(i, j int) bool { return plan[i].key < plan[j].key })
	return plan, nil
}

func questionTexts(node map[string]any) []string {
	content, _ := node["content"].([]any)
	var out []string
	for _, item := range content {
		entry, _ := item.(map[string]any)
		if entry["type"] == "question" {
			if q, ok := entry["questionText"].(string); ok {
				out = append(out, q)
			}
		}
	}
	return out
}

// runQuestionTask answers one subchapter's questions against its
// source documents. Failures degrade to an error entry so the other
// subchapters still complete.
func (c *Chapter3) runQuestionTask(ctx context.Context, env *Env, task chapter3Task) map[string]any {
	taskSpec, err := assets.Prompt("chapter_3", task.key)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	generic, err := assets.Prompt("chapter_3", "generic_question")
	if err != nil {
		return map[string]any{"error": err.Error()}
	}

	var numbered []string
	for i, q := range task.questions {
		numbered = append(numbered, fmt.Sprintf("%d. %s", i+1, q))
	}
	categories := make([]model.DocumentCategory, 0, len(taskSpec.SourceCategories))
	for _, cat := range taskSpec.SourceCategories {
		categories = append(categories, model.DocumentCategory(cat))
	}
	docs := env.Finder.DocumentsForCategories(categories)

	raw, err := env.Gen.GenerateStructured(ctx, ai.Request{
		Prompt:     generic.Render(map[string]string{"questions": strings.Join(numbered, "\n")}),
		SchemaName: taskSpec.Schema,
		Documents:  env.Finder.URLs(docs),
		Context:    NameChapter3 + ": " + task.key,
	})
	if err != nil {
		env.Log.Errorf("subchapter %s failed: %v", task.key, err)
		return map[string]any{"error": err.Error()}
	}
	var data map[string]any
	if err := ai.DecodeInto(raw, &data); err != nil {
		return map[string]any{"error": err.Error()}
	}

	// The reference-document review additionally verifies that every
	// critical document type is present at all.
	if task.key == "aktualitaetDerReferenzdokumente" {
		if coverage := c.checkDocumentCoverage(env); coverage != nil {
			data["finding"] = coverage
		}
	}
	return data
}

// checkDocumentCoverage returns an AS finding when critical BSI
// document categories are missing, nil when coverage is complete.
func (c *Chapter3) checkDocumentCoverage(env *Env) map[string]any {
	var missing []string
	for _, cat := range requiredCategories {
		if !env.Finder.HasCategory(cat) {
			missing = append(missing, string(cat))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	env.Log.Warnf("document coverage check failed; missing: %v", missing)
	return map[string]any{
		"category": string(model.FindingAS),
		"description": "Kritische Referenzdokumente fehlen: " +
			strings.Join(missing, ", ") + ". Dies ist eine schwerwiegende Abweichung.",
	}
}

// runDetailsAnalysis executes the five-question analysis over the
// merged extraction output (subchapter 3.6.1).
func (c *Chapter3) runDetailsAnalysis(ctx context.Context, env *Env) (map[string]any, error) {
	deps := env.GscheckDeps()
	extractor := gscheck.NewExtractor(deps)
	reqs, err := extractor.LoadMerged(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading merged extraction output")
	}
	analysis, err := gscheck.NewAnalyzer(deps).Run(ctx, reqs)
	if err != nil {
		return nil, err
	}
	answers := make([]any, len(analysis.Answers))
	for i, a := range analysis.Answers {
		answers[i] = a
	}
	return map[string]any{
		"answers": answers,
		"finding": map[string]any{
			"category":    string(analysis.Finding.Category),
			"description": analysis.Finding.Description,
		},
	}, nil
}

func (c *Chapter3) runSummaryTask(ctx context.Context, env *Env, task chapter3Task, findingsText string) map[string]any {
	spec, err := assets.Prompt("chapter_3", "generic_summary")
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	raw, err := env.Gen.GenerateStructured(ctx, ai.Request{
		Prompt: spec.Render(map[string]string{
			"summary_topic":     task.title,
			"previous_findings": findingsText,
		}),
		SchemaName: spec.Schema,
		Context:    NameChapter3 + ": " + task.key,
	})
	if err != nil {
		env.Log.Errorf("summary %s failed: %v", task.key, err)
		return map[string]any{"error": err.Error()}
	}
	var data map[string]any
	if err := ai.DecodeInto(raw, &data); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return data
}

// collectFindingsText renders every non-OK finding in the results for
// injection into the summary prompt.
func collectFindingsText(results Result) string {
	var lines []string
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data, ok := results[k].(map[string]any)
		if !ok {
			continue
		}
		finding, ok := data["finding"].(map[string]any)
		if !ok {
			continue
		}
		category, _ := finding["category"].(string)
		description, _ := finding["description"].(string)
		if category == "" || category == string(model.FindingOK) {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s]: %s", category, description))
	}
	if len(lines) == 0 {
		return "Es wurden keine Feststellungen getroffen."
	}
	return strings.Join(lines, "\n")
}
