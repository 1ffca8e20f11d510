// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// Chapter1 generates the automated introductory subchapters (1.2, 1.4,
// 1.5). Manual subchapters keep their template placeholders. When a
// previous-report scan exists its chapter-1 extraction is injected as
// context.
type Chapter1 struct{}

func (c *Chapter1) Name() string            { return NameChapter1 }
func (c *Chapter1) OutputKey() string       { return ResultKey(NameChapter1) }
func (c *Chapter1) Prerequisites() []string { return nil }

func (c *Chapter1) Run(ctx context.Context, env *Env) (Result, error) {
	spec, err := assets.Prompt("chapter_1", "generate")
	if err != nil {
		return nil, err
	}

	previousContext := ""
	var scan map[string]any
	scanKey := env.Cfg.OutputPrefix + ResultKey(NameScanReport)
	if err := env.Store.ReadJSON(ctx, scanKey, &scan); err == nil {
		if extract, ok := scan["extract_chapter_1"]; ok {
			data, _ := json.Marshal(extract)
			previousContext = "Aus dem vorherigen Auditbericht ist bekannt:\n" + string(data)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		env.Log.Warnf("could not read previous-report scan: %v", err)
	}

	categories := make([]model.DocumentCategory, 0, len(spec.SourceCategories))
	for _, cat := range spec.SourceCategories {
		categories = append(categories, model.DocumentCategory(cat))
	}
	docs := env.Finder.DocumentsForCategories(categories)

	raw, err := env.Gen.GenerateStructured(ctx, ai.Request{
		Prompt: spec.Render(map[string]string{
			"audit_type":                   env.Cfg.AuditType,
			"context_from_previous_report": previousContext,
		}),
		SchemaName: spec.Schema,
		Documents:  env.Finder.URLs(docs),
		Context:    NameChapter1,
	})
	if err != nil {
		return nil, err
	}

	var generated struct {
		Auditgegenstand       string `json:"auditgegenstand"`
		AuditierteInstitution string `json:"auditierteInstitution"`
		Auditteam             string `json:"auditteam"`
	}
	if err := ai.DecodeInto(raw, &generated); err != nil {
		return nil, err
	}

	return Result{
		"allgemeines": map[string]any{
			"audittyp":              map[string]any{"content": env.Cfg.AuditType},
			"auditgegenstand":       map[string]any{"content": generated.Auditgegenstand},
			"auditierteInstitution": map[string]any{"content": generated.AuditierteInstitution},
			"auditteam":             map[string]any{"content": generated.Auditteam},
		},
	}, nil
}
