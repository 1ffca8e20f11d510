// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"
	"fmt"
	"path"
)

// Chapter7 generates the appendix. 7.1 lists the submitted source
// documents deterministically from store metadata; the 7.2 deviation
// tables are populated later by the report assembler from the central
// findings file.
type Chapter7 struct{}

func (c *Chapter7) Name() string            { return NameChapter7 }
func (c *Chapter7) OutputKey() string       { return ResultKey(NameChapter7) }
func (c *Chapter7) Prerequisites() []string { return nil }

func (c *Chapter7) Run(ctx context.Context, env *Env) (Result, error) {
	sources, err := env.Store.List(ctx, env.Cfg.SourcePrefix)
	if err != nil {
		return nil, err
	}

	rows := make([]any, 0, len(sources))
	for i, src := range sources {
		version := "N/A"
		if !src.Updated.IsZero() {
			version = src.Updated.Format("2006-01-02")
		}
		rows = append(rows, map[string]any{
			"nr":              fmt.Sprintf("A.%d", i),
			"kurzbezeichnung": path.Base(src.Name),
			"dateiname":       src.Name,
			"versionDatum":    version,
			"aenderungen":     "Initial eingereicht für Audit.",
		})
	}
	env.Log.Infof("generated reference-document table with %d rows", len(rows))

	return Result{
		"referenzdokumente": map[string]any{
			"table": map[string]any{"rows": rows},
		},
	}, nil
}
