// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/gscheck"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// GsCheckExtraction reconstructs the merged requirement list from the
// Grundschutz-Check PDF (phases A-D). Its completion artifact is the
// merged intermediate file; the chapter result only carries status and
// any structural warnings.
type GsCheckExtraction struct{}

func (g *GsCheckExtraction) Name() string      { return NameGsCheck }
func (g *GsCheckExtraction) OutputKey() string { return gscheck.MergedKey }

func (g *GsCheckExtraction) Prerequisites() []string {
	return []string{gscheck.SystemMapKey}
}

func (g *GsCheckExtraction) Run(ctx context.Context, env *Env) (Result, error) {
	deps := env.GscheckDeps()

	var systemMap model.SystemStructureMap
	if err := env.Store.ReadJSON(ctx, env.Cfg.OutputPrefix+gscheck.SystemMapKey, &systemMap); err != nil {
		return nil, err
	}

	extractor := gscheck.NewExtractor(deps)
	merged, warnings, err := extractor.Run(ctx, systemMap, env.Force)
	if err != nil {
		return nil, err
	}
	return Result{
		"status":        "success",
		"anforderungen": len(merged),
		"warnings":      warningNodes(string(model.FindingAG), warnings),
	}, nil
}
