// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/gscheck"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
)

// SystemMap builds the authoritative system structure map from the
// Strukturanalyse and Modellierung documents. Its output artifact is
// system_structure_map.json, not a chapter result.
type SystemMap struct{}

func (s *SystemMap) Name() string            { return NameSystemMap }
func (s *SystemMap) OutputKey() string       { return gscheck.SystemMapKey }
func (s *SystemMap) Prerequisites() []string { return nil }

func (s *SystemMap) Run(ctx context.Context, env *Env) (Result, error) {
	mapper := gscheck.NewGroundTruthMapper(env.GscheckDeps())
	systemMap, warnings, err := mapper.Build(ctx, env.Force)
	if err != nil {
		return nil, err
	}
	return Result{
		"status":               "success",
		"zielobjekte":          len(systemMap.Zielobjekte),
		"baustein_assignments": len(systemMap.BausteinAssignments),
		"warnings":             warningNodes(string(model.FindingAG), warnings),
	}, nil
}
