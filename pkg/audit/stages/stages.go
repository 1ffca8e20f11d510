// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package stages holds one runner per report chapter plus the
// previous-report scanner and the two extraction stages. Runners are
// stateless between runs: they read prior artifacts from the object
// store, call the model where needed, and return an opaque chapter
// result the controller persists.
package stages

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/gscheck"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/catalog"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/config"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/docfinder"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// Stage names. The controller addresses runners by these.
const (
	NameScanReport  = "Scan-Report"
	NameSystemMap   = "System-Structure-Map"
	NameGsCheck     = "Grundschutz-Check-Extraction"
	NameChapter1    = "Chapter-1"
	NameChapter3    = "Chapter-3"
	NameChapter4    = "Chapter-4"
	NameChapter5    = "Chapter-5"
	NameChapter7    = "Chapter-7"
)

// Result is an opaque chapter result, shaped by the chapter's section
// of the report blueprint. Embedded findings are represented as
// map values under the key "finding" and harvested by the controller.
type Result map[string]any

// Env bundles the shared dependencies every runner receives.
type Env struct {
	Cfg     config.Config
	Store   store.Store
	Gen     ai.Generator
	Finder  *docfinder.Finder
	Catalog *catalog.Catalog
	Log     *logrus.Entry

	// Force re-runs the stage even when its output exists.
	Force bool
}

// GscheckDeps adapts the environment for the gscheck subsystem.
func (e *Env) GscheckDeps() gscheck.Deps {
	return gscheck.Deps{
		Cfg:     e.Cfg,
		Store:   e.Store,
		Gen:     e.Gen,
		Finder:  e.Finder,
		Catalog: e.Catalog,
		Log:     e.Log,
	}
}

// ResultKey returns the standard persisted location of a stage result,
// relative to the output prefix.
func ResultKey(stage string) string {
	return "results/" + stage + ".json"
}

// Runner is one executable pipeline stage.
type Runner interface {
	// Name is the stable stage name.
	Name() string

	// OutputKey is the artifact (relative to the output prefix) whose
	// existence marks the stage as completed. For most stages this is
	// ResultKey(Name()).
	OutputKey() string

	// Prerequisites lists artifacts (relative to the output prefix)
	// that must exist before the stage can run.
	Prerequisites() []string

	// Run executes the stage.
	Run(ctx context.Context, env *Env) (Result, error)
}

// findingNode wraps a finding so the controller's recursive scan picks
// it up inside a chapter result.
func findingNode(category, description string) map[string]any {
	return map[string]any{
		"finding": map[string]any{
			"category":    category,
			"description": description,
		},
	}
}

// warningNodes converts structural warning strings into embedded
// findings of the given category.
func warningNodes(category string, warnings []string) []any {
	out := make([]any, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, findingNode(category, w))
	}
	return out
}
