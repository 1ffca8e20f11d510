// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package audit

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/stages"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/config"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

// fakeRunner is a scriptable stage for controller tests.
type fakeRunner struct {
	name    string
	prereqs []string
	result  stages.Result
	err     error
	calls   int
}

func (f *fakeRunner) Name() string            { return f.name }
func (f *fakeRunner) OutputKey() string       { return stages.ResultKey(f.name) }
func (f *fakeRunner) Prerequisites() []string { return f.prereqs }

func (f *fakeRunner) Run(_ context.Context, _ *stages.Env) (stages.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestController(runners ...stages.Runner) (*Controller, *store.Memory) {
	mem := store.NewMemory()
	env := &stages.Env{
		Cfg: config.Config{
			OutputPrefix: "output/",
			SourcePrefix: "source/",
			AuditType:    config.AuditTypeZertifizierung,
		},
		Store: mem,
		Log:   testLogger(),
	}
	byName := make(map[string]stages.Runner)
	for _, r := range runners {
		byName[r.Name()] = r
	}
	return &Controller{
		env:     env,
		runners: runners,
		byName:  byName,
		collect: newFindingCollector(),
		log:     testLogger(),
	}, mem
}

// --- RunAll ---

func TestRunAllResumesCompletedStages(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := &fakeRunner{name: "Chapter-1", result: stages.Result{"x": 1}}
	c, _ := newTestController(a)

	if err := c.RunAll(ctx, false); err != nil {
		t.Fatalf("first RunAll: %v", err)
	}
	if a.calls != 1 {
		t.Fatalf("stage ran %d times, want 1", a.calls)
	}
	// Second run without force: skipped.
	if err := c.RunAll(ctx, false); err != nil {
		t.Fatalf("second RunAll: %v", err)
	}
	if a.calls != 1 {
		t.Errorf("completed stage re-ran (%d calls)", a.calls)
	}
	if c.Summary()[0].Status != "skipped" {
		t.Errorf("summary = %+v", c.Summary()[0])
	}
	// Force: re-ran.
	if err := c.RunAll(ctx, true); err != nil {
		t.Fatalf("forced RunAll: %v", err)
	}
	if a.calls != 2 {
		t.Errorf("forced run did not re-execute (%d calls)", a.calls)
	}
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	failing := &fakeRunner{name: "Chapter-1", err: errors.New("model exploded")}
	dependent := &fakeRunner{name: "Chapter-5", prereqs: []string{stages.ResultKey("Chapter-1")}}
	independent := &fakeRunner{name: "Chapter-7", result: stages.Result{}}
	c, _ := newTestController(failing, dependent, independent)

	err := c.RunAll(ctx, false)
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("err = %v, want ErrStageFailed", err)
	}
	if dependent.calls != 0 {
		t.Error("dependent stage ran despite missing prerequisite")
	}
	if independent.calls != 1 {
		t.Error("independent stage did not run")
	}

	statuses := map[string]string{}
	for _, s := range c.Summary() {
		statuses[s.Name] = s.Status
	}
	if statuses["Chapter-1"] != "failed" || statuses["Chapter-5"] != "skipped" || statuses["Chapter-7"] != "success" {
		t.Errorf("summary = %v", statuses)
	}
}

// --- RunStage ---

func TestRunStageUnknown(t *testing.T) {
	t.Parallel()
	c, _ := newTestController()
	if err := c.RunStage(context.Background(), "Chapter-99"); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("err = %v, want ErrUnknownStage", err)
	}
}

func TestRunStageMissingPrerequisite(t *testing.T) {
	t.Parallel()
	dependent := &fakeRunner{name: "Chapter-5", prereqs: []string{stages.ResultKey("Chapter-4")}}
	c, _ := newTestController(dependent)
	err := c.RunStage(context.Background(), "Chapter-5")
	if !errors.Is(err, ErrMissingPrerequisite) {
		t.Fatalf("err = %v, want ErrMissingPrerequisite", err)
	}
}

func TestRunStageForcesRerun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := &fakeRunner{name: "Chapter-4", result: stages.Result{"v": 1}}
	other := &fakeRunner{name: "Chapter-7", result: stages.Result{"w": 1}}
	c, mem := newTestController(a, other)

	if err := c.RunAll(ctx, false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	otherBefore, err := mem.ReadBytes(ctx, "output/results/Chapter-7.json")
	if err != nil {
		t.Fatalf("reading Chapter-7 result: %v", err)
	}

	a.result = stages.Result{"v": 2}
	if err := c.RunStage(ctx, "Chapter-4"); err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if a.calls != 2 {
		t.Errorf("run-stage did not force (%d calls)", a.calls)
	}
	var rewritten map[string]any
	if err := mem.ReadJSON(ctx, "output/results/Chapter-4.json", &rewritten); err != nil {
		t.Fatalf("reading rewritten result: %v", err)
	}
	if rewritten["v"].(float64) != 2 {
		t.Errorf("Chapter-4 result not rewritten: %v", rewritten)
	}
	// Other chapter results stay untouched.
	otherAfter, err := mem.ReadBytes(ctx, "output/results/Chapter-7.json")
	if err != nil {
		t.Fatalf("re-reading Chapter-7 result: %v", err)
	}
	if string(otherBefore) != string(otherAfter) {
		t.Error("run-stage touched another stage's output")
	}
}

// --- findings flow ---

func TestFindingsCollectedAndStable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	emitter := &fakeRunner{name: "Chapter-3", result: stages.Result{
		"sub": map[string]any{
			"finding": map[string]any{"category": "AG", "description": "Dokument veraltet"},
		},
	}}
	c, mem := newTestController(emitter)

	if err := c.RunAll(ctx, false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	var findings []model.Finding
	if err := mem.ReadJSON(ctx, "output/"+AllFindingsKey, &findings); err != nil {
		t.Fatalf("reading findings: %v", err)
	}
	if len(findings) != 1 || findings[0].ID != "AG-01" || findings[0].SourceChapter != "3" {
		t.Fatalf("findings = %+v", findings)
	}

	// Forced re-run replaces, not duplicates.
	if err := c.RunStage(ctx, "Chapter-3"); err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if err := mem.ReadJSON(ctx, "output/"+AllFindingsKey, &findings); err != nil {
		t.Fatalf("re-reading findings: %v", err)
	}
	if len(findings) != 1 {
		t.Errorf("re-run duplicated findings: %+v", findings)
	}
}

func TestScanReportFindingsPreserveIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	scan := &fakeRunner{name: stageScanReport, result: stages.Result{
		"all_findings": []any{
			map[string]any{"nummer": "AG-2", "category": "AG", "beschreibung": "alte Abweichung", "quelle": "7.2"},
		},
	}}
	emitter := &fakeRunner{name: "Chapter-3", result: stages.Result{
		"sub": map[string]any{
			"finding": map[string]any{"category": "AG", "description": "neue Abweichung"},
		},
	}}
	c, mem := newTestController(scan, emitter)

	if err := c.RunAll(ctx, false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	var findings []model.Finding
	if err := mem.ReadJSON(ctx, "output/"+AllFindingsKey, &findings); err != nil {
		t.Fatalf("reading findings: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("findings = %+v", findings)
	}
	ids := map[string]bool{}
	for _, f := range findings {
		ids[f.ID] = true
	}
	if !ids["AG-2"] || !ids["AG-03"] {
		t.Errorf("IDs = %v, want preserved AG-2 and new AG-03", ids)
	}
}
