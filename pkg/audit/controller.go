// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package audit orchestrates the staged pipeline: it executes the
// stage runners in dependency order, enforces resume-vs-force
// semantics, centrally collects findings, and records the per-run
// summary.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/stages"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// Artifact names relative to the output prefix.
const (
	AllFindingsKey = "results/all_findings.json"
	RunSummaryKey  = "results/run_summary.json"
)

const (
	stageScanReport     = stages.NameScanReport
	previousAuditPrefix = "Previous Audit"
)

// Error kinds surfaced to the CLI.
var (
	// ErrMissingPrerequisite marks a requested stage whose required
	// artifacts are absent (exit code 3).
	ErrMissingPrerequisite = errors.New("missing prerequisite")

	// ErrStageFailed marks a run in which at least one stage failed
	// (exit code 4).
	ErrStageFailed = errors.New("stage failed")

	// ErrUnknownStage marks a --run-stage name the controller does not
	// know.
	ErrUnknownStage = errors.New("unknown stage")
)

// StageStatus is one line of the run summary.
type StageStatus struct {
	Name     string  `json:"name"`
	Status   string  `json:"status"` // success, skipped, failed
	Reason   string  `json:"reason,omitempty"`
	Duration float64 `json:"duration_s"`
}

// Controller drives the audit run.
type Controller struct {
	env     *stages.Env
	runners []stages.Runner
	byName  map[string]stages.Runner
	collect *findingCollector
	summary []StageStatus
	log     *logrus.Entry
}

// New builds a controller over the default stage set in topological
// order: the system map feeds the extraction, the extraction feeds
// chapter 3, chapter 4 consumes the map, chapter 5 consumes the
// chapter-4 plan.
func New(env *stages.Env, log *logrus.Entry) *Controller {
	ordered := []stages.Runner{
		&stages.SystemMap{},
		&stages.GsCheckExtraction{},
		&stages.ScanReport{},
		&stages.Chapter1{},
		&stages.Chapter3{},
		&stages.Chapter7{},
		&stages.Chapter4{},
		&stages.Chapter5{},
	}
	byName := make(map[string]stages.Runner, len(ordered))
	for _, r := range ordered {
		byName[r.Name()] = r
	}
	return &Controller{
		env:     env,
		runners: ordered,
		byName:  byName,
		collect: newFindingCollector(),
		log:     log,
	}
}

// StageNames returns the known stage names in execution order.
func (c *Controller) StageNames() []string {
	out := make([]string, 0, len(c.runners))
	for _, r := range c.runners {
		out = append(out, r.Name())
	}
	return out
}

// Summary returns the per-stage statuses of the last run.
func (c *Controller) Summary() []StageStatus {
	return c.summary
}

// RunAll executes every stage in order. Completed stages are skipped
// unless force is set. A failed stage does not stop the run; stages
// whose prerequisites are consequently missing are skipped with a
// clear message. Returns ErrStageFailed when at least one stage
// failed.
func (c *Controller) RunAll(ctx context.Context, force bool) error {
	c.summary = c.summary[:0]
	failed := 0
	for _, runner := range c.runners {
		status := c.runOne(ctx, runner, force, false)
		c.summary = append(c.summary, status)
		if status.Status == "failed" {
			failed++
		}
	}
	if err := c.persistSummary(ctx); err != nil {
		c.log.Errorf("could not persist run summary: %v", err)
	}
	if failed > 0 {
		return errors.Wrapf(ErrStageFailed, "%d of %d stages failed", failed, len(c.runners))
	}
	return nil
}

// RunStage executes exactly one stage, overwriting its output. Its
// prerequisites must already exist.
func (c *Controller) RunStage(ctx context.Context, name string) error {
	runner, ok := c.byName[name]
	if !ok {
		return errors.Wrapf(ErrUnknownStage, "%q (known: %s)", name, strings.Join(c.StageNames(), ", "))
	}
	c.summary = c.summary[:0]
	status := c.runOne(ctx, runner, true, true)
	c.summary = append(c.summary, status)
	if err := c.persistSummary(ctx); err != nil {
		c.log.Errorf("could not persist run summary: %v", err)
	}
	if status.Status == "failed" {
		if strings.Contains(status.Reason, ErrMissingPrerequisite.Error()) {
			return errors.Wrap(ErrMissingPrerequisite, status.Reason)
		}
		return errors.Wrap(ErrStageFailed, status.Reason)
	}
	return nil
}

// runOne executes a single stage with resume/force semantics and
// processes its findings. strict marks an explicitly requested stage:
// missing prerequisites then fail instead of skipping.
func (c *Controller) runOne(ctx context.Context, runner stages.Runner, force, strict bool) StageStatus {
	name := runner.Name()
	log := c.log.WithField("stage", name)
	start := time.Now()

	status := func(s, reason string) StageStatus {
		return StageStatus{
			Name:     name,
			Status:   s,
			Reason:   reason,
			Duration: time.Since(start).Seconds(),
		}
	}

	// 1. Load and filter the central findings list so a re-run of this
	// stage replaces its previous findings instead of duplicating them.
	existing, err := c.loadFindings(ctx)
	if err != nil {
		log.Warnf("could not load existing findings: %v; starting empty", err)
	}
	c.collect.seed(existing, name)

	outputKey := c.env.Cfg.OutputPrefix + runner.OutputKey()

	// 2. Resume: a completed stage is only re-run under force. Its
	// persisted result is still scanned so its findings survive the
	// seed/filter step above.
	if !force {
		exists, err := c.env.Store.Exists(ctx, outputKey)
		if err == nil && exists {
			log.Info("output exists; skipping (use --force to re-run)")
			// Stages with a persisted chapter result are re-scanned so
			// their findings survive the seed/filter step. Stages with
			// a dedicated artifact keep their previously persisted
			// findings untouched.
			if result := c.loadResult(ctx, runner); result != nil {
				c.ingestFindings(name, result)
				if err := c.persistFindings(ctx); err != nil {
					log.Errorf("persisting findings: %v", err)
				}
			}
			return status("skipped", "output exists")
		}
	}

	// 3. Prerequisites.
	for _, prereq := range runner.Prerequisites() {
		exists, err := c.env.Store.Exists(ctx, c.env.Cfg.OutputPrefix+prereq)
		if err != nil {
			return status("failed", "checking prerequisite "+prereq+": "+err.Error())
		}
		if !exists {
			msg := "missing prerequisite artifact " + prereq
			if strict {
				return status("failed", ErrMissingPrerequisite.Error()+": "+msg)
			}
			log.Warnf("%s; skipping stage", msg)
			return status("skipped", msg)
		}
	}

	// 4. Execute.
	log.Info("running stage")
	env := *c.env
	env.Force = force
	env.Log = log
	result, err := runner.Run(ctx, &env)
	if err != nil {
		log.Errorf("stage failed: %v", err)
		// Findings gathered so far are still persisted so a later
		// resume does not lose them.
		if perr := c.persistFindings(ctx); perr != nil {
			log.Errorf("persisting findings after failure: %v", perr)
		}
		return status("failed", err.Error())
	}

	// 5. Persist the chapter result (stages with dedicated artifacts
	// write those themselves).
	if runner.OutputKey() == stages.ResultKey(name) {
		if err := c.env.Store.WriteJSON(ctx, outputKey, result); err != nil {
			return status("failed", "persisting result: "+err.Error())
		}
	}

	// 6. Findings.
	c.ingestFindings(name, result)
	if err := c.persistFindings(ctx); err != nil {
		return status("failed", "persisting findings: "+err.Error())
	}

	log.Infof("stage completed in %.1fs", time.Since(start).Seconds())
	return status("success", "")
}

// ingestFindings pulls findings out of a stage result. The
// previous-report scan contributes its all_findings list with
// preserved IDs; every other stage contributes embedded finding
// objects.
func (c *Controller) ingestFindings(stageName string, result stages.Result) {
	if stageName == stageScanReport {
		rawList, _ := result["all_findings"].([]any)
		for _, item := range rawList {
			raw, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if f, ok := previousFindingFromMap(raw); ok {
				c.collect.addPrevious(f)
			}
		}
		return
	}
	sourceRef := sourceChapterOf(stageName)
	for _, f := range extractFindings(map[string]any(result)) {
		f.SourceChapter = sourceRef
		c.collect.addNew(f)
		c.log.Infof("collected finding from %s: %s", stageName, f.Category)
	}
}

// sourceChapterOf maps a stage name onto the chapter reference stored
// with its findings.
func sourceChapterOf(stageName string) string {
	return strings.TrimPrefix(stageName, "Chapter-")
}

func (c *Controller) loadFindings(ctx context.Context) ([]model.Finding, error) {
	var out []model.Finding
	err := c.env.Store.ReadJSON(ctx, c.env.Cfg.OutputPrefix+AllFindingsKey, &out)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return out, err
}

func (c *Controller) persistFindings(ctx context.Context) error {
	finalized := c.collect.finalized()
	if err := c.env.Store.WriteJSON(ctx, c.env.Cfg.OutputPrefix+AllFindingsKey, finalized); err != nil {
		return err
	}
	c.log.Infof("persisted %d findings", len(finalized))
	return nil
}

// loadResult reads a stage's persisted chapter result, nil when the
// stage has a dedicated artifact or the read fails.
func (c *Controller) loadResult(ctx context.Context, runner stages.Runner) stages.Result {
	if runner.OutputKey() != stages.ResultKey(runner.Name()) {
		return nil
	}
	var result stages.Result
	if err := c.env.Store.ReadJSON(ctx, c.env.Cfg.OutputPrefix+runner.OutputKey(), &result); err != nil {
		return nil
	}
	return result
}

func (c *Controller) persistSummary(ctx context.Context) error {
	return c.env.Store.WriteJSON(ctx, c.env.Cfg.OutputPrefix+RunSummaryKey, c.summary)
}
