// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Command audit-automator drives the BSI Grundschutz audit pipeline:
// run all stages, run a single stage, or assemble the final report.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/audit/stages"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/catalog"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/config"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/docfinder"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/logging"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/report"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

// Exit codes.
const (
	exitOK                  = 0
	exitBadConfig           = 2
	exitMissingPrerequisite = 3
	exitStageFailed         = 4
)

const configOverlayFile = "audit.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		runAll         bool
		runStage       string
		generateReport bool
		force          bool
	)

	cmd := &cobra.Command{
		Use:           "audit-automator",
		Short:         "BSI Grundschutz audit automation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, on := range []bool{runAll, runStage != "", generateReport} {
				if on {
					selected++
				}
			}
			if selected != 1 {
				return errors.Wrap(config.ErrConfig,
					"exactly one of --run-all, --run-stage or --generate-report is required")
			}
			return execute(cmd.Context(), runAll, runStage, generateReport, force)
		},
	}
	cmd.Flags().BoolVar(&runAll, "run-all", false, "run every stage, skipping completed ones")
	cmd.Flags().StringVar(&runStage, "run-stage", "", "run exactly one stage (force implied)")
	cmd.Flags().BoolVar(&generateReport, "generate-report", false, "assemble the final report")
	cmd.Flags().BoolVar(&force, "force", false, "re-run stages whose output already exists")

	err := cmd.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrConfig):
		fmt.Fprintln(os.Stderr, color.RedString("configuration error: %v", err))
		return exitBadConfig
	case errors.Is(err, audit.ErrMissingPrerequisite), errors.Is(err, audit.ErrUnknownStage):
		fmt.Fprintln(os.Stderr, color.RedString("%v", err))
		return exitMissingPrerequisite
	default:
		fmt.Fprintln(os.Stderr, color.RedString("%v", err))
		return exitStageFailed
	}
}

func execute(ctx context.Context, runAll bool, runStage string, generateReport, force bool) error {
	cfg, err := config.Load(configOverlayFile)
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	st, err := store.NewGCS(ctx, cfg.BucketName, logging.Component("store"))
	if err != nil {
		return err
	}

	if generateReport {
		return report.New(cfg, st, logging.Component("report")).Assemble(ctx)
	}

	gen, err := ai.NewVertex(ctx, ai.VertexOptions{
		ProjectID:     cfg.GCPProjectID,
		Region:        cfg.Region,
		DefaultModel:  cfg.GroundTruthModel,
		MaxConcurrent: int64(cfg.MaxConcurrentAIRequests),
		TestMode:      cfg.TestMode,
	}, logging.Component("ai"))
	if err != nil {
		return err
	}

	finder := docfinder.New(st, gen, cfg.SourcePrefix, cfg.OutputPrefix, logging.Component("docfinder"))
	if err := finder.EnsureInitialized(ctx); err != nil {
		return errors.Wrap(err, "initializing document finder")
	}

	cat, err := catalog.Load()
	if err != nil {
		return err
	}

	env := &stages.Env{
		Cfg:     cfg,
		Store:   st,
		Gen:     gen,
		Finder:  finder,
		Catalog: cat,
		Log:     logging.Component("audit"),
	}
	controller := audit.New(env, logging.Component("controller"))

	if runAll {
		err = controller.RunAll(ctx, force)
	} else {
		err = controller.RunStage(ctx, runStage)
	}
	printSummary(controller.Summary())
	return err
}

// printSummary renders the per-stage outcome table.
func printSummary(summary []audit.StageStatus) {
	if len(summary) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Run summary:")
	for _, s := range summary {
		var status string
		switch s.Status {
		case "success":
			status = color.GreenString("success")
		case "skipped":
			status = color.YellowString("skipped")
		default:
			status = color.RedString("failed ")
		}
		line := fmt.Sprintf("  %-30s %s  (%.1fs)", s.Name, status, s.Duration)
		if s.Reason != "" {
			line += "  " + s.Reason
		}
		fmt.Println(line)
	}
}
