// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package stages

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai/aitest"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/catalog"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/config"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/docfinder"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/model"
	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/store"
)

func testLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func testConfig() config.Config {
	return config.Config{
		GCPProjectID:            "p",
		BucketName:              "b",
		SourcePrefix:            "source/",
		OutputPrefix:            "output/",
		AuditType:               config.AuditTypeZertifizierung,
		MaxConcurrentAIRequests: 2,
		GroundTruthModel:        "gt-model",
		ChunkModel:              "chunk-model",
	}
}

// newTestEnv seeds a memory store with classified source documents and
// returns a ready environment over the scripted generator.
func newTestEnv(t *testing.T, stub *aitest.Stub) (*Env, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	sources := map[string]model.DocumentCategory{
		"strukturanalyse.pdf": model.CategoryStrukturanalyse,
		"modellierung.pdf":    model.CategoryModellierung,
		"gs_check.pdf":        model.CategoryGrundschutzCheck,
		"risikoanalyse.pdf":   model.CategoryRisikoanalyse,
	}
	docMap := model.DocumentMap{Version: model.DocumentMapVersion}
	for name, cat := range sources {
		if err := mem.WriteBytes(ctx, "source/"+name, []byte("%PDF"), "application/pdf"); err != nil {
			t.Fatalf("seeding %s: %v", name, err)
		}
		docMap.Documents = append(docMap.Documents,
			model.DocumentEntry{Filename: "source/" + name, Category: cat})
	}
	if err := mem.WriteJSON(ctx, "output/document_map.json", docMap); err != nil {
		t.Fatalf("seeding document map: %v", err)
	}

	finder := docfinder.New(mem, stub, "source/", "output/", testLogger())
	if err := finder.EnsureInitialized(ctx); err != nil {
		t.Fatalf("finder init: %v", err)
	}
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return &Env{
		Cfg:     testConfig(),
		Store:   mem,
		Gen:     stub,
		Finder:  finder,
		Catalog: cat,
		Log:     testLogger(),
	}, mem
}

// seedSystemMap persists a small system structure map artifact.
func seedSystemMap(t *testing.T, mem *store.Memory) model.SystemStructureMap {
	t.Helper()
	systemMap := model.SystemStructureMap{
		Zielobjekte: []model.Zielobjekt{
			{Kuerzel: "S-001", Name: "Windows Server"},
			{Kuerzel: "A-001", Name: "Main App"},
			{Kuerzel: model.KuerzelInformationsverbund, Name: model.DefaultInformationsverbundName},
		},
		BausteinAssignments: []model.BausteinAssignment{
			{BausteinID: "SYS.1.1", Kuerzel: "S-001"},
			{BausteinID: "APP.1.1", Kuerzel: "A-001"},
			{BausteinID: "ISMS.1", Kuerzel: model.KuerzelInformationsverbund},
		},
		InformationsverbundName: model.DefaultInformationsverbundName,
	}
	if err := mem.WriteJSON(context.Background(), "output/system_structure_map.json", systemMap); err != nil {
		t.Fatalf("seeding system map: %v", err)
	}
	return systemMap
}
