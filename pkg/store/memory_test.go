// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// --- Memory ---

func TestMemoryReadWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.ReadBytes(ctx, "missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("read of missing object: err = %v, want ErrNotFound", err)
	}

	if err := m.WriteJSON(ctx, "out/data.json", map[string]int{"a": 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var back map[string]int
	if err := m.ReadJSON(ctx, "out/data.json", &back); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if back["a"] != 1 {
		t.Errorf("round trip = %v", back)
	}

	exists, err := m.Exists(ctx, "out/data.json")
	if err != nil || !exists {
		t.Errorf("Exists = (%v, %v), want (true, nil)", exists, err)
	}
}

func TestMemoryListSkipsExtensionless(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	for _, key := range []string{"src/b.pdf", "src/a.pdf", "src/folder", "other/c.pdf"} {
		if err := m.WriteBytes(ctx, key, []byte("x"), "application/pdf"); err != nil {
			t.Fatalf("WriteBytes(%s): %v", key, err)
		}
	}
	attrs, err := m.List(ctx, "src/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(attrs) != 2 {
		t.Fatalf("List returned %d objects, want 2", len(attrs))
	}
	if attrs[0].Name != "src/a.pdf" || attrs[1].Name != "src/b.pdf" {
		t.Errorf("List not name-ordered: %v", attrs)
	}
}

func TestMemoryDeletePrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	for _, key := range []string{"tmp/a.json", "tmp/b.json", "keep/c.json"} {
		if err := m.WriteBytes(ctx, key, []byte("x"), ""); err != nil {
			t.Fatalf("WriteBytes: %v", err)
		}
	}
	if err := m.DeletePrefix(ctx, "tmp/"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	keys := m.Keys()
	if len(keys) != 1 || keys[0] != "keep/c.json" {
		t.Errorf("remaining keys = %v", keys)
	}
}

// --- MarshalJSON ---

func TestMarshalJSONKeepsUmlauts(t *testing.T) {
	t.Parallel()
	data, err := MarshalJSON(map[string]string{"k": "Kürzel für Prüfung"})
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if got := string(data); !strings.Contains(got, "Kürzel für Prüfung") {
		t.Errorf("umlauts escaped: %s", got)
	}
}
