// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Memory is an in-process Store used by the test suites. It mirrors
// the GCS semantics: whole-object writes, name-ordered listing,
// extension-less keys skipped by List.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	data    []byte
	updated time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

func (m *Memory) List(_ context.Context, prefix string) ([]Attrs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attrs
	for name, obj := range m.objects {
		if !strings.HasPrefix(name, prefix) || !strings.Contains(name, ".") {
			continue
		}
		out = append(out, Attrs{Name: name, Size: int64(len(obj.data)), Updated: obj.updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ReadBytes(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, key)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (m *Memory) ReadJSON(ctx context.Context, key string, v any) error {
	data, err := m.ReadBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrFatal, "parsing %s: %v", key, err)
	}
	return nil
}

func (m *Memory) WriteBytes(_ context.Context, key string, content []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]byte, len(content))
	copy(data, content)
	m.objects[key] = memObject{data: data, updated: time.Now()}
	return nil
}

func (m *Memory) WriteJSON(ctx context.Context, key string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return m.WriteBytes(ctx, key, data, "application/json")
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			delete(m.objects, name)
		}
	}
	return nil
}

func (m *Memory) URL(key string) string {
	return "mem://" + key
}

// Keys returns every stored key in sorted order. Test helper.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for name := range m.objects {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}
