// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package ai

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	"github.com/pkg/errors"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
)

// schemaRegistry compiles embedded schemas once and caches them.
type schemaRegistry struct {
	mu       sync.Mutex
	compiler *jsonschema.Compiler
	compiled map[string]*jsonschema.Schema
	raw      map[string]json.RawMessage
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{
		compiler: jsonschema.NewCompiler(),
		compiled: make(map[string]*jsonschema.Schema),
		raw:      make(map[string]json.RawMessage),
	}
}

// get returns the compiled validator and the raw schema document for
// an embedded schema name.
func (r *schemaRegistry) get(name string) (*jsonschema.Schema, json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.compiled[name]; ok {
		return s, r.raw[name], nil
	}
	data, err := assets.SchemaJSON(name)
	if err != nil {
		return nil, nil, errors.Wrap(ErrFatal, err.Error())
	}
	schema, err := r.compiler.Compile(data)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrFatal, "compiling schema %s: %v", name, err)
	}
	r.compiled[name] = schema
	r.raw[name] = json.RawMessage(data)
	return schema, r.raw[name], nil
}

// validate checks a decoded response against the named schema.
func (r *schemaRegistry) validate(name string, raw json.RawMessage) error {
	schema, _, err := r.get(name)
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return errors.Wrapf(ErrSchema, "response is not valid JSON: %v", err)
	}
	result := schema.Validate(instance)
	if !result.IsValid() {
		var parts []string
		for field, detail := range result.Errors {
			parts = append(parts, field+": "+detail.Error())
		}
		return errors.Wrapf(ErrSchema, "schema %s: %s", name, strings.Join(parts, "; "))
	}
	return nil
}

// schemaForAPI strips the $schema marker the provider rejects and
// returns the document to embed in generationConfig.responseSchema.
func schemaForAPI(raw json.RawMessage) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}
	delete(doc, "$schema")
	return doc, nil
}
