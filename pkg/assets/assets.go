// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package assets embeds the static material the pipeline ships with:
// prompt bundles (one YAML file per stage), the JSON schemas enforced
// on model output, the master report template, and the BSI control
// catalog extract.
package assets

import (
	"embed"
	"path"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed prompts/*.yaml
var promptFS embed.FS

//go:embed schemas/*.json
var schemaFS embed.FS

//go:embed report/master_report_template.json
var reportTemplate []byte

//go:embed catalog/bsi_catalog.json
var controlCatalog []byte

// PromptSpec is one named task inside a stage's prompt bundle.
type PromptSpec struct {
	// Prompt is the template text. Placeholders use {name} syntax and
	// are filled with Render.
	Prompt string `yaml:"prompt"`

	// Schema names the JSON schema (schemas/<name>.json) enforced on
	// the model response.
	Schema string `yaml:"schema"`

	// SourceCategories lists the BSI document categories attached to
	// the call. Empty means the task attaches nothing by default.
	SourceCategories []string `yaml:"source_categories"`

	// Model optionally pins the task to "ground_truth" or "chunk".
	Model string `yaml:"model"`
}

// Render substitutes {key} placeholders in the prompt text.
func (p PromptSpec) Render(vars map[string]string) string {
	out := p.Prompt
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

var (
	promptOnce    sync.Once
	promptBundles map[string]map[string]PromptSpec
	promptErr     error
)

func loadPrompts() {
	promptBundles = make(map[string]map[string]PromptSpec)
	entries, err := promptFS.ReadDir("prompts")
	if err != nil {
		promptErr = err
		return
	}
	for _, e := range entries {
		data, err := promptFS.ReadFile(path.Join("prompts", e.Name()))
		if err != nil {
			promptErr = err
			return
		}
		bundle := make(map[string]PromptSpec)
		if err := yaml.Unmarshal(data, &bundle); err != nil {
			promptErr = errors.Wrapf(err, "parsing prompt bundle %s", e.Name())
			return
		}
		name := strings.TrimSuffix(e.Name(), ".yaml")
		promptBundles[name] = bundle
	}
}

// Prompt returns the named task from a stage's prompt bundle.
func Prompt(bundle, task string) (PromptSpec, error) {
	promptOnce.Do(loadPrompts)
	if promptErr != nil {
		return PromptSpec{}, promptErr
	}
	b, ok := promptBundles[bundle]
	if !ok {
		return PromptSpec{}, errors.Errorf("unknown prompt bundle %q", bundle)
	}
	spec, ok := b[task]
	if !ok {
		return PromptSpec{}, errors.Errorf("unknown prompt task %q in bundle %q", task, bundle)
	}
	return spec, nil
}

// SchemaJSON returns the raw bytes of an embedded JSON schema.
func SchemaJSON(name string) ([]byte, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, errors.Errorf("unknown schema %q", name)
	}
	return data, nil
}

// ReportTemplate returns the master report template bytes.
func ReportTemplate() []byte {
	return reportTemplate
}

// ControlCatalog returns the embedded BSI control catalog bytes.
func ControlCatalog() []byte {
	return controlCatalog
}

// SystemInstruction is the persona prepended to every model call. The
// AI client appends the current date at runtime.
const SystemInstruction = `Du bist ein erfahrener, nach BSI zertifizierter IT-Grundschutz-Auditor.
Du arbeitest präzise, evidenzbasiert und ausschließlich auf Grundlage der
bereitgestellten Dokumente. Antworte immer im geforderten JSON-Format.`
