// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ai is the pipeline's interface to the schema-constrained
// generative model. The production implementation talks to the Vertex
// AI generateContent REST endpoint; stage runners depend only on the
// Generator interface.
package ai

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Error kinds for model interactions. Transient errors are retried
// inside the client; the others surface to the stage runners.
var (
	// ErrTransient marks a retryable provider error that survived the
	// full retry budget.
	ErrTransient = errors.New("transient model error")

	// ErrSchema marks a response that violates the requested schema.
	ErrSchema = errors.New("model response violates schema")

	// ErrBlocked marks a generation the provider refused.
	ErrBlocked = errors.New("model refused to generate")

	// ErrFatal marks a non-retryable failure.
	ErrFatal = errors.New("fatal model error")
)

// Request describes one structured-generation call.
type Request struct {
	// Prompt is the fully rendered user prompt.
	Prompt string

	// SchemaName names the embedded JSON schema (pkg/assets) enforced
	// on the response.
	SchemaName string

	// Documents lists provider URLs (gs://...) of PDFs attached by
	// reference.
	Documents []string

	// Context labels the request in logs, e.g. "Chapter-3: netzplan".
	Context string

	// Model optionally overrides the configured default model.
	Model string
}

// Generator is the capability surface stage runners use.
type Generator interface {
	// GenerateStructured returns a JSON value that validates against
	// the request's schema.
	GenerateStructured(ctx context.Context, req Request) (json.RawMessage, error)

	// Embed returns one fixed-dimension vector per input text. No core
	// stage requires it; it exists for retrieval strategies that want
	// embeddings.
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// DecodeInto unmarshals a structured response into v, mapping decode
// failures onto ErrSchema.
func DecodeInto(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(ErrSchema, err.Error())
	}
	return nil
}
