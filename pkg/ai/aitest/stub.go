// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package aitest provides a scripted ai.Generator for package tests.
package aitest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/ai"
)

// Response is one scripted reply. Match is a substring matched against
// the request context first, then the prompt; the first matching
// response wins. A Response with empty Match matches anything.
type Response struct {
	Match string
	JSON  string
	Err   error
}

// Stub is a scripted ai.Generator. It records every request it serves.
type Stub struct {
	mu        sync.Mutex
	Responses []Response
	Requests  []ai.Request
}

// NewStub builds a stub from scripted responses.
func NewStub(responses ...Response) *Stub {
	return &Stub{Responses: responses}
}

// GenerateStructured implements ai.Generator.
func (s *Stub) GenerateStructured(_ context.Context, req ai.Request) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	for _, r := range s.Responses {
		if r.Match == "" || strings.Contains(req.Context, r.Match) || strings.Contains(req.Prompt, r.Match) {
			if r.Err != nil {
				return nil, r.Err
			}
			return json.RawMessage(r.JSON), nil
		}
	}
	return nil, errors.Wrapf(ai.ErrFatal, "no scripted response for %q", req.Context)
}

// Embed implements ai.Generator with zero vectors.
func (s *Stub) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = make([]float64, 8)
	}
	return out, nil
}

// CallCount returns how many generation requests the stub served.
func (s *Stub) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
