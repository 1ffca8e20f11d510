// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/semaphore"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
)

const (
	// maxAttempts is the retry budget per call for non-OK completion
	// reasons and malformed JSON. HTTP-level transients are retried by
	// the underlying retryablehttp client.
	maxAttempts = 5

	// callTimeout bounds a single model call. Document-attached calls
	// over large PDFs can legitimately run for a long time.
	callTimeout = 7200 * time.Second

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

	embeddingModel = "text-embedding-004"
)

// VertexOptions configures the Vertex client.
type VertexOptions struct {
	ProjectID     string
	Region        string
	DefaultModel  string
	MaxConcurrent int64
	TestMode      bool

	// BaseURL overrides the endpoint (tests). Empty selects the public
	// Vertex endpoint for Region.
	BaseURL string

	// TokenSource overrides credential discovery (tests). Nil selects
	// application default credentials.
	TokenSource oauth2.TokenSource
}

// Vertex is the production Generator backed by the Vertex AI REST API.
type Vertex struct {
	opts    VertexOptions
	http    *retryablehttp.Client
	tokens  oauth2.TokenSource
	sem     *semaphore.Weighted
	schemas *schemaRegistry
	system  string
	log     *logrus.Entry
}

// NewVertex builds the client. The system instruction carries the
// audit persona plus the current date, so date-relative reasoning in
// prompts is anchored.
func NewVertex(ctx context.Context, opts VertexOptions, log *logrus.Entry) (*Vertex, error) {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	tokens := opts.TokenSource
	if tokens == nil {
		var err error
		tokens, err = google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, errors.Wrapf(ErrFatal, "resolving credentials: %v", err)
		}
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 4
	client.RetryWaitMin = 2 * time.Second
	client.RetryWaitMax = 32 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = callTimeout

	v := &Vertex{
		opts:    opts,
		http:    client,
		tokens:  tokens,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		schemas: newSchemaRegistry(),
		system: fmt.Sprintf("%s\n\nWichtig: Das heutige Datum ist %s.",
			assets.SystemInstruction, time.Now().Format("2006-01-02")),
		log: log,
	}
	log.Infof("vertex client ready: project=%s region=%s model=%s max_concurrent=%d",
		opts.ProjectID, opts.Region, opts.DefaultModel, opts.MaxConcurrent)
	return v, nil
}

func (v *Vertex) endpoint(model, verb string) string {
	base := v.opts.BaseURL
	if base == "" {
		if v.opts.Region == "" || v.opts.Region == "global" {
			base = "https://aiplatform.googleapis.com"
		} else {
			base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", v.opts.Region)
		}
	}
	location := v.opts.Region
	if location == "" {
		location = "global"
	}
	return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:%s",
		base, v.opts.ProjectID, location, model, verb)
}

// Request/response wire shapes for generateContent.

type genPart struct {
	Text     string       `json:"text,omitempty"`
	FileData *genFileData `json:"fileData,omitempty"`
}

type genFileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genRequest struct {
	SystemInstruction *genContent    `json:"systemInstruction,omitempty"`
	Contents          []genContent   `json:"contents"`
	GenerationConfig  map[string]any `json:"generationConfig"`
}

type genResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GenerateStructured implements Generator. At most MaxConcurrent calls
// are in flight across the process; the semaphore is held for the full
// attempt loop so retries do not multiply pressure on the provider.
func (v *Vertex) GenerateStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.SchemaName == "" {
		return nil, errors.Wrap(ErrFatal, "request has no schema")
	}
	_, rawSchema, err := v.schemas.get(req.SchemaName)
	if err != nil {
		return nil, err
	}
	apiSchema, err := schemaForAPI(rawSchema)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = v.opts.DefaultModel
	}

	parts := []genPart{{Text: req.Prompt}}
	for _, uri := range req.Documents {
		parts = append(parts, genPart{FileData: &genFileData{
			MimeType: "application/pdf",
			FileURI:  uri,
		}})
	}
	if v.opts.TestMode && len(req.Documents) > 0 {
		v.log.Infof("[%s] attaching %d documents", req.Context, len(req.Documents))
	}

	body := genRequest{
		SystemInstruction: &genContent{Parts: []genPart{{Text: v.system}}},
		Contents:          []genContent{{Role: "user", Parts: parts}},
		GenerationConfig: map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   apiSchema,
			"maxOutputTokens":  65535,
			"temperature":      0.2,
		},
	}

	if err := v.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}
	defer v.sem.Release(1)

	reqID := uuid.NewString()[:8]
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v.log.Infof("[%s] attempt %d/%d: calling model %s (req=%s)",
			req.Context, attempt, maxAttempts, model, reqID)

		raw, err := v.call(ctx, model, body)
		if err == nil {
			// Schema validation fails fast: the provider already
			// enforced the schema server-side, so a violation here is
			// not recoverable by resending the same request.
			if verr := v.schemas.validate(req.SchemaName, raw); verr != nil {
				v.log.Errorf("[%s] %v", req.Context, verr)
				return nil, verr
			}
			v.log.Infof("[%s] structured response accepted on attempt %d (req=%s)",
				req.Context, attempt, reqID)
			return raw, nil
		}
		lastErr = err
		if errors.Is(err, ErrBlocked) || errors.Is(err, ErrFatal) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}
		wait := time.Duration(1<<uint(attempt)) * time.Second
		v.log.Warnf("[%s] attempt %d failed: %v; retrying in %s", req.Context, attempt, err, wait)
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrFatal, ctx.Err().Error())
		case <-time.After(wait):
		}
	}
	v.log.Errorf("[%s] generation failed after %d attempts: %v", req.Context, maxAttempts, lastErr)
	return nil, errors.Wrapf(ErrTransient, "after %d attempts: %v", maxAttempts, lastErr)
}

// call performs one HTTP round trip and extracts the candidate text.
func (v *Vertex) call(ctx context.Context, model string, body genRequest) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}
	tok, err := v.tokens.Token()
	if err != nil {
		return nil, errors.Wrapf(ErrTransient, "fetching token: %v", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		v.endpoint(model, "generateContent"), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(httpReq.Request)

	resp, err := v.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(ErrTransient, err.Error())
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrTransient, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.Wrapf(ErrTransient, "HTTP %d: %s", resp.StatusCode, truncate(data, 200))
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.Wrapf(ErrFatal, "HTTP %d: %s", resp.StatusCode, truncate(data, 200))
	default:
		return nil, errors.Wrapf(ErrFatal, "HTTP %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed genResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrapf(ErrTransient, "unparseable response body: %v", err)
	}
	if parsed.PromptFeedback.BlockReason != "" {
		return nil, errors.Wrapf(ErrBlocked, "block reason %s", parsed.PromptFeedback.BlockReason)
	}
	if len(parsed.Candidates) == 0 {
		return nil, errors.Wrap(ErrTransient, "response contained no candidates")
	}
	cand := parsed.Candidates[0]
	switch cand.FinishReason {
	case "STOP", "MAX_TOKENS", "":
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return nil, errors.Wrapf(ErrBlocked, "finish reason %s", cand.FinishReason)
	default:
		return nil, errors.Wrapf(ErrTransient, "non-OK finish reason %s", cand.FinishReason)
	}

	var text string
	for _, p := range cand.Content.Parts {
		text += p.Text
	}
	if !json.Valid([]byte(text)) {
		return nil, errors.Wrap(ErrTransient, "candidate text is not valid JSON")
	}
	return json.RawMessage(text), nil
}

// Embed implements Generator via the text-embedding predict endpoint.
func (v *Vertex) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	type instance struct {
		Content string `json:"content"`
	}
	payloadObj := struct {
		Instances []instance `json:"instances"`
	}{}
	for _, t := range texts {
		payloadObj.Instances = append(payloadObj.Instances, instance{Content: t})
	}
	payload, err := json.Marshal(payloadObj)
	if err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}

	if err := v.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}
	defer v.sem.Release(1)

	tok, err := v.tokens.Token()
	if err != nil {
		return nil, errors.Wrapf(ErrTransient, "fetching token: %v", err)
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		v.endpoint(embeddingModel, "predict"), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(httpReq.Request)

	resp, err := v.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(ErrTransient, err.Error())
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrTransient, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrTransient, "HTTP %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed struct {
		Predictions []struct {
			Embeddings struct {
				Values []float64 `json:"values"`
			} `json:"embeddings"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(ErrTransient, err.Error())
	}
	out := make([][]float64, 0, len(parsed.Predictions))
	for _, p := range parsed.Predictions {
		out = append(out, p.Embeddings.Values)
	}
	return out, nil
}

func truncate(data []byte, n int) string {
	s := string(data)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
