// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package store abstracts the blob store holding source documents and
// every pipeline artifact. Keys are plain object names; callers decide
// the layout. The GCS implementation is the production backend; the
// Memory implementation backs the test suites.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Error kinds. Callers classify with errors.Is; transient errors are
// retried inside the implementations, the others surface immediately.
var (
	ErrNotFound   = errors.New("object not found")
	ErrPermission = errors.New("permission denied")
	ErrTransient  = errors.New("transient store error")
	ErrFatal      = errors.New("fatal store error")
)

// Attrs describes a stored object.
type Attrs struct {
	Name    string
	Size    int64
	Updated time.Time
}

// Store is the capability surface the pipeline needs from a blob
// store. All operations are scoped to one bucket.
type Store interface {
	// List returns the attrs of every object under prefix, ordered by
	// name. Objects without a file extension are skipped (GCS folder
	// placeholders).
	List(ctx context.Context, prefix string) ([]Attrs, error)

	// ReadBytes returns the full content of key.
	ReadBytes(ctx context.Context, key string) ([]byte, error)

	// ReadJSON unmarshals the object at key into v.
	ReadJSON(ctx context.Context, key string, v any) error

	// WriteBytes stores content under key with the given content type.
	// The write replaces any existing object in a single upload.
	WriteBytes(ctx context.Context, key string, content []byte, contentType string) error

	// WriteJSON marshals v with indentation and stores it under key.
	WriteJSON(ctx context.Context, key string, v any) error

	// Exists reports whether key names an existing object.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// URL renders the provider URL for key (gs://bucket/key for GCS);
	// the AI client attaches documents by this reference.
	URL(key string) string
}

// MarshalJSON renders v the way every artifact in the run is
// persisted: two-space indentation, unescaped umlauts.
func MarshalJSON(v any) ([]byte, error) {
	buf, err := jsonMarshalIndent(v)
	if err != nil {
		return nil, errors.Wrap(ErrFatal, err.Error())
	}
	return buf, nil
}

func jsonMarshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
