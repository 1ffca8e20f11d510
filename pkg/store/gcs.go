// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

// gcsRetries is the internal retry budget for transient GCS failures.
const gcsRetries = 3

// GCS is the Google Cloud Storage implementation of Store.
type GCS struct {
	client *storage.Client
	bucket string
	log    *logrus.Entry
}

// NewGCS opens a client for the named bucket using application default
// credentials.
func NewGCS(ctx context.Context, bucket string, log *logrus.Entry) (*GCS, error) {
	if bucket == "" {
		return nil, errors.Wrap(ErrFatal, "bucket name is not configured")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrFatal, "creating storage client: %v", err)
	}
	log.Infof("object store ready for bucket gs://%s", bucket)
	return &GCS{client: client, bucket: bucket, log: log}, nil
}

// classify maps a GCS error onto the store error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrObjectNotExist), errors.Is(err, storage.ErrBucketNotExist):
		return errors.Wrap(ErrNotFound, err.Error())
	case strings.Contains(err.Error(), "403"):
		return errors.Wrap(ErrPermission, err.Error())
	case strings.Contains(err.Error(), "429"), strings.Contains(err.Error(), "500"),
		strings.Contains(err.Error(), "502"), strings.Contains(err.Error(), "503"):
		return errors.Wrap(ErrTransient, err.Error())
	default:
		return errors.Wrap(ErrFatal, err.Error())
	}
}

// withRetry runs op, retrying transient failures with a short linear
// backoff. Other error kinds surface immediately.
func (g *GCS) withRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 0; attempt < gcsRetries; attempt++ {
		err = classify(op())
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
		g.log.Warnf("%s: transient store error (attempt %d/%d): %v", what, attempt+1, gcsRetries, err)
		select {
		case <-ctx.Done():
			return errors.Wrap(ErrFatal, ctx.Err().Error())
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
	return err
}

func (g *GCS) List(ctx context.Context, prefix string) ([]Attrs, error) {
	var out []Attrs
	err := g.withRetry(ctx, "list "+prefix, func() error {
		out = out[:0]
		it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			// Skip zero-byte "directory" placeholders.
			if !strings.Contains(attrs.Name, ".") {
				continue
			}
			out = append(out, Attrs{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated})
		}
	})
	return out, err
}

func (g *GCS) ReadBytes(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := g.withRetry(ctx, "read "+key, func() error {
		r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
		if err != nil {
			return err
		}
		defer r.Close()
		data, err = io.ReadAll(r)
		return err
	})
	return data, err
}

func (g *GCS) ReadJSON(ctx context.Context, key string, v any) error {
	data, err := g.ReadBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrFatal, "parsing %s: %v", key, err)
	}
	return nil
}

func (g *GCS) WriteBytes(ctx context.Context, key string, content []byte, contentType string) error {
	return g.withRetry(ctx, "write "+key, func() error {
		w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(content); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	})
}

func (g *GCS) WriteJSON(ctx context.Context, key string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return g.WriteBytes(ctx, key, data, "application/json")
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	err := g.withRetry(ctx, "stat "+key, func() error {
		_, err := g.client.Bucket(g.bucket).Object(key).Attrs(ctx)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *GCS) Delete(ctx context.Context, key string) error {
	err := g.withRetry(ctx, "delete "+key, func() error {
		return g.client.Bucket(g.bucket).Object(key).Delete(ctx)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (g *GCS) DeletePrefix(ctx context.Context, prefix string) error {
	objects, err := g.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		if err := g.Delete(ctx, obj.Name); err != nil {
			return err
		}
	}
	return nil
}

func (g *GCS) URL(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, key)
}
