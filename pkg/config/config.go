// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config loads and validates the pipeline configuration from
// the environment, optionally overlaid by an audit.yaml file in the
// working directory. The resulting Config is constructed once at
// startup and passed explicitly; it is never mutated afterwards.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrConfig marks missing or invalid configuration. The CLI maps it to
// exit code 2 before any pipeline work starts.
var ErrConfig = errors.New("configuration error")

// Audit types recognized by the Chapter 4 planning logic.
const (
	AuditTypeZertifizierung   = "Zertifizierungsaudit"
	AuditTypeUeberwachung1    = "1. Überwachungsaudit"
	AuditTypeUeberwachung2    = "2. Überwachungsaudit"
)

// Config holds all pipeline settings.
type Config struct {
	// GCPProjectID is the Google Cloud project hosting the bucket and
	// the Vertex AI endpoints.
	GCPProjectID string `yaml:"gcp_project_id"`

	// BucketName is the GCS bucket holding source documents and all
	// pipeline output.
	BucketName string `yaml:"bucket_name"`

	// SourcePrefix is the object prefix under which the customer's
	// source PDFs live.
	SourcePrefix string `yaml:"source_prefix"`

	// OutputPrefix is the object prefix under which every artifact of
	// this run is written.
	OutputPrefix string `yaml:"output_prefix"`

	// AuditType drives the Chapter 4 planning variant. One of
	// AuditTypeZertifizierung, AuditTypeUeberwachung1, AuditTypeUeberwachung2.
	AuditType string `yaml:"audit_type"`

	// Region is the Vertex AI location (e.g. "europe-west3").
	Region string `yaml:"region"`

	// MaxConcurrentAIRequests bounds in-flight model calls (default 5).
	MaxConcurrentAIRequests int `yaml:"max_concurrent_ai_requests"`

	// TestMode reduces the work per stage: at most 3 Zielobjekt groups
	// per extraction pass and at most 2 chunks per group.
	TestMode bool `yaml:"test_mode"`

	// OutputLanguage, when set, is the language requested for narrative
	// fields in generated content.
	OutputLanguage string `yaml:"output_language"`

	// GroundTruthModel is the model used for ground-truth extraction
	// and chapter generation.
	GroundTruthModel string `yaml:"ground_truth_model"`

	// ChunkModel is the cheaper model used for per-chunk requirement
	// extraction.
	ChunkModel string `yaml:"chunk_model"`

	// LogLevel is a logrus level name (default "info").
	LogLevel string `yaml:"log_level"`
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentAIRequests <= 0 {
		c.MaxConcurrentAIRequests = 5
	}
	if c.GroundTruthModel == "" {
		c.GroundTruthModel = "gemini-2.5-pro"
	}
	if c.ChunkModel == "" {
		c.ChunkModel = "gemini-2.5-flash"
	}
	if c.Region == "" {
		c.Region = "global"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	required := map[string]string{
		"GCP_PROJECT_ID": c.GCPProjectID,
		"BUCKET_NAME":    c.BucketName,
		"SOURCE_PREFIX":  c.SourcePrefix,
		"OUTPUT_PREFIX":  c.OutputPrefix,
		"AUDIT_TYPE":     c.AuditType,
	}
	for name, v := range required {
		if v == "" {
			return errors.Wrapf(ErrConfig, "missing required setting %s", name)
		}
	}
	switch c.AuditType {
	case AuditTypeZertifizierung, AuditTypeUeberwachung1, AuditTypeUeberwachung2:
	default:
		return errors.Wrapf(ErrConfig, "unknown AUDIT_TYPE %q", c.AuditType)
	}
	return nil
}

// Load reads configuration from the environment (a local .env file is
// honored for development) and, when overlayFile names an existing
// YAML file, applies its values on top before validation.
func Load(overlayFile string) (Config, error) {
	// Best-effort: in a cloud environment the variables are set
	// directly and no .env file exists.
	_ = godotenv.Load()

	cfg := Config{
		GCPProjectID:   os.Getenv("GCP_PROJECT_ID"),
		BucketName:     os.Getenv("BUCKET_NAME"),
		SourcePrefix:   os.Getenv("SOURCE_PREFIX"),
		OutputPrefix:   os.Getenv("OUTPUT_PREFIX"),
		AuditType:      os.Getenv("AUDIT_TYPE"),
		Region:         os.Getenv("REGION"),
		OutputLanguage: os.Getenv("OUTPUT_LANGUAGE"),
		GroundTruthModel: os.Getenv("GROUND_TRUTH_MODEL"),
		ChunkModel:       os.Getenv("CHUNK_MODEL"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}
	cfg.TestMode = strings.EqualFold(os.Getenv("TEST"), "true")
	if s := os.Getenv("MAX_CONCURRENT_AI_REQUESTS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.MaxConcurrentAIRequests = n
		}
	}

	if overlayFile != "" {
		if data, err := os.ReadFile(overlayFile); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, errors.Wrapf(ErrConfig, "parsing %s: %v", overlayFile, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(ErrConfig, "reading %s: %v", overlayFile, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
