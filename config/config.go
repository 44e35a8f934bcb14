// Package config loads the engine's external configuration (§6): the
// model file path, context/KV budgets, worker sizing and timeouts. It
// follows the teacher's strict-YAML pattern (sim/bundle.go's
// LoadPolicyBundle): unrecognized keys are rejected so a typo in a
// deployment's YAML fails fast instead of silently no-op'ing.
package config

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the engine's recognized option set (§6).
type Config struct {
	ModelPath      string `yaml:"model_path"`
	MaxContextTokens int  `yaml:"max_context_tokens"`
	EnableKVCache  bool   `yaml:"enable_kv_cache"`

	// ThreadCount sizes the worker pool; nil means "processor count".
	ThreadCount *int `yaml:"thread_count"`
	// RequestTimeoutMillis bounds a single generation request; nil means no timeout.
	RequestTimeoutMillis *int `yaml:"request_timeout_ms"`

	KVMaxBytesPerSession int64 `yaml:"kv_max_bytes_per_session"`
	KVMaxBytesTotal      int64 `yaml:"kv_max_bytes_total"`
	KVMaxSessions        int   `yaml:"kv_max_sessions"`

	AllowGGUFImport bool    `yaml:"allow_gguf_import"`
	GGUFCacheDir    *string `yaml:"gguf_cache_dir"`

	LogLevel string `yaml:"log_level"`
}

// Load reads and strictly parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills the processor-count/unset-timeout semantics §6
// assigns to nil optional fields, without disturbing an explicit zero.
func (c *Config) applyDefaults() {
	if c.ThreadCount == nil {
		n := runtime.NumCPU()
		c.ThreadCount = &n
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the cross-field and range constraints §6 implies.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("config: model_path must be set")
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("config: max_context_tokens must be positive, got %d", c.MaxContextTokens)
	}
	if c.ThreadCount != nil && *c.ThreadCount <= 0 {
		return fmt.Errorf("config: thread_count must be positive when set, got %d", *c.ThreadCount)
	}
	if c.RequestTimeoutMillis != nil && *c.RequestTimeoutMillis <= 0 {
		return fmt.Errorf("config: request_timeout_ms must be positive when set, got %d", *c.RequestTimeoutMillis)
	}
	if c.EnableKVCache {
		if c.KVMaxBytesPerSession <= 0 {
			return fmt.Errorf("config: kv_max_bytes_per_session must be positive when KV cache is enabled, got %d", c.KVMaxBytesPerSession)
		}
		if c.KVMaxBytesTotal <= 0 {
			return fmt.Errorf("config: kv_max_bytes_total must be positive when KV cache is enabled, got %d", c.KVMaxBytesTotal)
		}
		if c.KVMaxBytesPerSession > c.KVMaxBytesTotal {
			return fmt.Errorf("config: kv_max_bytes_per_session (%d) cannot exceed kv_max_bytes_total (%d)", c.KVMaxBytesPerSession, c.KVMaxBytesTotal)
		}
		if c.KVMaxSessions <= 0 {
			return fmt.Errorf("config: kv_max_sessions must be positive when KV cache is enabled, got %d", c.KVMaxSessions)
		}
	}
	if c.AllowGGUFImport && c.GGUFCacheDir == nil {
		return fmt.Errorf("config: gguf_cache_dir must be set when allow_gguf_import is true")
	}
	return nil
}
