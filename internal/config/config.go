// Package config loads the run configuration: filesystem roots, sandbox
// mode, and every bound the scenario validator enforces. The config is
// loaded once and passed explicitly; nothing in the pipeline reads it as
// ambient state.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Sandbox modes.
const (
	SandboxBwrap  = "bwrap"  // rootless bubblewrap isolation (evidentiary)
	SandboxDirect = "direct" // host execution, debug only
)

// Range bounds an integer scenario field, inclusive on both ends.
type Range struct {
	Min int64 `yaml:"min"`
	Max int64 `yaml:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

// Bounds holds every policy limit the validator applies to an untrusted
// scenario document. All checks fail closed.
type Bounds struct {
	MaxDocumentBytes   int   `yaml:"max_document_bytes"`
	MaxArgs            int   `yaml:"max_args"`
	MaxArgLength       int   `yaml:"max_arg_length"`
	MaxRationaleLength int   `yaml:"max_rationale_length"`
	WallTimeMS         Range `yaml:"wall_time_ms"`
	CPUTimeMS          Range `yaml:"cpu_time_ms"`
	MemoryKB           Range `yaml:"memory_kb"`
	FileSizeKB         Range `yaml:"file_size_kb"`
}

// Config is the full tool configuration.
type Config struct {
	FixturesRoot string `yaml:"fixtures_root"`
	EvidenceRoot string `yaml:"evidence_root"`
	IndexPath    string `yaml:"index_path"`
	Sandbox      string `yaml:"sandbox"`
	KeepWorkdir  bool   `yaml:"keep_workdir"`
	Bounds       Bounds `yaml:"bounds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		FixturesRoot: "fixtures",
		EvidenceRoot: "out",
		IndexPath:    "out/runs.db",
		Sandbox:      SandboxBwrap,
		KeepWorkdir:  false,
		Bounds: Bounds{
			MaxDocumentBytes:   1 << 16,
			MaxArgs:            16,
			MaxArgLength:       256,
			MaxRationaleLength: 1024,
			WallTimeMS:         Range{Min: 1, Max: 60_000},
			CPUTimeMS:          Range{Min: 1, Max: 30_000},
			MemoryKB:           Range{Min: 1024, Max: 1 << 20},
			FileSizeKB:         Range{Min: 1, Max: 1 << 20},
		},
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected: the config gates a trust boundary and silent typos would widen
// it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := unmarshalStrict(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func unmarshalStrict(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks internal consistency of a configuration.
func (c *Config) Validate() error {
	if c.FixturesRoot == "" {
		return fmt.Errorf("fixtures_root is required")
	}
	if c.EvidenceRoot == "" {
		return fmt.Errorf("evidence_root is required")
	}
	if c.Sandbox != SandboxBwrap && c.Sandbox != SandboxDirect {
		return fmt.Errorf("sandbox must be %q or %q, got %q", SandboxBwrap, SandboxDirect, c.Sandbox)
	}
	for _, bound := range []struct {
		name string
		r    Range
	}{
		{"wall_time_ms", c.Bounds.WallTimeMS},
		{"cpu_time_ms", c.Bounds.CPUTimeMS},
		{"memory_kb", c.Bounds.MemoryKB},
		{"file_size_kb", c.Bounds.FileSizeKB},
	} {
		if bound.r.Min <= 0 || bound.r.Max < bound.r.Min {
			return fmt.Errorf("bounds.%s: invalid range [%d, %d]", bound.name, bound.r.Min, bound.r.Max)
		}
	}
	if c.Bounds.MaxArgs <= 0 || c.Bounds.MaxArgLength <= 0 {
		return fmt.Errorf("bounds.max_args and bounds.max_arg_length must be positive")
	}
	if c.Bounds.MaxDocumentBytes <= 0 {
		return fmt.Errorf("bounds.max_document_bytes must be positive")
	}
	return nil
}
