package evidence

import (
	"github.com/vouchdev/vouch/internal/identity"
	"github.com/vouchdev/vouch/internal/outcome"
	"github.com/vouchdev/vouch/internal/scenario"
)

// MetaVersion is the evidence metadata format version.
const MetaVersion = 1

// Meta is the meta.json record sealed into every bundle. Optional sections
// are nil when the run never reached them; a document rejected by the
// validator has no fixture or result section, but always has an outcome.
type Meta struct {
	Version     int    `json:"version"`
	RunID       string `json:"run_id"`
	CreatedAtMS int64  `json:"created_at_ms"`

	Tool ToolMeta `json:"tool"`

	Scenario *ScenarioMeta `json:"scenario,omitempty"`
	Binary   *BinaryMeta   `json:"binary,omitempty"`
	Fixture  *FixtureMeta  `json:"fixture,omitempty"`
	Sandbox  *SandboxMeta  `json:"sandbox,omitempty"`

	// Outcome is nil only for partial bundles, where Error says what broke
	// before classification.
	Outcome *outcome.Outcome `json:"outcome,omitempty"`
	Error   *ErrorRecord     `json:"error,omitempty"`
	Result  *ResultMeta      `json:"result,omitempty"`

	Artifacts []ArtifactMeta `json:"artifacts"`
}

// ToolMeta identifies the producing tool build.
type ToolMeta struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ScenarioMeta echoes the accepted scenario's identity. SHA256 is over the
// bytes as received, which are stored verbatim in scenario.json.
type ScenarioMeta struct {
	ID        string `json:"id"`
	Rationale string `json:"rationale"`
	SHA256    string `json:"sha256"`
}

// BinaryMeta records the executable the scenario actually ran against.
type BinaryMeta struct {
	InvokedPath  string            `json:"invoked_path"`
	ResolvedPath string            `json:"resolved_path"`
	SHA256       string            `json:"sha256"`
	Platform     identity.Platform `json:"platform"`
}

// FixtureMeta records which fixture was materialized and the hash of its
// manifest at materialization time.
type FixtureMeta struct {
	ID             string `json:"id"`
	ManifestSHA256 string `json:"manifest_sha256"`
}

// SandboxMeta records the execution conditions: isolation mode, the full
// environment contract, and the limits as enforced.
type SandboxMeta struct {
	Mode   string          `json:"mode"`
	Env    []string        `json:"env"`
	Limits scenario.Limits `json:"limits"`
}

// ErrorRecord captures an internal failure. Its presence means the bundle
// is partial: the run broke, it was not classified.
type ErrorRecord struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ResultMeta holds observed resource usage for runs that executed.
type ResultMeta struct {
	WallTimeMS      int64 `json:"wall_time_ms"`
	CPUTimeMS       int64 `json:"cpu_time_ms"`
	MaxRSSKB        int64 `json:"max_rss_kb"`
	StdoutTruncated bool  `json:"stdout_truncated"`
	StderrTruncated bool  `json:"stderr_truncated"`
}

// ArtifactMeta hash-addresses one file in the bundle. Tampering with any
// artifact breaks its recorded hash.
type ArtifactMeta struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}
