// Package scenario parses and validates untrusted scenario documents.
//
// A scenario arrives as raw bytes from an external producer and is treated
// as adversarial. Validation is fail-closed and two-layered: an embedded CUE
// schema fixes the document shape (closed structs, required fields, types),
// then configured policy bounds and binary-identity checks run in Go. A
// document either yields a fully valid Scenario or a RejectError with a
// stable reason code; nothing in between.
package scenario

// Scenario is a validated description of one binary invocation. It is
// constructed only by the Validator, never mutated afterwards, and discarded
// after the run; only its raw serialized form persists in the evidence
// bundle.
type Scenario struct {
	ID        string    `json:"id"`
	Rationale string    `json:"rationale"`
	Binary    BinaryRef `json:"binary"`
	Args      []string  `json:"args"`
	Fixture   FixtureRef `json:"fixture"`
	Limits    Limits    `json:"limits"`
	Artifacts Artifacts `json:"artifacts"`

	// Raw holds the document bytes exactly as received; the evidence
	// bundler stores and hashes these, never a re-serialization.
	Raw []byte `json:"-"`

	// SHA256 is the hash of Raw.
	SHA256 string `json:"-"`
}

// BinaryRef declares which binary the scenario expects to run. The path
// must resolve to the identical file as the target supplied to the run.
type BinaryRef struct {
	Path string `json:"path"`
}

// FixtureRef names a fixture from the catalog by id.
type FixtureRef struct {
	ID string `json:"id"`
}

// Limits are the resource limits for one execution. All four are required
// and must fall within the configured bounds.
type Limits struct {
	WallTimeMS int64 `json:"wall_time_ms"`
	CPUTimeMS  int64 `json:"cpu_time_ms"`
	MemoryKB   int64 `json:"memory_kb"`
	FileSizeKB int64 `json:"file_size_kb"`
}

// Artifacts gates what the executor captures. Uncaptured streams are
// discarded during execution, not buffered.
type Artifacts struct {
	CaptureStdout   bool `json:"capture_stdout"`
	CaptureStderr   bool `json:"capture_stderr"`
	CaptureExitCode bool `json:"capture_exit_code"`
}
