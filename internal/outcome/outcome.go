// Package outcome defines the closed classification attached to every
// evidence bundle. Exactly one outcome is assigned per run; the set is a
// tagged variant so an impossible combination cannot be represented.
package outcome

import "fmt"

// Kind enumerates the closed outcome set.
type Kind string

const (
	// SchemaInvalid: the scenario document was rejected by the validator
	// (shape, policy bounds, or unknown fixture id).
	SchemaInvalid Kind = "schema_invalid"

	// FixtureInvalid: fixture materialization or verification failed
	// (hash mismatch, missing or extra entries).
	FixtureInvalid Kind = "fixture_invalid"

	// BinaryMismatch: the declared binary path did not resolve to the
	// supplied target, or the target is not an executable regular file.
	BinaryMismatch Kind = "binary_mismatch"

	// LimitExceeded: a resource limit terminated the child. The Limit tag
	// records which one.
	LimitExceeded Kind = "limit_exceeded"

	// Signaled: the child was terminated by a signal not attributable to a
	// resource limit.
	Signaled Kind = "signaled"

	// Exited: normal termination with an exit code. Zero and non-zero are
	// both "exited"; exit-code semantics are out of scope here.
	Exited Kind = "exited"
)

// LimitKind tags which resource limit terminated the run.
type LimitKind string

const (
	LimitWallTime LimitKind = "wall_time"
	LimitCPUTime  LimitKind = "cpu_time"
	LimitMemory   LimitKind = "memory"
	LimitFileSize LimitKind = "file_size"
)

// Outcome is the classification written into evidence metadata.
// Limit is set only for LimitExceeded; Signal only for Signaled and for
// limit kills delivered via a signal; ExitCode only for Exited.
type Outcome struct {
	Kind     Kind      `json:"kind"`
	Limit    LimitKind `json:"limit,omitempty"`
	Signal   string    `json:"signal,omitempty"`
	ExitCode *int      `json:"exit_code,omitempty"`
}

// String renders the outcome for text output, e.g. "limit_exceeded(wall_time)".
func (o Outcome) String() string {
	switch o.Kind {
	case LimitExceeded:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Limit)
	case Signaled:
		if o.Signal != "" {
			return fmt.Sprintf("%s(%s)", o.Kind, o.Signal)
		}
	case Exited:
		if o.ExitCode != nil {
			return fmt.Sprintf("%s(%d)", o.Kind, *o.ExitCode)
		}
	}
	return string(o.Kind)
}

// Rejected reports whether the outcome was assigned before any execution.
func (o Outcome) Rejected() bool {
	switch o.Kind {
	case SchemaInvalid, FixtureInvalid, BinaryMismatch:
		return true
	}
	return false
}

// NewExited builds an exited outcome for the given code.
func NewExited(code int) Outcome {
	return Outcome{Kind: Exited, ExitCode: &code}
}

// NewSignaled builds a signaled outcome.
func NewSignaled(signal string) Outcome {
	return Outcome{Kind: Signaled, Signal: signal}
}

// NewLimitExceeded builds a limit outcome tagged with the exceeded limit.
func NewLimitExceeded(limit LimitKind, signal string) Outcome {
	return Outcome{Kind: LimitExceeded, Limit: limit, Signal: signal}
}
