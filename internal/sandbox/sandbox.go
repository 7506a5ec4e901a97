// Package sandbox executes a scenario's process under resource limits and
// classifies how it stopped. Two runners share the same supervision and
// classification path: a direct runner that relies on rlimits alone, and a
// bwrap runner that adds filesystem and network isolation on top.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/vouchdev/vouch/internal/config"
	"github.com/vouchdev/vouch/internal/outcome"
	"github.com/vouchdev/vouch/internal/scenario"
)

// Environment handed to every scenario process. Nothing from the host
// environment leaks in; the fixed locale and timezone keep output stable
// across hosts.
const (
	EnvLocale   = "LC_ALL=C"
	EnvTimezone = "TZ=UTC"
	EnvTerm     = "TERM=dumb"
	EnvPath     = "PATH=/bin:/usr/bin"
)

// MaxCaptureBytes caps each captured stream. Output past the cap is
// discarded and the result marked truncated.
const MaxCaptureBytes = 1 << 20

// openFileLimit is the NOFILE rlimit applied to every scenario process.
const openFileLimit = 128

// ExecSpec is a fully resolved execution request. All validation has
// already happened; the runner trusts these fields.
type ExecSpec struct {
	// BinaryPath is the resolved host path of the executable.
	BinaryPath string
	// Argv0 is the name the process sees as its own, preserved from the
	// scenario's declared path.
	Argv0 string
	// Args are the scenario's arguments, passed through verbatim.
	Args []string
	// Workdir is the materialized fixture root the process runs in.
	Workdir string

	Limits scenario.Limits

	CaptureStdout bool
	CaptureStderr bool
}

// ExecResult is what the runner observed. Outcome is always set; the
// streams hold whatever was captured before the process stopped, including
// partial output from limit kills.
type ExecResult struct {
	Outcome outcome.Outcome

	Stdout          []byte
	Stderr          []byte
	StdoutTruncated bool
	StderrTruncated bool

	WallTime time.Duration
	CPUTime  time.Duration
	MaxRSSKB int64
}

// Runner executes one scenario process to completion.
type Runner interface {
	// Run blocks until the process stops or the wall limit fires. A non-nil
	// error means the run itself broke (spawn failure, capture failure), not
	// that the scenario's process failed.
	Run(ctx context.Context, spec ExecSpec) (*ExecResult, error)

	// Mode names the isolation mode for evidence records.
	Mode() string
}

// New selects a runner by configured sandbox mode.
func New(mode string) (Runner, error) {
	switch mode {
	case config.SandboxDirect:
		return &DirectRunner{}, nil
	case config.SandboxBwrap:
		return &BwrapRunner{}, nil
	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", mode)
	}
}

// baseEnv returns the fixed environment contract.
func baseEnv() []string {
	return []string{EnvLocale, EnvTimezone, EnvTerm, EnvPath}
}
