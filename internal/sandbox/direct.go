package sandbox

import (
	"context"

	"github.com/vouchdev/vouch/internal/config"
)

// DirectRunner executes the target on the host with rlimits, a process
// group, and a scrubbed environment, but no filesystem or network
// isolation. It exists for hosts without bwrap and for tests.
type DirectRunner struct{}

func (r *DirectRunner) Mode() string { return config.SandboxDirect }

func (r *DirectRunner) Run(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	argv := shellWrapper(spec.Limits)
	argv = append(argv, spec.BinaryPath)
	argv = append(argv, spec.Args...)
	return execute(ctx, argv, spec)
}
