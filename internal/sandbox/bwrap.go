package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vouchdev/vouch/internal/config"
)

// bwrapBinary is resolved against the host PATH at run time.
const bwrapBinary = "bwrap"

// insideWorkdir is where the fixture tree appears inside the sandbox.
const insideWorkdir = "/work"

// BwrapRunner executes the target inside a bubblewrap sandbox: private
// tmpfs root, no network, host system directories read-only, the fixture
// bound writable at /work, and the target bound into /bin under the name
// the scenario invoked it by. The same ulimit wrapper as direct mode runs
// inside the sandbox.
type BwrapRunner struct{}

func (r *BwrapRunner) Mode() string { return config.SandboxBwrap }

// Available reports whether bwrap can be found on the host.
func (r *BwrapRunner) Available() bool {
	_, err := exec.LookPath(bwrapBinary)
	return err == nil
}

func (r *BwrapRunner) Run(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	inner := filepath.Join("/bin", filepath.Base(spec.Argv0))

	argv := []string{
		bwrapBinary,
		"--die-with-parent",
		"--unshare-net",
		"--clearenv",
	}
	for _, kv := range baseEnv() {
		name, value, _ := strings.Cut(kv, "=")
		argv = append(argv, "--setenv", name, value)
	}
	argv = append(argv,
		"--tmpfs", "/",
		"--ro-bind", "/bin", "/bin",
		"--ro-bind", "/usr", "/usr",
	)
	for _, lib := range []string{"/lib", "/lib64"} {
		if _, err := os.Stat(lib); err == nil {
			argv = append(argv, "--ro-bind", lib, lib)
		}
	}
	argv = append(argv,
		"--proc", "/proc",
		"--dev", "/dev",
		"--bind", spec.Workdir, insideWorkdir,
		"--ro-bind", spec.BinaryPath, inner,
		"--chdir", insideWorkdir,
		"--",
	)
	argv = append(argv, shellWrapper(spec.Limits)...)
	argv = append(argv, inner)
	argv = append(argv, spec.Args...)

	return execute(ctx, argv, spec)
}
