package sandbox

import (
	"context"
	"io"
	"os/exec"
	"time"
)

// execute runs the assembled argv under supervision and classifies the
// result. Both runners funnel through here so capture, limits, and
// classification behave identically in either mode.
func execute(ctx context.Context, argv []string, spec ExecSpec) (*ExecResult, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Workdir
	cmd.Env = baseEnv()

	outBuf := newLimitedBuffer(MaxCaptureBytes)
	errBuf := newLimitedBuffer(MaxCaptureBytes)
	if spec.CaptureStdout {
		cmd.Stdout = outBuf
	} else {
		cmd.Stdout = io.Discard
	}
	if spec.CaptureStderr {
		cmd.Stderr = errBuf
	} else {
		cmd.Stderr = io.Discard
	}

	sup := newSupervisor(cmd, time.Duration(spec.Limits.WallTimeMS)*time.Millisecond)
	start := time.Now()
	if err := sup.run(ctx); err != nil {
		return nil, err
	}
	wall := time.Since(start)
	use := extractUsage(cmd)

	return &ExecResult{
		Outcome:         classify(cmd, sup, spec.Limits, use),
		Stdout:          outBuf.Bytes(),
		Stderr:          errBuf.Bytes(),
		StdoutTruncated: outBuf.truncated,
		StderrTruncated: errBuf.truncated,
		WallTime:        wall,
		CPUTime:         use.cpu,
		MaxRSSKB:        use.maxRSSKB,
	}, nil
}
