package sandbox

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/vouchdev/vouch/internal/outcome"
	"github.com/vouchdev/vouch/internal/scenario"
)

// usage holds the rusage numbers classification needs.
type usage struct {
	cpu      time.Duration
	maxRSSKB int64
}

func extractUsage(cmd *exec.Cmd) usage {
	state := cmd.ProcessState
	if state == nil {
		return usage{}
	}
	ru, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return usage{}
	}
	cpu := timevalDuration(ru.Utime) + timevalDuration(ru.Stime)
	// Maxrss is KiB on Linux.
	return usage{cpu: cpu, maxRSSKB: int64(ru.Maxrss)}
}

func timevalDuration(tv syscall.Timeval) time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}

// classify reads the process state and defers the actual decision to
// classifyWait.
func classify(cmd *exec.Cmd, sup *supervisor, limits scenario.Limits, use usage) outcome.Outcome {
	state := cmd.ProcessState
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return outcome.NewExited(state.ExitCode())
	}
	return classifyWait(sup.wallLimitHit(), ws, limits, use)
}

// classifyWait maps how the process stopped onto an outcome.
//
// The wall limit is the supervisor's own kill, so it wins outright. Signal
// deaths are attributed to a limit when the kernel says so directly
// (SIGXCPU, SIGXFSZ) or when a crash signal coincides with peak memory at
// or above the budget, which is how an address-space rlimit usually
// surfaces. A SIGKILL with the CPU budget spent is the hard CPU rlimit.
// Everything else is reported as the plain signal or exit code it was.
func classifyWait(wallHit bool, ws syscall.WaitStatus, limits scenario.Limits, use usage) outcome.Outcome {
	if wallHit {
		return outcome.NewLimitExceeded(outcome.LimitWallTime, signalName(syscall.SIGKILL))
	}

	if ws.Signaled() {
		sig := ws.Signal()
		switch {
		case sig == syscall.SIGXCPU:
			return outcome.NewLimitExceeded(outcome.LimitCPUTime, signalName(sig))
		case sig == syscall.SIGXFSZ:
			return outcome.NewLimitExceeded(outcome.LimitFileSize, signalName(sig))
		case sig == syscall.SIGKILL && use.cpu >= time.Duration(cpuSeconds(limits.CPUTimeMS))*time.Second:
			return outcome.NewLimitExceeded(outcome.LimitCPUTime, signalName(sig))
		case crashSignal(sig) && use.maxRSSKB >= limits.MemoryKB:
			return outcome.NewLimitExceeded(outcome.LimitMemory, signalName(sig))
		default:
			return outcome.NewSignaled(signalName(sig))
		}
	}
	return outcome.NewExited(ws.ExitStatus())
}

func crashSignal(sig syscall.Signal) bool {
	switch sig {
	case syscall.SIGSEGV, syscall.SIGABRT, syscall.SIGBUS, syscall.SIGKILL:
		return true
	}
	return false
}

// signalName renders the conventional SIG* name. Signal.String would give
// prose like "killed", which is useless in structured evidence.
func signalName(sig syscall.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return fmt.Sprintf("SIG%d", int(sig))
}

var signalNames = map[syscall.Signal]string{
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGQUIT: "SIGQUIT",
	syscall.SIGILL:  "SIGILL",
	syscall.SIGABRT: "SIGABRT",
	syscall.SIGBUS:  "SIGBUS",
	syscall.SIGFPE:  "SIGFPE",
	syscall.SIGKILL: "SIGKILL",
	syscall.SIGSEGV: "SIGSEGV",
	syscall.SIGPIPE: "SIGPIPE",
	syscall.SIGALRM: "SIGALRM",
	syscall.SIGTERM: "SIGTERM",
	syscall.SIGXCPU: "SIGXCPU",
	syscall.SIGXFSZ: "SIGXFSZ",
}
