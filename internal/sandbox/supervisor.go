package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/vouchdev/vouch/internal/outcome"
)

// supervisor owns one running process group and walks it through a small
// state machine: running, then either exited on its own, or limitHit when
// the wall deadline fires and the whole group is killed. The state decides
// classification later: a SIGKILL death is only a wall-time overrun if the
// supervisor is the one who sent it.
type supervisorState int

const (
	stateRunning supervisorState = iota
	stateLimitHit
	stateExited
	stateAborted
)

type supervisor struct {
	cmd  *exec.Cmd
	wall time.Duration

	mu    sync.Mutex
	state supervisorState
	limit outcome.LimitKind
}

func newSupervisor(cmd *exec.Cmd, wall time.Duration) *supervisor {
	return &supervisor{cmd: cmd, wall: wall, state: stateRunning}
}

// run starts the process in its own group and blocks until it stops. The
// returned error is non-nil only for spawn failures; a killed or non-zero
// process is a normal result.
func (s *supervisor) run(ctx context.Context) error {
	s.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	timer := time.AfterFunc(s.wall, func() { s.kill(stateLimitHit, outcome.LimitWallTime) })
	defer timer.Stop()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.kill(stateAborted, "")
		case <-done:
		}
	}()

	// Wait's error only reports the exit status here, which the wait status
	// already carries.
	_ = s.cmd.Wait()
	close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateRunning {
		s.state = stateExited
	}
	if s.state == stateAborted {
		return ctx.Err()
	}
	return nil
}

// kill destroys the whole process group and transitions out of running.
// The negative pid addresses the group, catching anything the target
// spawned. ESRCH means the group was already reaped: the process exited on
// its own before the deadline could be delivered, so the exited transition
// wins and no limit is claimed.
func (s *supervisor) kill(next supervisorState, limit outcome.LimitKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateRunning || s.cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-s.cmd.Process.Pid, syscall.SIGKILL); err == syscall.ESRCH {
		return
	}
	s.state = next
	s.limit = limit
}

// wallLimitHit reports whether the supervisor killed the group for
// exceeding the wall clock budget.
func (s *supervisor) wallLimitHit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateLimitHit && s.limit == outcome.LimitWallTime
}
