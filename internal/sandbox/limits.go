package sandbox

import (
	"fmt"
	"strings"

	"github.com/vouchdev/vouch/internal/scenario"
)

// shellWrapper builds the argv prefix that applies rlimits in a throwaway
// shell before exec'ing the target. The shell replaces itself with the
// target, so the limits land on the scenario process and nothing else runs
// inside them.
//
// ulimit units differ per resource: -t is whole seconds, -v is KiB, -f is
// 512-byte blocks, -n is a count. CPU milliseconds round up to the next
// second because -t cannot express fractions.
func shellWrapper(limits scenario.Limits) []string {
	script := strings.Join([]string{
		fmt.Sprintf("ulimit -t %d", cpuSeconds(limits.CPUTimeMS)),
		fmt.Sprintf("ulimit -v %d", limits.MemoryKB),
		fmt.Sprintf("ulimit -f %d", fileBlocks(limits.FileSizeKB)),
		fmt.Sprintf("ulimit -n %d", openFileLimit),
		`exec "$@"`,
	}, "; ")
	return []string{"/bin/sh", "-c", script, "_"}
}

// cpuSeconds converts a millisecond budget to whole seconds, rounding up
// with a floor of one.
func cpuSeconds(ms int64) int64 {
	s := (ms + 999) / 1000
	if s < 1 {
		s = 1
	}
	return s
}

// fileBlocks converts KiB to the 512-byte blocks ulimit -f counts in.
func fileBlocks(kb int64) int64 {
	return kb * 2
}

// limitedBuffer captures up to max bytes and drops the rest, remembering
// that it did. The process keeps a writable pipe either way, so a chatty
// target is never blocked or signaled by the capture side.
type limitedBuffer struct {
	max       int
	buf       []byte
	truncated bool
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - len(b.buf)
	if room > 0 {
		if len(p) <= room {
			b.buf = append(b.buf, p...)
		} else {
			b.buf = append(b.buf, p[:room]...)
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte { return b.buf }
