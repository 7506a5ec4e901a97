// Package testutil provides deterministic stand-ins for the clock and
// token sources that production code draws from the system.
package testutil

import "sync"

// FixedClock reports the same epoch-millisecond timestamp forever. Run ids
// minted against it are fully reproducible.
type FixedClock struct {
	ms int64
}

// NewFixedClock creates a clock pinned at ms.
func NewFixedClock(ms int64) *FixedClock {
	return &FixedClock{ms: ms}
}

func (c *FixedClock) NowMS() int64 { return c.ms }

// TickingClock advances by one millisecond per reading. It keeps run ids
// unique within a test while staying deterministic.
//
// Safe for concurrent use.
type TickingClock struct {
	mu sync.Mutex
	ms int64
}

// NewTickingClock creates a clock whose first reading is start.
func NewTickingClock(start int64) *TickingClock {
	return &TickingClock{ms: start - 1}
}

func (c *TickingClock) NowMS() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms++
	return c.ms
}
