package testutil

import "fmt"

// SequenceTokenGenerator hands out "tok-1", "tok-2", ... so workdir names
// in tests are stable across runs.
type SequenceTokenGenerator struct {
	n int
}

// NewSequenceTokenGenerator creates a generator starting at tok-1.
func NewSequenceTokenGenerator() *SequenceTokenGenerator {
	return &SequenceTokenGenerator{}
}

func (g *SequenceTokenGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("tok-%d", g.n)
}
