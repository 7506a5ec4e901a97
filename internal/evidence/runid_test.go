package evidence

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vouchdev/vouch/internal/testutil"
)

func TestSanitizeLabel(t *testing.T) {
	cases := map[string]string{
		"ls_help":          "ls_help",
		"LS-Help":          "ls-help",
		"weird id!!":       "weird_id",
		"a  b":             "a_b",
		"---":              "---",
		"!!!":              "scenario",
		"":                 "scenario",
		"__padded__":       "padded",
		strings.Repeat("x", 100): strings.Repeat("x", 32),
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeLabel(in), "input %q", in)
	}
}

func TestNewRunIDShape(t *testing.T) {
	clock := testutil.NewFixedClock(1700000000000)
	id := NewRunID("ls_help", strings.Repeat("a", 64), strings.Repeat("b", 64), clock)

	parts := strings.Split(id, "-")
	require.GreaterOrEqual(t, len(parts), 3)
	assert.True(t, strings.HasPrefix(id, "ls_help-"))
	assert.True(t, strings.HasSuffix(id, "-1700000000000"))

	hash := parts[len(parts)-2]
	assert.Len(t, hash, 12)
}

func TestNewRunIDBindsScenarioAndBinary(t *testing.T) {
	clock := testutil.NewFixedClock(1700000000000)
	a := NewRunID("x", strings.Repeat("a", 64), strings.Repeat("b", 64), clock)
	b := NewRunID("x", strings.Repeat("a", 64), strings.Repeat("c", 64), clock)
	c := NewRunID("x", strings.Repeat("a", 64), strings.Repeat("b", 64), clock)

	assert.NotEqual(t, a, b, "different binaries must hash differently")
	assert.Equal(t, a, c, "same inputs and clock must mint the same id")
}

func TestRejectedRunIDUsesFixedLabel(t *testing.T) {
	clock := testutil.NewFixedClock(42)
	id := RejectedRunID(strings.Repeat("a", 64), strings.Repeat("b", 64), clock)
	assert.True(t, strings.HasPrefix(id, "invalid-"), id)
	assert.True(t, strings.HasSuffix(id, "-42"), id)
}

func TestRunIDsUniqueAcrossTicks(t *testing.T) {
	clock := testutil.NewTickingClock(1700000000000)
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		id := NewRunID("same", strings.Repeat("a", 64), strings.Repeat("b", 64), clock)
		require.False(t, seen[id], fmt.Sprintf("duplicate id %s", id))
		seen[id] = true
	}
}
